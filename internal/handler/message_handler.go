// internal/handler/message_handler.go
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/service"
)

// MessageHandler covers per-channel message template endpoints.
type MessageHandler struct {
	Service *service.CampaignService
}

func NewMessageHandler(svc *service.CampaignService) *MessageHandler {
	return &MessageHandler{Service: svc}
}

func templateID(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "templateID"))
}

func (h *MessageHandler) CreateMessageHandler(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		writeError(w, appErrors.NewValidation("id", "invalid campaign id"))
		return
	}

	var payload service.MessageTemplateInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, appErrors.NewValidation("body", "invalid request body"))
		return
	}

	template, err := h.Service.CreateMessage(id, payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, template)
}

func (h *MessageHandler) ListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		writeError(w, appErrors.NewValidation("id", "invalid campaign id"))
		return
	}

	templates, err := h.Service.ListMessages(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": templates})
}

func (h *MessageHandler) UpdateMessageHandler(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		writeError(w, appErrors.NewValidation("id", "invalid campaign id"))
		return
	}
	tid, err := templateID(r)
	if err != nil {
		writeError(w, appErrors.NewValidation("templateID", "invalid template id"))
		return
	}

	var payload service.MessageTemplateUpdate
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, appErrors.NewValidation("body", "invalid request body"))
		return
	}

	template, err := h.Service.UpdateMessage(id, tid, payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, template)
}

func (h *MessageHandler) DeleteMessageHandler(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		writeError(w, appErrors.NewValidation("id", "invalid campaign id"))
		return
	}
	tid, err := templateID(r)
	if err != nil {
		writeError(w, appErrors.NewValidation("templateID", "invalid template id"))
		return
	}

	if err := h.Service.DeleteMessage(id, tid); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "template deleted"})
}

// PreviewMessageHandler renders a template without dispatching.
// Accepts an optional recipient_id and an optional override body.
func (h *MessageHandler) PreviewMessageHandler(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		writeError(w, appErrors.NewValidation("id", "invalid campaign id"))
		return
	}

	channel := chi.URLParam(r, "channel")

	var payload struct {
		RecipientID  int     `json:"recipient_id"`
		BodyTemplate *string `json:"body_template"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, appErrors.NewValidation("body", "invalid request body"))
		return
	}

	subject, body, err := h.Service.RenderPreview(id, channel, payload.RecipientID, payload.BodyTemplate)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"subject": subject,
		"body":    body,
	})
}
