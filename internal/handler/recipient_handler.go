// internal/handler/recipient_handler.go
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/model"
	"github.com/unclebandit/outreach-engine/internal/service"
)

// RecipientHandler covers campaign membership endpoints.
type RecipientHandler struct {
	Service *service.CampaignService
}

func NewRecipientHandler(svc *service.CampaignService) *RecipientHandler {
	return &RecipientHandler{Service: svc}
}

func (h *RecipientHandler) AddRecipientsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		writeError(w, appErrors.NewValidation("id", "invalid campaign id"))
		return
	}

	var payload struct {
		Recipients []service.RecipientInput `json:"recipients"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, appErrors.NewValidation("body", "invalid request body"))
		return
	}

	added, err := h.Service.AddRecipients(id, payload.Recipients)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"added": added})
}

func (h *RecipientHandler) RemoveRecipientsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		writeError(w, appErrors.NewValidation("id", "invalid campaign id"))
		return
	}

	var payload struct {
		RecipientIDs []int `json:"recipient_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, appErrors.NewValidation("body", "invalid request body"))
		return
	}

	removed, err := h.Service.RemoveRecipients(id, payload.RecipientIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (h *RecipientHandler) ListRecipientsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		writeError(w, appErrors.NewValidation("id", "invalid campaign id"))
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	status := model.RecipientStatus(r.URL.Query().Get("status"))
	search := r.URL.Query().Get("search")

	recipients, total, err := h.Service.ListRecipients(id, page, pageSize, status, search)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  recipients,
		"total": total,
	})
}

// ResetRecipientsHandler moves failed members back to pending;
// include_sent widens the reset to delivered ones too.
func (h *RecipientHandler) ResetRecipientsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		writeError(w, appErrors.NewValidation("id", "invalid campaign id"))
		return
	}

	includeSent := r.URL.Query().Get("include_sent") == "true"

	reset, err := h.Service.ResetRecipients(id, includeSent)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"reset": reset})
}
