// internal/handler/campaign_handler.go
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/model"
	"github.com/unclebandit/outreach-engine/internal/service"
)

// CampaignHandler holds the dependencies for campaign-related HTTP handlers
type CampaignHandler struct {
	Service *service.CampaignService
	Metrics *service.MetricsService
}

func NewCampaignHandler(svc *service.CampaignService, metrics *service.MetricsService) *CampaignHandler {
	return &CampaignHandler{Service: svc, Metrics: metrics}
}

func campaignID(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "id"))
}

// CreateCampaignHandler handles creating a new campaign
func (h *CampaignHandler) CreateCampaignHandler(w http.ResponseWriter, r *http.Request) {
	var payload service.CreateCampaignInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, appErrors.NewValidation("body", "invalid request body"))
		return
	}

	campaign, err := h.Service.Create(payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, campaign)
}

// ListCampaignsHandler returns a paginated list of campaigns
func (h *CampaignHandler) ListCampaignsHandler(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	search := r.URL.Query().Get("search")
	status := model.Status(r.URL.Query().Get("status"))

	campaigns, total, err := h.Service.List(page, pageSize, search, status)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  campaigns,
		"total": total,
	})
}

// GetCampaignHandler returns details of a single campaign by ID
func (h *CampaignHandler) GetCampaignHandler(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		writeError(w, appErrors.NewValidation("id", "invalid campaign id"))
		return
	}

	campaign, err := h.Service.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

// UpdateCampaignHandler applies a partial update, including guarded
// status transitions.
func (h *CampaignHandler) UpdateCampaignHandler(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		writeError(w, appErrors.NewValidation("id", "invalid campaign id"))
		return
	}

	var payload service.UpdateCampaignInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, appErrors.NewValidation("body", "invalid request body"))
		return
	}

	campaign, err := h.Service.Update(id, payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

func (h *CampaignHandler) DeleteCampaignHandler(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		writeError(w, appErrors.NewValidation("id", "invalid campaign id"))
		return
	}

	if err := h.Service.Delete(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "campaign deleted"})
}

// CampaignActionHandler drives the lifecycle: schedule, execute,
// pause, resume, stop.
func (h *CampaignHandler) CampaignActionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		writeError(w, appErrors.NewValidation("id", "invalid campaign id"))
		return
	}

	var payload struct {
		Action          string                 `json:"action"`
		ScheduleOptions *model.ScheduleOptions `json:"schedule_options"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, appErrors.NewValidation("body", "invalid request body"))
		return
	}

	switch payload.Action {
	case "schedule":
		campaign, err := h.Service.Schedule(id, payload.ScheduleOptions)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, campaign)
	case "execute":
		if err := h.Service.ExecuteNow(id); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"message": "dispatch enqueued"})
	case "pause":
		campaign, err := h.Service.Pause(id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, campaign)
	case "resume":
		campaign, err := h.Service.Resume(id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, campaign)
	case "stop":
		campaign, err := h.Service.Stop(id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, campaign)
	default:
		writeError(w, appErrors.NewValidation("action", "unknown action "+payload.Action))
	}
}

// CampaignMetricsHandler returns the per-campaign delivery rollup plus
// the per-channel attempt breakdown.
func (h *CampaignHandler) CampaignMetricsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		writeError(w, appErrors.NewValidation("id", "invalid campaign id"))
		return
	}

	rollup, err := h.Metrics.CampaignMetrics(id)
	if err != nil {
		writeError(w, err)
		return
	}
	channels, err := h.Metrics.ChannelMetrics(id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"campaign": rollup,
		"channels": channels,
	})
}
