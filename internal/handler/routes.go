// internal/handler/routes.go
package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unclebandit/outreach-engine/internal/metrics"
)

// Routes assembles the chi router for the campaign API.
func Routes(campaigns *CampaignHandler, recipients *RecipientHandler, messages *MessageHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(countRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/campaigns", func(r chi.Router) {
		r.Post("/", campaigns.CreateCampaignHandler)
		r.Get("/", campaigns.ListCampaignsHandler)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", campaigns.GetCampaignHandler)
			r.Patch("/", campaigns.UpdateCampaignHandler)
			r.Delete("/", campaigns.DeleteCampaignHandler)
			r.Post("/actions", campaigns.CampaignActionHandler)
			r.Get("/metrics", campaigns.CampaignMetricsHandler)

			r.Post("/recipients", recipients.AddRecipientsHandler)
			r.Get("/recipients", recipients.ListRecipientsHandler)
			r.Delete("/recipients", recipients.RemoveRecipientsHandler)
			r.Post("/recipients/reset", recipients.ResetRecipientsHandler)

			r.Post("/messages", messages.CreateMessageHandler)
			r.Get("/messages", messages.ListMessagesHandler)
			r.Put("/messages/{templateID}", messages.UpdateMessageHandler)
			r.Delete("/messages/{templateID}", messages.DeleteMessageHandler)
			r.Post("/messages/{channel}/preview", messages.PreviewMessageHandler)
		})
	})

	return r
}

func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = r.URL.Path
		}
		metrics.RequestCount.WithLabelValues(pattern, r.Method, strconv.Itoa(ww.Status())).Inc()
	})
}
