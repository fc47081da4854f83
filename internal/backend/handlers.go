package backend

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"wedding-sync/internal/errs"
	"wedding-sync/internal/models"
)

const maxBodyBytes = 1 << 20 // 1 MiB

// Handler exposes the service over HTTP.
func Handler(svc *Service, logger zerolog.Logger) http.Handler {
	h := &handlers{svc: svc, log: logger.With().Str("component", "HTTP").Logger()}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/events", h.listEvents)
	mux.HandleFunc("PUT /api/events/{eventID}", h.putEvent)
	mux.HandleFunc("POST /api/events/{eventID}/guests", h.createGuest)
	mux.HandleFunc("PATCH /api/events/{eventID}/guests/{guestID}", h.patchGuest)
	mux.HandleFunc("DELETE /api/events/{eventID}/guests/{guestID}", h.deleteGuest)
	mux.HandleFunc("POST /api/events/{eventID}/table-assignment", h.assignTable)
	mux.HandleFunc("POST /api/events/{eventID}/campaigns/recreate", h.recreateCampaigns)
	mux.HandleFunc("POST /api/events/{eventID}/campaigns/{campaignID}/send", h.sendCampaign)
	mux.HandleFunc("GET /api/whatsapp/pending-updates-count", h.pendingCount)
	mux.HandleFunc("POST /api/whatsapp/process-all-updates", h.processAll)
	mux.HandleFunc("POST /api/whatsapp/sync-updates", h.syncUpdates)
	mux.HandleFunc("POST /api/whatsapp/webhook", h.webhook)
	return h.logging(mux)
}

type handlers struct {
	svc *Service
	log zerolog.Logger
}

func (h *handlers) listEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.Events(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *handlers) putEvent(w http.ResponseWriter, r *http.Request) {
	var ev models.Event
	if !h.decode(w, r, &ev) {
		return
	}
	id := r.PathValue("eventID")
	if ev.ID == "" {
		ev.ID = id
	}
	if ev.ID != id {
		h.fail(w, r, errs.Validation("backend.PutEvent", "body event %s does not match path %s", ev.ID, id))
		return
	}
	if err := h.svc.PutEvent(r.Context(), ev); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) createGuest(w http.ResponseWriter, r *http.Request) {
	var g models.Guest
	if !h.decode(w, r, &g) {
		return
	}
	created, err := h.svc.CreateGuest(r.Context(), r.PathValue("eventID"), g)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handlers) patchGuest(w http.ResponseWriter, r *http.Request) {
	var u models.GuestUpdate
	if !h.decode(w, r, &u) {
		return
	}
	g, err := h.svc.PatchGuest(r.Context(), r.PathValue("eventID"), r.PathValue("guestID"), u)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (h *handlers) deleteGuest(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteGuest(r.Context(), r.PathValue("eventID"), r.PathValue("guestID")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) assignTable(w http.ResponseWriter, r *http.Request) {
	var req models.TableAssignment
	if !h.decode(w, r, &req) {
		return
	}
	g, err := h.svc.AssignTable(r.Context(), r.PathValue("eventID"), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (h *handlers) recreateCampaigns(w http.ResponseWriter, r *http.Request) {
	var body models.CampaignSet
	if !h.decode(w, r, &body) {
		return
	}
	campaigns, err := h.svc.RecreateCampaigns(r.Context(), r.PathValue("eventID"), body.Campaigns)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.CampaignSet{Campaigns: campaigns})
}

func (h *handlers) sendCampaign(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.SendCampaign(r.Context(), r.PathValue("eventID"), r.PathValue("campaignID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) pendingCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.PendingCount(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.PendingCount{Count: n})
}

func (h *handlers) processAll(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ProcessAll(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) syncUpdates(w http.ResponseWriter, r *http.Request) {
	onlyToday := false
	if v := r.URL.Query().Get("onlyToday"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			h.fail(w, r, errs.Validation("backend.SyncUpdates", "onlyToday must be a boolean, got %q", v))
			return
		}
		onlyToday = b
	}
	res, err := h.svc.SyncUpdates(r.Context(), onlyToday)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res.ProcessedUpdates = nil
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) webhook(w http.ResponseWriter, r *http.Request) {
	var p models.WebhookPayload
	if !h.decode(w, r, &p) {
		return
	}
	pu, err := h.svc.Enqueue(r.Context(), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, pu)
}

func (h *handlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.APIError{Error: "failed to read body"})
		return false
	}
	if len(data) > maxBodyBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, models.APIError{Error: "payload too large"})
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		writeJSON(w, http.StatusBadRequest, models.APIError{Error: "invalid json: " + err.Error()})
		return false
	}
	return true
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errs.IsNotFound(err):
		status = http.StatusNotFound
	case errs.IsValidation(err):
		status = http.StatusBadRequest
	case r.Context().Err() != nil:
		status = http.StatusServiceUnavailable
	}
	if status >= 500 {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	writeJSON(w, status, models.APIError{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (h *handlers) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		h.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Dur("took", time.Since(start)).
			Msg("Request")
	})
}
