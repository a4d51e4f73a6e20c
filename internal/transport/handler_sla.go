package transport

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/digiurban/lifecycle/internal/lifecycle"
	"github.com/digiurban/lifecycle/model"
)

func handleSLACreate(tracker *lifecycle.SLATracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			WorkingDays int `json:"workingDays"`
		}
		if err := decodeJSON(r, &body, false); err != nil {
			WriteError(w, r, err)
			return
		}
		sla, err := tracker.Create(r.Context(), chi.URLParam(r, "protocolId"), body.WorkingDays)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteOK(w, http.StatusCreated, sla, "SLA created")
	}
}

func handleSLAGet(tracker *lifecycle.SLATracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sla, err := tracker.Get(r.Context(), chi.URLParam(r, "protocolId"))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteOK(w, http.StatusOK, sla, "")
	}
}

func handleSLADelete(tracker *lifecycle.SLATracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := tracker.Delete(r.Context(), chi.URLParam(r, "protocolId")); err != nil {
			WriteError(w, r, err)
			return
		}
		WriteOK(w, http.StatusOK, nil, "SLA deleted")
	}
}

func handleSLAPause(tracker *lifecycle.SLATracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Reason string `json:"reason"`
		}
		if err := decodeJSON(r, &body, true); err != nil {
			WriteError(w, r, err)
			return
		}
		sla, err := tracker.Pause(r.Context(), chi.URLParam(r, "protocolId"), body.Reason)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteOK(w, http.StatusOK, sla, "SLA paused")
	}
}

// slaActionHandler serves the body-less SLA transitions.
func slaActionHandler(op func(r *http.Request, protocolID string) (*model.SLAView, error), msg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sla, err := op(r, chi.URLParam(r, "protocolId"))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteOK(w, http.StatusOK, sla, msg)
	}
}

func handleSLAResume(tracker *lifecycle.SLATracker) http.HandlerFunc {
	return slaActionHandler(func(r *http.Request, id string) (*model.SLAView, error) {
		return tracker.Resume(r.Context(), id)
	}, "SLA resumed")
}

func handleSLAComplete(tracker *lifecycle.SLATracker) http.HandlerFunc {
	return slaActionHandler(func(r *http.Request, id string) (*model.SLAView, error) {
		return tracker.Complete(r.Context(), id)
	}, "SLA completed")
}

func handleSLAUpdateStatus(tracker *lifecycle.SLATracker) http.HandlerFunc {
	return slaActionHandler(func(r *http.Request, id string) (*model.SLAView, error) {
		return tracker.UpdateStatus(r.Context(), id)
	}, "")
}

func handleSLAOverdue(tracker *lifecycle.SLATracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := tracker.Overdue(r.Context())
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteOK(w, http.StatusOK, list, "")
	}
}

// handleSLANearDue reads ?days=N, defaulting to the configured threshold.
func handleSLANearDue(tracker *lifecycle.SLATracker, defaultDays int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days := defaultDays
		if raw := r.URL.Query().Get("days"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				WriteError(w, r, model.NewFieldError("days", "TYPE", "days must be an integer"))
				return
			}
			days = n
		}
		list, err := tracker.NearDue(r.Context(), days)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteOK(w, http.StatusOK, list, "")
	}
}

func handleSLAStats(tracker *lifecycle.SLATracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := tracker.Stats(r.Context())
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteOK(w, http.StatusOK, stats, "")
	}
}
