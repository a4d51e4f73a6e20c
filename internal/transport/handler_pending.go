package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/digiurban/lifecycle/internal/lifecycle"
	"github.com/digiurban/lifecycle/model"
)

func handlePendingCreate(reg *lifecycle.PendingRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in lifecycle.PendingInput
		if err := decodeJSON(r, &in, false); err != nil {
			WriteError(w, r, err)
			return
		}
		p, err := reg.Create(r.Context(), chi.URLParam(r, "protocolId"), in)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteOK(w, http.StatusCreated, p, "Pending created")
	}
}

func handlePendingList(reg *lifecycle.PendingRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := reg.List(r.Context(), chi.URLParam(r, "protocolId"), r.URL.Query().Get("status"))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteOK(w, http.StatusOK, list, "")
	}
}

func handlePendingCounts(reg *lifecycle.PendingRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := reg.CountByStatus(r.Context(), chi.URLParam(r, "protocolId"))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteOK(w, http.StatusOK, counts, "")
	}
}

func handlePendingBlocking(reg *lifecycle.PendingRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := reg.Blocking(r.Context(), chi.URLParam(r, "protocolId"))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteOK(w, http.StatusOK, map[string]any{
			"hasBlocking": len(list) > 0,
			"pendings":    list,
		}, "")
	}
}

func handlePendingExpire(reg *lifecycle.PendingRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		expired, err := reg.CheckExpired(r.Context(), chi.URLParam(r, "protocolId"))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteOK(w, http.StatusOK, expired, "")
	}
}

func handlePendingGet(reg *lifecycle.PendingRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := reg.Get(r.Context(), chi.URLParam(r, "pendingId"))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteOK(w, http.StatusOK, p, "")
	}
}

func handlePendingStart(reg *lifecycle.PendingRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := reg.Start(r.Context(), chi.URLParam(r, "pendingId"))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteOK(w, http.StatusOK, p, "Pending started")
	}
}

// pendingTextHandler serves resolve and cancel; field names the body
// property carrying the resolution or reason.
func pendingTextHandler(field string, op func(r *http.Request, pendingID, text string) (*model.PendingItem, error), msg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Resolution string `json:"resolution"`
			Reason     string `json:"reason"`
		}
		if err := decodeJSON(r, &body, true); err != nil {
			WriteError(w, r, err)
			return
		}
		text := body.Reason
		if field == "resolution" {
			text = body.Resolution
		}
		p, err := op(r, chi.URLParam(r, "pendingId"), text)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteOK(w, http.StatusOK, p, msg)
	}
}

func handlePendingResolve(reg *lifecycle.PendingRegistry) http.HandlerFunc {
	return pendingTextHandler("resolution", func(r *http.Request, id, text string) (*model.PendingItem, error) {
		return reg.Resolve(r.Context(), id, text)
	}, "Pending resolved")
}

func handlePendingCancel(reg *lifecycle.PendingRegistry) http.HandlerFunc {
	return pendingTextHandler("reason", func(r *http.Request, id, text string) (*model.PendingItem, error) {
		return reg.Cancel(r.Context(), id, text)
	}, "Pending cancelled")
}
