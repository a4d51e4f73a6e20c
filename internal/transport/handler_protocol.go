package transport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/digiurban/lifecycle/internal/formschema"
	"github.com/digiurban/lifecycle/internal/lifecycle"
	"github.com/digiurban/lifecycle/internal/observability"
	"github.com/digiurban/lifecycle/model"
)

// handleFormValidate checks a payload against a form schema without opening
// a protocol. An invalid payload is still a 200; the outcome is in data.
func handleFormValidate(metrics *observability.Metrics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Schema json.RawMessage `json:"schema"`
			Data   map[string]any  `json:"data"`
		}
		if err := decodeJSON(r, &body, false); err != nil {
			WriteError(w, r, err)
			return
		}
		if len(body.Schema) == 0 {
			WriteError(w, r, model.NewFieldError("schema", "REQUIRED", "schema is required"))
			return
		}

		res, err := formschema.ValidateRaw(body.Schema, body.Data)
		if err != nil {
			WriteError(w, r, model.NewFieldError("schema", "INVALID", err.Error()))
			return
		}
		metrics.RecordFormValidation(res.Valid)
		observability.LoggerFrom(r.Context(), logger).Debug("form validated",
			zap.Bool("valid", res.Valid),
			zap.Any("data", observability.RedactBody(body.Data, nil)),
		)
		WriteOK(w, http.StatusOK, res, "")
	}
}

func handleProtocolOpen(svc *lifecycle.ProtocolService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in lifecycle.OpenInput
		if err := decodeJSON(r, &in, false); err != nil {
			WriteError(w, r, err)
			return
		}
		view, err := svc.Open(r.Context(), in)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		w.Header().Set("Location", "/api/protocols/"+view.Protocol.ID)
		WriteOK(w, http.StatusCreated, view, "Protocol opened")
	}
}

func handleProtocolGet(svc *lifecycle.ProtocolService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := svc.Get(r.Context(), chi.URLParam(r, "protocolId"))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteOK(w, http.StatusOK, view, "")
	}
}

func handleProtocolPurge(svc *lifecycle.ProtocolService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Purge(r.Context(), chi.URLParam(r, "protocolId")); err != nil {
			WriteError(w, r, err)
			return
		}
		WriteOK(w, http.StatusOK, nil, "Protocol purged")
	}
}

func handleDocumentAdd(svc *lifecycle.ProtocolService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in lifecycle.DocumentInput
		if err := decodeJSON(r, &in, false); err != nil {
			WriteError(w, r, err)
			return
		}
		doc, err := svc.AddDocument(r.Context(), chi.URLParam(r, "protocolId"), in)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteOK(w, http.StatusCreated, doc, "Document added")
	}
}

func handleDocumentReview(svc *lifecycle.ProtocolService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Approved *bool `json:"approved"`
		}
		if err := decodeJSON(r, &body, false); err != nil {
			WriteError(w, r, err)
			return
		}
		if body.Approved == nil {
			WriteError(w, r, model.NewFieldError("approved", "REQUIRED", "approved is required"))
			return
		}
		doc, err := svc.ReviewDocument(r.Context(), chi.URLParam(r, "documentId"), *body.Approved)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteOK(w, http.StatusOK, doc, "Document reviewed")
	}
}

// handleSweep runs one sweep pass on demand.
func handleSweep(svc *lifecycle.ProtocolService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := svc.Sweep(r.Context())
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteOK(w, http.StatusOK, report, "Sweep finished")
	}
}
