// Package transport contains the HTTP router, middleware chain, and the
// request handlers for the lifecycle API. Every response body is a
// model.Result envelope.
package transport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/digiurban/lifecycle/internal/observability"
	"github.com/digiurban/lifecycle/model"
)

// maxBodyBytes bounds request bodies read by the handlers.
const maxBodyBytes = 1 << 20

// statusForCode maps ErrorEnvelope codes to HTTP status codes.
var statusForCode = map[string]int{
	model.ErrBadRequest:          http.StatusBadRequest,
	model.ErrUnauthorized:        http.StatusUnauthorized,
	model.ErrForbidden:           http.StatusForbidden,
	model.ErrNotFound:            http.StatusNotFound,
	model.ErrConflict:            http.StatusConflict,
	model.ErrValidationError:     http.StatusUnprocessableEntity,
	model.ErrInvalidTransition:   http.StatusUnprocessableEntity,
	model.ErrRateLimited:         http.StatusTooManyRequests,
	model.ErrInternalError:       http.StatusInternalServerError,
	model.ErrUnknownModuleType:   http.StatusNotFound,
	model.ErrAlreadyApplied:      http.StatusConflict,
	model.ErrAlreadyCompleted:    http.StatusConflict,
	model.ErrAnotherStageActive:  http.StatusConflict,
	model.ErrPreconditionFailed:  http.StatusPreconditionRequired,
	model.ErrProtocolCompleted:   http.StatusConflict,
	model.ErrFormValidationError: http.StatusUnprocessableEntity,
}

// StatusFor returns the HTTP status for an error code, 500 when unknown.
func StatusFor(code string) int {
	if status, ok := statusForCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// WriteOK writes a successful Result envelope.
func WriteOK(w http.ResponseWriter, status int, data any, msg string) {
	WriteJSON(w, status, model.OK(data, msg))
}

// WriteError writes err as a failed Result envelope with the matching HTTP
// status. Errors that are not envelopes are logged and reported as a
// generic 500 so internals never leak to callers.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	env, ok := model.AsEnvelope(err)
	if !ok {
		observability.RequestLogger(r.Context(), zap.NewNop()).Error("unhandled error",
			zap.Error(err), zap.String("path", r.URL.Path))
		env = model.NewInternalError()
	}
	// Copy before stamping the trace id; envelopes may be shared values.
	out := *env
	if out.TraceID == "" {
		out.TraceID = observability.TraceIDFromContext(r.Context())
	}
	WriteJSON(w, StatusFor(out.Code), model.Fail(&out))
}

// decodeJSON reads the request body into dst. An empty body leaves dst
// untouched when allowEmpty is set.
func decodeJSON(r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		return model.NewBadRequestError("invalid JSON body")
	}
	return nil
}
