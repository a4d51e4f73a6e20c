package transport

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/digiurban/lifecycle/internal/lifecycle"
	"github.com/digiurban/lifecycle/model"
)

func handleWorkflowList(svc *lifecycle.WorkflowService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteOK(w, http.StatusOK, svc.ListWorkflows(), "")
	}
}

func handleWorkflowStats(svc *lifecycle.WorkflowService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteOK(w, http.StatusOK, svc.WorkflowStats(), "")
	}
}

func handleWorkflowGet(svc *lifecycle.WorkflowService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		def, err := svc.GetWorkflow(chi.URLParam(r, "moduleType"))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteOK(w, http.StatusOK, def, "")
	}
}

// handleWorkflowSave creates or replaces a definition. The module type in
// the path wins over one in the body.
func handleWorkflowSave(svc *lifecycle.WorkflowService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var def model.WorkflowDefinition
		if err := decodeJSON(r, &def, false); err != nil {
			WriteError(w, r, err)
			return
		}
		moduleType := chi.URLParam(r, "moduleType")
		if def.ModuleType != "" && def.ModuleType != moduleType {
			WriteError(w, r, model.NewFieldError("moduleType", "MISMATCH", "body moduleType differs from the path"))
			return
		}
		def.ModuleType = moduleType

		saved, err := svc.SaveWorkflow(def)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteOK(w, http.StatusOK, saved, "Workflow saved")
	}
}

func handleWorkflowDelete(svc *lifecycle.WorkflowService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteWorkflow(chi.URLParam(r, "moduleType")); err != nil {
			WriteError(w, r, err)
			return
		}
		WriteOK(w, http.StatusOK, nil, "Workflow deleted")
	}
}

func handleWorkflowApply(svc *lifecycle.WorkflowService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ModuleType string `json:"moduleType"`
		}
		if err := decodeJSON(r, &body, false); err != nil {
			WriteError(w, r, err)
			return
		}
		if strings.TrimSpace(body.ModuleType) == "" {
			WriteError(w, r, model.NewFieldError("moduleType", "REQUIRED", "moduleType is required"))
			return
		}

		stages, err := svc.ApplyWorkflow(r.Context(), body.ModuleType, chi.URLParam(r, "protocolId"))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteOK(w, http.StatusCreated, stages, "Workflow applied")
	}
}
