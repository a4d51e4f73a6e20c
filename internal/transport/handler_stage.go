package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/digiurban/lifecycle/internal/lifecycle"
	"github.com/digiurban/lifecycle/model"
)

func handleStageList(engine *lifecycle.StageEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stages, err := engine.List(r.Context(), chi.URLParam(r, "protocolId"))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteOK(w, http.StatusOK, stages, "")
	}
}

// handleStageCurrent returns the IN_PROGRESS stage, or null data when no
// stage is running.
func handleStageCurrent(engine *lifecycle.StageEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stage, err := engine.Current(r.Context(), chi.URLParam(r, "protocolId"))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		if stage == nil {
			WriteOK(w, http.StatusOK, nil, "No stage in progress")
			return
		}
		WriteOK(w, http.StatusOK, stage, "")
	}
}

func handleStageCounts(engine *lifecycle.StageEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := engine.CountByStatus(r.Context(), chi.URLParam(r, "protocolId"))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteOK(w, http.StatusOK, counts, "")
	}
}

func handleStagesCompleted(engine *lifecycle.StageEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		done, err := engine.AllCompleted(r.Context(), chi.URLParam(r, "protocolId"))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteOK(w, http.StatusOK, map[string]bool{"allCompleted": done}, "")
	}
}

func handleStageConditions(engine *lifecycle.StageEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		check, err := engine.ValidateConditions(r.Context(), chi.URLParam(r, "stageId"))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteOK(w, http.StatusOK, check, "")
	}
}

func handleStageStart(engine *lifecycle.StageEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stage, err := engine.Start(r.Context(), chi.URLParam(r, "stageId"))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteOK(w, http.StatusOK, stage, "Stage started")
	}
}

func handleStageComplete(engine *lifecycle.StageEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Result string `json:"result"`
			Notes  string `json:"notes"`
		}
		if err := decodeJSON(r, &body, true); err != nil {
			WriteError(w, r, err)
			return
		}
		stage, err := engine.Complete(r.Context(), chi.URLParam(r, "stageId"), body.Result, body.Notes)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteOK(w, http.StatusOK, stage, "Stage completed")
	}
}

// stageReasonHandler serves skip and fail, which both take a reason.
func stageReasonHandler(op func(r *http.Request, stageID, reason string) (*model.StageInstance, error), msg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Reason string `json:"reason"`
		}
		if err := decodeJSON(r, &body, true); err != nil {
			WriteError(w, r, err)
			return
		}
		stage, err := op(r, chi.URLParam(r, "stageId"), body.Reason)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteOK(w, http.StatusOK, stage, msg)
	}
}

func handleStageSkip(engine *lifecycle.StageEngine) http.HandlerFunc {
	return stageReasonHandler(func(r *http.Request, id, reason string) (*model.StageInstance, error) {
		return engine.Skip(r.Context(), id, reason)
	}, "Stage skipped")
}

func handleStageFail(engine *lifecycle.StageEngine) http.HandlerFunc {
	return stageReasonHandler(func(r *http.Request, id, reason string) (*model.StageInstance, error) {
		return engine.Fail(r.Context(), id, reason)
	}, "Stage failed")
}
