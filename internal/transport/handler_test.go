package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/digiurban/lifecycle/internal/capability"
	"github.com/digiurban/lifecycle/internal/definition"
	"github.com/digiurban/lifecycle/model"
)

const (
	staff   = capability.RoleStaff
	admin   = capability.RoleAdmin
	citizen = capability.RoleCitizen
)

// decodeData unmarshals the data of a successful envelope into dst.
func decodeData(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	env := decodeEnvelope(t, w)
	if !env.Success {
		t.Fatalf("request failed: %d %s", w.Code, w.Body.String())
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
}

// expectError checks the status and error code of a failed response.
func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) envelope {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d: %s", w.Code, status, w.Body.String())
	}
	env := decodeEnvelope(t, w)
	if env.Success || env.Error.Code != code {
		t.Fatalf("error code = %q, want %q", env.Error.Code, code)
	}
	return env
}

// openProtocol opens a protocol of moduleType as staff and returns its view.
func (e *testEnv) openProtocol(t *testing.T, moduleType string) model.ProtocolView {
	t.Helper()
	w := e.call(t, staff, http.MethodPost, "/api/protocols", `{"moduleType":"`+moduleType+`","data":{"produtor":{"nome":"Maria"}}}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("open status = %d: %s", w.Code, w.Body.String())
	}
	var view model.ProtocolView
	decodeData(t, w, &view)
	return view
}

func TestWorkflowHandlers(t *testing.T) {
	env := newTestEnv(t)

	var list []model.WorkflowDefinition
	decodeData(t, env.call(t, citizen, http.MethodGet, "/api/workflows", ""), &list)
	if len(list) != 2 {
		t.Errorf("workflows = %d, want 2", len(list))
	}

	var def model.WorkflowDefinition
	decodeData(t, env.call(t, staff, http.MethodGet, "/api/workflows/"+definition.ModuleCadastroProdutor, ""), &def)
	if len(def.Stages) != 3 || def.DefaultSLA != 15 {
		t.Errorf("CADASTRO_PRODUTOR = %d stages, sla %d", len(def.Stages), def.DefaultSLA)
	}

	expectError(t, env.call(t, staff, http.MethodGet, "/api/workflows/ILUMINACAO", ""), http.StatusNotFound, model.ErrNotFound)

	body := `{"name":"Iluminação Pública","defaultSLA":5,"stages":[{"order":1,"name":"Vistoria","slaWorkingDays":3},{"order":2,"name":"Reparo","slaWorkingDays":2}]}`
	w := env.call(t, admin, http.MethodPut, "/api/workflows/ILUMINACAO", body)
	decodeData(t, w, &def)
	if def.ModuleType != "ILUMINACAO" {
		t.Errorf("saved moduleType = %q, want path value", def.ModuleType)
	}

	var stats []model.WorkflowStats
	decodeData(t, env.call(t, staff, http.MethodGet, "/api/workflows/stats", ""), &stats)
	if len(stats) != 3 {
		t.Errorf("stats = %d entries, want 3", len(stats))
	}

	w = env.call(t, admin, http.MethodPut, "/api/workflows/ILUMINACAO", `{"moduleType":"OUTRO","name":"x","defaultSLA":1,"stages":[{"order":1,"name":"a"}]}`)
	expectError(t, w, http.StatusUnprocessableEntity, model.ErrValidationError)

	w = env.call(t, admin, http.MethodPut, "/api/workflows/ILUMINACAO", `{"name":"","defaultSLA":0,"stages":[]}`)
	if got := expectError(t, w, http.StatusUnprocessableEntity, model.ErrValidationError); len(got.Error.Details) < 3 {
		t.Errorf("details = %v, want one per problem", got.Error.Details)
	}

	if w := env.call(t, admin, http.MethodDelete, "/api/workflows/ILUMINACAO", ""); w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}
	expectError(t, env.call(t, admin, http.MethodDelete, "/api/workflows/ILUMINACAO", ""), http.StatusNotFound, model.ErrNotFound)
}

func TestProtocolOpen(t *testing.T) {
	env := newTestEnv(t)

	w := env.call(t, staff, http.MethodPost, "/api/protocols", `{"moduleType":"CADASTRO_PRODUTOR"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var view model.ProtocolView
	decodeData(t, w, &view)
	if loc := w.Header().Get("Location"); loc != "/api/protocols/"+view.Protocol.ID {
		t.Errorf("Location = %q", loc)
	}
	if len(view.Stages) != 3 || view.SLA == nil || view.SLA.WorkingDays != 15 {
		t.Fatalf("view = %d stages, sla %+v", len(view.Stages), view.SLA)
	}
	if view.SLA.Status != model.SLAWithin {
		t.Errorf("sla status = %q, want WITHIN_SLA", view.SLA.Status)
	}

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"malformed JSON", `{"moduleType":`, http.StatusBadRequest, model.ErrBadRequest},
		{"unknown module", `{"moduleType":"ILUMINACAO"}`, http.StatusNotFound, model.ErrUnknownModuleType},
		{"duplicate id", `{"id":"` + view.Protocol.ID + `"}`, http.StatusConflict, model.ErrConflict},
		{
			"invalid form",
			`{"data":{"area":"muito"},"formSchema":{"fields":[{"id":"area","type":"number","required":true}]}}`,
			http.StatusUnprocessableEntity, model.ErrFormValidationError,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			expectError(t, env.call(t, staff, http.MethodPost, "/api/protocols", tc.body), tc.status, tc.code)
		})
	}
}

func TestApplyWorkflow(t *testing.T) {
	env := newTestEnv(t)

	w := env.call(t, staff, http.MethodPost, "/api/protocols", `{"data":{"assunto":"poda"}}`)
	var view model.ProtocolView
	decodeData(t, w, &view)
	if len(view.Stages) != 0 || view.SLA != nil {
		t.Fatalf("protocol without module type should start bare: %+v", view)
	}
	path := "/api/protocols/" + view.Protocol.ID + "/workflow"

	expectError(t, env.call(t, staff, http.MethodPost, path, `{}`), http.StatusUnprocessableEntity, model.ErrValidationError)
	expectError(t, env.call(t, citizen, http.MethodPost, path, `{"moduleType":"ATENDIMENTOS_AGRICULTURA"}`), http.StatusForbidden, model.ErrForbidden)

	w = env.call(t, staff, http.MethodPost, path, `{"moduleType":"ATENDIMENTOS_AGRICULTURA"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("apply status = %d: %s", w.Code, w.Body.String())
	}
	var stages []model.StageInstance
	decodeData(t, w, &stages)
	if len(stages) != 3 || stages[0].Name != "Triagem" {
		t.Errorf("stages = %+v", stages)
	}

	expectError(t, env.call(t, staff, http.MethodPost, path, `{"moduleType":"ATENDIMENTOS_AGRICULTURA"}`), http.StatusConflict, model.ErrAlreadyApplied)
	expectError(t, env.call(t, staff, http.MethodPost, "/api/protocols/nao-existe/workflow", `{"moduleType":"ATENDIMENTOS_AGRICULTURA"}`), http.StatusNotFound, model.ErrNotFound)
}

func TestStageFlowToSettlement(t *testing.T) {
	env := newTestEnv(t)
	view := env.openProtocol(t, definition.ModuleCadastroProdutor)
	pid := view.Protocol.ID
	s1, s2, s3 := view.Stages[0].ID, view.Stages[1].ID, view.Stages[2].ID

	w := env.call(t, staff, http.MethodGet, "/api/protocols/"+pid+"/stages/current", "")
	if env := decodeEnvelope(t, w); len(env.Data) != 0 || env.Message != "No stage in progress" {
		t.Errorf("current = %s %q, want no data", env.Data, env.Message)
	}

	var stage model.StageInstance
	decodeData(t, env.call(t, staff, http.MethodPost, "/api/stages/"+s1+"/start", ""), &stage)
	if stage.Status != model.StageInProgress || stage.StartedBy != "servidor-7" {
		t.Errorf("started stage = %s by %q", stage.Status, stage.StartedBy)
	}
	expectError(t, env.call(t, staff, http.MethodPost, "/api/stages/"+s2+"/start", ""), http.StatusConflict, model.ErrAnotherStageActive)

	got := expectError(t, env.call(t, staff, http.MethodPost, "/api/stages/"+s1+"/complete", ""), http.StatusPreconditionRequired, model.ErrPreconditionFailed)
	want := []string{"document:RG_CPF", "document:COMPROVANTE_RESIDENCIA", "document:COMPROVANTE_PROPRIEDADE"}
	if strings.Join(got.Error.MissingItems, ",") != strings.Join(want, ",") {
		t.Errorf("missing_items = %v, want %v", got.Error.MissingItems, want)
	}

	for _, dt := range []string{"RG_CPF", "COMPROVANTE_RESIDENCIA", "COMPROVANTE_PROPRIEDADE"} {
		w := env.call(t, citizen, http.MethodPost, "/api/protocols/"+pid+"/documents", `{"documentType":"`+dt+`"}`)
		if w.Code != http.StatusCreated {
			t.Fatalf("add %s status = %d: %s", dt, w.Code, w.Body.String())
		}
	}

	var check model.ConditionCheck
	decodeData(t, env.call(t, staff, http.MethodGet, "/api/stages/"+s1+"/conditions", ""), &check)
	if !check.Valid || len(check.MissingItems) != 0 {
		t.Errorf("conditions = %+v, want valid", check)
	}

	decodeData(t, env.call(t, staff, http.MethodPost, "/api/stages/"+s1+"/complete", `{"result":"APROVADO","notes":"documentos conferidos"}`), &stage)
	if stage.Status != model.StageCompleted || stage.Result != "APROVADO" {
		t.Errorf("completed stage = %+v", stage)
	}

	env.call(t, staff, http.MethodPost, "/api/stages/"+s2+"/start", "")
	decodeData(t, env.call(t, staff, http.MethodPost, "/api/stages/"+s2+"/skip", `{"reason":"propriedade já vistoriada"}`), &stage)
	if stage.Status != model.StageSkipped || stage.Reason != "propriedade já vistoriada" {
		t.Errorf("skipped stage = %+v", stage)
	}

	var pending model.PendingItem
	w = env.call(t, staff, http.MethodPost, "/api/protocols/"+pid+"/pendings",
		`{"type":"INFORMATION","title":"Informar área cultivada","isBlocking":true,"details":{"information":{"questions":["Qual a área?"]}}}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create pending status = %d: %s", w.Code, w.Body.String())
	}
	decodeData(t, w, &pending)

	env.call(t, staff, http.MethodPost, "/api/stages/"+s3+"/start", "")
	got = expectError(t, env.call(t, staff, http.MethodPost, "/api/stages/"+s3+"/complete", ""), http.StatusPreconditionRequired, model.ErrPreconditionFailed)
	if len(got.Error.MissingItems) != 1 || got.Error.MissingItems[0] != "blocking_pending:"+pending.ID {
		t.Errorf("missing_items = %v", got.Error.MissingItems)
	}

	expectError(t, env.call(t, staff, http.MethodPut, "/api/pendings/"+pending.ID+"/resolve", `{}`), http.StatusUnprocessableEntity, model.ErrValidationError)
	decodeData(t, env.call(t, staff, http.MethodPut, "/api/pendings/"+pending.ID+"/resolve", `{"resolution":"42 ha"}`), &pending)
	if pending.Status != model.PendingResolved {
		t.Errorf("pending status = %s", pending.Status)
	}

	decodeData(t, env.call(t, staff, http.MethodPost, "/api/stages/"+s3+"/complete", ""), &stage)

	var done map[string]bool
	decodeData(t, env.call(t, staff, http.MethodGet, "/api/protocols/"+pid+"/stages/completed", ""), &done)
	if !done["allCompleted"] {
		t.Error("allCompleted should be true")
	}

	var final model.ProtocolView
	decodeData(t, env.call(t, staff, http.MethodGet, "/api/protocols/"+pid, ""), &final)
	if final.Protocol.Status != model.ProtocolCompleted {
		t.Errorf("protocol status = %s, want COMPLETED", final.Protocol.Status)
	}
	if final.SLA == nil || final.SLA.Status != model.SLACompleted {
		t.Errorf("sla = %+v, want COMPLETED", final.SLA)
	}

	expectError(t, env.call(t, citizen, http.MethodPost, "/api/protocols/"+pid+"/documents", `{"documentType":"RG_CPF"}`),
		http.StatusConflict, model.ErrProtocolCompleted)

	var counts model.StageCounts
	decodeData(t, env.call(t, staff, http.MethodGet, "/api/protocols/"+pid+"/stages/counts", ""), &counts)
	if counts.Total != 3 || counts.ByStatus[model.StageCompleted] != 2 || counts.ByStatus[model.StageSkipped] != 1 {
		t.Errorf("counts = %+v", counts)
	}
}

func TestStageFail(t *testing.T) {
	env := newTestEnv(t)
	view := env.openProtocol(t, definition.ModuleAtendimentosAgricultura)
	s1 := view.Stages[0].ID

	expectError(t, env.call(t, staff, http.MethodPost, "/api/stages/"+s1+"/fail", `{"reason":"x"}`), http.StatusUnprocessableEntity, model.ErrInvalidTransition)

	env.call(t, staff, http.MethodPost, "/api/stages/"+s1+"/start", "")
	var stage model.StageInstance
	decodeData(t, env.call(t, staff, http.MethodPost, "/api/stages/"+s1+"/fail", `{"reason":"produtor ausente"}`), &stage)
	if stage.Status != model.StageFailed {
		t.Errorf("status = %s, want FAILED", stage.Status)
	}
	expectError(t, env.call(t, staff, http.MethodPost, "/api/stages/nao-existe/start", ""), http.StatusNotFound, model.ErrNotFound)
}

func TestSLAHandlers(t *testing.T) {
	env := newTestEnv(t)

	w := env.call(t, staff, http.MethodPost, "/api/protocols", `{}`)
	var view model.ProtocolView
	decodeData(t, w, &view)
	base := "/api/protocols/" + view.Protocol.ID + "/sla"

	expectError(t, env.call(t, staff, http.MethodGet, base, ""), http.StatusNotFound, model.ErrNotFound)
	expectError(t, env.call(t, staff, http.MethodPost, base, `{"workingDays":0}`), http.StatusUnprocessableEntity, model.ErrValidationError)

	var sla model.SLAView
	w = env.call(t, staff, http.MethodPost, base, `{"workingDays":5}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}
	decodeData(t, w, &sla)
	if sla.WorkingDays != 5 || sla.Status != model.SLAWithin {
		t.Errorf("sla = %+v", sla)
	}
	expectError(t, env.call(t, staff, http.MethodPost, base, `{"workingDays":5}`), http.StatusConflict, model.ErrConflict)

	decodeData(t, env.call(t, staff, http.MethodPut, base+"/pause", `{"reason":"aguardando documentos"}`), &sla)
	if !sla.IsPaused || sla.Status != model.SLAPaused || sla.PausedReason != "aguardando documentos" {
		t.Errorf("paused sla = %+v", sla)
	}
	expectError(t, env.call(t, staff, http.MethodPut, base+"/pause", `{}`), http.StatusUnprocessableEntity, model.ErrInvalidTransition)

	decodeData(t, env.call(t, staff, http.MethodPut, base+"/resume", ""), &sla)
	if sla.IsPaused {
		t.Error("sla should be running after resume")
	}
	decodeData(t, env.call(t, staff, http.MethodPut, base+"/status", ""), &sla)
	if sla.Status != model.SLAWithin {
		t.Errorf("refreshed status = %s", sla.Status)
	}

	var stats model.SLAStats
	decodeData(t, env.call(t, citizen, http.MethodGet, "/api/sla/stats", ""), &stats)
	if stats.Total != 1 || stats.Completed != 0 {
		t.Errorf("stats = %+v", stats)
	}

	decodeData(t, env.call(t, staff, http.MethodPut, base+"/complete", ""), &sla)
	if sla.Status != model.SLACompleted || sla.ProgressPercent != 100 {
		t.Errorf("completed sla = %+v", sla)
	}
	expectError(t, env.call(t, staff, http.MethodPut, base+"/complete", ""), http.StatusConflict, model.ErrAlreadyCompleted)

	expectError(t, env.call(t, staff, http.MethodDelete, base, ""), http.StatusForbidden, model.ErrForbidden)
	if w := env.call(t, admin, http.MethodDelete, base, ""); w.Code != http.StatusOK {
		t.Errorf("delete status = %d", w.Code)
	}
}

func TestSLAQueries(t *testing.T) {
	env := newTestEnv(t)
	env.openProtocol(t, definition.ModuleAtendimentosAgricultura)

	var list []model.SLAView
	decodeData(t, env.call(t, staff, http.MethodGet, "/api/sla/overdue", ""), &list)
	if len(list) != 0 {
		t.Errorf("overdue = %d, want 0", len(list))
	}

	decodeData(t, env.call(t, staff, http.MethodGet, "/api/sla/near-due?days=30", ""), &list)
	if len(list) != 1 {
		t.Errorf("near-due within 30 days = %d, want 1", len(list))
	}
	decodeData(t, env.call(t, staff, http.MethodGet, "/api/sla/near-due", ""), &list)
	if len(list) != 0 {
		t.Errorf("near-due with default threshold = %d, want 0", len(list))
	}
	expectError(t, env.call(t, staff, http.MethodGet, "/api/sla/near-due?days=tres", ""), http.StatusUnprocessableEntity, model.ErrValidationError)
}

func TestPendingHandlers(t *testing.T) {
	env := newTestEnv(t)
	view := env.openProtocol(t, definition.ModuleAtendimentosAgricultura)
	base := "/api/protocols/" + view.Protocol.ID + "/pendings"

	expectError(t, env.call(t, staff, http.MethodPost, base, `{"type":"MULTA","title":""}`), http.StatusUnprocessableEntity, model.ErrValidationError)
	expectError(t, env.call(t, citizen, http.MethodPost, base, `{"type":"DOCUMENT","title":"RG"}`), http.StatusForbidden, model.ErrForbidden)

	var p model.PendingItem
	decodeData(t, env.call(t, staff, http.MethodPost, base, `{"type":"DOCUMENT","title":"Enviar RG","details":{"document":{"documentType":"RG_CPF"}}}`), &p)
	if p.Status != model.PendingOpen || p.Priority != model.PriorityMedium || p.IsBlocking {
		t.Errorf("created = %+v", p)
	}

	var other model.PendingItem
	decodeData(t, env.call(t, staff, http.MethodPost, base, `{"type":"PAYMENT","title":"Taxa","priority":"HIGH","isBlocking":true}`), &other)

	var got model.PendingItem
	decodeData(t, env.call(t, citizen, http.MethodGet, "/api/pendings/"+p.ID, ""), &got)
	if got.Title != "Enviar RG" {
		t.Errorf("get = %+v", got)
	}

	decodeData(t, env.call(t, staff, http.MethodPut, "/api/pendings/"+p.ID+"/start", ""), &got)
	if got.Status != model.PendingInProgress {
		t.Errorf("started status = %s", got.Status)
	}

	var blocking struct {
		HasBlocking bool                `json:"hasBlocking"`
		Pendings    []model.PendingItem `json:"pendings"`
	}
	decodeData(t, env.call(t, staff, http.MethodGet, base+"/blocking", ""), &blocking)
	if !blocking.HasBlocking || len(blocking.Pendings) != 1 || blocking.Pendings[0].ID != other.ID {
		t.Errorf("blocking = %+v", blocking)
	}

	expectError(t, env.call(t, staff, http.MethodPut, "/api/pendings/"+other.ID+"/cancel", ""), http.StatusUnprocessableEntity, model.ErrValidationError)
	decodeData(t, env.call(t, staff, http.MethodPut, "/api/pendings/"+other.ID+"/cancel", `{"reason":"isento"}`), &got)
	if got.Status != model.PendingCancelled || got.CancelReason != "isento" {
		t.Errorf("cancelled = %+v", got)
	}
	expectError(t, env.call(t, staff, http.MethodPut, "/api/pendings/"+other.ID+"/start", ""), http.StatusUnprocessableEntity, model.ErrInvalidTransition)

	var list []model.PendingItem
	decodeData(t, env.call(t, staff, http.MethodGet, base+"?status=IN_PROGRESS", ""), &list)
	if len(list) != 1 || list[0].ID != p.ID {
		t.Errorf("in-progress list = %+v", list)
	}

	var counts model.PendingCounts
	decodeData(t, env.call(t, staff, http.MethodGet, base+"/counts", ""), &counts)
	if counts.Total != 2 || counts.ByStatus[model.PendingCancelled] != 1 {
		t.Errorf("counts = %+v", counts)
	}

	var expired []model.PendingItem
	decodeData(t, env.call(t, staff, http.MethodPost, base+"/expire", ""), &expired)
	if len(expired) != 0 {
		t.Errorf("expired = %d, want 0 without due dates", len(expired))
	}
	expectError(t, env.call(t, staff, http.MethodGet, "/api/pendings/nao-existe", ""), http.StatusNotFound, model.ErrNotFound)
}

func TestDocumentReview(t *testing.T) {
	env := newTestEnv(t)
	view := env.openProtocol(t, definition.ModuleCadastroProdutor)

	var doc model.Document
	decodeData(t, env.call(t, citizen, http.MethodPost, "/api/protocols/"+view.Protocol.ID+"/documents", `{"documentType":"RG_CPF","name":"rg.pdf"}`), &doc)
	if doc.Status != model.DocumentPending {
		t.Errorf("new document status = %s", doc.Status)
	}
	expectError(t, env.call(t, citizen, http.MethodPost, "/api/protocols/"+view.Protocol.ID+"/documents", `{}`), http.StatusUnprocessableEntity, model.ErrValidationError)

	path := "/api/documents/" + doc.ID + "/review"
	expectError(t, env.call(t, citizen, http.MethodPut, path, `{"approved":true}`), http.StatusForbidden, model.ErrForbidden)
	expectError(t, env.call(t, staff, http.MethodPut, path, `{}`), http.StatusUnprocessableEntity, model.ErrValidationError)

	decodeData(t, env.call(t, staff, http.MethodPut, path, `{"approved":false}`), &doc)
	if doc.Status != model.DocumentRejected || doc.ReviewedBy != "servidor-7" {
		t.Errorf("reviewed = %+v", doc)
	}
}

func TestFormValidate(t *testing.T) {
	env := newTestEnv(t)
	schema := `{"fields":[{"id":"area","type":"number","required":true,"min":0.5},{"id":"nome","type":"text","required":true}]}`

	var res struct {
		Valid  bool               `json:"valid"`
		Errors []string           `json:"errors"`
		Fields []model.FieldError `json:"fields"`
		Data   map[string]any     `json:"data"`
	}
	decodeData(t, env.call(t, citizen, http.MethodPost, "/api/forms/validate", `{"schema":`+schema+`,"data":{"area":"12.5","nome":"Maria"}}`), &res)
	if !res.Valid || res.Data["area"] != 12.5 {
		t.Errorf("valid payload = %+v", res)
	}

	w := env.call(t, citizen, http.MethodPost, "/api/forms/validate", `{"schema":`+schema+`,"data":{"area":0.1}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("invalid payload status = %d, want 200", w.Code)
	}
	decodeData(t, w, &res)
	if res.Valid || len(res.Errors) != 2 {
		t.Errorf("invalid payload = %+v, want 2 errors", res)
	}

	expectError(t, env.call(t, citizen, http.MethodPost, "/api/forms/validate", `{"data":{}}`), http.StatusUnprocessableEntity, model.ErrValidationError)
	expectError(t, env.call(t, citizen, http.MethodPost, "/api/forms/validate", `{"schema":{"title":"nada"},"data":{}}`), http.StatusUnprocessableEntity, model.ErrValidationError)
}

func TestSweepAndPurge(t *testing.T) {
	env := newTestEnv(t)
	view := env.openProtocol(t, definition.ModuleAtendimentosAgricultura)

	var report model.SweepReport
	decodeData(t, env.call(t, staff, http.MethodPost, "/api/sweep", ""), &report)
	if report.Protocols != 1 || report.SLAsRefreshed != 1 || report.Errors != 0 {
		t.Errorf("report = %+v", report)
	}

	path := "/api/protocols/" + view.Protocol.ID
	if w := env.call(t, admin, http.MethodDelete, path, ""); w.Code != http.StatusOK {
		t.Fatalf("purge status = %d", w.Code)
	}
	expectError(t, env.call(t, staff, http.MethodGet, path, ""), http.StatusNotFound, model.ErrNotFound)

	types := env.pub.Types()
	if last := types[len(types)-1]; last != model.EventProtocolPurged {
		t.Errorf("last event = %s, want %s", last, model.EventProtocolPurged)
	}
}
