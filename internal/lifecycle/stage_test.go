package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digiurban/lifecycle/internal/definition"
	"github.com/digiurban/lifecycle/model"
)

func TestStart(t *testing.T) {
	f := newFixture(t)
	view := f.open(t, definition.ModuleAtendimentosAgricultura, nil)
	first := view.Stages[0]

	st, err := f.lc.Stages.Start(staffCtx(), first.ID)
	require.NoError(t, err)

	assert.Equal(t, model.StageInProgress, st.Status)
	assert.Equal(t, "servidor-7", st.StartedBy)
	require.NotNil(t, st.StartedAt)
	assert.Equal(t, monday, *st.StartedAt)
	require.NotNil(t, st.DueDate)
	assert.Equal(t, time.Date(2025, 2, 5, 9, 0, 0, 0, time.UTC), *st.DueDate, "2 working days")

	cur, err := f.lc.Stages.Current(context.Background(), view.Protocol.ID)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, first.ID, cur.ID)
}

func TestStart_anotherStageActive(t *testing.T) {
	f := newFixture(t)
	view := f.open(t, definition.ModuleAtendimentosAgricultura, nil)

	_, err := f.lc.Stages.Start(staffCtx(), view.Stages[0].ID)
	require.NoError(t, err)

	_, err = f.lc.Stages.Start(staffCtx(), view.Stages[1].ID)
	requireCode(t, err, model.ErrAnotherStageActive)

	_, err = f.lc.Stages.Start(staffCtx(), view.Stages[0].ID)
	requireCode(t, err, model.ErrInvalidTransition)
}

func TestStart_concurrentStartsKeepOneActive(t *testing.T) {
	f := newFixture(t)
	view := f.open(t, definition.ModuleAtendimentosAgricultura, nil)

	var wg sync.WaitGroup
	errs := make([]error, len(view.Stages))
	for i, st := range view.Stages {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = f.lc.Stages.Start(staffCtx(), id)
		}(i, st.ID)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, model.HasCode(err, model.ErrAnotherStageActive), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)

	counts, err := f.lc.Stages.CountByStatus(context.Background(), view.Protocol.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.ByStatus[model.StageInProgress])
}

func TestStart_unknownStage(t *testing.T) {
	f := newFixture(t)
	_, err := f.lc.Stages.Start(staffCtx(), "nao-existe")
	requireCode(t, err, model.ErrNotFound)
}

func TestComplete_requiresInProgress(t *testing.T) {
	f := newFixture(t)
	view := f.open(t, definition.ModuleAtendimentosAgricultura, nil)

	_, err := f.lc.Stages.Complete(staffCtx(), view.Stages[0].ID, "ok", "")
	requireCode(t, err, model.ErrInvalidTransition)
}

func TestComplete_blockedByPendingUntilResolved(t *testing.T) {
	f := newFixture(t)
	view := f.open(t, definition.ModuleAtendimentosAgricultura, nil)
	stageID := view.Stages[0].ID

	_, err := f.lc.Stages.Start(staffCtx(), stageID)
	require.NoError(t, err)

	p, err := f.lc.Pendings.Create(staffCtx(), view.Protocol.ID, PendingInput{
		Type:       model.PendingInformation,
		Title:      "Informar área plantada",
		IsBlocking: true,
	})
	require.NoError(t, err)

	_, err = f.lc.Stages.Complete(staffCtx(), stageID, "triado", "")
	requireCode(t, err, model.ErrPreconditionFailed)
	env, _ := model.AsEnvelope(err)
	assert.Equal(t, []string{"blocking_pending:" + p.ID}, env.MissingItems)

	_, err = f.lc.Pendings.Resolve(staffCtx(), p.ID, "Área informada: 12 ha")
	require.NoError(t, err)

	st, err := f.lc.Stages.Complete(staffCtx(), stageID, "triado", "sem observações")
	require.NoError(t, err)
	assert.Equal(t, model.StageCompleted, st.Status)
	assert.Equal(t, "triado", st.Result)
	assert.Equal(t, "sem observações", st.Notes)
	require.NotNil(t, st.CompletedAt)
}

func TestComplete_requiredDocuments(t *testing.T) {
	f := newFixture(t)
	view := f.open(t, definition.ModuleCadastroProdutor, nil)
	stageID := view.Stages[0].ID
	pid := view.Protocol.ID

	_, err := f.lc.Stages.Start(staffCtx(), stageID)
	require.NoError(t, err)

	check, err := f.lc.Stages.ValidateConditions(context.Background(), stageID)
	require.NoError(t, err)
	assert.False(t, check.Valid)
	assert.Equal(t, []string{
		"document:RG_CPF",
		"document:COMPROVANTE_RESIDENCIA",
		"document:COMPROVANTE_PROPRIEDADE",
	}, check.MissingItems)

	for _, dt := range []string{"RG_CPF", "COMPROVANTE_RESIDENCIA", "COMPROVANTE_PROPRIEDADE"} {
		_, err := f.lc.Protocols.AddDocument(staffCtx(), pid, DocumentInput{DocumentType: dt})
		require.NoError(t, err)
	}

	// A rejected document no longer counts.
	got, err := f.lc.Protocols.Get(context.Background(), pid)
	require.NoError(t, err)
	_, err = f.lc.Protocols.ReviewDocument(staffCtx(), got.Documents[0].ID, false)
	require.NoError(t, err)

	_, err = f.lc.Stages.Complete(staffCtx(), stageID, "", "")
	requireCode(t, err, model.ErrPreconditionFailed)
	env, _ := model.AsEnvelope(err)
	assert.Equal(t, []string{"document:RG_CPF"}, env.MissingItems)

	_, err = f.lc.Protocols.AddDocument(staffCtx(), pid, DocumentInput{DocumentType: "RG_CPF", Name: "rg-novo.pdf"})
	require.NoError(t, err)

	check, err = f.lc.Stages.ValidateConditions(context.Background(), stageID)
	require.NoError(t, err)
	assert.True(t, check.Valid)
	assert.Empty(t, check.MissingItems)

	_, err = f.lc.Stages.Complete(staffCtx(), stageID, "documentos conferidos", "")
	require.NoError(t, err)
}

func TestComplete_fieldAndApprovalConditions(t *testing.T) {
	f := newFixture(t)
	view := f.open(t, moduleLicenca, map[string]any{"imovel": map[string]any{"matricula": "  "}})
	pid := view.Protocol.ID

	// Stage 1 only needs RG_CPF.
	_, err := f.lc.Protocols.AddDocument(staffCtx(), pid, DocumentInput{DocumentType: "RG_CPF"})
	require.NoError(t, err)
	_, err = f.lc.Stages.Start(staffCtx(), view.Stages[0].ID)
	require.NoError(t, err)
	_, err = f.lc.Stages.Complete(staffCtx(), view.Stages[0].ID, "", "")
	require.NoError(t, err)

	parecer := view.Stages[1].ID
	_, err = f.lc.Stages.Start(staffCtx(), parecer)
	require.NoError(t, err)

	laudo, err := f.lc.Protocols.AddDocument(staffCtx(), pid, DocumentInput{DocumentType: "LAUDO"})
	require.NoError(t, err)

	check, err := f.lc.Stages.ValidateConditions(context.Background(), parecer)
	require.NoError(t, err)
	assert.Equal(t, []string{"field:imovel.matricula", "approved_document:LAUDO"}, check.MissingItems,
		"blank field and unreviewed document are both missing")

	_, err = f.lc.Protocols.ReviewDocument(staffCtx(), laudo.ID, true)
	require.NoError(t, err)

	check, err = f.lc.Stages.ValidateConditions(context.Background(), parecer)
	require.NoError(t, err)
	assert.Equal(t, []string{"field:imovel.matricula"}, check.MissingItems)
}

func TestSkipAndFail(t *testing.T) {
	f := newFixture(t)
	view := f.open(t, definition.ModuleCadastroProdutor, nil)
	pid := view.Protocol.ID

	_, err := f.lc.Stages.Skip(staffCtx(), view.Stages[0].ID, "dispensado")
	requireCode(t, err, model.ErrInvalidTransition)

	// Skipping ignores unmet conditions.
	_, err = f.lc.Stages.Start(staffCtx(), view.Stages[0].ID)
	require.NoError(t, err)
	st, err := f.lc.Stages.Skip(staffCtx(), view.Stages[0].ID, "documentos já conferidos em outro protocolo")
	require.NoError(t, err)
	assert.Equal(t, model.StageSkipped, st.Status)
	assert.Equal(t, "documentos já conferidos em outro protocolo", st.Reason)
	require.NotNil(t, st.SkippedAt)

	_, err = f.lc.Stages.Start(staffCtx(), view.Stages[1].ID)
	require.NoError(t, err)
	st, err = f.lc.Stages.Fail(staffCtx(), view.Stages[1].ID, "propriedade inacessível")
	require.NoError(t, err)
	assert.Equal(t, model.StageFailed, st.Status)
	require.NotNil(t, st.FailedAt)

	_, err = f.lc.Stages.Fail(staffCtx(), view.Stages[1].ID, "de novo")
	requireCode(t, err, model.ErrInvalidTransition)

	_, err = f.lc.Stages.Start(staffCtx(), view.Stages[2].ID)
	require.NoError(t, err)
	_, err = f.lc.Stages.Complete(staffCtx(), view.Stages[2].ID, "deferido", "")
	require.NoError(t, err)

	done, err := f.lc.Stages.AllCompleted(context.Background(), pid)
	require.NoError(t, err)
	assert.False(t, done, "a failed stage keeps the workflow incomplete")

	got, err := f.lc.Protocols.Get(context.Background(), pid)
	require.NoError(t, err)
	assert.Equal(t, model.ProtocolOpen, got.Protocol.Status)

	counts, err := f.lc.Stages.CountByStatus(context.Background(), pid)
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Total)
	assert.Equal(t, map[string]int{
		model.StagePending:    0,
		model.StageInProgress: 0,
		model.StageCompleted:  1,
		model.StageSkipped:    1,
		model.StageFailed:     1,
	}, counts.ByStatus)
}

func TestAllCompleted_withoutStages(t *testing.T) {
	f := newFixture(t)
	view := f.open(t, "", nil)

	done, err := f.lc.Stages.AllCompleted(context.Background(), view.Protocol.ID)
	require.NoError(t, err)
	assert.False(t, done)

	cur, err := f.lc.Stages.Current(context.Background(), view.Protocol.ID)
	require.NoError(t, err)
	assert.Nil(t, cur)
}

func TestCompletingLastStageSettlesProtocol(t *testing.T) {
	f := newFixture(t)
	view := f.open(t, definition.ModuleAtendimentosAgricultura, nil)
	pid := view.Protocol.ID

	for _, st := range view.Stages {
		_, err := f.lc.Stages.Start(staffCtx(), st.ID)
		require.NoError(t, err)
		f.clock.Advance(days(1))
		_, err = f.lc.Stages.Complete(staffCtx(), st.ID, "ok", "")
		require.NoError(t, err)
	}

	done, err := f.lc.Stages.AllCompleted(context.Background(), pid)
	require.NoError(t, err)
	assert.True(t, done)

	got, err := f.lc.Protocols.Get(context.Background(), pid)
	require.NoError(t, err)
	assert.Equal(t, model.ProtocolCompleted, got.Protocol.Status)
	require.NotNil(t, got.Protocol.CompletedAt)
	require.NotNil(t, got.SLA)
	assert.True(t, got.SLA.IsClosed())
	assert.False(t, got.SLA.CompletedLate)
	assert.Equal(t, model.SLACompleted, got.SLA.Status)
	assert.Equal(t, float64(100), got.SLA.ProgressPercent)

	types := f.pub.Types()
	assert.Contains(t, types, model.EventSLACompleted)
	assert.Equal(t, model.EventProtocolCompleted, types[len(types)-1])

	// The protocol is frozen now.
	_, err = f.lc.Protocols.AddDocument(staffCtx(), pid, DocumentInput{DocumentType: "EXTRA"})
	requireCode(t, err, model.ErrProtocolCompleted)
	_, err = f.lc.Pendings.Create(staffCtx(), pid, PendingInput{Type: model.PendingDocument, Title: "x"})
	requireCode(t, err, model.ErrProtocolCompleted)
}

func TestStageOperations_unknownProtocol(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.lc.Stages.List(ctx, "missing")
	requireCode(t, err, model.ErrNotFound)
	_, err = f.lc.Stages.CountByStatus(ctx, "missing")
	requireCode(t, err, model.ErrNotFound)
	_, err = f.lc.Stages.ValidateConditions(ctx, "missing")
	requireCode(t, err, model.ErrNotFound)
}

func TestStageEvents(t *testing.T) {
	f := newFixture(t)
	view := f.open(t, definition.ModuleAtendimentosAgricultura, nil)
	f.pub.Reset()

	_, err := f.lc.Stages.Start(staffCtx(), view.Stages[0].ID)
	require.NoError(t, err)

	evs := f.pub.Events()
	require.Len(t, evs, 1)
	ev := evs[0]
	assert.Equal(t, model.EventStageStarted, ev.Type)
	assert.Equal(t, view.Protocol.ID, ev.ProtocolID)
	assert.Equal(t, view.Stages[0].ID, ev.EntityID)
	assert.Equal(t, "servidor-7", ev.ActorID)
	assert.Equal(t, model.StageInProgress, ev.Data["status"])
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, monday, ev.Timestamp)
}

func TestFailedTransitionPublishesNothing(t *testing.T) {
	f := newFixture(t)
	view := f.open(t, definition.ModuleCadastroProdutor, nil)
	_, err := f.lc.Stages.Start(staffCtx(), view.Stages[0].ID)
	require.NoError(t, err)
	f.pub.Reset()

	_, err = f.lc.Stages.Complete(staffCtx(), view.Stages[0].ID, "", "")
	requireCode(t, err, model.ErrPreconditionFailed)
	assert.Empty(t, f.pub.Events())

	stages, err := f.lc.Stages.List(context.Background(), view.Protocol.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StageInProgress, stages[0].Status, "no partial state")
}
