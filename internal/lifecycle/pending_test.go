package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digiurban/lifecycle/internal/definition"
	"github.com/digiurban/lifecycle/model"
)

func TestCreatePending(t *testing.T) {
	f := newFixture(t)
	view := f.open(t, definition.ModuleCadastroProdutor, nil)

	due := monday.Add(days(5))
	p, err := f.lc.Pendings.Create(staffCtx(), view.Protocol.ID, PendingInput{
		Type:       model.PendingDocument,
		Title:      "  Enviar matrícula do imóvel  ",
		IsBlocking: true,
		DueDate:    &due,
		Details: model.PendingDetails{
			Document: &model.DocumentRequest{DocumentType: "COMPROVANTE_PROPRIEDADE"},
		},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, model.PendingOpen, p.Status)
	assert.Equal(t, model.PriorityMedium, p.Priority, "priority defaults to MEDIUM")
	assert.Equal(t, "Enviar matrícula do imóvel", p.Title)
	assert.Equal(t, "servidor-7", p.CreatedBy)
	assert.Equal(t, view.Protocol.ID, p.ProtocolID)

	got, err := f.lc.Pendings.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	require.NotNil(t, got.Details.Document)
	assert.Equal(t, "COMPROVANTE_PROPRIEDADE", got.Details.Document.DocumentType)
}

func TestCreatePending_validation(t *testing.T) {
	f := newFixture(t, WithPendingTypes("VISTORIA"))
	view := f.open(t, "", nil)

	tests := []struct {
		name  string
		in    PendingInput
		field string
	}{
		{"unknown type", PendingInput{Type: "OUTRO", Title: "x"}, "type"},
		{"blank title", PendingInput{Type: model.PendingInformation, Title: "  "}, "title"},
		{"bad priority", PendingInput{Type: model.PendingInformation, Title: "x", Priority: "CRITICAL"}, "priority"},
		{
			"details for another type",
			PendingInput{Type: model.PendingInformation, Title: "x", Details: model.PendingDetails{
				Payment: &model.PaymentRequest{AmountCents: 1500, Currency: "BRL"},
			}},
			"details",
		},
		{
			"two variants",
			PendingInput{Type: model.PendingPayment, Title: "x", Details: model.PendingDetails{
				Payment:     &model.PaymentRequest{AmountCents: 1500, Currency: "BRL"},
				Information: &model.InformationRequest{Questions: []string{"?"}},
			}},
			"details",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.lc.Pendings.Create(staffCtx(), view.Protocol.ID, tt.in)
			requireCode(t, err, model.ErrValidationError)
			env, _ := model.AsEnvelope(err)
			require.NotEmpty(t, env.Details)
			assert.Equal(t, tt.field, env.Details[0].Field)
		})
	}

	_, err := f.lc.Pendings.Create(staffCtx(), view.Protocol.ID, PendingInput{Type: "VISTORIA", Title: "Agendar vistoria"})
	assert.NoError(t, err, "configured pending types are accepted")

	_, err = f.lc.Pendings.Create(staffCtx(), "missing", PendingInput{Type: model.PendingInformation, Title: "x"})
	requireCode(t, err, model.ErrNotFound)
}

func TestPendingTransitions(t *testing.T) {
	f := newFixture(t)
	view := f.open(t, "", nil)
	pid := view.Protocol.ID

	a, err := f.lc.Pendings.Create(staffCtx(), pid, PendingInput{Type: model.PendingCorrection, Title: "Corrigir endereço"})
	require.NoError(t, err)
	b, err := f.lc.Pendings.Create(staffCtx(), pid, PendingInput{Type: model.PendingValidation, Title: "Validar CAR"})
	require.NoError(t, err)

	started, err := f.lc.Pendings.Start(staffCtx(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PendingInProgress, started.Status)

	_, err = f.lc.Pendings.Start(staffCtx(), a.ID)
	requireCode(t, err, model.ErrInvalidTransition)

	_, err = f.lc.Pendings.Resolve(staffCtx(), a.ID, " ")
	requireCode(t, err, model.ErrValidationError)

	resolved, err := f.lc.Pendings.Resolve(staffCtx(), a.ID, "Endereço corrigido pelo requerente")
	require.NoError(t, err)
	assert.Equal(t, model.PendingResolved, resolved.Status)
	assert.Equal(t, "servidor-7", resolved.ResolvedBy)
	assert.Equal(t, "Endereço corrigido pelo requerente", resolved.Resolution)
	require.NotNil(t, resolved.ResolvedAt)

	_, err = f.lc.Pendings.Cancel(staffCtx(), a.ID, "tarde demais")
	requireCode(t, err, model.ErrInvalidTransition)

	_, err = f.lc.Pendings.Cancel(staffCtx(), b.ID, "")
	requireCode(t, err, model.ErrValidationError)

	// Cancel works straight from OPEN.
	cancelled, err := f.lc.Pendings.Cancel(staffCtx(), b.ID, "aberta por engano")
	require.NoError(t, err)
	assert.Equal(t, model.PendingCancelled, cancelled.Status)
	assert.Equal(t, "aberta por engano", cancelled.CancelReason)
	require.NotNil(t, cancelled.CancelledAt)

	_, err = f.lc.Pendings.Start(staffCtx(), "missing")
	requireCode(t, err, model.ErrNotFound)

	assert.Equal(t, []string{
		model.EventPendingCreated,
		model.EventPendingCreated,
		model.EventPendingStarted,
		model.EventPendingResolved,
		model.EventPendingCancelled,
	}, f.pub.Types()[1:])
}

func TestHasBlocking(t *testing.T) {
	f := newFixture(t)
	view := f.open(t, "", nil)
	pid := view.Protocol.ID
	ctx := context.Background()

	_, err := f.lc.Pendings.Create(staffCtx(), pid, PendingInput{Type: model.PendingInformation, Title: "informativa"})
	require.NoError(t, err)

	blocking, err := f.lc.Pendings.HasBlocking(ctx, pid)
	require.NoError(t, err)
	assert.False(t, blocking, "non-blocking pendings never block")

	p, err := f.lc.Pendings.Create(staffCtx(), pid, PendingInput{Type: model.PendingPayment, Title: "Taxa", IsBlocking: true})
	require.NoError(t, err)
	_, err = f.lc.Pendings.Start(staffCtx(), p.ID)
	require.NoError(t, err)

	blocking, err = f.lc.Pendings.HasBlocking(ctx, pid)
	require.NoError(t, err)
	assert.True(t, blocking, "IN_PROGRESS still blocks")

	list, err := f.lc.Pendings.Blocking(ctx, pid)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, p.ID, list[0].ID)

	_, err = f.lc.Pendings.Cancel(staffCtx(), p.ID, "isento")
	require.NoError(t, err)
	blocking, err = f.lc.Pendings.HasBlocking(ctx, pid)
	require.NoError(t, err)
	assert.False(t, blocking)
}

func TestCheckExpired_isIdempotent(t *testing.T) {
	f := newFixture(t)
	view := f.open(t, "", nil)
	pid := view.Protocol.ID

	soon := monday.Add(days(2))
	later := monday.Add(days(10))
	due, err := f.lc.Pendings.Create(staffCtx(), pid, PendingInput{Type: model.PendingDocument, Title: "a", DueDate: &soon})
	require.NoError(t, err)
	_, err = f.lc.Pendings.Create(staffCtx(), pid, PendingInput{Type: model.PendingDocument, Title: "b", DueDate: &later})
	require.NoError(t, err)
	_, err = f.lc.Pendings.Create(staffCtx(), pid, PendingInput{Type: model.PendingDocument, Title: "c"})
	require.NoError(t, err)

	expired, err := f.lc.Pendings.CheckExpired(context.Background(), pid)
	require.NoError(t, err)
	assert.Empty(t, expired, "nothing is due yet")

	f.clock.Advance(days(3))

	expired, err = f.lc.Pendings.CheckExpired(context.Background(), pid)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, due.ID, expired[0].ID)
	assert.Equal(t, model.PendingExpired, expired[0].Status)
	require.NotNil(t, expired[0].ExpiredAt)

	expired, err = f.lc.Pendings.CheckExpired(context.Background(), pid)
	require.NoError(t, err)
	assert.Empty(t, expired)

	counts, err := f.lc.Pendings.CountByStatus(context.Background(), pid)
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Total)
	assert.Equal(t, 1, counts.ByStatus[model.PendingExpired])
	assert.Equal(t, 2, counts.ByStatus[model.PendingOpen])
	assert.Equal(t, 0, counts.ByStatus[model.PendingResolved])

	expiredEvents := 0
	for _, typ := range f.pub.Types() {
		if typ == model.EventPendingExpired {
			expiredEvents++
		}
	}
	assert.Equal(t, 1, expiredEvents)
}

func TestListPendings(t *testing.T) {
	f := newFixture(t)
	view := f.open(t, "", nil)
	pid := view.Protocol.ID

	a, err := f.lc.Pendings.Create(staffCtx(), pid, PendingInput{Type: model.PendingDocument, Title: "a"})
	require.NoError(t, err)
	_, err = f.lc.Pendings.Create(staffCtx(), pid, PendingInput{Type: model.PendingDocument, Title: "b"})
	require.NoError(t, err)
	_, err = f.lc.Pendings.Resolve(staffCtx(), a.ID, "ok")
	require.NoError(t, err)

	all, err := f.lc.Pendings.List(context.Background(), pid, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	open, err := f.lc.Pendings.List(context.Background(), pid, model.PendingOpen)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "b", open[0].Title)

	_, err = f.lc.Pendings.List(context.Background(), pid, "DONE")
	requireCode(t, err, model.ErrValidationError)
}

func TestResolvingLastBlockerSettlesProtocol(t *testing.T) {
	f := newFixture(t)
	view := f.open(t, definition.ModuleAtendimentosAgricultura, nil)
	pid := view.Protocol.ID

	p, err := f.lc.Pendings.Create(staffCtx(), pid, PendingInput{
		Type:       model.PendingPayment,
		Title:      "Pagar taxa de vistoria",
		IsBlocking: true,
		Details:    model.PendingDetails{Payment: &model.PaymentRequest{AmountCents: 4590, Currency: "BRL"}},
	})
	require.NoError(t, err)

	// Skipping bypasses the blocker, so every stage ends up done.
	for _, st := range view.Stages {
		_, err := f.lc.Stages.Start(staffCtx(), st.ID)
		require.NoError(t, err)
		_, err = f.lc.Stages.Skip(staffCtx(), st.ID, "atendimento remoto")
		require.NoError(t, err)
	}

	got, err := f.lc.Protocols.Get(context.Background(), pid)
	require.NoError(t, err)
	assert.Equal(t, model.ProtocolOpen, got.Protocol.Status, "a blocking pending holds the protocol open")

	f.clock.Advance(time.Hour)
	_, err = f.lc.Pendings.Resolve(staffCtx(), p.ID, "Pago")
	require.NoError(t, err)

	got, err = f.lc.Protocols.Get(context.Background(), pid)
	require.NoError(t, err)
	assert.Equal(t, model.ProtocolCompleted, got.Protocol.Status)
	assert.True(t, got.SLA.IsClosed())
}
