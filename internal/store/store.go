// Package store persists protocols together with their stages, SLA, pendings
// and documents. Every mutation of one protocol runs as a single atomic unit
// serialized against other mutations of the same protocol.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/digiurban/lifecycle/model"
)

// ErrReadOnly is returned by Tx writes inside View.
var ErrReadOnly = errors.New("store: write in read-only transaction")

// Tx exposes the records of one protocol inside an atomic unit of work.
// Getters return copies; writes become visible to other callers only when the
// surrounding Update or Insert commits.
type Tx interface {
	Protocol() model.Protocol
	SetProtocol(p model.Protocol) error

	Stages() ([]model.StageInstance, error)
	PutStage(s model.StageInstance) error

	SLA() (*model.SLARecord, error)
	PutSLA(r model.SLARecord) error
	DeleteSLA() error

	Pendings() ([]model.PendingItem, error)
	PutPending(p model.PendingItem) error

	Documents() ([]model.Document, error)
	PutDocument(d model.Document) error
}

// TxFunc is a unit of work against one protocol. Returning an error discards
// every write it made.
type TxFunc func(tx Tx) error

// Store is the persistence boundary of the lifecycle engine.
type Store interface {
	// Insert creates p and runs fn against it in the same transaction.
	Insert(ctx context.Context, p model.Protocol, fn TxFunc) error
	// Update runs fn against protocolID and bumps the protocol version on
	// commit.
	Update(ctx context.Context, protocolID string, fn TxFunc) error
	// View runs fn against a consistent read of protocolID.
	View(ctx context.Context, protocolID string, fn TxFunc) error

	LocateStage(ctx context.Context, stageID string) (string, error)
	LocatePending(ctx context.Context, pendingID string) (string, error)
	LocateDocument(ctx context.Context, documentID string) (string, error)

	ListSLAs(ctx context.Context, filter model.SLAFilter) ([]model.SLARecord, error)
	// SweepProtocolIDs lists the protocols the periodic sweep must visit:
	// every open protocol plus settled ones that still hold an active pending
	// with a due date.
	SweepProtocolIDs(ctx context.Context) ([]string, error)

	// Delete removes the protocol and everything recorded for it.
	Delete(ctx context.Context, protocolID string) error

	HealthCheck(ctx context.Context) error
}

func protocolNotFound(id string) error {
	return model.NewNotFoundError(fmt.Sprintf("protocol %q not found", id))
}

func stageNotFound(id string) error {
	return model.NewNotFoundError(fmt.Sprintf("stage %q not found", id))
}

func pendingNotFound(id string) error {
	return model.NewNotFoundError(fmt.Sprintf("pending %q not found", id))
}

func documentNotFound(id string) error {
	return model.NewNotFoundError(fmt.Sprintf("document %q not found", id))
}

func protocolExists(id string) error {
	return model.NewConflictError(fmt.Sprintf("protocol %q already exists", id))
}
