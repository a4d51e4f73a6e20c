package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/digiurban/lifecycle/model"
)

// record is a committed, immutable copy of one protocol's data.
type record struct {
	protocol  model.Protocol
	stages    []model.StageInstance
	sla       *model.SLARecord
	pendings  []model.PendingItem
	documents []model.Document
}

func (r *record) clone() *record {
	c := &record{protocol: cloneProtocol(r.protocol)}
	c.stages = make([]model.StageInstance, len(r.stages))
	for i, s := range r.stages {
		c.stages[i] = cloneStage(s)
	}
	if r.sla != nil {
		sla := *r.sla
		c.sla = &sla
	}
	c.pendings = make([]model.PendingItem, len(r.pendings))
	for i, p := range r.pendings {
		c.pendings[i] = clonePending(p)
	}
	c.documents = append([]model.Document(nil), r.documents...)
	return c
}

// entry serializes writers of one protocol.
type entry struct {
	mu      sync.Mutex
	rec     *record
	deleted bool
}

// MemoryStore is an in-memory Store. Each protocol has its own writer lock;
// commits swap in a new record so readers never see partial writes.
type MemoryStore struct {
	mu        sync.RWMutex
	entries   map[string]*entry // key: protocol ID
	stages    map[string]string // stage ID -> protocol ID
	pendings  map[string]string // pending ID -> protocol ID
	documents map[string]string // document ID -> protocol ID
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:   make(map[string]*entry),
		stages:    make(map[string]string),
		pendings:  make(map[string]string),
		documents: make(map[string]string),
	}
}

// Insert implements Store.
func (s *MemoryStore) Insert(_ context.Context, p model.Protocol, fn TxFunc) error {
	e := &entry{}
	e.mu.Lock()
	defer e.mu.Unlock()

	s.mu.Lock()
	if _, exists := s.entries[p.ID]; exists {
		s.mu.Unlock()
		return protocolExists(p.ID)
	}
	// Reserve the ID so concurrent inserts conflict; the entry stays
	// invisible to readers until rec is set.
	s.entries[p.ID] = e
	s.mu.Unlock()

	tx := &memTx{rec: &record{protocol: cloneProtocol(p)}}
	if fn != nil {
		if err := fn(tx); err != nil {
			s.mu.Lock()
			delete(s.entries, p.ID)
			s.mu.Unlock()
			e.deleted = true
			return err
		}
	}
	s.commit(e, tx.rec)
	return nil
}

// Update implements Store.
func (s *MemoryStore) Update(_ context.Context, protocolID string, fn TxFunc) error {
	e, err := s.lockEntry(protocolID)
	if err != nil {
		return err
	}
	defer e.mu.Unlock()

	tx := &memTx{rec: e.rec.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	tx.rec.protocol.Version++
	s.commit(e, tx.rec)
	return nil
}

// View implements Store.
func (s *MemoryStore) View(_ context.Context, protocolID string, fn TxFunc) error {
	s.mu.RLock()
	e, ok := s.entries[protocolID]
	var rec *record
	if ok {
		rec = e.rec
	}
	s.mu.RUnlock()
	if rec == nil {
		return protocolNotFound(protocolID)
	}
	return fn(&memTx{rec: rec.clone(), readOnly: true})
}

func (s *MemoryStore) lockEntry(protocolID string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.entries[protocolID]
	s.mu.RUnlock()
	if !ok {
		return nil, protocolNotFound(protocolID)
	}
	e.mu.Lock()
	if e.deleted || e.rec == nil {
		e.mu.Unlock()
		return nil, protocolNotFound(protocolID)
	}
	return e, nil
}

// commit publishes rec and refreshes the child indexes. Callers hold e.mu.
func (s *MemoryStore) commit(e *entry, rec *record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.rec = rec
	id := rec.protocol.ID
	for _, st := range rec.stages {
		s.stages[st.ID] = id
	}
	for _, p := range rec.pendings {
		s.pendings[p.ID] = id
	}
	for _, d := range rec.documents {
		s.documents[d.ID] = id
	}
}

// LocateStage implements Store.
func (s *MemoryStore) LocateStage(_ context.Context, stageID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.stages[stageID]; ok {
		return id, nil
	}
	return "", stageNotFound(stageID)
}

// LocatePending implements Store.
func (s *MemoryStore) LocatePending(_ context.Context, pendingID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.pendings[pendingID]; ok {
		return id, nil
	}
	return "", pendingNotFound(pendingID)
}

// LocateDocument implements Store.
func (s *MemoryStore) LocateDocument(_ context.Context, documentID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.documents[documentID]; ok {
		return id, nil
	}
	return "", documentNotFound(documentID)
}

// ListSLAs implements Store.
func (s *MemoryStore) ListSLAs(_ context.Context, filter model.SLAFilter) ([]model.SLARecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.SLARecord
	for _, e := range s.entries {
		if e.rec == nil || e.rec.sla == nil {
			continue
		}
		if filter.OpenOnly && e.rec.sla.ActualEndDate != nil {
			continue
		}
		out = append(out, *e.rec.sla)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpectedEndDate.Before(out[j].ExpectedEndDate) })
	return out, nil
}

// SweepProtocolIDs implements Store.
func (s *MemoryStore) SweepProtocolIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var open []model.Protocol
	for _, e := range s.entries {
		if e.rec != nil && (e.rec.protocol.Status == model.ProtocolOpen || hasDuePending(e.rec.pendings)) {
			open = append(open, e.rec.protocol)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].CreatedAt.Before(open[j].CreatedAt) })
	ids := make([]string, len(open))
	for i, p := range open {
		ids[i] = p.ID
	}
	return ids, nil
}

func hasDuePending(pendings []model.PendingItem) bool {
	for i := range pendings {
		if pendings[i].IsActive() && pendings[i].DueDate != nil {
			return true
		}
	}
	return false
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, protocolID string) error {
	e, err := s.lockEntry(protocolID)
	if err != nil {
		return err
	}
	defer e.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range e.rec.stages {
		delete(s.stages, st.ID)
	}
	for _, p := range e.rec.pendings {
		delete(s.pendings, p.ID)
	}
	for _, d := range e.rec.documents {
		delete(s.documents, d.ID)
	}
	delete(s.entries, protocolID)
	e.deleted = true
	return nil
}

// HealthCheck implements observability.HealthChecker.
func (s *MemoryStore) HealthCheck(_ context.Context) error {
	return nil
}

// Len returns the number of stored protocols (for testing).
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.entries {
		if e.rec != nil {
			n++
		}
	}
	return n
}

// memTx works on a private copy of a record.
type memTx struct {
	rec      *record
	readOnly bool
}

func (t *memTx) Protocol() model.Protocol {
	return cloneProtocol(t.rec.protocol)
}

func (t *memTx) SetProtocol(p model.Protocol) error {
	if t.readOnly {
		return ErrReadOnly
	}
	p.ID = t.rec.protocol.ID
	p.Version = t.rec.protocol.Version
	t.rec.protocol = cloneProtocol(p)
	return nil
}

func (t *memTx) Stages() ([]model.StageInstance, error) {
	out := make([]model.StageInstance, len(t.rec.stages))
	for i, s := range t.rec.stages {
		out[i] = cloneStage(s)
	}
	sortStages(out)
	return out, nil
}

func (t *memTx) PutStage(s model.StageInstance) error {
	if t.readOnly {
		return ErrReadOnly
	}
	s.ProtocolID = t.rec.protocol.ID
	for i := range t.rec.stages {
		if t.rec.stages[i].ID != s.ID && t.rec.stages[i].Order == s.Order {
			return model.NewConflictError(fmt.Sprintf("stage order %d already used in protocol %q", s.Order, s.ProtocolID))
		}
	}
	for i := range t.rec.stages {
		if t.rec.stages[i].ID == s.ID {
			t.rec.stages[i] = cloneStage(s)
			return nil
		}
	}
	t.rec.stages = append(t.rec.stages, cloneStage(s))
	return nil
}

func (t *memTx) SLA() (*model.SLARecord, error) {
	if t.rec.sla == nil {
		return nil, nil
	}
	r := *t.rec.sla
	return &r, nil
}

func (t *memTx) PutSLA(r model.SLARecord) error {
	if t.readOnly {
		return ErrReadOnly
	}
	r.ProtocolID = t.rec.protocol.ID
	t.rec.sla = &r
	return nil
}

func (t *memTx) DeleteSLA() error {
	if t.readOnly {
		return ErrReadOnly
	}
	t.rec.sla = nil
	return nil
}

func (t *memTx) Pendings() ([]model.PendingItem, error) {
	out := make([]model.PendingItem, len(t.rec.pendings))
	for i, p := range t.rec.pendings {
		out[i] = clonePending(p)
	}
	return out, nil
}

func (t *memTx) PutPending(p model.PendingItem) error {
	if t.readOnly {
		return ErrReadOnly
	}
	p.ProtocolID = t.rec.protocol.ID
	for i := range t.rec.pendings {
		if t.rec.pendings[i].ID == p.ID {
			t.rec.pendings[i] = clonePending(p)
			return nil
		}
	}
	t.rec.pendings = append(t.rec.pendings, clonePending(p))
	return nil
}

func (t *memTx) Documents() ([]model.Document, error) {
	return append([]model.Document(nil), t.rec.documents...), nil
}

func (t *memTx) PutDocument(d model.Document) error {
	if t.readOnly {
		return ErrReadOnly
	}
	d.ProtocolID = t.rec.protocol.ID
	for i := range t.rec.documents {
		if t.rec.documents[i].ID == d.ID {
			t.rec.documents[i] = d
			return nil
		}
	}
	t.rec.documents = append(t.rec.documents, d)
	return nil
}
