package definition

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/digiurban/lifecycle/model"
)

// snapshot is an immutable set of workflow definitions indexed by module type.
type snapshot struct {
	workflows map[string]*model.WorkflowDefinition
	checksum  string
}

// Registry is a read-optimized, thread-safe store of workflow definitions.
// Readers load the current snapshot atomically; writers build a new snapshot
// and swap it in.
type Registry struct {
	snap atomic.Pointer[snapshot]
	mu   sync.Mutex // serializes writers
}

// NewRegistry creates a Registry from the given definitions.
func NewRegistry(defs []model.WorkflowDefinition) *Registry {
	r := &Registry{}
	r.Replace(defs)
	return r
}

// Replace atomically swaps the registry contents with a new snapshot built
// from the given definitions. A later definition for the same module type
// wins.
func (r *Registry) Replace(defs []model.WorkflowDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	workflows := make(map[string]*model.WorkflowDefinition, len(defs))
	for i := range defs {
		def := normalize(defs[i])
		if def.Checksum == "" {
			def.Checksum = fingerprint(*def)
		}
		workflows[def.ModuleType] = def
	}
	r.snap.Store(newSnapshot(workflows))
}

// Put creates or replaces the definition for def.ModuleType. Protocols that
// already applied the previous version keep their stage copies.
func (r *Registry) Put(def model.WorkflowDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.current().workflows
	workflows := make(map[string]*model.WorkflowDefinition, len(cur)+1)
	for k, v := range cur {
		workflows[k] = v
	}
	n := normalize(def)
	n.SourceFile = ""
	n.Checksum = fingerprint(*n)
	workflows[n.ModuleType] = n
	r.snap.Store(newSnapshot(workflows))
}

// Remove deletes the definition for moduleType. It reports whether one
// existed.
func (r *Registry) Remove(moduleType string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.current().workflows
	if _, ok := cur[moduleType]; !ok {
		return false
	}
	workflows := make(map[string]*model.WorkflowDefinition, len(cur))
	for k, v := range cur {
		if k != moduleType {
			workflows[k] = v
		}
	}
	r.snap.Store(newSnapshot(workflows))
	return true
}

func newSnapshot(workflows map[string]*model.WorkflowDefinition) *snapshot {
	parts := make([]string, 0, len(workflows))
	for mt, w := range workflows {
		parts = append(parts, mt+"="+w.Checksum)
	}
	sort.Strings(parts)
	combined := strings.Join(parts, ":")
	return &snapshot{
		workflows: workflows,
		checksum:  fmt.Sprintf("%x", sha256.Sum256([]byte(combined))),
	}
}

// normalize copies def and sorts its stages by order.
func normalize(def model.WorkflowDefinition) *model.WorkflowDefinition {
	c := def.Clone()
	sort.SliceStable(c.Stages, func(i, j int) bool {
		return c.Stages[i].Order < c.Stages[j].Order
	})
	return c
}

func (r *Registry) current() *snapshot {
	return r.snap.Load()
}

// GetWorkflow returns a copy of the definition registered for moduleType.
func (r *Registry) GetWorkflow(moduleType string) (*model.WorkflowDefinition, bool) {
	w, ok := r.current().workflows[moduleType]
	if !ok {
		return nil, false
	}
	return w.Clone(), true
}

// All returns copies of every definition, sorted by module type.
func (r *Registry) All() []model.WorkflowDefinition {
	s := r.current()
	defs := make([]model.WorkflowDefinition, 0, len(s.workflows))
	for _, w := range s.workflows {
		defs = append(defs, *w.Clone())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].ModuleType < defs[j].ModuleType })
	return defs
}

// Stats summarizes every definition, sorted by module type.
func (r *Registry) Stats() []model.WorkflowStats {
	defs := r.All()
	stats := make([]model.WorkflowStats, 0, len(defs))
	for i := range defs {
		stats = append(stats, model.WorkflowStats{
			ModuleType:       defs[i].ModuleType,
			Name:             defs[i].Name,
			StagesCount:      len(defs[i].Stages),
			DefaultSLA:       defs[i].DefaultSLA,
			TotalWorkingDays: defs[i].TotalWorkingDays(),
		})
	}
	return stats
}

// Len returns the number of registered definitions.
func (r *Registry) Len() int {
	return len(r.current().workflows)
}

// Checksum returns the combined checksum of all registered definitions.
func (r *Registry) Checksum() string {
	return r.current().checksum
}
