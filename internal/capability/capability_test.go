package capability

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/digiurban/lifecycle/model"
)

func testRctx(roles ...string) *model.RequestContext {
	return &model.RequestContext{SubjectID: "user-1", Roles: roles}
}

// --- StaticPolicy ---

func TestStaticPolicy_Default(t *testing.T) {
	p, err := NewStaticPolicy("")
	if err != nil {
		t.Fatalf("NewStaticPolicy() error = %v", err)
	}

	tests := []struct {
		role string
		cap  string
		want bool
	}{
		{RoleAdmin, model.CapProtocolsPurge, true},
		{RoleAdmin, model.CapSLADelete, true},
		{RoleStaff, model.CapStagesTransition, true},
		{RoleStaff, model.CapSLADelete, false},
		{RoleStaff, model.CapWorkflowsAdmin, false},
		{RoleCitizen, model.CapProtocolsOpen, true},
		{RoleCitizen, model.CapStagesTransition, false},
		{"unknown", model.CapProtocolsRead, false},
	}
	for _, tt := range tests {
		caps, _ := p.ResolveCapabilities(testRctx(tt.role))
		if got := caps.Has(tt.cap); got != tt.want {
			t.Errorf("%s has %s = %v, want %v", tt.role, tt.cap, got, tt.want)
		}
	}
}

func TestStaticPolicy_File(t *testing.T) {
	p, err := NewStaticPolicy("testdata/policy.yaml")
	if err != nil {
		t.Fatalf("NewStaticPolicy() error = %v", err)
	}

	caps, _ := p.ResolveCapabilities(testRctx("supervisor"))
	if !caps.Has(model.CapStagesTransition) || !caps.Has(model.CapSLADelete) {
		t.Error("supervisor wildcards should cover stages and sla")
	}
	if caps.Has(model.CapProtocolsPurge) {
		t.Error("supervisor should not purge")
	}

	caps, _ = p.ResolveCapabilities(testRctx("auditor", "supervisor"))
	if !caps.HasAll(model.CapWorkflowsRead, model.CapSLAManage) {
		t.Error("roles should combine")
	}

	roles := p.Roles()
	if len(roles) != 2 || roles[0] != "auditor" {
		t.Errorf("Roles() = %v", roles)
	}
}

func TestStaticPolicy_Errors(t *testing.T) {
	if _, err := NewStaticPolicy("testdata/missing.yaml"); err == nil {
		t.Error("expected error for missing file")
	}

	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("roles: [unclosed"), 0o644)
	if _, err := NewStaticPolicy(bad); err == nil {
		t.Error("expected parse error")
	}

	empty := filepath.Join(dir, "empty.yaml")
	os.WriteFile(empty, []byte("roles: {}\n"), 0o644)
	if _, err := NewStaticPolicy(empty); err == nil {
		t.Error("expected error for a policy with no roles")
	}
}

func TestStaticPolicy_Sync(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	os.WriteFile(path, []byte("roles:\n  clerk: [protocols:read]\n"), 0o644)

	p, err := NewStaticPolicy(path)
	if err != nil {
		t.Fatal(err)
	}
	os.WriteFile(path, []byte("roles:\n  clerk: [protocols:read, pendings:manage]\n"), 0o644)
	if err := p.Sync(); err != nil {
		t.Fatal(err)
	}
	caps, _ := p.ResolveCapabilities(testRctx("clerk"))
	if !caps.Has(model.CapPendingsManage) {
		t.Error("Sync did not pick up the new capability")
	}
}

// --- Resolver ---

type countingEvaluator struct {
	calls int
	err   error
}

func (e *countingEvaluator) ResolveCapabilities(rctx *model.RequestContext) (model.CapabilitySet, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	caps := model.CapabilitySet{}
	for _, r := range rctx.Roles {
		caps[r+":read"] = true
	}
	return caps, nil
}

func (e *countingEvaluator) Sync() error { return nil }

func TestResolver_Caches(t *testing.T) {
	ev := &countingEvaluator{}
	r := NewResolver(ev, time.Minute)

	r.Resolve(testRctx("staff"))
	r.Resolve(testRctx("staff"))
	if ev.calls != 1 {
		t.Errorf("calls = %d, want 1", ev.calls)
	}

	// Same subject with other roles must not reuse the cached set.
	caps, _ := r.Resolve(testRctx("admin", "staff"))
	if !caps.Has("admin:read") {
		t.Error("role change served stale capabilities")
	}
	if ev.calls != 2 {
		t.Errorf("calls = %d, want 2", ev.calls)
	}
}

func TestResolver_Expiry(t *testing.T) {
	ev := &countingEvaluator{}
	r := NewResolver(ev, time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	r.Resolve(testRctx("staff"))
	now = now.Add(2 * time.Minute)
	r.Resolve(testRctx("staff"))
	if ev.calls != 2 {
		t.Errorf("calls = %d, want 2 after expiry", ev.calls)
	}
}

func TestResolver_Invalidate(t *testing.T) {
	ev := &countingEvaluator{}
	r := NewResolver(ev, time.Minute)

	r.Resolve(testRctx("staff"))
	r.Invalidate("user-1")
	r.Resolve(testRctx("staff"))
	if ev.calls != 2 {
		t.Errorf("calls = %d, want 2 after Invalidate", ev.calls)
	}

	r.InvalidateAll()
	r.Resolve(testRctx("staff"))
	if ev.calls != 3 {
		t.Errorf("calls = %d, want 3 after InvalidateAll", ev.calls)
	}
}

func TestResolver_EvaluatorError(t *testing.T) {
	ev := &countingEvaluator{err: errors.New("policy unavailable")}
	r := NewResolver(ev, time.Minute)
	if _, err := r.Resolve(testRctx("staff")); err == nil {
		t.Error("expected evaluator error")
	}
}
