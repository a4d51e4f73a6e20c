package capability

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/digiurban/lifecycle/model"
)

// Built-in roles.
const (
	RoleAdmin   = "admin"
	RoleStaff   = "staff"
	RoleCitizen = "citizen"
)

type policyFile struct {
	Roles map[string][]string `yaml:"roles"`
}

// DefaultPolicy is used when no policy file is configured.
func DefaultPolicy() map[string][]string {
	return map[string][]string{
		RoleAdmin: {"*"},
		RoleStaff: {
			model.CapProtocolsRead,
			model.CapProtocolsOpen,
			model.CapDocumentsManage,
			model.CapDocumentsReview,
			model.CapStagesTransition,
			model.CapSLAManage,
			model.CapPendingsManage,
			model.CapWorkflowsRead,
			model.CapFormsValidate,
		},
		RoleCitizen: {
			model.CapProtocolsRead,
			model.CapProtocolsOpen,
			model.CapDocumentsManage,
			model.CapWorkflowsRead,
			model.CapFormsValidate,
		},
	}
}

// StaticPolicy maps roles to capabilities. The mapping comes from a YAML file
// or from DefaultPolicy.
type StaticPolicy struct {
	path  string
	mu    sync.RWMutex
	roles map[string][]string
}

// NewStaticPolicy loads the role mapping from path. An empty path selects
// DefaultPolicy.
func NewStaticPolicy(path string) (*StaticPolicy, error) {
	p := &StaticPolicy{path: path}
	if err := p.Sync(); err != nil {
		return nil, err
	}
	return p, nil
}

// ResolveCapabilities returns the union of the capabilities of every role in
// rctx.
func (p *StaticPolicy) ResolveCapabilities(rctx *model.RequestContext) (model.CapabilitySet, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	caps := make(model.CapabilitySet)
	for _, role := range rctx.Roles {
		for _, c := range p.roles[role] {
			caps[c] = true
		}
	}
	return caps, nil
}

// Roles lists the configured role names.
func (p *StaticPolicy) Roles() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.roles))
	for r := range p.roles {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Sync reloads the policy file. With no file it resets to DefaultPolicy.
func (p *StaticPolicy) Sync() error {
	roles := DefaultPolicy()
	if p.path != "" {
		data, err := os.ReadFile(p.path)
		if err != nil {
			return fmt.Errorf("capability: reading policy file %s: %w", p.path, err)
		}
		var f policyFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("capability: parsing policy file %s: %w", p.path, err)
		}
		if len(f.Roles) == 0 {
			return fmt.Errorf("capability: policy file %s defines no roles", p.path)
		}
		roles = f.Roles
	}

	p.mu.Lock()
	p.roles = roles
	p.mu.Unlock()
	return nil
}
