package model

import "strings"

// Capabilities checked by the API.
const (
	CapProtocolsRead    = "protocols:read"
	CapProtocolsOpen    = "protocols:open"
	CapProtocolsPurge   = "protocols:purge"
	CapDocumentsManage  = "documents:manage"
	CapDocumentsReview  = "documents:review"
	CapStagesTransition = "stages:transition"
	CapSLAManage        = "sla:manage"
	CapSLADelete        = "sla:delete"
	CapPendingsManage   = "pendings:manage"
	CapWorkflowsRead    = "workflows:read"
	CapWorkflowsAdmin   = "workflows:admin"
	CapFormsValidate    = "forms:validate"
)

// CapabilitySet is a set of capabilities granted to a user. Each key is a
// capability string (e.g. "stages:transition") and may include wildcards
// (e.g. "stages:*").
type CapabilitySet map[string]bool

// Has returns true if the set contains the exact capability or a wildcard
// that matches it.
func (cs CapabilitySet) Has(cap string) bool {
	if cs[cap] {
		return true
	}
	for pattern := range cs {
		if matchWildcard(pattern, cap) {
			return true
		}
	}
	return false
}

// HasAll returns true if the set matches all given capabilities.
func (cs CapabilitySet) HasAll(caps ...string) bool {
	for _, cap := range caps {
		if !cs.Has(cap) {
			return false
		}
	}
	return true
}

// HasAny returns true if the set matches at least one of the given
// capabilities.
func (cs CapabilitySet) HasAny(caps ...string) bool {
	for _, cap := range caps {
		if cs.Has(cap) {
			return true
		}
	}
	return false
}

// matchWildcard returns true if pattern (which may end in "*") matches cap.
//
//	"*"        matches anything
//	"sla:*"    matches "sla:delete"
//	"sla"      does NOT match "sla:delete"
func matchWildcard(pattern, cap string) bool {
	if pattern == "*" {
		return true
	}
	if !strings.HasSuffix(pattern, ":*") {
		return false
	}
	prefix := pattern[:len(pattern)-1]
	return strings.HasPrefix(cap, prefix)
}

// CapabilityResolver resolves the full capability set for a request context.
type CapabilityResolver interface {
	Resolve(rctx *RequestContext) (CapabilitySet, error)
	Invalidate(subjectID string)
}

// PolicyEvaluator maps a request context to capabilities.
type PolicyEvaluator interface {
	ResolveCapabilities(rctx *RequestContext) (CapabilitySet, error)
	// Sync refreshes policy data from its source.
	Sync() error
}
