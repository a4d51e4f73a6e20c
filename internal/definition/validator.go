package definition

import (
	"fmt"
	"sort"

	"github.com/digiurban/lifecycle/model"
)

// VError describes a single validation error in a definition.
type VError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e VError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validator checks workflow definitions structurally before they reach the
// registry.
type Validator struct{}

// NewValidator creates a new Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks all definitions and reports module types declared more than
// once.
func (v *Validator) Validate(defs []model.WorkflowDefinition) []VError {
	var errs []VError
	seen := make(map[string]int)
	for i, def := range defs {
		prefix := fmt.Sprintf("workflows[%d]", i)
		errs = append(errs, v.validateWorkflow(prefix, def)...)
		if def.ModuleType == "" {
			continue
		}
		if first, ok := seen[def.ModuleType]; ok {
			errs = append(errs, VError{
				Path:    prefix + ".module_type",
				Code:    "DUPLICATE",
				Message: fmt.Sprintf("module type %q already declared at workflows[%d]", def.ModuleType, first),
			})
			continue
		}
		seen[def.ModuleType] = i
	}
	return errs
}

// ValidateOne checks a single definition.
func (v *Validator) ValidateOne(def model.WorkflowDefinition) []VError {
	return v.validateWorkflow("workflow", def)
}

func (v *Validator) validateWorkflow(prefix string, w model.WorkflowDefinition) []VError {
	var errs []VError

	if w.ModuleType == "" {
		errs = append(errs, VError{Path: prefix + ".module_type", Code: "REQUIRED", Message: "module_type is required"})
	}
	if w.Name == "" {
		errs = append(errs, VError{Path: prefix + ".name", Code: "REQUIRED", Message: "name is required"})
	}
	if w.DefaultSLA < 1 {
		errs = append(errs, VError{Path: prefix + ".default_sla", Code: "RANGE", Message: "default_sla must be at least 1 working day"})
	}
	if len(w.Stages) == 0 {
		errs = append(errs, VError{Path: prefix + ".stages", Code: "REQUIRED", Message: "at least one stage is required"})
		return errs
	}

	names := make(map[string]bool)
	for i, s := range w.Stages {
		sp := fmt.Sprintf("%s.stages[%d]", prefix, i)
		if s.Name == "" {
			errs = append(errs, VError{Path: sp + ".name", Code: "REQUIRED", Message: "stage name is required"})
		} else if names[s.Name] {
			errs = append(errs, VError{Path: sp + ".name", Code: "DUPLICATE", Message: fmt.Sprintf("stage name %q is used twice", s.Name)})
		}
		names[s.Name] = true
		if s.SLAWorkingDays < 0 {
			errs = append(errs, VError{Path: sp + ".sla_working_days", Code: "RANGE", Message: "sla_working_days must not be negative"})
		}
		for j, c := range s.CompletionConditions {
			errs = append(errs, validateCondition(fmt.Sprintf("%s.completion_conditions[%d]", sp, j), c)...)
		}
	}

	// Orders must form 1..N once sorted.
	orders := make([]int, len(w.Stages))
	for i, s := range w.Stages {
		orders[i] = s.Order
	}
	sort.Ints(orders)
	for i, o := range orders {
		if o != i+1 {
			errs = append(errs, VError{
				Path:    prefix + ".stages",
				Code:    "ORDER",
				Message: fmt.Sprintf("stage orders must be contiguous from 1, got %v", orders),
			})
			break
		}
	}

	return errs
}

func validateCondition(prefix string, c model.StageCondition) []VError {
	switch c.Kind {
	case model.ConditionDocumentApproved:
		if c.DocumentType == "" {
			return []VError{{Path: prefix + ".document_type", Code: "REQUIRED", Message: "document_type is required for document_approved"}}
		}
	case model.ConditionFieldPresent:
		if c.Field == "" {
			return []VError{{Path: prefix + ".field", Code: "REQUIRED", Message: "field is required for field_present"}}
		}
	case model.ConditionNoBlockingPendings:
	case "":
		return []VError{{Path: prefix + ".kind", Code: "REQUIRED", Message: "kind is required"}}
	default:
		return []VError{{Path: prefix + ".kind", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid condition kind %q", c.Kind)}}
	}
	return nil
}
