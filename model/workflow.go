package model

// Stage condition kinds.
const (
	ConditionDocumentApproved   = "document_approved"
	ConditionFieldPresent       = "field_present"
	ConditionNoBlockingPendings = "no_blocking_pendings"
)

// WorkflowDefinition is the stage template registered for one module type.
type WorkflowDefinition struct {
	ModuleType  string          `yaml:"module_type" json:"moduleType"`
	Name        string          `yaml:"name" json:"name"`
	Description string          `yaml:"description,omitempty" json:"description,omitempty"`
	DefaultSLA  int             `yaml:"default_sla" json:"defaultSLA"`
	Stages      []StageTemplate `yaml:"stages" json:"stages"`

	Checksum   string `yaml:"-" json:"checksum,omitempty"`
	SourceFile string `yaml:"-" json:"sourceFile,omitempty"`
}

// StageTemplate is one ordered stage of a WorkflowDefinition.
type StageTemplate struct {
	Order                int              `yaml:"order" json:"order"`
	Name                 string           `yaml:"name" json:"name"`
	Description          string           `yaml:"description,omitempty" json:"description,omitempty"`
	SLAWorkingDays       int              `yaml:"sla_working_days" json:"slaWorkingDays"`
	RequiredDocuments    []string         `yaml:"required_documents,omitempty" json:"requiredDocuments,omitempty"`
	CompletionConditions []StageCondition `yaml:"completion_conditions,omitempty" json:"completionConditions,omitempty"`
	CanSkip              bool             `yaml:"can_skip,omitempty" json:"canSkip,omitempty"`
}

// StageCondition is a completion condition. Kind selects which of the
// remaining fields is meaningful.
type StageCondition struct {
	Kind         string `yaml:"kind" json:"kind"`
	DocumentType string `yaml:"document_type,omitempty" json:"documentType,omitempty"`
	Field        string `yaml:"field,omitempty" json:"field,omitempty"`
}

// WorkflowStats summarizes one registered workflow.
type WorkflowStats struct {
	ModuleType       string `json:"moduleType"`
	Name             string `json:"name"`
	StagesCount      int    `json:"stagesCount"`
	DefaultSLA       int    `json:"defaultSLA"`
	TotalWorkingDays int    `json:"totalWorkingDays"`
}

// TotalWorkingDays sums the working-day budgets of all stages.
func (d *WorkflowDefinition) TotalWorkingDays() int {
	total := 0
	for _, s := range d.Stages {
		total += s.SLAWorkingDays
	}
	return total
}

// Clone returns a deep copy so callers can never mutate a registered
// definition.
func (d *WorkflowDefinition) Clone() *WorkflowDefinition {
	c := *d
	c.Stages = make([]StageTemplate, len(d.Stages))
	for i, s := range d.Stages {
		s.RequiredDocuments = append([]string(nil), s.RequiredDocuments...)
		s.CompletionConditions = append([]StageCondition(nil), s.CompletionConditions...)
		c.Stages[i] = s
	}
	return &c
}
