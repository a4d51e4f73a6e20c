package store

import (
	"maps"
	"slices"
	"sort"

	"github.com/digiurban/lifecycle/model"
)

func cloneProtocol(p model.Protocol) model.Protocol {
	p.Data = maps.Clone(p.Data)
	return p
}

func cloneStage(s model.StageInstance) model.StageInstance {
	s.RequiredDocuments = slices.Clone(s.RequiredDocuments)
	s.CompletionConditions = slices.Clone(s.CompletionConditions)
	return s
}

func clonePending(p model.PendingItem) model.PendingItem {
	d := p.Details
	if d.Document != nil {
		v := *d.Document
		d.Document = &v
	}
	if d.Information != nil {
		v := *d.Information
		v.Questions = slices.Clone(v.Questions)
		d.Information = &v
	}
	if d.Correction != nil {
		v := *d.Correction
		v.Fields = slices.Clone(v.Fields)
		d.Correction = &v
	}
	if d.Validation != nil {
		v := *d.Validation
		v.Checklist = slices.Clone(v.Checklist)
		d.Validation = &v
	}
	if d.Payment != nil {
		v := *d.Payment
		d.Payment = &v
	}
	d.Metadata = maps.Clone(d.Metadata)
	p.Details = d
	return p
}

func sortStages(stages []model.StageInstance) {
	sort.SliceStable(stages, func(i, j int) bool { return stages[i].Order < stages[j].Order })
}
