package definition

import "github.com/digiurban/lifecycle/model"

// Seeded module types.
const (
	ModuleAtendimentosAgricultura = "ATENDIMENTOS_AGRICULTURA"
	ModuleCadastroProdutor        = "CADASTRO_PRODUTOR"
)

// DefaultWorkflows returns the workflows every deployment starts with.
// Definitions loaded from files replace them per module type.
func DefaultWorkflows() []model.WorkflowDefinition {
	return []model.WorkflowDefinition{
		{
			ModuleType:  ModuleAtendimentosAgricultura,
			Name:        "Atendimento Técnico Agrícola",
			Description: "Atendimento técnico ao produtor rural",
			DefaultSLA:  10,
			Stages: []model.StageTemplate{
				{Order: 1, Name: "Triagem", Description: "Análise inicial da solicitação", SLAWorkingDays: 2},
				{Order: 2, Name: "Atendimento Técnico", Description: "Visita ou atendimento do técnico", SLAWorkingDays: 6},
				{Order: 3, Name: "Finalização", Description: "Registro do resultado do atendimento", SLAWorkingDays: 2},
			},
		},
		{
			ModuleType:  ModuleCadastroProdutor,
			Name:        "Cadastro de Produtor Rural",
			Description: "Cadastro e validação de produtor rural",
			DefaultSLA:  15,
			Stages: []model.StageTemplate{
				{
					Order:             1,
					Name:              "Análise Documental",
					Description:       "Conferência dos documentos do produtor",
					SLAWorkingDays:    3,
					RequiredDocuments: []string{"RG_CPF", "COMPROVANTE_RESIDENCIA", "COMPROVANTE_PROPRIEDADE"},
				},
				{Order: 2, Name: "Vistoria", Description: "Vistoria da propriedade", SLAWorkingDays: 7, CanSkip: true},
				{
					Order:          3,
					Name:           "Análise Técnica",
					Description:    "Parecer técnico final",
					SLAWorkingDays: 5,
					CompletionConditions: []model.StageCondition{
						{Kind: model.ConditionNoBlockingPendings},
					},
				},
			},
		},
	}
}
