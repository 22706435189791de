package i18n

func init() {
	RegisterCatalog("pt-BR", NewCatalog("pt-BR", map[Code]string{
		CodeSubmissionSelectorAmbiguous: "Informe exatamente uma opção de entrada ou página",
		CodeIncomingOptionInvalid:       "Opção de entrada inválida {{.Option}}",
		CodeIncomingOptionNotFound:      "Opção de entrada {{.Option}} não encontrada",
		CodePageInvalid:                 "Página inválida {{.Page}}",
		CodePageNotFound:                "Página {{.Page}} não encontrada",
		CodeModeratorMissing:            "Moderador é obrigatório",
		CodeVariantInvalid:              "Variante inválida {{.Variant}}",
		CodeVariantNotFound:             "Variante {{.Variant}} não encontrada",
		CodeVerdictMissing:              "isApproved ausente ou inválido",
		CodeModerationJobMissing:        "Nenhuma tarefa de moderação atribuída",
		CodeNothingToModerate:           "Não há nada para moderar agora",
		CodeReportVariantMissing:        "Variante ausente ou inválida",
		CodeNotFound:                    "Não encontrado",
		CodeStoreUnavailable:            "O arquivo de histórias está indisponível, tente novamente mais tarde",
	}))
}
