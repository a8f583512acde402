package intent

import "strings"

// Category is the conversational topic of a message, independent of any
// platform action the message may also request.
type Category string

const (
	CategoryAssessment          Category = "assessment"
	CategoryClinical            Category = "clinical"
	CategoryTraining            Category = "training"
	CategoryPlatform            Category = "platform"
	CategoryAppointment         Category = "appointment"
	CategoryPatientRegistration Category = "patient_registration"
	CategoryGeneral             Category = "general"
)

// categoryRules is evaluated in order; the first group with a match wins.
// Keywords are lowercase and include unaccented variants, since users type
// both forms.
var categoryRules = []struct {
	category Category
	keywords []string
}{
	{CategoryAssessment, []string{
		"avaliação clínica", "avaliacao clinica", "avaliação inicial", "avaliacao inicial",
		"imre", "anamnese", "entrevista clínica", "entrevista clinica", "triagem",
	}},
	{CategoryPatientRegistration, []string{
		"cadastrar paciente", "novo paciente", "cadastro de paciente", "registrar paciente",
	}},
	{CategoryAppointment, []string{
		"agendar", "agendamento", "marcar consulta", "remarcar", "horário disponível",
		"horario disponivel", "agenda",
	}},
	{CategoryTraining, []string{
		"treinamento", "capacitação", "capacitacao", "curso", "aula", "aprender sobre",
		"material de estudo",
	}},
	{CategoryPlatform, []string{
		"dashboard", "painel", "plataforma", "sistema", "relatório", "relatorio",
		"kpi", "indicador", "estatística", "estatistica",
	}},
	{CategoryClinical, []string{
		"sintoma", "dor", "medicamento", "medicação", "medicacao", "tratamento",
		"diagnóstico", "diagnostico", "exame", "cannabis", "cbd", "ansiedade",
		"insônia", "insonia", "crise", "convulsão", "convulsao",
	}},
}

// Classify maps free text to a conversational category. Pure function, first
// matching keyword group wins, CategoryGeneral when nothing matches.
func Classify(text string) Category {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return CategoryGeneral
	}
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(normalized, kw) {
				return rule.category
			}
		}
	}
	return CategoryGeneral
}
