package intent

import "strings"

// PlatformIntentType identifies a side-effecting action against persisted
// records, orthogonal to the conversational category.
type PlatformIntentType string

const (
	IntentNone               PlatformIntentType = "NONE"
	IntentAssessmentStart    PlatformIntentType = "ASSESSMENT_START"
	IntentAssessmentComplete PlatformIntentType = "ASSESSMENT_COMPLETE"
	IntentReportGenerate     PlatformIntentType = "REPORT_GENERATE"
	IntentDashboardQuery     PlatformIntentType = "DASHBOARD_QUERY"
	IntentPatientsQuery      PlatformIntentType = "PATIENTS_QUERY"
	IntentReportsCountQuery  PlatformIntentType = "REPORTS_COUNT_QUERY"
	IntentAppointmentsQuery  PlatformIntentType = "APPOINTMENTS_QUERY"
	IntentKPIQuery           PlatformIntentType = "KPI_QUERY"
	IntentAppointmentCreate  PlatformIntentType = "APPOINTMENT_CREATE"
	IntentPatientCreate      PlatformIntentType = "PATIENT_CREATE"
)

// PlatformIntent is ephemeral: produced and consumed within a single turn.
type PlatformIntent struct {
	Type       PlatformIntentType
	Confidence float64
	Metadata   map[string]string
}

var completionKeywords = []string{
	"finalizar", "concluir", "encerrar", "terminar avaliação", "terminar avaliacao",
	"fechar o relatório", "fechar o relatorio", "pode concluir",
}

var startKeywords = []string{
	"iniciar avaliação", "iniciar avaliacao", "começar avaliação", "comecar avaliacao",
	"iniciar anamnese", "iniciar entrevista", "começar a avaliação", "nova avaliação",
	"nova avaliacao",
}

var reportKeywords = []string{
	"gerar relatório", "gerar relatorio", "emitir relatório", "emitir relatorio",
	"criar relatório", "criar relatorio",
}

// actionRules covers the query and create groups checked after the
// assessment-specific signals. Order matters: first match wins.
var actionRules = []struct {
	intent     PlatformIntentType
	confidence float64
	keywords   []string
}{
	{IntentKPIQuery, 0.8, []string{"kpi", "indicadores", "taxa de conclusão", "taxa de conclusao", "desempenho da clínica", "desempenho da clinica"}},
	{IntentDashboardQuery, 0.8, []string{"dashboard", "painel", "visão geral", "visao geral", "resumo do sistema"}},
	{IntentReportsCountQuery, 0.8, []string{"quantos relatórios", "quantos relatorios", "número de relatórios", "numero de relatorios", "relatórios gerados", "relatorios gerados"}},
	{IntentAppointmentCreate, 0.75, []string{"agendar consulta", "marcar consulta", "nova consulta", "agendar para"}},
	{IntentAppointmentsQuery, 0.8, []string{"consultas de hoje", "agenda de hoje", "próximas consultas", "proximas consultas", "consultas da semana", "agendamentos"}},
	{IntentPatientCreate, 0.75, []string{"cadastrar paciente", "novo paciente", "registrar paciente"}},
	{IntentPatientsQuery, 0.8, []string{"listar pacientes", "quantos pacientes", "meus pacientes", "pacientes cadastrados", "lista de pacientes"}},
}

// HasCompletionSignal reports whether the text carries an explicit
// end-of-interview phrase. The composer also uses it as a redundant scan on
// turns no state machine drove.
func HasCompletionSignal(text string) bool {
	normalized := strings.ToLower(text)
	for _, kw := range completionKeywords {
		if strings.Contains(normalized, kw) {
			return true
		}
	}
	return false
}

// DetectPlatformIntent runs the priority-ordered checks over the message.
// assessmentActive and inEvolution describe the caller's view of the user's
// current interview; the detector itself reads no state.
func DetectPlatformIntent(text, userID string, assessmentActive, inEvolution bool) PlatformIntent {
	normalized := strings.ToLower(strings.TrimSpace(text))
	meta := map[string]string{"user_id": userID}

	if assessmentActive && (HasCompletionSignal(normalized) || inEvolution) {
		return PlatformIntent{Type: IntentAssessmentComplete, Confidence: 0.9, Metadata: meta}
	}
	for _, kw := range startKeywords {
		if strings.Contains(normalized, kw) {
			return PlatformIntent{Type: IntentAssessmentStart, Confidence: 0.9, Metadata: meta}
		}
	}
	for _, kw := range reportKeywords {
		if strings.Contains(normalized, kw) {
			return PlatformIntent{Type: IntentReportGenerate, Confidence: 0.85, Metadata: meta}
		}
	}
	for _, rule := range actionRules {
		for _, kw := range rule.keywords {
			if strings.Contains(normalized, kw) {
				return PlatformIntent{Type: rule.intent, Confidence: rule.confidence, Metadata: meta}
			}
		}
	}
	return PlatformIntent{Type: IntentNone, Confidence: 0}
}
