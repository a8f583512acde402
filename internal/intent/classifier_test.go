package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Category
	}{
		{"assessment start", "iniciar avaliação clínica inicial imre", CategoryAssessment},
		{"assessment unaccented", "quero fazer uma avaliacao clinica", CategoryAssessment},
		{"anamnese", "podemos começar a anamnese?", CategoryAssessment},
		{"clinical symptom", "estou com muita dor nas costas", CategoryClinical},
		{"clinical medication", "posso tomar esse medicamento com CBD?", CategoryClinical},
		{"training", "quero um treinamento sobre entrevista", CategoryTraining},
		{"platform dashboard", "me mostra o dashboard", CategoryPlatform},
		{"appointment", "quero agendar um horário", CategoryAppointment},
		{"patient registration", "preciso cadastrar paciente novo", CategoryPatientRegistration},
		{"general greeting", "bom dia, tudo bem?", CategoryGeneral},
		{"empty", "", CategoryGeneral},
		{"whitespace", "   ", CategoryGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.text))
		})
	}
}

func TestClassifyPriorityOrder(t *testing.T) {
	// A message matching both the assessment and clinical groups resolves to
	// the earlier group in the table.
	got := Classify("quero uma avaliação clínica por causa da dor")
	assert.Equal(t, CategoryAssessment, got)
}

func TestClassifyIsCaseInsensitive(t *testing.T) {
	assert.Equal(t, CategoryAssessment, Classify("INICIAR AVALIAÇÃO CLÍNICA"))
}
