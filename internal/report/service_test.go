package report

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"clinical-intake-agent/internal/assessment"
	"clinical-intake-agent/internal/storage"
)

type fakeNotifier struct {
	messages  []string
	documents []string
}

func (f *fakeNotifier) SendMessage(_ int64, text string) error {
	f.messages = append(f.messages, text)
	return nil
}

func (f *fakeNotifier) SendDocument(_ int64, _ []byte, fileName string) error {
	f.documents = append(f.documents, fileName)
	return nil
}

func completedState() *assessment.State {
	return &assessment.State{
		ID:        uuid.New(),
		UserID:    "user-12345678",
		UserEmail: "maria@example.com",
		Step:      assessment.StepCompleted,
		Status:    assessment.StatusCompleted,
		Investigation: assessment.Investigation{
			MainComplaint:  "Dor lombar há duas semanas",
			Symptoms:       []string{"rigidez matinal", "dificuldade para dormir"},
			MedicalHistory: "Hipertensão controlada",
			FamilyHistory:  "Pai com diabetes",
			Medications:    "Losartana 50mg",
			Lifestyle:      "Sedentário",
		},
		Methodology: assessment.Methodology{DiagnosticMethods: []string{"exame físico"}},
		Result:      assessment.Result{ClinicalFindings: []string{"contratura muscular"}},
		Evolution:   assessment.Evolution{CarePlan: []string{"fisioterapia"}},
		StartedAt:   time.Now().Add(-30 * time.Minute),
		LastUpdate:  time.Now(),
	}
}

func TestSynthesizePersistsReportAndNotification(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := NewService(store, nil, 0, zap.NewNop())
	st := completedState()

	require.NoError(t, svc.Synthesize(context.Background(), st))

	rep, err := store.ReportByAssessment(context.Background(), st.ID)
	require.NoError(t, err)
	assert.Equal(t, "maria@example.com", rep.PatientName)
	assert.Equal(t, "ready", rep.Status)
	assert.Contains(t, rep.Summary, "Queixa principal: Dor lombar há duas semanas")
	assert.Contains(t, rep.Summary, "rigidez matinal; dificuldade para dormir")

	notes := store.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, "clinical-team", notes[0].Recipient)
}

func TestSynthesizeIsIdempotent(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := NewService(store, nil, 0, zap.NewNop())
	st := completedState()

	require.NoError(t, svc.Synthesize(context.Background(), st))
	require.NoError(t, svc.Synthesize(context.Background(), st))

	total, err := store.CountReports(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, store.Notifications(), 1)
}

func TestSynthesizeNotifiesDoctor(t *testing.T) {
	store := storage.NewMemoryStore()
	notifier := &fakeNotifier{}
	svc := NewService(store, notifier, 42, zap.NewNop())

	require.NoError(t, svc.Synthesize(context.Background(), completedState()))

	// Whether the PDF renders depends on installed fonts; either channel must
	// have fired exactly once.
	assert.Equal(t, 1, len(notifier.messages)+len(notifier.documents))
}

func TestBuildSummaryPlaceholders(t *testing.T) {
	st := &assessment.State{ID: uuid.New(), UserID: "abc12345-user"}

	summary := buildSummary(st)

	assert.Contains(t, summary, "Paciente: Paciente abc12345")
	assert.Contains(t, summary, "Queixa principal: Não informado")
	assert.Contains(t, summary, "Sintomas: Não informado")
}

func TestPatientDisplayName(t *testing.T) {
	assert.Equal(t, "maria@example.com", patientDisplayName(&assessment.State{UserEmail: "maria@example.com", UserID: "x"}))
	assert.Equal(t, "Paciente abc12345", patientDisplayName(&assessment.State{UserID: "abc12345-user"}))
	assert.Equal(t, "Paciente u1", patientDisplayName(&assessment.State{UserID: "u1"}))
}
