package composer

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"clinical-intake-agent/internal/action"
	"clinical-intake-agent/internal/assessment"
	"clinical-intake-agent/internal/storage"
)

type stubSynthesizer struct{ calls atomic.Int32 }

func (s *stubSynthesizer) Synthesize(_ context.Context, _ *assessment.State) error {
	s.calls.Add(1)
	return nil
}

type stubCompletions struct {
	reply   string
	err     error
	entered chan struct{}
	release chan struct{}
}

func (s *stubCompletions) Complete(_ context.Context, _ string) (string, error) {
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.release != nil {
		<-s.release
	}
	return s.reply, s.err
}

func newTestComposer(t *testing.T, completions CompletionClient) (*Composer, *storage.MemoryStore, *assessment.Tracker, *stubSynthesizer) {
	t.Helper()
	store := storage.NewMemoryStore()
	tracker := assessment.NewTracker()
	synth := &stubSynthesizer{}
	logger := zap.NewNop()
	gen := assessment.NewQuestionGenerator(nil, time.Second, logger)
	machine := assessment.NewMachine(tracker, store, gen, synth, logger)
	dispatcher := action.NewDispatcher(store, tracker, machine, synth, logger)
	c := New(tracker, machine, dispatcher, completions, store, logger)
	return c, store, tracker, synth
}

func TestBusyGuardReturnsWaitNotice(t *testing.T) {
	completions := &stubCompletions{
		reply:   "ok",
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	c, _, tracker, _ := newTestComposer(t, completions)

	done := make(chan Response, 1)
	go func() {
		done <- c.ProcessMessage(context.Background(), "olá, tudo bem?", "user-1", "")
	}()
	<-completions.entered

	second := c.ProcessMessage(context.Background(), "oi", "user-1", "")
	assert.Equal(t, waitNotice, second.Content)
	assert.Equal(t, TypeText, second.Type)
	assert.InDelta(t, 0.3, second.Confidence, 0.001)
	_, active := tracker.Get("user-1")
	assert.False(t, active, "a bounced turn must not touch interview state")

	close(completions.release)
	first := <-done
	assert.Equal(t, "ok", first.Content)
}

func TestRemoteFailureFallsBackPerCategory(t *testing.T) {
	cases := []struct {
		name    string
		message string
	}{
		{"clinical", "Estou com dor de cabeça constante"},
		{"training", "Quero um curso de capacitação"},
		{"platform", "Como anda o sistema?"},
		{"appointment", "Gostaria de remarcar"},
		{"general", "Bom dia!"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _, _, _ := newTestComposer(t, &stubCompletions{err: errors.New("upstream down")})

			resp := c.ProcessMessage(context.Background(), tc.message, "user-1", "")

			assert.NotEmpty(t, resp.Content)
			assert.Equal(t, TypeText, resp.Type)
			assert.NotEqual(t, TypeError, resp.Type)
			assert.InDelta(t, 0.6, resp.Confidence, 0.001)
		})
	}
}

func TestPlatformQueryHintsSurviveRemoteFailure(t *testing.T) {
	c, store, _, _ := newTestComposer(t, &stubCompletions{err: errors.New("upstream down")})
	ctx := context.Background()
	require.NoError(t, store.SavePatient(ctx, &storage.Patient{ID: "p1", Name: "Maria", NationalID: "111"}))

	resp := c.ProcessMessage(ctx, "Como está o painel da clínica?", "user-1", "")

	assert.Contains(t, resp.Content, "Pacientes: 1")
	assert.Equal(t, TypeText, resp.Type)
}

func TestFullInterviewFlow(t *testing.T) {
	c, store, tracker, synth := newTestComposer(t, &stubCompletions{err: errors.New("should not be called")})
	ctx := context.Background()
	const userID = "user-1"

	resp := c.ProcessMessage(ctx, "iniciar avaliação clínica inicial imre", userID, "maria@example.com")
	assert.Equal(t, TypeAssessment, resp.Type)
	assert.Contains(t, resp.Content, "IMRE")
	st, active := tracker.Get(userID)
	require.True(t, active)
	assert.Equal(t, assessment.StepInvestigation, st.Step)

	answers := []string{
		"Dor lombar há duas semanas",
		"Rigidez pela manhã e dificuldade para dormir",
		"Hipertensão controlada",
		"Pai com diabetes",
		"Losartana 50mg",
		"Sedentário, trabalho em escritório",
	}
	for i, answer := range answers {
		resp = c.ProcessMessage(ctx, answer, userID, "maria@example.com")
		require.Equal(t, TypeAssessment, resp.Type, "answer %d", i)
		require.NotEmpty(t, resp.Content, "answer %d", i)
	}

	st, active = tracker.Get(userID)
	require.True(t, active)
	assert.Equal(t, assessment.StepMethodology, st.Step)
	assert.Equal(t, "Dor lombar há duas semanas", st.Investigation.MainComplaint)
	assert.Contains(t, resp.Content, "Queixa principal: Dor lombar há duas semanas")

	resp = c.ProcessMessage(ctx, "Exame físico e ressonância magnética", userID, "maria@example.com")
	require.Equal(t, TypeAssessment, resp.Type)
	resp = c.ProcessMessage(ctx, "Contratura muscular e tensão", userID, "maria@example.com")
	require.Equal(t, TypeAssessment, resp.Type)

	// The last phase consumes one answer and finalizes on its own.
	resp = c.ProcessMessage(ctx, "Fisioterapia duas vezes por semana e caminhadas", userID, "maria@example.com")
	assert.Contains(t, resp.Content, "concluída")

	_, active = tracker.Get(userID)
	assert.False(t, active)
	require.Eventually(t, func() bool { return synth.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	counts, err := store.CountAssessmentsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[string(assessment.StatusCompleted)])
}

func TestExplicitCompletionMidInterview(t *testing.T) {
	c, _, tracker, synth := newTestComposer(t, &stubCompletions{reply: "ok"})
	ctx := context.Background()
	const userID = "user-1"

	c.ProcessMessage(ctx, "iniciar avaliação clínica", userID, "")
	c.ProcessMessage(ctx, "Enxaqueca frequente", userID, "")

	resp := c.ProcessMessage(ctx, "pode concluir a avaliação", userID, "")
	assert.Equal(t, TypeAssessment, resp.Type)
	assert.Contains(t, resp.Content, "concluída")

	_, active := tracker.Get(userID)
	assert.False(t, active)
	require.Eventually(t, func() bool { return synth.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestStartWithoutUserID(t *testing.T) {
	c, _, tracker, _ := newTestComposer(t, &stubCompletions{reply: "ok"})

	resp := c.ProcessMessage(context.Background(), "iniciar avaliação clínica inicial", "", "")

	assert.NotEmpty(t, resp.Content)
	assert.NotEqual(t, TypeError, resp.Type)
	_, active := tracker.Get("")
	assert.False(t, active)
}

func TestInteractionIsPersisted(t *testing.T) {
	c, store, _, _ := newTestComposer(t, &stubCompletions{reply: "Tudo bem por aqui!"})
	ctx := context.Background()

	resp := c.ProcessMessage(ctx, "Bom dia!", "user-1", "")

	logged, err := store.ListInteractionsByUser(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.Equal(t, "Bom dia!", logged[0].UserMessage)
	assert.Equal(t, resp.Content, logged[0].ResponseContent)
}
