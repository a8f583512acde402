package assessment

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"clinical-intake-agent/internal/storage"
)

type countingSynthesizer struct {
	calls atomic.Int32
}

func (c *countingSynthesizer) Synthesize(_ context.Context, _ *State) error {
	c.calls.Add(1)
	return nil
}

func newTestMachine(t *testing.T) (*Machine, *Tracker, *countingSynthesizer) {
	t.Helper()
	tracker := NewTracker()
	synth := &countingSynthesizer{}
	// Question generator without a remote client: every prompt resolves to
	// the static bank, which keeps replies deterministic.
	gen := NewQuestionGenerator(nil, time.Second, zap.NewNop())
	m := NewMachine(tracker, storage.NewMemoryStore(), gen, synth, zap.NewNop())
	return m, tracker, synth
}

func TestStartCreatesFreshState(t *testing.T) {
	m, tracker, _ := newTestMachine(t)

	st, reply := m.Start(context.Background(), "user-1", "ana@example.com")

	assert.Equal(t, StepInvestigation, st.Step)
	assert.Equal(t, StatusActive, st.Status)
	assert.Empty(t, st.Investigation.MainComplaint)
	assert.Empty(t, st.Investigation.Symptoms)
	assert.Empty(t, st.Investigation.MedicalHistory)
	assert.Empty(t, st.Investigation.FamilyHistory)
	assert.Empty(t, st.Investigation.Medications)
	assert.Empty(t, st.Investigation.Lifestyle)
	assert.Contains(t, reply, "avaliação clínica inicial")
	assert.Contains(t, reply, FallbackQuestion(FieldMainComplaint))

	_, ok := tracker.Get("user-1")
	assert.True(t, ok)
}

func TestStartIsIdempotentPerUser(t *testing.T) {
	m, _, _ := newTestMachine(t)

	first, _ := m.Start(context.Background(), "user-1", "")
	second, reply := m.Start(context.Background(), "user-1", "")

	assert.Equal(t, first.ID, second.ID)
	assert.Contains(t, reply, "em andamento")
}

func TestInvestigationFillsFieldsInOrder(t *testing.T) {
	m, tracker, _ := newTestMachine(t)
	ctx := context.Background()
	m.Start(ctx, "user-1", "")

	reply, handled := m.Advance(ctx, "user-1", "Dor lombar há 2 semanas")
	require.True(t, handled)
	assert.Equal(t, FallbackQuestion(FieldSymptoms), reply)

	st, _ := tracker.Get("user-1")
	assert.Equal(t, "Dor lombar há 2 semanas", st.Investigation.MainComplaint)
	assert.Equal(t, StepInvestigation, st.Step)

	m.Advance(ctx, "user-1", "Formigamento na perna, dificuldade para dormir")
	assert.Equal(t, []string{"Formigamento na perna", "dificuldade para dormir"}, st.Investigation.Symptoms)
	// The complaint is never overwritten by later answers.
	assert.Equal(t, "Dor lombar há 2 semanas", st.Investigation.MainComplaint)
}

func TestInvestigationProposalEchoesAllSixFields(t *testing.T) {
	m, tracker, _ := newTestMachine(t)
	ctx := context.Background()
	m.Start(ctx, "user-1", "")

	answers := []string{
		"Dor lombar há 2 semanas",
		"Formigamento na perna",
		"Hérnia de disco em 2019",
		"Pai com diabetes",
		"Ibuprofeno quando dói",
		"Trabalho sentado, durmo pouco",
	}
	var reply string
	for _, answer := range answers {
		reply, _ = m.Advance(ctx, "user-1", answer)
	}

	st, _ := tracker.Get("user-1")
	assert.Equal(t, StepMethodology, st.Step)
	for _, answer := range answers {
		assert.Contains(t, reply, answer)
	}
	assert.Contains(t, reply, FallbackQuestion(FieldMethodology))
}

func TestStepsOnlyMoveForward(t *testing.T) {
	m, tracker, _ := newTestMachine(t)
	ctx := context.Background()
	m.Start(ctx, "user-1", "")

	seen := []Step{}
	record := func() {
		if st, ok := tracker.Get("user-1"); ok {
			seen = append(seen, st.Step)
		}
	}

	for _, answer := range []string{"a", "b", "c", "d", "e", "f", "ressonância", "hérnia L4-L5", "fisioterapia"} {
		m.Advance(ctx, "user-1", answer)
		record()
	}

	order := map[Step]int{
		StepInvestigation: 0,
		StepMethodology:   1,
		StepResult:        2,
		StepEvolution:     3,
		StepCompleted:     4,
	}
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, order[seen[i]], order[seen[i-1]])
	}
}

func TestFullInterviewCompletesAndSynthesizesOnce(t *testing.T) {
	m, tracker, synth := newTestMachine(t)
	ctx := context.Background()
	m.Start(ctx, "user-1", "")

	answers := []string{"a", "b", "c", "d", "e", "f", "ressonância", "hérnia L4-L5", "fisioterapia e acompanhamento"}
	var reply string
	for _, answer := range answers {
		reply, _ = m.Advance(ctx, "user-1", answer)
	}

	assert.Contains(t, reply, "concluída")
	_, ok := tracker.Get("user-1")
	assert.False(t, ok, "completed interview must leave the active set")

	require.Eventually(t, func() bool {
		return synth.calls.Load() == 1
	}, time.Second, 10*time.Millisecond)

	// Further completion signals find no active interview.
	_, ok = m.Complete(ctx, "user-1")
	assert.False(t, ok)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), synth.calls.Load())
}

func TestExplicitCompleteFinalizesEarly(t *testing.T) {
	m, tracker, synth := newTestMachine(t)
	ctx := context.Background()
	m.Start(ctx, "user-1", "")
	m.Advance(ctx, "user-1", "Dor de cabeça")

	reply, ok := m.Complete(ctx, "user-1")
	require.True(t, ok)
	assert.Contains(t, reply, "concluída")

	_, active := tracker.Get("user-1")
	assert.False(t, active)
	require.Eventually(t, func() bool {
		return synth.calls.Load() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestAdvanceWithoutActiveInterview(t *testing.T) {
	m, _, _ := newTestMachine(t)
	_, handled := m.Advance(context.Background(), "ghost", "oi")
	assert.False(t, handled)
}
