package assessment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"clinical-intake-agent/internal/storage"
)

// QuestionSource produces the next prompt for an interview slot.
type QuestionSource interface {
	NextQuestion(ctx context.Context, st *State, lastAnswer string, next Field) string
}

// Store is the persistence dependency of the machine. Writes are
// best-effort: a failure is logged and the interview continues.
type Store interface {
	SaveAssessment(ctx context.Context, rec *storage.AssessmentRecord) error
}

// ReportSynthesizer turns a completed interview into a clinical report.
type ReportSynthesizer interface {
	Synthesize(ctx context.Context, st *State) error
}

// Machine drives the IMRE interview per user. Steps only move forward; each
// turn targets the single next unset slot, so duplicate deliveries of the
// same answer cannot double-fill a phase.
type Machine struct {
	tracker   *Tracker
	store     Store
	questions QuestionSource
	reports   ReportSynthesizer
	logger    *zap.Logger
}

func NewMachine(tracker *Tracker, store Store, questions QuestionSource, reports ReportSynthesizer, logger *zap.Logger) *Machine {
	return &Machine{
		tracker:   tracker,
		store:     store,
		questions: questions,
		reports:   reports,
		logger:    logger,
	}
}

const presentationPrompt = "Olá! Sou a assistente de acolhimento da clínica. Vamos iniciar sua avaliação clínica inicial pelo protocolo IMRE. Fique à vontade para responder com suas palavras."

// Start creates a fresh interview for the user, or resumes the active one.
// The returned string is the reply for this turn.
func (m *Machine) Start(ctx context.Context, userID, userEmail string) (*State, string) {
	if existing, ok := m.tracker.Get(userID); ok {
		question := m.currentQuestion(existing)
		return existing, "Você já tem uma avaliação em andamento. Vamos continuar de onde paramos. " + question
	}

	now := time.Now()
	st := &State{
		ID:        uuid.New(),
		UserID:    userID,
		UserEmail: userEmail,
		Step:      StepInvestigation,
		Status:    StatusActive,
		StartedAt:  now,
		LastUpdate: now,
	}
	m.tracker.Put(st)
	m.persist(ctx, st)

	return st, presentationPrompt + "\n\n" + FallbackQuestion(FieldMainComplaint)
}

// Advance consumes one answer for the user's active interview and returns the
// next prompt. The second return is false when the user has no active
// interview.
func (m *Machine) Advance(ctx context.Context, userID, answer string) (string, bool) {
	st, ok := m.tracker.Get(userID)
	if !ok {
		return "", false
	}

	answer = strings.TrimSpace(answer)
	var reply string

	switch st.Step {
	case StepInvestigation:
		reply = m.advanceInvestigation(ctx, st, answer)
	case StepMethodology:
		st.Methodology.DiagnosticMethods = append(st.Methodology.DiagnosticMethods, splitListAnswer(answer)...)
		st.Step = StepResult
		reply = m.questions.NextQuestion(ctx, st, answer, FieldResult)
	case StepResult:
		st.Result.ClinicalFindings = append(st.Result.ClinicalFindings, splitListAnswer(answer)...)
		st.Step = StepEvolution
		reply = m.questions.NextQuestion(ctx, st, answer, FieldEvolution)
	case StepEvolution:
		st.Evolution.CarePlan = append(st.Evolution.CarePlan, splitListAnswer(answer)...)
		reply = m.finalize(ctx, st)
	default:
		reply = m.finalize(ctx, st)
	}

	st.LastUpdate = time.Now()
	m.persist(ctx, st)
	return reply, true
}

func (m *Machine) advanceInvestigation(ctx context.Context, st *State, answer string) string {
	next := st.nextInvestigationField()
	if next == "" {
		// Every slot filled: a duplicate delivery landed after the phase
		// transition already happened.
		st.Step = StepMethodology
		return m.questions.NextQuestion(ctx, st, answer, FieldMethodology)
	}
	st.setInvestigationField(next, answer)

	if st.nextInvestigationField() == "" {
		st.Step = StepMethodology
		proposal := investigationProposal(&st.Investigation)
		return proposal + "\n\n" + m.questions.NextQuestion(ctx, st, answer, FieldMethodology)
	}
	return m.questions.NextQuestion(ctx, st, answer, st.nextInvestigationField())
}

// Complete finalizes the user's active interview on an explicit completion
// signal, regardless of unfilled slots.
func (m *Machine) Complete(ctx context.Context, userID string) (string, bool) {
	st, ok := m.tracker.Get(userID)
	if !ok {
		return "", false
	}
	reply := m.finalize(ctx, st)
	st.LastUpdate = time.Now()
	m.persist(ctx, st)
	return reply, true
}

// finalize marks the interview completed and schedules report synthesis
// exactly once. A synthesis failure is logged and never unwinds the
// completed state.
func (m *Machine) finalize(ctx context.Context, st *State) string {
	if st.Status == StatusCompleted {
		return "Sua avaliação já foi concluída. O relatório está disponível para a equipe clínica."
	}
	st.Status = StatusCompleted
	st.Step = StepCompleted
	m.tracker.Remove(st.UserID)

	if m.reports != nil {
		snapshot := *st
		go func() {
			bg, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			if err := m.reports.Synthesize(bg, &snapshot); err != nil {
				m.logger.Error("report synthesis failed",
					zap.String("assessment_id", snapshot.ID.String()),
					zap.String("user_id", snapshot.UserID),
					zap.Error(err))
				return
			}
			m.logger.Info("report synthesized",
				zap.String("assessment_id", snapshot.ID.String()),
				zap.String("user_id", snapshot.UserID))
		}()
	}

	return "Obrigado pela sua confiança. Sua avaliação clínica foi concluída e o relatório está sendo gerado para a equipe clínica."
}

// currentQuestion re-asks the slot the interview is waiting on.
func (m *Machine) currentQuestion(st *State) string {
	switch st.Step {
	case StepInvestigation:
		if f := st.nextInvestigationField(); f != "" {
			return FallbackQuestion(f)
		}
		return FallbackQuestion(FieldMethodology)
	case StepMethodology:
		return FallbackQuestion(FieldMethodology)
	case StepResult:
		return FallbackQuestion(FieldResult)
	case StepEvolution:
		return FallbackQuestion(FieldEvolution)
	}
	return FallbackQuestion(FieldMainComplaint)
}

func (m *Machine) persist(ctx context.Context, st *State) {
	if m.store == nil {
		return
	}
	rec, err := st.Record()
	if err != nil {
		m.logger.Error("failed to encode assessment", zap.Error(err))
		return
	}
	if err := m.store.SaveAssessment(ctx, rec); err != nil {
		m.logger.Error("failed to persist assessment",
			zap.String("assessment_id", st.ID.String()), zap.Error(err))
	}
}

// investigationProposal echoes the six collected values back to the user
// before the methodology phase begins.
func investigationProposal(inv *Investigation) string {
	var b strings.Builder
	b.WriteString("Obrigado por compartilhar. Aqui está o resumo da sua investigação:\n")
	fmt.Fprintf(&b, "- Queixa principal: %s\n", inv.MainComplaint)
	fmt.Fprintf(&b, "- Sintomas: %s\n", strings.Join(inv.Symptoms, ", "))
	fmt.Fprintf(&b, "- História médica: %s\n", inv.MedicalHistory)
	fmt.Fprintf(&b, "- História familiar: %s\n", inv.FamilyHistory)
	fmt.Fprintf(&b, "- Medicações: %s\n", inv.Medications)
	fmt.Fprintf(&b, "- Hábitos de vida: %s\n", inv.Lifestyle)
	b.WriteString("Se algo estiver incorreto, me avise durante as próximas etapas. Vamos agora à fase de metodologia.")
	return b.String()
}
