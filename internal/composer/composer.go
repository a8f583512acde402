package composer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"clinical-intake-agent/internal/action"
	"clinical-intake-agent/internal/assessment"
	"clinical-intake-agent/internal/intent"
	"clinical-intake-agent/internal/storage"
)

// Response is the only object returned to the caller. Every code path of
// ProcessMessage resolves to one; the method never returns an error.
type Response struct {
	ID         string         `json:"id"`
	Content    string         `json:"content"`
	Confidence float64        `json:"confidence"`
	Type       string         `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

const (
	TypeText       = "text"
	TypeAssessment = "assessment"
	TypeError      = "error"
)

// CompletionClient is the best-effort remote reply path.
type CompletionClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Composer orchestrates one conversational turn: intent detection, platform
// actions, the interview state machine and the remote completion path.
type Composer struct {
	tracker      *assessment.Tracker
	machine      *assessment.Machine
	dispatcher   *action.Dispatcher
	completions  CompletionClient
	interactions storage.InteractionRepository
	logger       *zap.Logger

	// busy is the coarse single-flight guard: one in-flight turn per
	// composer instance, not per user.
	busy atomic.Bool
}

func New(tracker *assessment.Tracker, machine *assessment.Machine, dispatcher *action.Dispatcher, completions CompletionClient, interactions storage.InteractionRepository, logger *zap.Logger) *Composer {
	return &Composer{
		tracker:      tracker,
		machine:      machine,
		dispatcher:   dispatcher,
		completions:  completions,
		interactions: interactions,
		logger:       logger,
	}
}

const waitNotice = "Estou processando sua mensagem anterior. Um momento, por favor."

// ProcessMessage handles one inbound message and always returns a Response.
func (c *Composer) ProcessMessage(ctx context.Context, text, userID, userEmail string) (resp Response) {
	if !c.busy.CompareAndSwap(false, true) {
		return newResponse(waitNotice, 0.3, TypeText, nil)
	}
	defer c.busy.Store(false)

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic while composing reply", zap.Any("panic", r))
			resp = newResponse("Desculpe, algo deu errado ao processar sua mensagem. Pode tentar novamente?", 0.1, TypeError, nil)
		}
	}()

	category := intent.Classify(text)
	activeState, active := c.tracker.Get(userID)
	inEvolution := active && activeState.Step == assessment.StepEvolution
	platformIntent := intent.DetectPlatformIntent(text, userID, active, inEvolution)

	meta := map[string]any{
		"category":        string(category),
		"platform_intent": string(platformIntent.Type),
	}

	var hints string
	machineDrove := false

	if platformIntent.Type != intent.IntentNone && c.shouldDispatch(platformIntent, text) {
		result := c.dispatcher.Dispatch(ctx, platformIntent, userID, userEmail)
		if reply, ok := result.Data["reply"].(string); ok && reply != "" {
			respType := TypeText
			switch platformIntent.Type {
			case intent.IntentAssessmentStart, intent.IntentAssessmentComplete:
				respType = TypeAssessment
			}
			confidence := 0.9
			if !result.Success {
				confidence = 0.5
			}
			return c.finish(ctx, text, userID, newResponse(reply, confidence, respType, meta))
		}
		if result.Success && result.RequiresResponse {
			hints = formatHints(result.Data)
			meta["action_data"] = result.Data
		} else if !result.Success {
			c.logger.Warn("platform action failed",
				zap.String("intent", string(platformIntent.Type)), zap.String("error", result.Err))
		}
	}

	switch {
	case active:
		// An active interview owns the turn: the remote path is bypassed to
		// preserve protocol fidelity.
		reply, handled := c.machine.Advance(ctx, userID, text)
		if handled {
			machineDrove = true
			meta["assessment_step"] = string(activeState.Step)
			return c.finish(ctx, text, userID, newResponse(reply, 0.9, TypeAssessment, meta))
		}
	case category == intent.CategoryAssessment:
		if userID == "" {
			return c.finish(ctx, text, userID, newResponse(missingUserGuidance, 0.6, TypeText, meta))
		}
		_, reply := c.machine.Start(ctx, userID, userEmail)
		machineDrove = true
		return c.finish(ctx, text, userID, newResponse(reply, 0.9, TypeAssessment, meta))
	}

	prompt := text
	if hints != "" {
		prompt = text + "\n\nContexto da plataforma:\n" + hints
	}
	content, err := c.completions.Complete(ctx, prompt)
	confidence := 0.85
	if err != nil || strings.TrimSpace(content) == "" {
		if err != nil {
			c.logger.Warn("remote completion failed, using deterministic fallback",
				zap.String("category", string(category)), zap.Error(err))
		}
		content = fallbackReply(category, hints)
		confidence = 0.6
	}

	// Redundant safety net: a completion phrase can arrive on a turn no
	// state machine drove.
	if !machineDrove && userID != "" && intent.HasCompletionSignal(text) {
		go func() {
			bg, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if _, ok := c.machine.Complete(bg, userID); ok {
				c.logger.Info("completion signal handled outside assessment turn",
					zap.String("user_id", userID))
			}
		}()
	}

	return c.finish(ctx, text, userID, newResponse(content, confidence, TypeText, meta))
}

const missingUserGuidance = "Para iniciar sua avaliação clínica, preciso identificar você. Informe seu nome ou acesse sua conta e tente novamente."

// shouldDispatch suppresses the completion action when the message carries no
// explicit completion phrase: in that case the text is an interview answer
// and the state machine must consume it.
func (c *Composer) shouldDispatch(pi intent.PlatformIntent, text string) bool {
	if pi.Type == intent.IntentAssessmentComplete {
		return intent.HasCompletionSignal(text)
	}
	return true
}

// finish persists the interaction (best-effort) and returns the response.
func (c *Composer) finish(ctx context.Context, text, userID string, resp Response) Response {
	if c.interactions == nil {
		return resp
	}
	step := ""
	if st, ok := c.tracker.Get(userID); ok {
		step = string(st.Step)
	}
	it := &storage.Interaction{
		ID:              uuid.New(),
		UserID:          userID,
		UserMessage:     text,
		ResponseContent: resp.Content,
		AssessmentStep:  step,
		CreatedAt:       time.Now(),
	}
	if err := c.interactions.SaveInteraction(ctx, it); err != nil {
		c.logger.Warn("failed to persist interaction",
			zap.String("user_id", userID), zap.Error(err))
	}
	return resp
}

func newResponse(content string, confidence float64, respType string, meta map[string]any) Response {
	return Response{
		ID:         uuid.New().String(),
		Content:    content,
		Confidence: confidence,
		Type:       respType,
		Timestamp:  time.Now(),
		Metadata:   meta,
	}
}

// formatHints renders query results as plain lines the reply can lean on.
func formatHints(data map[string]any) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		if k == "reply" || k == "action" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		switch v := data[k].(type) {
		case []storage.Appointment:
			fmt.Fprintf(&b, "- %s: %d\n", hintLabel(k), len(v))
			for _, a := range v {
				fmt.Fprintf(&b, "  - %s, %s (%s)\n", a.PatientName, a.ScheduledAt.Format("02/01 15:04"), a.Reason)
			}
		case []action.PatientOverview:
			fmt.Fprintf(&b, "- %s: %d\n", hintLabel(k), len(v))
			for _, p := range v {
				fmt.Fprintf(&b, "  - %s\n", p.Name)
			}
		case float64:
			fmt.Fprintf(&b, "- %s: %.0f%%\n", hintLabel(k), v*100)
		default:
			fmt.Fprintf(&b, "- %s: %v\n", hintLabel(k), v)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

var hintLabels = map[string]string{
	"assessments_active":    "Avaliações em andamento",
	"assessments_completed": "Avaliações concluídas",
	"assessments_total":     "Avaliações",
	"completion_rate":       "Taxa de conclusão",
	"reports_total":         "Relatórios",
	"reports_today":         "Relatórios hoje",
	"patients_total":        "Pacientes",
	"patients":              "Pacientes",
	"appointments_today":    "Consultas hoje",
	"appointments_week":     "Consultas nos próximos 7 dias",
	"required_fields":       "Campos necessários",
}

func hintLabel(key string) string {
	if label, ok := hintLabels[key]; ok {
		return label
	}
	return key
}

// fallbackReply is the deterministic per-category handler used whenever the
// remote completion path fails.
func fallbackReply(category intent.Category, hints string) string {
	switch category {
	case intent.CategoryClinical:
		return "Entendo sua preocupação. Posso orientar com informações gerais sobre sintomas e tratamentos, mas elas não substituem uma avaliação médica. Se quiser, podemos iniciar sua avaliação clínica inicial agora."
	case intent.CategoryTraining:
		return "Temos materiais de capacitação sobre o protocolo IMRE e a arte da entrevista clínica. Sobre qual tema você gostaria de aprender?"
	case intent.CategoryPlatform:
		if hints != "" {
			return "Aqui está o que encontrei na plataforma:\n" + hints
		}
		return "Posso consultar o painel da clínica, relatórios, pacientes e agendamentos. O que você gostaria de ver?"
	case intent.CategoryAppointment:
		if hints != "" {
			return "Sobre a agenda:\n" + hints
		}
		return "Posso consultar ou agendar consultas para você. Qual data e horário prefere?"
	default:
		if hints != "" {
			return "Aqui está o que encontrei:\n" + hints
		}
		return "Olá! Sou a assistente de acolhimento da clínica. Posso iniciar sua avaliação clínica inicial, consultar agendamentos ou responder dúvidas gerais. Como posso ajudar?"
	}
}
