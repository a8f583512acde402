package assessment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// CompletionClient is the remote text-generation dependency of the question
// generator. The implementation lives in the agent package; it is best-effort
// and every caller keeps a local fallback.
type CompletionClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// fallbackQuestions is the static AEC-style bank used whenever the remote
// generator is unavailable. One question per interview slot, open phrasing.
var fallbackQuestions = map[Field]string{
	FieldMainComplaint:  "O que trouxe você à avaliação de hoje?",
	FieldSymptoms:       "Além disso, o que mais você sente?",
	FieldMedicalHistory: "E sobre sua saúde ao longo da vida, o que você destacaria?",
	FieldFamilyHistory:  "Na sua família, existem doenças que se repetem ou que preocupam você?",
	FieldMedications:    "Quais medicações ou tratamentos você utiliza atualmente?",
	FieldLifestyle:      "Como são seus hábitos de vida, como sono, alimentação e atividade física?",
	FieldMethodology:    "Quais exames ou avaliações você já realizou para investigar esse quadro?",
	FieldResult:         "O que esses exames e avaliações mostraram?",
	FieldEvolution:      "Como você percebe a evolução do seu quadro e o que espera do tratamento?",
}

var fieldTopics = map[Field]string{
	FieldMainComplaint:  "a queixa principal do paciente",
	FieldSymptoms:       "os demais sintomas, pedindo uma listagem exaustiva",
	FieldMedicalHistory: "a história médica pregressa",
	FieldFamilyHistory:  "a história familiar de doenças",
	FieldMedications:    "as medicações e tratamentos em uso",
	FieldLifestyle:      "os hábitos de vida (sono, alimentação, atividade física)",
	FieldMethodology:    "os exames e métodos diagnósticos já realizados",
	FieldResult:         "os achados clínicos desses exames",
	FieldEvolution:      "a evolução do quadro e as expectativas de cuidado",
}

// FallbackQuestion returns the static question for a slot.
func FallbackQuestion(f Field) string {
	if q, ok := fallbackQuestions[f]; ok {
		return q
	}
	return fallbackQuestions[FieldMainComplaint]
}

// QuestionGenerator produces the next interview question, adapted to the
// answers collected so far. It never returns an error: any remote failure
// resolves to the static bank.
type QuestionGenerator struct {
	client  CompletionClient
	timeout time.Duration
	logger  *zap.Logger
}

func NewQuestionGenerator(client CompletionClient, timeout time.Duration, logger *zap.Logger) *QuestionGenerator {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &QuestionGenerator{client: client, timeout: timeout, logger: logger}
}

// NextQuestion builds the protocol-constrained instruction for the slot that
// must be filled next and delegates to the completion client.
func (g *QuestionGenerator) NextQuestion(ctx context.Context, st *State, lastAnswer string, next Field) string {
	if g.client == nil {
		return FallbackQuestion(next)
	}

	tctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	raw, err := g.client.Complete(tctx, g.buildPrompt(st, lastAnswer, next))
	if err != nil {
		g.logger.Warn("question generation failed, using fallback",
			zap.String("field", string(next)), zap.Error(err))
		return FallbackQuestion(next)
	}
	question := sanitizeQuestion(raw)
	if question == "" {
		return FallbackQuestion(next)
	}
	return question
}

func (g *QuestionGenerator) buildPrompt(st *State, lastAnswer string, next Field) string {
	var b strings.Builder
	b.WriteString("Você conduz uma entrevista clínica inicial pelo protocolo IMRE, fase ")
	b.WriteString(string(st.Step))
	b.WriteString(".\n")
	if summary := investigationSummary(&st.Investigation); summary != "" {
		b.WriteString("Dados já coletados:\n")
		b.WriteString(summary)
	}
	if lastAnswer != "" {
		fmt.Fprintf(&b, "Última resposta do paciente: %q\n", lastAnswer)
	}
	fmt.Fprintf(&b, "Formule exatamente UMA pergunta, em tom empático e acolhedor, sobre %s. ", fieldTopics[next])
	b.WriteString("Adapte a pergunta à última resposta. Responda apenas com a pergunta, sem prefácios.")
	return b.String()
}

func investigationSummary(inv *Investigation) string {
	var b strings.Builder
	if inv.MainComplaint != "" {
		fmt.Fprintf(&b, "- Queixa principal: %s\n", inv.MainComplaint)
	}
	if len(inv.Symptoms) > 0 {
		fmt.Fprintf(&b, "- Sintomas: %s\n", strings.Join(inv.Symptoms, ", "))
	}
	if inv.MedicalHistory != "" {
		fmt.Fprintf(&b, "- História médica: %s\n", inv.MedicalHistory)
	}
	if inv.FamilyHistory != "" {
		fmt.Fprintf(&b, "- História familiar: %s\n", inv.FamilyHistory)
	}
	if inv.Medications != "" {
		fmt.Fprintf(&b, "- Medicações: %s\n", inv.Medications)
	}
	if inv.Lifestyle != "" {
		fmt.Fprintf(&b, "- Hábitos de vida: %s\n", inv.Lifestyle)
	}
	return b.String()
}

// boilerplatePrefixes are prefaces models add despite instructions.
var boilerplatePrefixes = []string{
	"pergunta:", "próxima pergunta:", "proxima pergunta:", "assistente:",
	"resposta:", "aqui está a pergunta:", "aqui esta a pergunta:",
}

func sanitizeQuestion(raw string) string {
	q := strings.TrimSpace(raw)
	q = strings.Trim(q, "\"")
	lower := strings.ToLower(q)
	for _, prefix := range boilerplatePrefixes {
		if strings.HasPrefix(lower, prefix) {
			q = strings.TrimSpace(q[len(prefix):])
			break
		}
	}
	return strings.Trim(q, "\" ")
}
