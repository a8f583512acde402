package assessment

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"clinical-intake-agent/internal/storage"
)

// Step is the current phase of the IMRE protocol.
type Step string

const (
	StepInvestigation Step = "INVESTIGATION"
	StepMethodology   Step = "METHODOLOGY"
	StepResult        Step = "RESULT"
	StepEvolution     Step = "EVOLUTION"
	StepCompleted     Step = "COMPLETED"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Field names one slot of the interview. Investigation slots are filled in
// the canonical order below; the last three fields map to the remaining
// phases.
type Field string

const (
	FieldMainComplaint  Field = "main_complaint"
	FieldSymptoms       Field = "symptoms"
	FieldMedicalHistory Field = "medical_history"
	FieldFamilyHistory  Field = "family_history"
	FieldMedications    Field = "medications"
	FieldLifestyle      Field = "lifestyle"
	FieldMethodology    Field = "methodology"
	FieldResult         Field = "result"
	FieldEvolution      Field = "evolution"
)

// investigationOrder is the canonical fill order within INVESTIGATION.
var investigationOrder = []Field{
	FieldMainComplaint,
	FieldSymptoms,
	FieldMedicalHistory,
	FieldFamilyHistory,
	FieldMedications,
	FieldLifestyle,
}

type Investigation struct {
	MainComplaint  string   `json:"main_complaint,omitempty"`
	Symptoms       []string `json:"symptoms,omitempty"`
	MedicalHistory string   `json:"medical_history,omitempty"`
	FamilyHistory  string   `json:"family_history,omitempty"`
	Medications    string   `json:"medications,omitempty"`
	Lifestyle      string   `json:"lifestyle,omitempty"`
}

type Methodology struct {
	DiagnosticMethods []string `json:"diagnostic_methods,omitempty"`
}

type Result struct {
	ClinicalFindings []string `json:"clinical_findings,omitempty"`
}

type Evolution struct {
	CarePlan []string `json:"care_plan,omitempty"`
}

// State is one user's interview. At most one active State exists per user id.
type State struct {
	ID            uuid.UUID     `json:"id"`
	UserID        string        `json:"user_id"`
	UserEmail     string        `json:"user_email,omitempty"`
	Step          Step          `json:"step"`
	Status        Status        `json:"status"`
	Investigation Investigation `json:"investigation"`
	Methodology   Methodology   `json:"methodology"`
	Result        Result        `json:"result"`
	Evolution     Evolution     `json:"evolution"`
	StartedAt     time.Time     `json:"started_at"`
	LastUpdate    time.Time     `json:"last_update"`
}

// nextInvestigationField returns the first unset investigation slot, or ""
// when all six are filled.
func (s *State) nextInvestigationField() Field {
	for _, f := range investigationOrder {
		if !s.investigationFieldSet(f) {
			return f
		}
	}
	return ""
}

func (s *State) investigationFieldSet(f Field) bool {
	switch f {
	case FieldMainComplaint:
		return s.Investigation.MainComplaint != ""
	case FieldSymptoms:
		return len(s.Investigation.Symptoms) > 0
	case FieldMedicalHistory:
		return s.Investigation.MedicalHistory != ""
	case FieldFamilyHistory:
		return s.Investigation.FamilyHistory != ""
	case FieldMedications:
		return s.Investigation.Medications != ""
	case FieldLifestyle:
		return s.Investigation.Lifestyle != ""
	}
	return false
}

// setInvestigationField fills a slot. Already-set slots are never
// overwritten.
func (s *State) setInvestigationField(f Field, answer string) {
	if s.investigationFieldSet(f) {
		return
	}
	switch f {
	case FieldMainComplaint:
		s.Investigation.MainComplaint = answer
	case FieldSymptoms:
		s.Investigation.Symptoms = splitListAnswer(answer)
	case FieldMedicalHistory:
		s.Investigation.MedicalHistory = answer
	case FieldFamilyHistory:
		s.Investigation.FamilyHistory = answer
	case FieldMedications:
		s.Investigation.Medications = answer
	case FieldLifestyle:
		s.Investigation.Lifestyle = answer
	}
}

// splitListAnswer turns a free-text enumeration into a list, one item per
// comma or semicolon separated segment.
func splitListAnswer(answer string) []string {
	parts := strings.FieldsFunc(answer, func(r rune) bool {
		return r == ',' || r == ';'
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 && strings.TrimSpace(answer) != "" {
		out = append(out, strings.TrimSpace(answer))
	}
	return out
}

// Record converts the state to its persisted snapshot.
func (s *State) Record() (*storage.AssessmentRecord, error) {
	data, err := json.Marshal(struct {
		Investigation Investigation `json:"investigation"`
		Methodology   Methodology   `json:"methodology"`
		Result        Result        `json:"result"`
		Evolution     Evolution     `json:"evolution"`
	}{s.Investigation, s.Methodology, s.Result, s.Evolution})
	if err != nil {
		return nil, err
	}
	return &storage.AssessmentRecord{
		ID:         s.ID,
		UserID:     s.UserID,
		UserEmail:  s.UserEmail,
		Step:       string(s.Step),
		Status:     string(s.Status),
		Data:       data,
		StartedAt:  s.StartedAt,
		LastUpdate: s.LastUpdate,
	}, nil
}

// Tracker holds the active interview per user id. It is the only mutable
// state shared between turns of different users.
type Tracker struct {
	mu     sync.RWMutex
	active map[string]*State
}

func NewTracker() *Tracker {
	return &Tracker{active: make(map[string]*State)}
}

func (t *Tracker) Get(userID string) (*State, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.active[userID]
	return st, ok
}

func (t *Tracker) Put(st *State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active[st.UserID] = st
}

func (t *Tracker) Remove(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.active, userID)
}
