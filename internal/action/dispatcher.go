package action

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"clinical-intake-agent/internal/assessment"
	"clinical-intake-agent/internal/intent"
	"clinical-intake-agent/internal/storage"
)

// Result is the structured outcome of one platform action. RequiresResponse
// marks results whose data must be folded into the conversational reply as
// contextual hints.
type Result struct {
	Success          bool           `json:"success"`
	Data             map[string]any `json:"data,omitempty"`
	Err              string         `json:"error,omitempty"`
	RequiresResponse bool           `json:"requires_response"`
}

// Machine is the interview dependency: start and explicit completion.
type Machine interface {
	Start(ctx context.Context, userID, userEmail string) (*assessment.State, string)
	Complete(ctx context.Context, userID string) (string, bool)
}

// Reporter synthesizes ad hoc reports outside the state machine.
type Reporter interface {
	Synthesize(ctx context.Context, st *assessment.State) error
}

// Dispatcher maps a detected platform intent to exactly one handler against
// the persistence layer. It produces structured results only, never
// natural-language generation beyond fixed guidance strings.
type Dispatcher struct {
	store   storage.Store
	tracker *assessment.Tracker
	machine Machine
	reports Reporter
	logger  *zap.Logger
}

func NewDispatcher(store storage.Store, tracker *assessment.Tracker, machine Machine, reports Reporter, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		store:   store,
		tracker: tracker,
		machine: machine,
		reports: reports,
		logger:  logger,
	}
}

const missingUserGuidance = "Para continuar, preciso identificar você. Informe seu nome ou acesse sua conta antes de iniciar a avaliação."

// Dispatch executes the handler for the intent. It never panics and never
// generates a reply beyond fixed guidance; query results carry data for the
// reply-generation step.
func (d *Dispatcher) Dispatch(ctx context.Context, pi intent.PlatformIntent, userID, userEmail string) Result {
	switch pi.Type {
	case intent.IntentAssessmentStart:
		return d.startAssessment(ctx, userID, userEmail)
	case intent.IntentAssessmentComplete:
		return d.completeAssessment(ctx, userID)
	case intent.IntentReportGenerate:
		return d.generateReport(ctx, userID)
	case intent.IntentDashboardQuery:
		return d.queryDashboard(ctx)
	case intent.IntentReportsCountQuery:
		return d.queryReportsCount(ctx)
	case intent.IntentKPIQuery:
		return d.queryKPIs(ctx)
	case intent.IntentPatientsQuery:
		return d.queryPatients(ctx)
	case intent.IntentAppointmentsQuery:
		return d.queryAppointments(ctx)
	case intent.IntentAppointmentCreate:
		return d.createAppointmentIntent()
	case intent.IntentPatientCreate:
		return d.createPatientIntent()
	}
	return Result{Success: false, Err: fmt.Sprintf("unhandled intent %s", pi.Type)}
}

func (d *Dispatcher) startAssessment(ctx context.Context, userID, userEmail string) Result {
	if userID == "" {
		return Result{
			Success: false,
			Err:     "missing user id",
			Data:    map[string]any{"reply": missingUserGuidance},
		}
	}
	st, reply := d.machine.Start(ctx, userID, userEmail)
	return Result{
		Success: true,
		Data: map[string]any{
			"action":        "assessment_start",
			"assessment_id": st.ID.String(),
			"reply":         reply,
		},
	}
}

func (d *Dispatcher) completeAssessment(ctx context.Context, userID string) Result {
	reply, ok := d.machine.Complete(ctx, userID)
	if !ok {
		return Result{
			Success: false,
			Err:     "no active assessment",
			Data:    map[string]any{"reply": "Você não tem uma avaliação em andamento para concluir. Quer iniciar uma avaliação clínica?"},
		}
	}
	return Result{
		Success: true,
		Data:    map[string]any{"action": "assessment_complete", "reply": reply},
	}
}

func (d *Dispatcher) generateReport(ctx context.Context, userID string) Result {
	st, ok := d.tracker.Get(userID)
	if !ok {
		return Result{
			Success: false,
			Err:     "no assessment to report on",
			Data:    map[string]any{"reply": "Não encontrei uma avaliação em andamento para gerar o relatório. Inicie uma avaliação clínica primeiro."},
		}
	}
	if err := d.reports.Synthesize(ctx, st); err != nil {
		d.logger.Error("ad hoc report synthesis failed",
			zap.String("assessment_id", st.ID.String()), zap.Error(err))
		return Result{
			Success: false,
			Err:     "report synthesis failed",
			Data:    map[string]any{"reply": "Não consegui gerar o relatório agora. Vou tentar novamente em breve."},
		}
	}
	return Result{
		Success: true,
		Data:    map[string]any{"action": "report_generate", "reply": "Relatório gerado e encaminhado para a equipe clínica."},
	}
}

func (d *Dispatcher) queryDashboard(ctx context.Context) Result {
	byStatus, err := d.store.CountAssessmentsByStatus(ctx)
	if err != nil {
		return d.queryFailure("dashboard", err)
	}
	reportsTotal, err := d.store.CountReports(ctx)
	if err != nil {
		return d.queryFailure("dashboard", err)
	}
	patientsTotal, err := d.store.CountPatients(ctx)
	if err != nil {
		return d.queryFailure("dashboard", err)
	}
	from, to := todayWindow()
	apptsToday, err := d.store.CountAppointmentsBetween(ctx, from, to)
	if err != nil {
		return d.queryFailure("dashboard", err)
	}
	return Result{
		Success:          true,
		RequiresResponse: true,
		Data: map[string]any{
			"assessments_active":    byStatus[string(assessment.StatusActive)],
			"assessments_completed": byStatus[string(assessment.StatusCompleted)],
			"reports_total":         reportsTotal,
			"patients_total":        patientsTotal,
			"appointments_today":    apptsToday,
		},
	}
}

func (d *Dispatcher) queryReportsCount(ctx context.Context) Result {
	total, err := d.store.CountReports(ctx)
	if err != nil {
		return d.queryFailure("reports count", err)
	}
	from, _ := todayWindow()
	today, err := d.store.CountReportsSince(ctx, from)
	if err != nil {
		return d.queryFailure("reports count", err)
	}
	return Result{
		Success:          true,
		RequiresResponse: true,
		Data: map[string]any{
			"reports_total": total,
			"reports_today": today,
		},
	}
}

func (d *Dispatcher) queryKPIs(ctx context.Context) Result {
	byStatus, err := d.store.CountAssessmentsByStatus(ctx)
	if err != nil {
		return d.queryFailure("kpis", err)
	}
	active := byStatus[string(assessment.StatusActive)]
	completed := byStatus[string(assessment.StatusCompleted)]
	total := active + completed
	rate := 0.0
	if total > 0 {
		rate = float64(completed) / float64(total)
	}
	reportsTotal, err := d.store.CountReports(ctx)
	if err != nil {
		return d.queryFailure("kpis", err)
	}
	patientsTotal, err := d.store.CountPatients(ctx)
	if err != nil {
		return d.queryFailure("kpis", err)
	}
	return Result{
		Success:          true,
		RequiresResponse: true,
		Data: map[string]any{
			"assessments_total":     total,
			"assessments_active":    active,
			"assessments_completed": completed,
			"completion_rate":       rate,
			"reports_total":         reportsTotal,
			"patients_total":        patientsTotal,
		},
	}
}

// PatientOverview is one row of the merged patient listing.
type PatientOverview struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Source       string    `json:"source"`
	LastActivity time.Time `json:"last_activity"`
}

// queryPatients merges interview, report and account records into one list
// keyed by patient id. A named record always beats an auto-generated
// placeholder; otherwise last writer wins per source order.
func (d *Dispatcher) queryPatients(ctx context.Context) Result {
	merged := make(map[string]*PatientOverview)

	apply := func(id, name, source string, activity time.Time) {
		if id == "" {
			return
		}
		existing, ok := merged[id]
		if !ok {
			merged[id] = &PatientOverview{ID: id, Name: name, Source: source, LastActivity: activity}
			return
		}
		if !isPlaceholderName(name) || isPlaceholderName(existing.Name) {
			existing.Name = name
			existing.Source = source
		}
		if activity.After(existing.LastActivity) {
			existing.LastActivity = activity
		}
	}

	assessments, err := d.store.ListAssessments(ctx)
	if err != nil {
		return d.queryFailure("patients", err)
	}
	for _, rec := range assessments {
		name := rec.UserEmail
		if name == "" {
			name = placeholderName(rec.UserID)
		}
		apply(rec.UserID, name, "avaliacao", rec.LastUpdate)
	}

	reports, err := d.store.ListReports(ctx)
	if err != nil {
		return d.queryFailure("patients", err)
	}
	for _, r := range reports {
		apply(r.UserID, r.PatientName, "relatorio", r.CreatedAt)
	}

	patients, err := d.store.ListPatients(ctx)
	if err != nil {
		return d.queryFailure("patients", err)
	}
	for _, p := range patients {
		apply(p.ID, p.Name, "cadastro", p.UpdatedAt)
	}

	out := make([]PatientOverview, 0, len(merged))
	for _, p := range merged {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivity.After(out[j].LastActivity) })

	return Result{
		Success:          true,
		RequiresResponse: true,
		Data: map[string]any{
			"patients":       out,
			"patients_total": len(out),
		},
	}
}

func (d *Dispatcher) queryAppointments(ctx context.Context) Result {
	from, to := todayWindow()
	today, err := d.store.ListAppointmentsBetween(ctx, from, to)
	if err != nil {
		return d.queryFailure("appointments", err)
	}
	week, err := d.store.ListAppointmentsBetween(ctx, from, from.AddDate(0, 0, 7))
	if err != nil {
		return d.queryFailure("appointments", err)
	}
	return Result{
		Success:          true,
		RequiresResponse: true,
		Data: map[string]any{
			"appointments_today": today,
			"appointments_week":  week,
		},
	}
}

// createAppointmentIntent is phase one of the two-phase create: it only
// signals which fields must be collected conversationally. SaveAppointment
// commits.
func (d *Dispatcher) createAppointmentIntent() Result {
	return Result{
		Success:          true,
		RequiresResponse: true,
		Data: map[string]any{
			"action":          "appointment_create",
			"required_fields": []string{"patient_name", "scheduled_at", "reason"},
			"reply":           "Para agendar a consulta, preciso do nome do paciente, da data e horário desejados e do motivo da consulta.",
		},
	}
}

func (d *Dispatcher) createPatientIntent() Result {
	return Result{
		Success:          true,
		RequiresResponse: true,
		Data: map[string]any{
			"action":          "patient_create",
			"required_fields": []string{"name", "national_id", "email", "phone"},
			"reply":           "Para cadastrar o paciente, preciso do nome completo, CPF, e-mail e telefone.",
		},
	}
}

// SaveAppointment commits a fully-collected appointment. Duplicate ids are
// rejected.
func (d *Dispatcher) SaveAppointment(ctx context.Context, a *storage.Appointment) error {
	if a.ID == "" || a.PatientName == "" || a.ScheduledAt.IsZero() {
		return fmt.Errorf("appointment is missing required fields")
	}
	if a.Status == "" {
		a.Status = "scheduled"
	}
	if err := d.store.SaveAppointment(ctx, a); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return fmt.Errorf("appointment %s already exists: %w", a.ID, err)
		}
		return err
	}
	return nil
}

// SavePatient commits a fully-collected patient record. The national id is
// the natural key; duplicates are rejected.
func (d *Dispatcher) SavePatient(ctx context.Context, p *storage.Patient) error {
	if p.Name == "" || p.NationalID == "" {
		return fmt.Errorf("patient is missing required fields")
	}
	if _, err := d.store.PatientByNationalID(ctx, p.NationalID); err == nil {
		return fmt.Errorf("patient with national id %s already exists: %w", p.NationalID, storage.ErrDuplicate)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return d.store.SavePatient(ctx, p)
}

func (d *Dispatcher) queryFailure(what string, err error) Result {
	d.logger.Error("platform query failed", zap.String("query", what), zap.Error(err))
	return Result{Success: false, Err: fmt.Sprintf("%s query failed", what)}
}

func placeholderName(userID string) string {
	short := userID
	if len(short) > 8 {
		short = short[:8]
	}
	return "Paciente " + short
}

func isPlaceholderName(name string) bool {
	return name == "" || strings.HasPrefix(name, "Paciente ")
}

// todayWindow returns the local [start of today, start of tomorrow) range.
func todayWindow() (time.Time, time.Time) {
	now := time.Now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return start, start.AddDate(0, 0, 1)
}
