package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type AssessmentRepository interface {
	SaveAssessment(ctx context.Context, rec *AssessmentRecord) error
	ListAssessments(ctx context.Context) ([]AssessmentRecord, error)
	CountAssessmentsByStatus(ctx context.Context) (map[string]int, error)
	CountAssessmentsSince(ctx context.Context, since time.Time) (int, error)
}

type ReportRepository interface {
	SaveReport(ctx context.Context, r *Report) error
	ReportByAssessment(ctx context.Context, assessmentID uuid.UUID) (*Report, error)
	ListReports(ctx context.Context) ([]Report, error)
	CountReports(ctx context.Context) (int, error)
	CountReportsSince(ctx context.Context, since time.Time) (int, error)
}

type PatientRepository interface {
	// SavePatient rejects a second record with the same national id.
	SavePatient(ctx context.Context, p *Patient) error
	PatientByNationalID(ctx context.Context, nationalID string) (*Patient, error)
	ListPatients(ctx context.Context) ([]Patient, error)
	CountPatients(ctx context.Context) (int, error)
}

type AppointmentRepository interface {
	// SaveAppointment rejects a second record with the same id.
	SaveAppointment(ctx context.Context, a *Appointment) error
	ListAppointmentsBetween(ctx context.Context, from, to time.Time) ([]Appointment, error)
	CountAppointmentsBetween(ctx context.Context, from, to time.Time) (int, error)
}

type InteractionRepository interface {
	SaveInteraction(ctx context.Context, it *Interaction) error
	ListInteractionsByUser(ctx context.Context, userID string, limit int) ([]Interaction, error)
}

type NotificationRepository interface {
	SaveNotification(ctx context.Context, n *Notification) error
}

// Store bundles every collection the platform persists. Both the Postgres
// and the in-memory implementations satisfy it.
type Store interface {
	AssessmentRepository
	ReportRepository
	PatientRepository
	AppointmentRepository
	InteractionRepository
	NotificationRepository
}
