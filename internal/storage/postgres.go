package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type postgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an existing connection. The caller owns the
// connection lifecycle.
func NewPostgresStore(db *sql.DB) Store {
	return &postgresStore{db: db}
}

func (s *postgresStore) SaveAssessment(ctx context.Context, rec *AssessmentRecord) error {
	query := `
		INSERT INTO assessments (id, user_id, user_email, step, status, data, started_at, last_update)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			step = $4,
			status = $5,
			data = $6,
			last_update = $8
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.UserID, rec.UserEmail, rec.Step, rec.Status, rec.Data, rec.StartedAt, rec.LastUpdate)
	if err != nil {
		return fmt.Errorf("failed to save assessment: %w", err)
	}
	return nil
}

func (s *postgresStore) ListAssessments(ctx context.Context) ([]AssessmentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, user_email, step, status, data, started_at, last_update
         FROM assessments
         ORDER BY last_update DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AssessmentRecord
	for rows.Next() {
		var rec AssessmentRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.UserEmail, &rec.Step, &rec.Status, &rec.Data, &rec.StartedAt, &rec.LastUpdate); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *postgresStore) CountAssessmentsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM assessments GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (s *postgresStore) CountAssessmentsSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM assessments WHERE started_at >= $1`, since).Scan(&n)
	return n, err
}

func (s *postgresStore) SaveReport(ctx context.Context, r *Report) error {
	query := `
		INSERT INTO reports (id, assessment_id, user_id, patient_name, summary, pdf, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.AssessmentID, r.UserID, r.PatientName, r.Summary, r.PDF, r.Status, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

func (s *postgresStore) ReportByAssessment(ctx context.Context, assessmentID uuid.UUID) (*Report, error) {
	var r Report
	err := s.db.QueryRowContext(ctx,
		`SELECT id, assessment_id, user_id, patient_name, summary, status, created_at
         FROM reports
         WHERE assessment_id = $1
         ORDER BY created_at DESC
         LIMIT 1`, assessmentID).
		Scan(&r.ID, &r.AssessmentID, &r.UserID, &r.PatientName, &r.Summary, &r.Status, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (s *postgresStore) ListReports(ctx context.Context) ([]Report, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, assessment_id, user_id, patient_name, summary, status, created_at
         FROM reports
         ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Report
	for rows.Next() {
		var r Report
		if err := rows.Scan(&r.ID, &r.AssessmentID, &r.UserID, &r.PatientName, &r.Summary, &r.Status, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *postgresStore) CountReports(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports`).Scan(&n)
	return n, err
}

func (s *postgresStore) CountReportsSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reports WHERE created_at >= $1`, since).Scan(&n)
	return n, err
}

func (s *postgresStore) SavePatient(ctx context.Context, p *Patient) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	p.UpdatedAt = time.Now()
	query := `
		INSERT INTO patients (id, name, national_id, email, phone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.Name, p.NationalID, p.Email, p.Phone, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to save patient: %w", err)
	}
	return nil
}

func (s *postgresStore) PatientByNationalID(ctx context.Context, nationalID string) (*Patient, error) {
	var p Patient
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, national_id, email, phone, created_at, updated_at
         FROM patients
         WHERE national_id = $1`, nationalID).
		Scan(&p.ID, &p.Name, &p.NationalID, &p.Email, &p.Phone, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *postgresStore) ListPatients(ctx context.Context) ([]Patient, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, national_id, email, phone, created_at, updated_at
         FROM patients
         ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Patient
	for rows.Next() {
		var p Patient
		if err := rows.Scan(&p.ID, &p.Name, &p.NationalID, &p.Email, &p.Phone, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *postgresStore) CountPatients(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM patients`).Scan(&n)
	return n, err
}

func (s *postgresStore) SaveAppointment(ctx context.Context, a *Appointment) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	query := `
		INSERT INTO appointments (id, patient_id, patient_name, scheduled_at, reason, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.PatientID, a.PatientName, a.ScheduledAt, a.Reason, a.Status, a.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to save appointment: %w", err)
	}
	return nil
}

func (s *postgresStore) ListAppointmentsBetween(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, patient_id, patient_name, scheduled_at, reason, status, created_at
         FROM appointments
         WHERE scheduled_at >= $1 AND scheduled_at < $2
         ORDER BY scheduled_at ASC`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Appointment
	for rows.Next() {
		var a Appointment
		if err := rows.Scan(&a.ID, &a.PatientID, &a.PatientName, &a.ScheduledAt, &a.Reason, &a.Status, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *postgresStore) CountAppointmentsBetween(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM appointments WHERE scheduled_at >= $1 AND scheduled_at < $2`,
		from, to).Scan(&n)
	return n, err
}

func (s *postgresStore) SaveInteraction(ctx context.Context, it *Interaction) error {
	query := `
		INSERT INTO interactions (id, user_id, user_message, response_content, assessment_step, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query,
		it.ID, it.UserID, it.UserMessage, it.ResponseContent, it.AssessmentStep, it.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save interaction: %w", err)
	}
	return nil
}

func (s *postgresStore) ListInteractionsByUser(ctx context.Context, userID string, limit int) ([]Interaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, user_message, response_content, assessment_step, created_at
         FROM interactions
         WHERE user_id = $1
         ORDER BY created_at DESC
         LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Interaction
	for rows.Next() {
		var it Interaction
		if err := rows.Scan(&it.ID, &it.UserID, &it.UserMessage, &it.ResponseContent, &it.AssessmentStep, &it.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *postgresStore) SaveNotification(ctx context.Context, n *Notification) error {
	query := `
		INSERT INTO notifications (id, recipient, title, body, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query,
		n.ID, n.Recipient, n.Title, n.Body, n.Read, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save notification: %w", err)
	}
	return nil
}
