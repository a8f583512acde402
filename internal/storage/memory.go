package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps every collection in process memory. It backs unit tests
// and lets the server start without a database (degraded mode).
type MemoryStore struct {
	mu            sync.RWMutex
	assessments   map[uuid.UUID]AssessmentRecord
	reports       []Report
	patients      map[string]Patient
	appointments  map[string]Appointment
	interactions  []Interaction
	notifications []Notification
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assessments:  make(map[uuid.UUID]AssessmentRecord),
		patients:     make(map[string]Patient),
		appointments: make(map[string]Appointment),
	}
}

func (m *MemoryStore) SaveAssessment(_ context.Context, rec *AssessmentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assessments[rec.ID] = *rec
	return nil
}

func (m *MemoryStore) ListAssessments(_ context.Context) ([]AssessmentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]AssessmentRecord, 0, len(m.assessments))
	for _, rec := range m.assessments {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUpdate.After(out[j].LastUpdate) })
	return out, nil
}

func (m *MemoryStore) CountAssessmentsByStatus(_ context.Context) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[string]int)
	for _, rec := range m.assessments {
		counts[rec.Status]++
	}
	return counts, nil
}

func (m *MemoryStore) CountAssessmentsSince(_ context.Context, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, rec := range m.assessments {
		if !rec.StartedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) SaveReport(_ context.Context, r *Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, *r)
	return nil
}

func (m *MemoryStore) ReportByAssessment(_ context.Context, assessmentID uuid.UUID) (*Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.reports) - 1; i >= 0; i-- {
		if m.reports[i].AssessmentID == assessmentID {
			r := m.reports[i]
			return &r, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListReports(_ context.Context) ([]Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Report, len(m.reports))
	copy(out, m.reports)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) CountReports(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.reports), nil
}

func (m *MemoryStore) CountReportsSince(_ context.Context, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.reports {
		if !r.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) SavePatient(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.patients {
		if existing.NationalID != "" && existing.NationalID == p.NationalID {
			return ErrDuplicate
		}
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	p.UpdatedAt = time.Now()
	m.patients[p.ID] = *p
	return nil
}

func (m *MemoryStore) PatientByNationalID(_ context.Context, nationalID string) (*Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.patients {
		if p.NationalID == nationalID {
			out := p
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListPatients(_ context.Context) ([]Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Patient, 0, len(m.patients))
	for _, p := range m.patients {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *MemoryStore) CountPatients(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.patients), nil
}

func (m *MemoryStore) SaveAppointment(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.appointments[a.ID]; ok {
		return ErrDuplicate
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	m.appointments[a.ID] = *a
	return nil
}

func (m *MemoryStore) ListAppointmentsBetween(_ context.Context, from, to time.Time) ([]Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Appointment
	for _, a := range m.appointments {
		if !a.ScheduledAt.Before(from) && a.ScheduledAt.Before(to) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (m *MemoryStore) CountAppointmentsBetween(ctx context.Context, from, to time.Time) (int, error) {
	list, err := m.ListAppointmentsBetween(ctx, from, to)
	if err != nil {
		return 0, err
	}
	return len(list), nil
}

func (m *MemoryStore) SaveInteraction(_ context.Context, it *Interaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interactions = append(m.interactions, *it)
	return nil
}

func (m *MemoryStore) ListInteractionsByUser(_ context.Context, userID string, limit int) ([]Interaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Interaction
	for i := len(m.interactions) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if m.interactions[i].UserID == userID {
			out = append(out, m.interactions[i])
		}
	}
	return out, nil
}

func (m *MemoryStore) SaveNotification(_ context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, *n)
	return nil
}

// Notifications returns a copy of stored notifications, newest last.
func (m *MemoryStore) Notifications() []Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Notification, len(m.notifications))
	copy(out, m.notifications)
	return out
}
