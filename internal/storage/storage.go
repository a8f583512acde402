package storage

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("storage: record not found")
	ErrDuplicate = errors.New("storage: duplicate record")
)

// Patient is an account record created through conversational registration.
type Patient struct {
	ID         string    `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	NationalID string    `json:"national_id" db:"national_id"` // CPF
	Email      string    `json:"email" db:"email"`
	Phone      string    `json:"phone" db:"phone"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

type Appointment struct {
	ID          string    `json:"id" db:"id"`
	PatientID   string    `json:"patient_id" db:"patient_id"`
	PatientName string    `json:"patient_name" db:"patient_name"`
	ScheduledAt time.Time `json:"scheduled_at" db:"scheduled_at"`
	Reason      string    `json:"reason" db:"reason"`
	Status      string    `json:"status" db:"status"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Report is the synthesized outcome of a completed clinical assessment.
type Report struct {
	ID           uuid.UUID `json:"id" db:"id"`
	AssessmentID uuid.UUID `json:"assessment_id" db:"assessment_id"`
	UserID       string    `json:"user_id" db:"user_id"`
	PatientName  string    `json:"patient_name" db:"patient_name"`
	Summary      string    `json:"summary" db:"summary"`
	PDF          []byte    `json:"-" db:"pdf"`
	Status       string    `json:"status" db:"status"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Interaction is one append-only conversation log entry. Written once by the
// composer after a reply is produced, never updated.
type Interaction struct {
	ID              uuid.UUID `json:"id" db:"id"`
	UserID          string    `json:"user_id" db:"user_id"`
	UserMessage     string    `json:"user_message" db:"user_message"`
	ResponseContent string    `json:"response_content" db:"response_content"`
	AssessmentStep  string    `json:"assessment_step,omitempty" db:"assessment_step"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

type Notification struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Recipient string    `json:"recipient" db:"recipient"`
	Title     string    `json:"title" db:"title"`
	Body      string    `json:"body" db:"body"`
	Read      bool      `json:"read" db:"read"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// AssessmentRecord is the persisted snapshot of an interview. The live state
// lives in the in-memory tracker; rows here are write-through copies plus the
// archive of completed interviews.
type AssessmentRecord struct {
	ID         uuid.UUID `json:"id" db:"id"`
	UserID     string    `json:"user_id" db:"user_id"`
	UserEmail  string    `json:"user_email" db:"user_email"`
	Step       string    `json:"step" db:"step"`
	Status     string    `json:"status" db:"status"`
	Data       []byte    `json:"data" db:"data"` // JSON of the four phase blocks
	StartedAt  time.Time `json:"started_at" db:"started_at"`
	LastUpdate time.Time `json:"last_update" db:"last_update"`
}
