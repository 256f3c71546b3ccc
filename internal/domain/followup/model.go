package followup

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ParseID accepts only the canonical hyphenated 36-character UUID form.
func ParseID(s string) (uuid.UUID, error) {
	if len(s) != 36 {
		return uuid.Nil, fmt.Errorf("invalid id length %d", len(s))
	}
	return uuid.Parse(s)
}

// Status is the outcome of a follow-up check-in.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusHealthy Status = "HEALTHY"
	StatusConcern Status = "CONCERN"
)

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusHealthy || s == StatusConcern
}

// ParseResponseStatus accepts only the statuses a response may set.
// PENDING is the initial state and never a valid input.
func ParseResponseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusHealthy, StatusConcern:
		return Status(s), true
	}
	return "", false
}

// Schedule holds the offsets from registration at which check-ins are due.
var Schedule = []time.Duration{
	24 * time.Hour,
	3 * 24 * time.Hour,
	7 * 24 * time.Hour,
}

// Patient maps to the patient table.
type Patient struct {
	ID        uuid.UUID   `db:"id" json:"id"`
	Name      string      `db:"name" json:"name"`
	Procedure string      `db:"procedure" json:"procedure"`
	CreatedAt time.Time   `db:"created_at" json:"createdAt"`
	FollowUps []*FollowUp `db:"-" json:"followUps,omitempty"`
}

// FollowUp maps to the follow_up table. Patient is populated by reads that
// join the owning patient.
type FollowUp struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	PatientID   uuid.UUID  `db:"patient_id" json:"patientId"`
	ScheduledAt time.Time  `db:"scheduled_at" json:"scheduledAt"`
	Status      Status     `db:"status" json:"status"`
	Response    *string    `db:"response" json:"response,omitempty"`
	RespondedAt *time.Time `db:"responded_at" json:"respondedAt,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	Patient     *Patient   `db:"-" json:"patient,omitempty"`
}

// Notification maps to the notification table.
type Notification struct {
	ID         uuid.UUID `db:"id" json:"id"`
	Message    string    `db:"message" json:"message"`
	FollowUpID uuid.UUID `db:"follow_up_id" json:"followUpId"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// ConcernMessage is the staff-facing text of the notification raised when a
// follow-up is answered with CONCERN.
func ConcernMessage(patientName string, followUpID uuid.UUID) string {
	return fmt.Sprintf("Concern raised for %s (Follow-up ID: %s)", patientName, followUpID)
}
