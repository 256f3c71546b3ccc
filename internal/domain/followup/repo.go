package followup

import (
	"context"

	"github.com/google/uuid"
)

// PatientRepository defines the persistence interface for patients.
type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
}

// FollowUpRepository defines the persistence interface for follow-ups.
// Reads other than ListByPatient populate FollowUp.Patient.
type FollowUpRepository interface {
	Create(ctx context.Context, f *FollowUp) error
	GetByID(ctx context.Context, id uuid.UUID) (*FollowUp, error)
	// GetForUpdate reads a follow-up and locks it until the surrounding
	// transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*FollowUp, error)
	Update(ctx context.Context, f *FollowUp) error
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*FollowUp, error)
	List(ctx context.Context) ([]*FollowUp, error)
}

// NotificationRepository defines the persistence interface for notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *Notification) error
	List(ctx context.Context) ([]*Notification, error)
}

// Store groups the repositories and the transaction boundary they share.
type Store interface {
	Patients() PatientRepository
	FollowUps() FollowUpRepository
	Notifications() NotificationRepository

	// WithinTx runs fn in a single transaction. Repository calls made with
	// the ctx passed to fn join it. An error from fn discards every write.
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error

	Ping(ctx context.Context) error
}
