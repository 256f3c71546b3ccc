package followup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Lifecycle events reported to an EventRecorder.
const (
	EventPatientRegistered  = "patient_registered"
	EventResponseHealthy    = "response_healthy"
	EventResponseConcern    = "response_concern"
	EventNotificationRaised = "notification_raised"
)

// EventRecorder receives lifecycle events once their transaction commits.
type EventRecorder interface {
	RecordEvent(event string)
}

type Service struct {
	store    Store
	now      func() time.Time
	recorder EventRecorder
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// SetClock replaces the time source used for new records.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// SetRecorder attaches an optional EventRecorder to the service.
func (s *Service) SetRecorder(r EventRecorder) {
	s.recorder = r
}

func (s *Service) record(events ...string) {
	if s.recorder == nil {
		return
	}
	for _, e := range events {
		s.recorder.RecordEvent(e)
	}
}

// timestamps are kept at microsecond precision so values read back from
// PostgreSQL compare equal to the ones written.
func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// -- Registration --

// RegisterPatient creates a patient together with its three scheduled
// follow-ups in one transaction.
func (s *Service) RegisterPatient(ctx context.Context, name, procedure string) (*Patient, error) {
	name = strings.TrimSpace(name)
	procedure = strings.TrimSpace(procedure)

	verr := &ValidationError{}
	if name == "" {
		verr.add("name", "is required")
	}
	if procedure == "" {
		verr.add("procedure", "is required")
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	now := s.clock()
	patient := &Patient{
		ID:        uuid.New(),
		Name:      name,
		Procedure: procedure,
		CreatedAt: now,
	}

	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.store.Patients().Create(ctx, patient); err != nil {
			return err
		}
		followUps := make([]*FollowUp, 0, len(Schedule))
		for _, offset := range Schedule {
			f := &FollowUp{
				ID:          uuid.New(),
				PatientID:   patient.ID,
				ScheduledAt: now.Add(offset),
				Status:      StatusPending,
				CreatedAt:   now,
			}
			if err := s.store.FollowUps().Create(ctx, f); err != nil {
				return err
			}
			followUps = append(followUps, f)
		}
		patient.FollowUps = followUps
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("register patient: %w", err)
	}
	s.record(EventPatientRegistered)
	return patient, nil
}

// -- Reads --

func (s *Service) ListFollowUps(ctx context.Context) ([]*FollowUp, error) {
	fs, err := s.store.FollowUps().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list follow-ups: %w", err)
	}
	return fs, nil
}

func (s *Service) GetFollowUp(ctx context.Context, id uuid.UUID) (*FollowUp, error) {
	f, err := s.store.FollowUps().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get follow-up %s: %w", id, err)
	}
	return f, nil
}

// GetPatient returns the patient with its follow-ups in schedule order.
func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.store.Patients().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get patient %s: %w", id, err)
	}
	fs, err := s.store.FollowUps().ListByPatient(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get patient %s: %w", id, err)
	}
	p.FollowUps = fs
	return p, nil
}

func (s *Service) ListNotifications(ctx context.Context) ([]*Notification, error) {
	ns, err := s.store.Notifications().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return ns, nil
}

// -- Responses --

// SubmitResponseInput is the body of a check-in answer.
type SubmitResponseInput struct {
	FollowUpID string  `json:"followUpId"`
	Status     string  `json:"status"`
	Response   *string `json:"response,omitempty"`
}

// SubmitResponse records the outcome of a pending follow-up. A CONCERN
// outcome also raises a notification in the same transaction.
func (s *Service) SubmitResponse(ctx context.Context, in SubmitResponseInput) (*FollowUp, error) {
	verr := &ValidationError{}
	id, err := ParseID(strings.TrimSpace(in.FollowUpID))
	if err != nil {
		verr.add("followUpId", "must be a valid id")
	}
	status, ok := ParseResponseStatus(strings.TrimSpace(in.Status))
	if !ok {
		verr.add("status", "must be HEALTHY or CONCERN")
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	var response *string
	if in.Response != nil {
		if text := strings.TrimSpace(*in.Response); text != "" {
			response = &text
		}
	}

	var updated *FollowUp
	err = s.store.WithinTx(ctx, func(ctx context.Context) error {
		f, err := s.store.FollowUps().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if f.Status.IsTerminal() {
			return ErrAlreadyResolved
		}
		if f.Patient == nil {
			if f.Patient, err = s.store.Patients().GetByID(ctx, f.PatientID); err != nil {
				return err
			}
		}

		now := s.clock()
		f.Status = status
		f.Response = response
		f.RespondedAt = &now
		if err := s.store.FollowUps().Update(ctx, f); err != nil {
			return err
		}

		if status == StatusConcern {
			n := &Notification{
				ID:         uuid.New(),
				Message:    ConcernMessage(f.Patient.Name, f.ID),
				FollowUpID: f.ID,
				CreatedAt:  now,
			}
			if err := s.store.Notifications().Create(ctx, n); err != nil {
				return err
			}
		}
		updated = f
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("submit response for %s: %w", id, err)
	}
	if status == StatusConcern {
		s.record(EventResponseConcern, EventNotificationRaised)
	} else {
		s.record(EventResponseHealthy)
	}
	return updated, nil
}
