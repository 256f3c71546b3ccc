package followup

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clinic/followup/internal/platform/db"
)

type queryable interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// -- Store --

type pgStore struct {
	pool          db.DB
	patients      *patientRepoPG
	followUps     *followUpRepoPG
	notifications *notificationRepoPG
}

// NewPGStore returns a Store backed by PostgreSQL.
func NewPGStore(pool db.DB) Store {
	return &pgStore{
		pool:          pool,
		patients:      &patientRepoPG{pool: pool},
		followUps:     &followUpRepoPG{pool: pool},
		notifications: &notificationRepoPG{pool: pool},
	}
}

func (s *pgStore) Patients() PatientRepository           { return s.patients }
func (s *pgStore) FollowUps() FollowUpRepository         { return s.followUps }
func (s *pgStore) Notifications() NotificationRepository { return s.notifications }

func (s *pgStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.WithTx(ctx, s.pool, fn)
}

func (s *pgStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func conn(ctx context.Context, pool db.DB) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

// -- Patient Repository --

type patientRepoPG struct {
	pool db.DB
}

const patientColumns = `id, name, procedure, created_at`

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO patient (`+patientColumns+`) VALUES ($1, $2, $3, $4)`,
		p.ID, p.Name, p.Procedure, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	err := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+patientColumns+` FROM patient WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Procedure, &p.CreatedAt)
	if err != nil {
		return nil, notFound(err, "select patient")
	}
	return &p, nil
}

// -- FollowUp Repository --

type followUpRepoPG struct {
	pool db.DB
}

const followUpColumns = `id, patient_id, scheduled_at, status, response, responded_at, created_at`

const followUpJoin = `
	SELECT f.id, f.patient_id, f.scheduled_at, f.status, f.response, f.responded_at, f.created_at,
	       p.id, p.name, p.procedure, p.created_at
	FROM follow_up f
	JOIN patient p ON p.id = f.patient_id`

func (r *followUpRepoPG) Create(ctx context.Context, f *FollowUp) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	_, err := conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO follow_up (`+followUpColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		f.ID, f.PatientID, f.ScheduledAt, string(f.Status), f.Response, f.RespondedAt, f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert follow-up: %w", err)
	}
	return nil
}

func (r *followUpRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*FollowUp, error) {
	f, err := scanJoinedFollowUp(conn(ctx, r.pool).QueryRow(ctx, followUpJoin+` WHERE f.id = $1`, id))
	if err != nil {
		return nil, notFound(err, "select follow-up")
	}
	return f, nil
}

func (r *followUpRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*FollowUp, error) {
	f, err := scanJoinedFollowUp(conn(ctx, r.pool).QueryRow(ctx, followUpJoin+` WHERE f.id = $1 FOR UPDATE OF f`, id))
	if err != nil {
		return nil, notFound(err, "lock follow-up")
	}
	return f, nil
}

func (r *followUpRepoPG) Update(ctx context.Context, f *FollowUp) error {
	tag, err := conn(ctx, r.pool).Exec(ctx,
		`UPDATE follow_up SET status = $2, response = $3, responded_at = $4 WHERE id = $1`,
		f.ID, string(f.Status), f.Response, f.RespondedAt,
	)
	if err != nil {
		return fmt.Errorf("update follow-up: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *followUpRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*FollowUp, error) {
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+followUpColumns+` FROM follow_up WHERE patient_id = $1 ORDER BY scheduled_at ASC, id ASC`,
		patientID,
	)
	if err != nil {
		return nil, fmt.Errorf("list follow-ups by patient: %w", err)
	}
	defer rows.Close()

	var out []*FollowUp
	for rows.Next() {
		f, err := scanFollowUp(rows)
		if err != nil {
			return nil, fmt.Errorf("scan follow-up: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate follow-ups: %w", err)
	}
	return out, nil
}

func (r *followUpRepoPG) List(ctx context.Context) ([]*FollowUp, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, followUpJoin+` ORDER BY f.scheduled_at ASC, f.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list follow-ups: %w", err)
	}
	defer rows.Close()

	out := []*FollowUp{}
	for rows.Next() {
		f, err := scanJoinedFollowUp(rows)
		if err != nil {
			return nil, fmt.Errorf("scan follow-up: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate follow-ups: %w", err)
	}
	return out, nil
}

func scanFollowUp(row rowScanner) (*FollowUp, error) {
	var f FollowUp
	var status string
	if err := row.Scan(&f.ID, &f.PatientID, &f.ScheduledAt, &status, &f.Response, &f.RespondedAt, &f.CreatedAt); err != nil {
		return nil, err
	}
	f.Status = Status(status)
	return &f, nil
}

func scanJoinedFollowUp(row rowScanner) (*FollowUp, error) {
	var f FollowUp
	var p Patient
	var status string
	if err := row.Scan(
		&f.ID, &f.PatientID, &f.ScheduledAt, &status, &f.Response, &f.RespondedAt, &f.CreatedAt,
		&p.ID, &p.Name, &p.Procedure, &p.CreatedAt,
	); err != nil {
		return nil, err
	}
	f.Status = Status(status)
	f.Patient = &p
	return &f, nil
}

// -- Notification Repository --

type notificationRepoPG struct {
	pool db.DB
}

const notificationColumns = `id, message, follow_up_id, created_at`

func (r *notificationRepoPG) Create(ctx context.Context, n *Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	_, err := conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO notification (`+notificationColumns+`) VALUES ($1, $2, $3, $4)`,
		n.ID, n.Message, n.FollowUpID, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *notificationRepoPG) List(ctx context.Context) ([]*Notification, error) {
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+notificationColumns+` FROM notification ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := []*Notification{}
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.Message, &n.FollowUpID, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return out, nil
}

// notFound maps pgx.ErrNoRows to ErrNotFound and wraps anything else.
func notFound(err error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
