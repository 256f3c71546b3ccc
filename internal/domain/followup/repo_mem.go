package followup

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memTxKey struct{}

// memStore keeps every record in process memory. Transactions are
// serialized and roll back by restoring a snapshot taken at Begin. Reads
// outside a transaction may observe writes of one in progress.
type memStore struct {
	txMu sync.Mutex

	mu            sync.RWMutex
	patients      map[uuid.UUID]Patient
	followUps     map[uuid.UUID]FollowUp
	notifications map[uuid.UUID]Notification
}

// NewMemoryStore returns an empty Store held in memory. Records are lost
// when the process exits.
func NewMemoryStore() Store {
	return &memStore{
		patients:      make(map[uuid.UUID]Patient),
		followUps:     make(map[uuid.UUID]FollowUp),
		notifications: make(map[uuid.UUID]Notification),
	}
}

func (s *memStore) Patients() PatientRepository           { return (*memPatients)(s) }
func (s *memStore) FollowUps() FollowUpRepository         { return (*memFollowUps)(s) }
func (s *memStore) Notifications() NotificationRepository { return (*memNotifications)(s) }

func (s *memStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	defer func() {
		if p := recover(); p != nil {
			s.restore(snap)
			panic(p)
		}
		if err != nil {
			s.restore(snap)
		}
	}()

	return fn(context.WithValue(ctx, memTxKey{}, true))
}

type memSnapshot struct {
	patients      map[uuid.UUID]Patient
	followUps     map[uuid.UUID]FollowUp
	notifications map[uuid.UUID]Notification
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := memSnapshot{
		patients:      make(map[uuid.UUID]Patient, len(s.patients)),
		followUps:     make(map[uuid.UUID]FollowUp, len(s.followUps)),
		notifications: make(map[uuid.UUID]Notification, len(s.notifications)),
	}
	for k, v := range s.patients {
		snap.patients[k] = v
	}
	for k, v := range s.followUps {
		snap.followUps[k] = v
	}
	for k, v := range s.notifications {
		snap.notifications[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patients = snap.patients
	s.followUps = snap.followUps
	s.notifications = snap.notifications
}

// -- Patients --

type memPatients memStore

func (r *memPatients) Create(ctx context.Context, p *Patient) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.patients[p.ID]; ok {
		return fmt.Errorf("insert patient: duplicate id %s", p.ID)
	}
	stored := *p
	stored.FollowUps = nil
	r.patients[p.ID] = stored
	return nil
}

func (r *memPatients) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

// -- FollowUps --

type memFollowUps memStore

func (r *memFollowUps) Create(ctx context.Context, f *FollowUp) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.patients[f.PatientID]; !ok {
		return fmt.Errorf("insert follow-up: unknown patient %s", f.PatientID)
	}
	if _, ok := r.followUps[f.ID]; ok {
		return fmt.Errorf("insert follow-up: duplicate id %s", f.ID)
	}
	r.followUps[f.ID] = cloneFollowUp(f)
	return nil
}

func (r *memFollowUps) GetByID(ctx context.Context, id uuid.UUID) (*FollowUp, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.followUps[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.joined(f), nil
}

// GetForUpdate relies on transactions being serialized for its lock.
func (r *memFollowUps) GetForUpdate(ctx context.Context, id uuid.UUID) (*FollowUp, error) {
	return r.GetByID(ctx, id)
}

func (r *memFollowUps) Update(ctx context.Context, f *FollowUp) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.followUps[f.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Status = f.Status
	cur.Response = copyString(f.Response)
	cur.RespondedAt = copyTime(f.RespondedAt)
	r.followUps[f.ID] = cur
	return nil
}

func (r *memFollowUps) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*FollowUp, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*FollowUp
	for _, f := range r.followUps {
		if f.PatientID == patientID {
			c := cloneFollowUp(&f)
			out = append(out, &c)
		}
	}
	sortFollowUps(out)
	return out, nil
}

func (r *memFollowUps) List(ctx context.Context) ([]*FollowUp, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*FollowUp, 0, len(r.followUps))
	for _, f := range r.followUps {
		out = append(out, r.joined(f))
	}
	sortFollowUps(out)
	return out, nil
}

// joined must be called with mu held.
func (r *memFollowUps) joined(f FollowUp) *FollowUp {
	c := cloneFollowUp(&f)
	if p, ok := r.patients[f.PatientID]; ok {
		c.Patient = &p
	}
	return &c
}

func sortFollowUps(fs []*FollowUp) {
	sort.Slice(fs, func(i, j int) bool {
		if !fs[i].ScheduledAt.Equal(fs[j].ScheduledAt) {
			return fs[i].ScheduledAt.Before(fs[j].ScheduledAt)
		}
		return uuidLess(fs[i].ID, fs[j].ID)
	})
}

// -- Notifications --

type memNotifications memStore

func (r *memNotifications) Create(ctx context.Context, n *Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.followUps[n.FollowUpID]; !ok {
		return fmt.Errorf("insert notification: unknown follow-up %s", n.FollowUpID)
	}
	r.notifications[n.ID] = *n
	return nil
}

func (r *memNotifications) List(ctx context.Context) ([]*Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Notification, 0, len(r.notifications))
	for _, n := range r.notifications {
		n := n
		out = append(out, &n)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return uuidLess(out[j].ID, out[i].ID)
	})
	return out, nil
}

// uuidLess orders ids the way PostgreSQL compares the uuid type.
func uuidLess(a, b uuid.UUID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func cloneFollowUp(f *FollowUp) FollowUp {
	c := *f
	c.Response = copyString(f.Response)
	c.RespondedAt = copyTime(f.RespondedAt)
	c.Patient = nil
	return c
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
