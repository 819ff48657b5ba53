package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memRepo is an in-memory Repository. WithTx works on a copy of the state
// and swaps it in only when fn succeeds.
type memRepo struct {
	*memStore
	mu     sync.Mutex
	events []AuditEvent
	// failOn makes the named store operation return an error.
	failOn map[string]error
}

type memState struct {
	patients map[uuid.UUID]Patient
	plans    []PricingPlan
	sessions map[uuid.UUID]Session
	payments map[uuid.UUID]Payment
	packages map[uuid.UUID]SessionPackage
}

type memStore struct {
	mu   sync.Locker
	st   *memState
	fail func(op string) error
}

type noLock struct{}

func (noLock) Lock()   {}
func (noLock) Unlock() {}

func newMemRepo() *memRepo {
	r := &memRepo{failOn: map[string]error{}}
	r.memStore = &memStore{
		mu: &r.mu,
		st: &memState{
			patients: map[uuid.UUID]Patient{},
			sessions: map[uuid.UUID]Session{},
			payments: map[uuid.UUID]Payment{},
			packages: map[uuid.UUID]SessionPackage{},
		},
		fail: r.failure,
	}
	return r
}

func (r *memRepo) failure(op string) error {
	return r.failOn[op]
}

func (st *memState) clone() *memState {
	c := &memState{
		patients: make(map[uuid.UUID]Patient, len(st.patients)),
		plans:    append([]PricingPlan(nil), st.plans...),
		sessions: make(map[uuid.UUID]Session, len(st.sessions)),
		payments: make(map[uuid.UUID]Payment, len(st.payments)),
		packages: make(map[uuid.UUID]SessionPackage, len(st.packages)),
	}
	for k, v := range st.patients {
		c.patients[k] = v
	}
	for k, v := range st.sessions {
		c.sessions[k] = v
	}
	for k, v := range st.payments {
		c.payments[k] = v
	}
	for k, v := range st.packages {
		c.packages[k] = v
	}
	return c
}

func (r *memRepo) WithTx(ctx context.Context, fn func(tx Store) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	work := r.st.clone()
	if err := fn(&memStore{mu: noLock{}, st: work, fail: r.failure}); err != nil {
		return err
	}
	r.st = work
	return nil
}

func (r *memRepo) InsertEvent(ctx context.Context, ev AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failOn["InsertEvent"]; err != nil {
		return err
	}
	r.events = append(r.events, ev)
	return nil
}

// Test helpers, all outside any transaction.

func (r *memRepo) addPatient(ownerID uuid.UUID) Patient {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := Patient{ID: uuid.New(), OwnerID: ownerID, Name: "patient"}
	r.st.patients[p.ID] = p
	return p
}

func (r *memRepo) addPlan(plan PricingPlan) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.plans = append(r.st.plans, plan)
}

func (r *memRepo) putSession(s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.sessions[s.ID] = s
}

func (r *memRepo) setStatus(id uuid.UUID, status SessionStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.st.sessions[id]
	s.Status = status
	r.st.sessions[id] = s
}

func (r *memRepo) sessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.st.sessions)
}

func (r *memRepo) paymentCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.st.payments)
}

func (r *memRepo) planCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.st.plans)
}

func (r *memRepo) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.EventType
	}
	return out
}

// Store

func (s *memStore) FindOwnedPatient(ctx context.Context, ownerID, patientID uuid.UUID) (*Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.patients[patientID]
	if !ok || p.OwnerID != ownerID {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (s *memStore) FindActivePricingPlan(ctx context.Context, patientID uuid.UUID) (*PricingPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *PricingPlan
	for i := range s.st.plans {
		p := s.st.plans[i]
		if p.PatientID != patientID || !p.Active {
			continue
		}
		if found == nil || p.CreatedAt.After(found.CreatedAt) {
			found = &p
		}
	}
	if found == nil {
		return nil, ErrPricingPlanNotFound
	}
	return found, nil
}

func (s *memStore) LockOwner(ctx context.Context, ownerID uuid.UUID) error {
	return nil
}

func (s *memStore) GetSession(ctx context.Context, ownerID, id uuid.UUID) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.st.sessions[id]
	if !ok || sess.OwnerID != ownerID {
		return nil, ErrSessionNotFound
	}
	return &sess, nil
}

func (s *memStore) filter(keep func(Session) bool, less func(a, b Session) bool) []Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Session
	for _, sess := range s.st.sessions {
		if keep(sess) {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func byStart(a, b Session) bool { return a.StartTime.Before(b.StartTime) }

func (s *memStore) ListSessions(ctx context.Context, ownerID uuid.UUID, from, to time.Time) ([]Session, error) {
	return s.filter(func(sess Session) bool {
		return sess.OwnerID == ownerID && !sess.StartTime.Before(from) && sess.StartTime.Before(to)
	}, byStart), nil
}

func (s *memStore) ListActiveSessionsInWindow(ctx context.Context, ownerID uuid.UUID, from, to time.Time) ([]Session, error) {
	return s.filter(func(sess Session) bool {
		return sess.OwnerID == ownerID && sess.Status != StatusCancelled &&
			!sess.StartTime.Before(from) && sess.StartTime.Before(to)
	}, byStart), nil
}

func (s *memStore) ListRecurrenceGroup(ctx context.Context, ownerID, groupID uuid.UUID) ([]Session, error) {
	return s.filter(func(sess Session) bool {
		rm := sess.Recurrence()
		return sess.OwnerID == ownerID && rm != nil && rm.GroupID == groupID
	}, func(a, b Session) bool {
		return a.Recurrence().Index < b.Recurrence().Index
	}), nil
}

func (s *memStore) ListPackageSessions(ctx context.Context, packageID uuid.UUID) ([]Session, error) {
	return s.filter(func(sess Session) bool {
		pm := sess.Package()
		return pm != nil && pm.PackageID == packageID
	}, func(a, b Session) bool {
		return a.Package().Order < b.Package().Order
	}), nil
}

func (s *memStore) InsertSession(ctx context.Context, sess *Session) error {
	if err := s.fail("InsertSession"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.st.sessions[sess.ID]; dup {
		return fmt.Errorf("duplicate session %s", sess.ID)
	}
	s.st.sessions[sess.ID] = *sess
	return nil
}

func (s *memStore) UpdateSessionSchedule(ctx context.Context, id uuid.UUID, start time.Time, durationMinutes int) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.st.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.StartTime = start
	sess.DurationMinutes = durationMinutes
	s.st.sessions[id] = sess
	return &sess, nil
}

func (s *memStore) UpdateSessionStatus(ctx context.Context, id uuid.UUID, status SessionStatus) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.st.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.Status = status
	s.st.sessions[id] = sess
	return &sess, nil
}

func (s *memStore) DeleteSessions(ctx context.Context, ids []uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range ids {
		if _, ok := s.st.sessions[id]; !ok {
			continue
		}
		for pid, p := range s.st.payments {
			if p.SessionID == id {
				delete(s.st.payments, pid)
			}
		}
		delete(s.st.sessions, id)
		n++
	}
	return n, nil
}

func (s *memStore) GetPayment(ctx context.Context, ownerID, id uuid.UUID) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	if sess, ok := s.st.sessions[p.SessionID]; !ok || sess.OwnerID != ownerID {
		return nil, ErrPaymentNotFound
	}
	return &p, nil
}

func (s *memStore) GetPaymentBySession(ctx context.Context, sessionID uuid.UUID) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.st.payments {
		if p.SessionID == sessionID {
			return &p, nil
		}
	}
	return nil, ErrPaymentNotFound
}

func (s *memStore) ListPaymentsBySessions(ctx context.Context, sessionIDs []uuid.UUID) (map[uuid.UUID]Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[uuid.UUID]bool, len(sessionIDs))
	for _, id := range sessionIDs {
		want[id] = true
	}
	out := map[uuid.UUID]Payment{}
	for _, p := range s.st.payments {
		if want[p.SessionID] {
			out[p.SessionID] = p
		}
	}
	return out, nil
}

func (s *memStore) InsertPayment(ctx context.Context, p *Payment) error {
	if err := s.fail("InsertPayment"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.sessions[p.SessionID]; !ok {
		return fmt.Errorf("payment for unknown session %s", p.SessionID)
	}
	for _, existing := range s.st.payments {
		if existing.SessionID == p.SessionID {
			return fmt.Errorf("session %s already has a payment", p.SessionID)
		}
	}
	s.st.payments[p.ID] = *p
	return nil
}

func (s *memStore) UpdatePayment(ctx context.Context, p *Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.payments[p.ID]; !ok {
		return ErrPaymentNotFound
	}
	if p.Status == PaymentPaid && p.PaidAt == nil {
		return errors.New("paid payment without paid_at")
	}
	s.st.payments[p.ID] = *p
	return nil
}

func (s *memStore) GetPackage(ctx context.Context, ownerID, id uuid.UUID) (*SessionPackage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.packages[id]
	if !ok || p.OwnerID != ownerID {
		return nil, ErrPackageNotFound
	}
	return &p, nil
}

func (s *memStore) InsertPackage(ctx context.Context, p *SessionPackage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.packages[p.ID] = *p
	return nil
}

func (s *memStore) UpdatePackageStatus(ctx context.Context, id uuid.UUID, status PackageStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.packages[id]
	if !ok {
		return ErrPackageNotFound
	}
	p.Status = status
	s.st.packages[id] = p
	return nil
}

func (s *memStore) SetPackageLastOrder(ctx context.Context, id uuid.UUID, order int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.packages[id]
	if !ok {
		return ErrPackageNotFound
	}
	if order > p.LastOrder {
		p.LastOrder = order
	}
	s.st.packages[id] = p
	return nil
}

func (s *memStore) InsertPricingPlan(ctx context.Context, p *PricingPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.plans = append(s.st.plans, *p)
	return nil
}

func (s *memStore) DeletePackage(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sid, sess := range s.st.sessions {
		if pm := sess.Package(); pm == nil || pm.PackageID != id {
			continue
		}
		for pid, p := range s.st.payments {
			if p.SessionID == sid {
				delete(s.st.payments, pid)
			}
		}
		delete(s.st.sessions, sid)
	}
	plans := s.st.plans[:0]
	for _, p := range s.st.plans {
		if p.PackageID == nil || *p.PackageID != id {
			plans = append(plans, p)
		}
	}
	s.st.plans = plans
	delete(s.st.packages, id)
	return nil
}
