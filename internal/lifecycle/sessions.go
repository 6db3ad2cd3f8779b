package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/festreg/internal/notify"
)

// ErrSessionNotFound is returned for an unknown or expired session id.
var ErrSessionNotFound = errors.New("session not found")

// Session is one operator's machine behind a lock. The lock is never held
// while a receipt is out for delivery.
type Session struct {
	ID string

	mu      sync.Mutex
	machine *Machine
	retired atomic.Bool
}

// Do runs fn with exclusive access to the machine.
func (s *Session) Do(fn func(m *Machine) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retired.Load() {
		return ErrSessionNotFound
	}
	return fn(s.machine)
}

// SendBill sends the receipt with the lock released during delivery, so Skip,
// View and Delete are not held up by a slow relay.
func (s *Session) SendBill(ctx context.Context) error {
	var (
		t        sendTicket
		notifier notify.Notifier
	)
	err := s.Do(func(m *Machine) error {
		var err error
		t, err = m.beginSend()
		notifier = m.deps.Notifier
		return err
	})
	if err != nil {
		return err
	}

	status, sendErr := notifier.Send(ctx, t.receipt)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retired.Load() {
		return ErrSessionNotFound
	}
	return s.machine.finishSend(t, status, sendErr)
}

// Apply runs the named transition. ActionSend goes through SendBill.
func (s *Session) Apply(ctx context.Context, a Action) error {
	if a == ActionSend {
		return s.SendBill(ctx)
	}
	return s.Do(func(m *Machine) error { return m.Apply(ctx, a) })
}

// View returns a snapshot under the lock.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.View()
}

// Sessions keeps live machines keyed by id. Idle sessions expire after the
// configured TTL; each access extends it.
type Sessions struct {
	deps  Deps
	ttl   time.Duration
	cache *gocache.Cache
	newID func() string
	log   *zap.Logger
}

// NewSessions constructs the registry. A zero cleanup interval disables the
// background janitor and expired sessions are only dropped on access.
func NewSessions(deps Deps, ttl, cleanup time.Duration) *Sessions {
	deps = deps.withDefaults()
	s := &Sessions{
		deps:  deps,
		ttl:   ttl,
		cache: gocache.New(ttl, cleanup),
		newID: uuid.NewString,
		log:   deps.Log.Named("sessions"),
	}
	s.cache.OnEvicted(func(_ string, v any) {
		if sess, ok := v.(*Session); ok {
			s.retire(sess)
		}
	})
	return s
}

// retire marks a session as gone. Exactly one caller, an explicit Delete or
// the expiry eviction, gets true.
func (s *Sessions) retire(sess *Session) bool {
	if !sess.retired.CompareAndSwap(false, true) {
		return false
	}
	sess.mu.Lock()
	st := sess.machine.State()
	sess.mu.Unlock()
	if st == StateEmail {
		s.log.Warn("session dropped before receipt was sent", zap.String("session", sess.ID))
	}
	return true
}

// Create starts a new session in IDLE.
func (s *Sessions) Create() *Session {
	sess := &Session{ID: s.newID(), machine: NewMachine(s.deps)}
	s.cache.Set(sess.ID, sess, s.ttl)
	s.log.Debug("session created", zap.String("session", sess.ID))
	return sess
}

// Get returns a live session and extends its expiry.
func (s *Sessions) Get(id string) (*Session, error) {
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess := v.(*Session)
	if sess.retired.Load() {
		return nil, ErrSessionNotFound
	}
	s.cache.Set(id, sess, s.ttl)
	return sess, nil
}

// Delete drops a session. It reports whether this call removed it; a session
// that expired or was deleted concurrently reports false.
func (s *Sessions) Delete(id string) bool {
	v, ok := s.cache.Get(id)
	if !ok {
		return false
	}
	sess := v.(*Session)
	removed := s.retire(sess)
	s.cache.Delete(id)
	return removed
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	return s.cache.ItemCount()
}
