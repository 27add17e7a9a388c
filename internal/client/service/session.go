package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/membuddy/linkauth/internal/client/domain"
	"github.com/membuddy/linkauth/internal/client/store"
	"github.com/membuddy/linkauth/pkg/idx"
	"github.com/membuddy/linkauth/pkg/jwtx"
)

// SessionService owns the locally-cached authentication session. There is one
// instance per process, constructed by the composition root; everything else
// reads through it and mutates only via SetSession/ClearSession.
//
// In-memory state is the source of truth for the running process. Durable
// storage is best-effort persistence for future process starts: write failures
// are logged and the in-memory change plus listener notification still happen.
type SessionService struct {
	Store  store.Store
	Logger *slog.Logger

	// Now is the clock used for expiry checks, injectable for tests.
	Now func() time.Time

	mu        sync.Mutex
	session   domain.Session
	listeners []listener
}

// listener is a revocable registration. Duplicate callbacks are allowed; each
// registration carries its own id so unsubscribe removes exactly one.
type listener struct {
	id idx.ID
	fn func()
}

// NewSessionService constructs the session store and hydrates it from durable
// storage. Unreadable or unparsable stored state falls back to an empty
// session; startup never fails on storage problems.
func NewSessionService(st store.Store, logger *slog.Logger) *SessionService {
	s := &SessionService{
		Store:  st,
		Logger: logger,
		Now:    time.Now,
	}

	session, err := st.Credentials().LoadSession(context.Background())
	switch {
	case err == nil:
		s.session = session
		logger.Info("session hydrated from storage", "user_id", session.User.ID)
	case err == store.ErrNotFound:
		logger.Debug("no stored session")
	default:
		logger.Warn("failed to hydrate session, starting logged out", "error", err)
	}

	return s
}

// IsAuthenticated reports whether a user is logged in right now. Computed
// fresh on every call: wall-clock time moves the answer from true to false
// without any mutation event.
func (s *SessionService) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session.User == nil || s.session.Token == "" {
		return false
	}
	return !jwtx.ExpiredAt(s.session.Token, s.Now())
}

// CurrentUser returns the logged-in user, or nil.
func (s *SessionService) CurrentUser() *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.User
}

// Token returns the access token, or "".
func (s *SessionService) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Token
}

// RefreshToken returns the refresh token, or "".
func (s *SessionService) RefreshToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.RefreshToken
}

// SetSession atomically replaces the whole session, persists it and then
// notifies listeners synchronously in registration order. This is the only
// entry point that can make IsAuthenticated become true.
func (s *SessionService) SetSession(user *domain.User, token, refreshToken string) {
	session := domain.Session{User: user, Token: token, RefreshToken: refreshToken}

	s.mu.Lock()
	s.session = session
	if err := s.Store.Credentials().SaveSession(context.Background(), session); err != nil {
		s.Logger.Error("failed to persist session", "error", err)
	}
	s.mu.Unlock()

	s.notify()
}

// ClearSession atomically empties the session and removes the persisted
// entries. Idempotent: clearing an already-empty session still notifies, since
// callers rely on the notification to re-render.
func (s *SessionService) ClearSession() {
	s.mu.Lock()
	s.session = domain.Session{}
	if err := s.Store.Credentials().ClearSession(context.Background()); err != nil {
		s.Logger.Error("failed to clear persisted session", "error", err)
	}
	s.mu.Unlock()

	s.notify()
}

// Subscribe registers a listener for session changes. The returned handle
// removes exactly this registration and is a no-op after the first call.
func (s *SessionService) Subscribe(fn func()) func() {
	id := idx.New()

	s.mu.Lock()
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// notify calls listeners outside the lock so they can read back through the
// service without deadlocking. A listener never observes a torn session: the
// mutation completed before notify runs.
func (s *SessionService) notify() {
	s.mu.Lock()
	snapshot := make([]listener, len(s.listeners))
	copy(snapshot, s.listeners)
	s.mu.Unlock()

	for _, l := range snapshot {
		l.fn()
	}
}
