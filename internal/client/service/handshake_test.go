package service

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/membuddy/linkauth/internal/client/domain"
	"github.com/membuddy/linkauth/internal/client/identity"

	"github.com/stretchr/testify/require"
)

// fakeCenter is an in-process user-center. Each minted code gets a sequential
// id ("code-1", "code-2", ...); status answers come from the test's callback,
// keyed by code id and per-code poll count.
type fakeCenter struct {
	server *httptest.Server

	mu           sync.Mutex
	minted       int
	polls        map[string]int
	codeTTL      time.Duration
	failGenerate bool
	failPolls    bool
	status       func(attemptID string, poll int) identity.PollResult
}

func newFakeCenter(t *testing.T, codeTTL time.Duration, status func(attemptID string, poll int) identity.PollResult) *fakeCenter {
	t.Helper()

	f := &fakeCenter{
		polls:   make(map[string]int),
		codeTTL: codeTTL,
		status:  status,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /front/auth/qrcode/generate", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		if f.failGenerate {
			f.mu.Unlock()
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"detail": "mint failed"})
			return
		}
		f.minted++
		id := fmt.Sprintf("code-%d", f.minted)
		ttl := f.codeTTL
		f.mu.Unlock()

		_ = json.NewEncoder(w).Encode(map[string]any{
			"qrcodeId":  id,
			"qrContent": "https://example.com/l/" + id,
			"expireAt":  time.Now().Add(ttl).UnixMilli(),
		})
	})
	mux.HandleFunc("POST /front/auth/wxacode/generate", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"imageBase64": "aGVsbG8="})
	})
	mux.HandleFunc("GET /front/auth/qrcode/status", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("qrcodeId")
		f.mu.Lock()
		f.polls[id]++
		n := f.polls[id]
		failing := f.failPolls
		f.mu.Unlock()

		if failing {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"detail": "boom"})
			return
		}
		_ = json.NewEncoder(w).Encode(f.status(id, n))
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeCenter) pollCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls[id]
}

func (f *fakeCenter) mintCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.minted
}

func alwaysPending(string, int) identity.PollResult {
	return identity.PollResult{Status: identity.StatusPending}
}

func newTestHandshake(t *testing.T, f *fakeCenter, cfg HandshakeConfig) (*HandshakeService, *SessionService) {
	t.Helper()

	st := newTestStore(t)
	logger := testLogger()
	session := NewSessionService(st, logger)

	client := identity.NewClient(f.server.URL, "wxtest", "device-1", logger)
	client.PollLimiter = nil

	if cfg.PollInterval == 0 {
		cfg.PollInterval = 10 * time.Millisecond
	}
	if cfg.MaxPollDuration == 0 {
		cfg.MaxPollDuration = 3 * time.Second
	}

	h := NewHandshakeService(client, session, st.AssetCache(), logger, cfg)
	t.Cleanup(h.Cancel)
	return h, session
}

// awaitEvent drains the event stream until the wanted status shows up.
func awaitEvent(t *testing.T, h *HandshakeService, status domain.AttemptStatus) Event {
	t.Helper()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-h.Events():
			if ev.Status == status {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", status)
		}
	}
}

func TestHandshakeConfirmsViaPolling(t *testing.T) {
	token := signedToken(t, time.Now().Add(time.Hour))
	f := newFakeCenter(t, time.Minute, func(id string, poll int) identity.PollResult {
		if poll < 3 {
			return identity.PollResult{Status: identity.StatusPending}
		}
		return identity.PollResult{
			Status:       identity.StatusConfirmed,
			User:         testUser(),
			Token:        token,
			RefreshToken: "refresh-1",
		}
	})
	h, session := newTestHandshake(t, f, HandshakeConfig{})

	h.Start()

	ev := awaitEvent(t, h, domain.AttemptAwaitingScan)
	require.Equal(t, "code-1", ev.AttemptID)
	require.Equal(t, "https://example.com/l/code-1", ev.QRPayload)
	require.Equal(t, "aGVsbG8=", ev.ImageAsset)

	awaitEvent(t, h, domain.AttemptConfirmed)
	require.True(t, session.IsAuthenticated())
	require.Equal(t, token, session.Token())
	require.Equal(t, "refresh-1", session.RefreshToken())
	require.Equal(t, domain.AttemptConfirmed, h.Attempt().Status)
}

func TestHandshakeStartSupersedesPoller(t *testing.T) {
	f := newFakeCenter(t, time.Minute, alwaysPending)
	h, _ := newTestHandshake(t, f, HandshakeConfig{})

	h.Start()
	first := awaitEvent(t, h, domain.AttemptAwaitingScan)
	require.Equal(t, "code-1", first.AttemptID)
	require.Eventually(t, func() bool { return f.pollCount("code-1") > 0 },
		time.Second, 5*time.Millisecond)

	h.Start()
	second := awaitEvent(t, h, domain.AttemptAwaitingScan)
	require.Equal(t, "code-2", second.AttemptID)

	// The superseded attempt's poller is fully stopped, not just abandoned.
	baseline := f.pollCount("code-1")
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, baseline, f.pollCount("code-1"))
	require.Equal(t, 2, f.mintCount())
}

func TestHandshakeExpiredRegeneratesSilently(t *testing.T) {
	f := newFakeCenter(t, time.Minute, func(id string, poll int) identity.PollResult {
		if id == "code-1" {
			return identity.PollResult{Status: identity.StatusExpired}
		}
		return identity.PollResult{Status: identity.StatusPending}
	})
	h, session := newTestHandshake(t, f, HandshakeConfig{})

	h.Start()
	awaitEvent(t, h, domain.AttemptExpired)

	// A fresh code appears without user interaction and without an error.
	replacement := awaitEvent(t, h, domain.AttemptAwaitingScan)
	require.Equal(t, "code-2", replacement.AttemptID)
	require.False(t, session.IsAuthenticated())
}

func TestHandshakeRepeatedExpiryGivesUp(t *testing.T) {
	f := newFakeCenter(t, time.Minute, func(string, int) identity.PollResult {
		return identity.PollResult{Status: identity.StatusExpired}
	})
	h, _ := newTestHandshake(t, f, HandshakeConfig{MaxExpiryRetries: 2})

	h.Start()

	ev := awaitEvent(t, h, domain.AttemptFailed)
	require.Contains(t, ev.ErrorReason, "kept expiring")
	// Initial attempt plus two silent retries before giving up.
	require.Equal(t, 3, f.mintCount())
}

func TestHandshakeLocalExpiryCheck(t *testing.T) {
	// Server-declared expiry is already in the past, so the poller notices
	// locally and never asks the server for status.
	f := newFakeCenter(t, -time.Second, alwaysPending)
	h, _ := newTestHandshake(t, f, HandshakeConfig{MaxExpiryRetries: 1})

	h.Start()
	awaitEvent(t, h, domain.AttemptFailed)
	require.Equal(t, 0, f.pollCount("code-1"))
}

func TestHandshakePollFailuresBounded(t *testing.T) {
	f := newFakeCenter(t, time.Minute, alwaysPending)
	h, _ := newTestHandshake(t, f, HandshakeConfig{MaxPollFailures: 2})

	h.Start()
	awaitEvent(t, h, domain.AttemptAwaitingScan)

	f.mu.Lock()
	f.failPolls = true
	f.mu.Unlock()

	ev := awaitEvent(t, h, domain.AttemptFailed)
	require.Contains(t, ev.ErrorReason, "cannot reach")
	require.Equal(t, 1, f.mintCount(), "transport failures do not regenerate codes")
}

func TestHandshakeGenerateFailureFails(t *testing.T) {
	f := newFakeCenter(t, time.Minute, alwaysPending)
	f.failGenerate = true
	h, _ := newTestHandshake(t, f, HandshakeConfig{})

	h.Start()
	ev := awaitEvent(t, h, domain.AttemptFailed)
	require.Contains(t, ev.ErrorReason, "could not generate")
}

func TestHandshakePollCeiling(t *testing.T) {
	f := newFakeCenter(t, time.Minute, alwaysPending)
	h, _ := newTestHandshake(t, f, HandshakeConfig{MaxPollDuration: 50 * time.Millisecond})

	h.Start()
	ev := awaitEvent(t, h, domain.AttemptFailed)
	require.Contains(t, ev.ErrorReason, "timed out")
}

func TestHandshakeCancelStopsPolling(t *testing.T) {
	f := newFakeCenter(t, time.Minute, alwaysPending)
	h, _ := newTestHandshake(t, f, HandshakeConfig{})

	h.Start()
	awaitEvent(t, h, domain.AttemptAwaitingScan)
	h.Cancel()

	baseline := f.pollCount("code-1")
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, baseline, f.pollCount("code-1"))
	require.Equal(t, domain.HandshakeAttempt{}, h.Attempt())

	// Cancel twice is fine.
	h.Cancel()
}

func TestHandshakeConfirmFirstWins(t *testing.T) {
	f := newFakeCenter(t, time.Minute, alwaysPending)
	h, session := newTestHandshake(t, f, HandshakeConfig{})

	var notifications int
	session.Subscribe(func() { notifications++ })

	h.Start()
	ev := awaitEvent(t, h, domain.AttemptAwaitingScan)
	token := signedToken(t, time.Now().Add(time.Hour))

	require.True(t, h.Confirm(ev.AttemptID, testUser(), token, "refresh-1"))
	require.False(t, h.Confirm(ev.AttemptID, testUser(), token, "refresh-1"),
		"second delivery of the same completion is a no-op")
	require.False(t, h.Fail(ev.AttemptID, "late failure"),
		"a failure after confirmation is a no-op")

	require.True(t, session.IsAuthenticated())
	require.Equal(t, 1, notifications, "the session was written exactly once")
}

func TestHandshakeConfirmMismatchedNonceIgnored(t *testing.T) {
	f := newFakeCenter(t, time.Minute, alwaysPending)
	h, session := newTestHandshake(t, f, HandshakeConfig{})

	h.Start()
	awaitEvent(t, h, domain.AttemptAwaitingScan)

	require.False(t, h.Confirm("someone-elses-code", testUser(), "tok", ""))
	require.False(t, session.IsAuthenticated())
	require.Equal(t, domain.AttemptAwaitingScan, h.Attempt().Status)
}

func TestHandshakeConfirmWithoutAttemptIgnored(t *testing.T) {
	f := newFakeCenter(t, time.Minute, alwaysPending)
	h, session := newTestHandshake(t, f, HandshakeConfig{})

	require.False(t, h.Confirm("code-1", testUser(), "tok", ""))
	require.False(t, session.IsAuthenticated())
}
