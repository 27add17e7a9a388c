package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/membuddy/linkauth/internal/client/domain"
	"github.com/membuddy/linkauth/internal/client/identity"
	"github.com/membuddy/linkauth/internal/client/store"
	"github.com/membuddy/linkauth/pkg/slogx"
)

// Event is one step of the handshake as the hosting UI should render it.
type Event struct {
	Status      domain.AttemptStatus
	AttemptID   string
	QRPayload   string
	ImageAsset  string
	ErrorReason string
}

// HandshakeConfig carries the policy knobs for the orchestrator. The retry
// bounds and the wall-clock ceiling are deliberately configuration, not
// constants.
type HandshakeConfig struct {
	// PollInterval is how often the orchestrator asks the user-center whether
	// the code was scanned and confirmed.
	PollInterval time.Duration

	// MaxPollDuration is the hard wall-clock ceiling on one attempt's polling,
	// independent of whatever expiry the server declared. A misbehaving server
	// cannot keep a poller alive past this.
	MaxPollDuration time.Duration

	// MaxExpiryRetries bounds consecutive silent regenerations after server
	// declared expiry before a user-visible error is surfaced.
	MaxExpiryRetries int

	// MaxPollFailures bounds consecutive transport failures while polling
	// before the attempt fails.
	MaxPollFailures int

	// Asset rendering options forwarded to the user-center.
	AssetSize  int
	TargetPath string
	AssetEnv   string
}

func (c *HandshakeConfig) withDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.MaxPollDuration <= 0 {
		c.MaxPollDuration = 5 * time.Minute
	}
	if c.MaxExpiryRetries <= 0 {
		c.MaxExpiryRetries = 3
	}
	if c.MaxPollFailures <= 0 {
		c.MaxPollFailures = 5
	}
}

// HandshakeService runs the cross-device login state machine for one login
// surface. At most one non-terminal attempt exists at a time: starting a new
// attempt stops the previous attempt's timer before the new one is armed.
//
//	Idle --Start--> Generating --code ready--> AwaitingScan
//	AwaitingScan --confirmed--> Confirmed (terminal)
//	AwaitingScan --expired--> Expired --auto retry (bounded)--> Generating
//	AwaitingScan --errors past bound--> Failed (terminal)
type HandshakeService struct {
	Identity *identity.Client
	Session  *SessionService
	Assets   store.AssetCache
	Logger   *slog.Logger
	Config   HandshakeConfig

	// Now is the clock used for expiry checks, injectable for tests.
	Now func() time.Time

	mu            sync.Mutex
	current       *attemptRun
	expiryRetries int

	events chan Event
}

// attemptRun is the live state of one attempt: its snapshot plus the handles
// needed to stop it. done closes when the attempt's goroutine has fully
// exited, which is what "timer stopped" means here.
type attemptRun struct {
	attempt domain.HandshakeAttempt
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewHandshakeService(
	idc *identity.Client,
	session *SessionService,
	assets store.AssetCache,
	logger *slog.Logger,
	cfg HandshakeConfig,
) *HandshakeService {
	cfg.withDefaults()

	return &HandshakeService{
		Identity: idc,
		Session:  session,
		Assets:   assets,
		Logger:   logger,
		Config:   cfg,
		Now:      time.Now,
		events:   make(chan Event, 16),
	}
}

// Events is the stream the hosting UI renders from. Events are dropped if the
// consumer stops reading; a consumer that goes away must call Cancel.
func (h *HandshakeService) Events() <-chan Event {
	return h.events
}

// Start begins a fresh attempt, superseding any non-terminal one. The
// superseded attempt's poller is fully stopped before the new attempt is
// armed, so at most one timer is ever live for this surface. Start and Cancel
// belong to the hosting UI's event loop; they are not meant to race each other.
func (h *HandshakeService) Start() {
	h.mu.Lock()
	h.expiryRetries = 0
	prev := h.current
	h.current = nil
	h.mu.Unlock()

	h.beginAttempt(prev)
}

// Cancel stops the active attempt and its timers. The hosting UI must call
// this on unmount; a forgotten Cancel is a leaked poller, not a cosmetic bug.
func (h *HandshakeService) Cancel() {
	h.mu.Lock()
	run := h.current
	h.current = nil
	if run != nil && !run.attempt.Status.Terminal() {
		run.attempt.Status = domain.AttemptFailed
	}
	h.mu.Unlock()

	if run != nil {
		run.cancel()
		<-run.done
	}
}

// Attempt returns a snapshot of the current attempt state.
func (h *HandshakeService) Attempt() domain.HandshakeAttempt {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil {
		return domain.HandshakeAttempt{}
	}
	return h.current.attempt
}

// Confirm applies a successful completion for the given attempt nonce,
// regardless of which channel delivered it. The first confirmation wins and
// writes the session exactly once; anything after the attempt is terminal (or
// for a different nonce) is a no-op and returns false.
func (h *HandshakeService) Confirm(attemptID string, user *domain.User, token, refreshToken string) bool {
	h.mu.Lock()
	run := h.current
	if run == nil || run.attempt.Status.Terminal() || !matchesAttempt(run, attemptID) {
		h.mu.Unlock()
		return false
	}
	run.attempt.Status = domain.AttemptConfirmed
	h.expiryRetries = 0
	h.mu.Unlock()

	run.cancel()
	h.Session.SetSession(user, token, refreshToken)

	if attemptID != "" {
		_ = h.Assets.Delete(context.Background(), attemptID)
	}

	h.Logger.Info("login attempt confirmed", "attempt_id", attemptID)
	h.emit(Event{Status: domain.AttemptConfirmed, AttemptID: attemptID})
	return true
}

// Fail applies a failure delivered by a completion channel. Like Confirm, it
// is a no-op against a terminal or mismatched attempt.
func (h *HandshakeService) Fail(attemptID, reason string) bool {
	h.mu.Lock()
	run := h.current
	if run == nil || run.attempt.Status.Terminal() || !matchesAttempt(run, attemptID) {
		h.mu.Unlock()
		return false
	}
	run.attempt.Status = domain.AttemptFailed
	h.mu.Unlock()

	run.cancel()

	if attemptID != "" {
		_ = h.Assets.Delete(context.Background(), attemptID)
	}

	h.Logger.Warn("login attempt failed", "attempt_id", attemptID, "reason", reason)
	h.emit(Event{Status: domain.AttemptFailed, AttemptID: attemptID, ErrorReason: reason})
	return true
}

// matchesAttempt accepts a signal when the nonce matches the live attempt. An
// empty nonce on either side matches: the internal poller always knows its own
// attempt, and a not-yet-generated attempt has no id to compare.
func matchesAttempt(run *attemptRun, attemptID string) bool {
	if attemptID == "" || run.attempt.AttemptID == "" {
		return true
	}
	return run.attempt.AttemptID == attemptID
}

// retryExpired regenerates after an expiry, unless the attempt that expired
// was cancelled or superseded in the meantime. Without this check an
// auto-retry racing Cancel could resurrect polling after the UI is gone.
func (h *HandshakeService) retryExpired(prev *attemptRun) {
	h.mu.Lock()
	if h.current != prev {
		h.mu.Unlock()
		return
	}
	h.current = nil
	h.mu.Unlock()

	h.beginAttempt(prev)
}

func (h *HandshakeService) beginAttempt(prev *attemptRun) {
	if prev != nil {
		prev.cancel()
		// Old poller must be fully stopped before the new timer is armed.
		<-prev.done
	}

	ctx, cancel := context.WithCancel(context.Background())
	run := &attemptRun{
		attempt: domain.HandshakeAttempt{
			Status:    domain.AttemptGenerating,
			CreatedAt: h.Now(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	h.current = run
	h.mu.Unlock()

	h.emit(Event{Status: domain.AttemptGenerating})
	go h.run(ctx, run)
}

// run drives one attempt from generation through its terminal state.
func (h *HandshakeService) run(ctx context.Context, run *attemptRun) {
	defer close(run.done)

	code, err := h.Identity.RequestLoginCode(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return // superseded or cancelled mid-request
		}
		h.Logger.Error("failed to generate login code", "error", err)
		h.failRun(run, "", "could not generate a login code")
		return
	}

	// Attempt-scoped logger rides the context through the asset path.
	ctx = slogx.WithAttemptID(slogx.WithContext(ctx, h.Logger), code.AttemptID)

	asset := h.loadAsset(ctx, code)

	if !h.transitionAwaiting(run, code, asset) {
		return
	}

	h.Logger.Info("awaiting scan",
		"attempt_id", code.AttemptID,
		"expires_at", code.ExpiresAt(),
	)

	ticker := time.NewTicker(h.Config.PollInterval)
	defer ticker.Stop()

	// Timeout of last resort, independent of the server-declared expiry.
	ceiling := time.NewTimer(h.Config.MaxPollDuration)
	defer ceiling.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return

		case <-ceiling.C:
			h.Logger.Warn("attempt exceeded polling ceiling", "attempt_id", code.AttemptID)
			h.failRun(run, code.AttemptID, "login attempt timed out")
			return

		case <-ticker.C:
			if !h.Now().Before(code.ExpiresAt()) {
				// Locally observed expiry; no point asking the server.
				h.handleExpired(run, code.AttemptID)
				return
			}

			result, err := h.Identity.PollLoginStatus(ctx, code.AttemptID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				failures++
				h.Logger.Warn("status poll failed",
					"attempt_id", code.AttemptID,
					"consecutive_failures", failures,
					"error", err,
				)
				if failures > h.Config.MaxPollFailures {
					h.failRun(run, code.AttemptID, "cannot reach the login service")
					return
				}
				continue
			}
			failures = 0

			switch result.Status {
			case identity.StatusPending:
				// Keep waiting.

			case identity.StatusConfirmed:
				h.Confirm(code.AttemptID, result.User, result.Token, result.RefreshToken)
				return

			case identity.StatusExpired:
				h.handleExpired(run, code.AttemptID)
				return

			default:
				h.Logger.Warn("unknown poll status",
					"attempt_id", code.AttemptID,
					"status", result.Status,
				)
			}
		}
	}
}

// loadAsset returns the rendered scannable asset for a code, reusing the
// session-scoped cache when the same still-valid attempt is re-displayed. A
// render failure is not fatal: the raw payload is still scannable.
func (h *HandshakeService) loadAsset(ctx context.Context, code identity.LoginCode) string {
	if cached, err := h.Assets.Get(ctx, code.AttemptID, h.Now()); err == nil {
		return cached
	}

	rendered, err := h.Identity.RenderScannableAsset(
		ctx, code.AttemptID, h.Config.TargetPath, h.Config.AssetSize, h.Config.AssetEnv,
	)
	if err != nil {
		if ctx.Err() == nil {
			slogx.FromContext(ctx).Warn("failed to render scannable asset", "error", err)
		}
		return ""
	}

	if err := h.Assets.Put(ctx, code.AttemptID, rendered.ImageBase64, code.ExpiresAt()); err != nil {
		slogx.FromContext(ctx).Warn("failed to cache scannable asset", "error", err)
	}
	return rendered.ImageBase64
}

// transitionAwaiting moves a freshly generated attempt into AwaitingScan,
// unless it was superseded while the code was being generated.
func (h *HandshakeService) transitionAwaiting(run *attemptRun, code identity.LoginCode, asset string) bool {
	h.mu.Lock()
	if h.current != run || run.attempt.Status != domain.AttemptGenerating {
		h.mu.Unlock()
		return false
	}
	run.attempt.AttemptID = code.AttemptID
	run.attempt.QRPayload = code.QRPayload
	run.attempt.ImageAsset = asset
	run.attempt.ExpiresAt = code.ExpiresAt()
	run.attempt.Status = domain.AttemptAwaitingScan
	h.mu.Unlock()

	h.emit(Event{
		Status:     domain.AttemptAwaitingScan,
		AttemptID:  code.AttemptID,
		QRPayload:  code.QRPayload,
		ImageAsset: asset,
	})
	return true
}

// handleExpired regenerates silently up to the bound, then surfaces an error.
func (h *HandshakeService) handleExpired(run *attemptRun, attemptID string) {
	h.mu.Lock()
	if h.current != run || run.attempt.Status.Terminal() {
		h.mu.Unlock()
		return
	}
	h.expiryRetries++
	retries := h.expiryRetries
	exhausted := retries > h.Config.MaxExpiryRetries
	if exhausted {
		run.attempt.Status = domain.AttemptFailed
	} else {
		run.attempt.Status = domain.AttemptExpired
	}
	h.mu.Unlock()

	run.cancel()
	if attemptID != "" {
		_ = h.Assets.Delete(context.Background(), attemptID)
	}

	if exhausted {
		h.Logger.Warn("giving up after repeated expiries",
			"attempt_id", attemptID,
			"consecutive_expiries", retries,
		)
		h.emit(Event{
			Status:      domain.AttemptFailed,
			AttemptID:   attemptID,
			ErrorReason: "the login code kept expiring, please try again",
		})
		return
	}

	h.Logger.Info("login code expired, regenerating",
		"attempt_id", attemptID,
		"consecutive_expiries", retries,
	)
	h.emit(Event{Status: domain.AttemptExpired, AttemptID: attemptID})

	// Regenerate from a fresh goroutine: retryExpired waits for this run's
	// goroutine to exit before arming the next timer.
	go h.retryExpired(run)
}

// failRun marks the attempt Failed with a user-facing reason.
func (h *HandshakeService) failRun(run *attemptRun, attemptID, reason string) {
	h.mu.Lock()
	if h.current != run || run.attempt.Status.Terminal() {
		h.mu.Unlock()
		return
	}
	run.attempt.Status = domain.AttemptFailed
	h.mu.Unlock()

	run.cancel()
	if attemptID != "" {
		_ = h.Assets.Delete(context.Background(), attemptID)
	}

	h.emit(Event{Status: domain.AttemptFailed, AttemptID: attemptID, ErrorReason: reason})
}

// emit never blocks the state machine on a slow or absent consumer.
func (h *HandshakeService) emit(ev Event) {
	select {
	case h.events <- ev:
	default:
		h.Logger.Warn("dropping handshake event, consumer not reading", "status", ev.Status)
	}
}
