package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/membuddy/linkauth/internal/client/store"
)

// Sentinel values the confirming navigation writes. A failure carries its
// reason after the colon: "failed:<reason>".
const (
	SentinelSuccess      = "success"
	sentinelFailedPrefix = "failed:"
)

// FlagChannel is the cross-navigation completion channel. When the confirming
// flow happens via a full navigation (an external provider redirect) instead
// of a message-capable sibling surface, the callback writes a one-shot
// sentinel keyed by the attempt nonce into durable storage and the waiting UI
// polls for it here.
//
// Delivery is at-least-once by nature, so consumption is delete-on-read and
// outcomes must be applied idempotently downstream. A sentinel older than
// MaxAge is garbage from an attempt nobody is waiting on anymore; it is
// discarded, never treated as success.
type FlagChannel struct {
	Sentinels store.Sentinels
	Logger    *slog.Logger

	// Interval is the poll cadence; MaxAge the staleness horizon.
	Interval time.Duration
	MaxAge   time.Duration

	// Now is the clock used for staleness checks, injectable for tests.
	Now func() time.Time
}

func NewFlagChannel(sentinels store.Sentinels, logger *slog.Logger, interval, maxAge time.Duration) *FlagChannel {
	if interval <= 0 {
		interval = time.Second
	}
	if maxAge <= 0 {
		maxAge = 5 * time.Minute
	}

	return &FlagChannel{
		Sentinels: sentinels,
		Logger:    logger,
		Interval:  interval,
		MaxAge:    maxAge,
		Now:       time.Now,
	}
}

// Outcome is a consumed sentinel mapped onto the closed completion set.
type Outcome struct {
	Success bool
	Reason  string
}

// Watch polls for the sentinel of one attempt nonce and invokes deliver at
// most once when a fresh sentinel is consumed. The returned stop function
// halts the poller and blocks until it has exited; it is safe to call more
// than once. Watching also sweeps stale sentinels so flags nobody consumed
// (their waiting UI is long gone) do not pile up.
func (f *FlagChannel) Watch(attemptID string, deliver func(Outcome)) (stop func()) {
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})

	go f.poll(attemptID, deliver, stopCh, doneCh)

	var once bool
	return func() {
		if once {
			return
		}
		once = true
		close(stopCh)
		<-doneCh
	}
}

func (f *FlagChannel) poll(attemptID string, deliver func(Outcome), stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ctx := context.Background()

	// Housekeeping on entry: anything older than the maximum attempt lifetime
	// can never be legitimately consumed.
	if err := f.Sentinels.DeleteStale(ctx, f.Now().Add(-f.MaxAge)); err != nil {
		f.Logger.Warn("failed to sweep stale sentinels", "error", err)
	}

	ticker := time.NewTicker(f.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return

		case <-ticker.C:
			value, writtenAt, err := f.Sentinels.Consume(ctx, attemptID)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				f.Logger.Warn("sentinel read failed", "attempt_id", attemptID, "error", err)
				continue
			}

			if f.Now().Sub(writtenAt) > f.MaxAge {
				f.Logger.Warn("discarding stale sentinel", "attempt_id", attemptID, "written_at", writtenAt)
				continue
			}

			deliver(parseSentinel(value))
			return
		}
	}
}

func parseSentinel(value string) Outcome {
	if value == SentinelSuccess {
		return Outcome{Success: true}
	}

	reason := strings.TrimPrefix(value, sentinelFailedPrefix)
	if reason == value {
		reason = "login failed"
	}
	return Outcome{Success: false, Reason: reason}
}
