package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/membuddy/linkauth/internal/client/domain"
	"github.com/membuddy/linkauth/internal/client/service"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// pendingCenter serves one login code and answers every status poll with
// pending, leaving confirmation to the completion channels under test.
func pendingCenter(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /front/auth/qrcode/generate", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"qrcodeId":  "code-1",
			"qrContent": "https://example.com/l/code-1",
			"expireAt":  time.Now().Add(time.Minute).UnixMilli(),
		})
	})
	mux.HandleFunc("POST /front/auth/wxacode/generate", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"imageBase64": "aW1n"})
	})
	mux.HandleFunc("GET /front/auth/qrcode/status", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "pending"})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestApp(t *testing.T) *Application {
	t.Helper()

	srv := pendingCenter(t)
	app, err := New(Config{
		UserCenterURL:    srv.URL,
		AppID:            "wxtest",
		Origin:           "app://membuddy",
		DatabaseFile:     ":memory:",
		PollInterval:     10 * time.Millisecond,
		FlagPollInterval: 10 * time.Millisecond,
		MaxPollDuration:  3 * time.Second,
		LogLevel:         "error",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	app.Identity.PollLimiter = nil
	return app
}

func freshToken(t *testing.T) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	raw, err := token.SignedString([]byte("test-key"))
	require.NoError(t, err)
	return raw
}

func awaitAttemptID(t *testing.T, app *Application) string {
	t.Helper()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-app.Handshake.Events():
			if ev.Status == domain.AttemptAwaitingScan {
				return ev.AttemptID
			}
		case <-deadline:
			t.Fatal("attempt never reached awaiting scan")
		}
	}
}

func TestLoginViaBusMessage(t *testing.T) {
	app := newTestApp(t)

	app.Handshake.Start()
	attemptID := awaitAttemptID(t, app)

	app.Bus.Publish(domain.CompletionMessage{
		Origin:    "app://membuddy",
		Kind:      domain.CompletionSuccess,
		AttemptID: attemptID,
		User:      &domain.User{ID: "user-1", DisplayName: "Ada"},
		Token:     freshToken(t),
	})

	require.True(t, app.Session.IsAuthenticated())
	require.Equal(t, "Ada", app.Session.CurrentUser().DisplayName)
}

func TestLoginViaBusRejectsForeignOrigin(t *testing.T) {
	app := newTestApp(t)

	app.Handshake.Start()
	attemptID := awaitAttemptID(t, app)

	app.Bus.Publish(domain.CompletionMessage{
		Origin:    "https://evil.example.com",
		Kind:      domain.CompletionSuccess,
		AttemptID: attemptID,
		User:      &domain.User{ID: "user-1"},
		Token:     freshToken(t),
	})

	require.False(t, app.Session.IsAuthenticated())
}

func TestLoginViaFlagChannel(t *testing.T) {
	app := newTestApp(t)

	app.Handshake.Start()
	attemptID := awaitAttemptID(t, app)

	// The confirming navigation persists credentials first, then flips the
	// sentinel. The watcher re-reads them and converges on Confirm.
	ctx := context.Background()
	require.NoError(t, app.db.Credentials().SaveSession(ctx, domain.Session{
		User:  &domain.User{ID: "user-1", DisplayName: "Ada"},
		Token: freshToken(t),
	}))

	stop := app.WatchCompletion(attemptID)
	defer stop()

	require.NoError(t, app.db.Sentinels().Write(ctx, attemptID, service.SentinelSuccess))

	require.Eventually(t, func() bool {
		return app.Session.IsAuthenticated()
	}, 3*time.Second, 10*time.Millisecond)
	require.Equal(t, domain.AttemptConfirmed, app.Handshake.Attempt().Status)
}

func TestBothChannelsWriteSessionOnce(t *testing.T) {
	app := newTestApp(t)

	var notifications atomic.Int32
	app.Session.Subscribe(func() { notifications.Add(1) })

	app.Handshake.Start()
	attemptID := awaitAttemptID(t, app)

	token := freshToken(t)
	user := &domain.User{ID: "user-1", DisplayName: "Ada"}

	// Same completion arrives on both channels: bus first, sentinel behind it.
	ctx := context.Background()
	require.NoError(t, app.db.Credentials().SaveSession(ctx, domain.Session{User: user, Token: token}))
	require.NoError(t, app.db.Sentinels().Write(ctx, attemptID, service.SentinelSuccess))

	stop := app.WatchCompletion(attemptID)
	defer stop()

	app.Bus.Publish(domain.CompletionMessage{
		Origin:    "app://membuddy",
		Kind:      domain.CompletionSuccess,
		AttemptID: attemptID,
		User:      user,
		Token:     token,
	})

	// Give the flag watcher time to consume its sentinel and lose the race.
	time.Sleep(100 * time.Millisecond)

	require.True(t, app.Session.IsAuthenticated())
	require.EqualValues(t, 1, notifications.Load(), "first completion wins, the session is written once")
}

func TestLoginViaFlagChannelFailure(t *testing.T) {
	app := newTestApp(t)

	app.Handshake.Start()
	attemptID := awaitAttemptID(t, app)

	stop := app.WatchCompletion(attemptID)
	defer stop()

	ctx := context.Background()
	require.NoError(t, app.db.Sentinels().Write(ctx, attemptID, "failed:scan was rejected"))

	require.Eventually(t, func() bool {
		return app.Handshake.Attempt().Status == domain.AttemptFailed
	}, 3*time.Second, 10*time.Millisecond)
	require.False(t, app.Session.IsAuthenticated())
}
