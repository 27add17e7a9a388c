package domain

import "time"

// AttemptStatus is the lifecycle state of a single cross-device login attempt.
type AttemptStatus string

const (
	AttemptGenerating   AttemptStatus = "generating"
	AttemptAwaitingScan AttemptStatus = "awaiting_scan"
	AttemptConfirmed    AttemptStatus = "confirmed"
	AttemptExpired      AttemptStatus = "expired"
	AttemptFailed       AttemptStatus = "failed"
)

// Terminal reports whether the status ends the attempt's lifecycle. No timer
// may stay armed once an attempt reaches a terminal status.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptConfirmed || s == AttemptFailed
}

// HandshakeAttempt is one logical cross-device login try. AttemptID is the
// nonce shared with the confirming device and the join key for both
// completion channels.
type HandshakeAttempt struct {
	AttemptID  string
	QRPayload  string
	ImageAsset string // base64 PNG rendered by the user-center, may be empty
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Status     AttemptStatus
}
