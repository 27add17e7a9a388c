package identity

import (
	"time"

	"github.com/membuddy/linkauth/internal/client/domain"
)

// LoginCode is the user-center's response to a code-generation request.
// ExpireAt is milliseconds since epoch on the wire.
type LoginCode struct {
	AttemptID string `json:"qrcodeId"`
	QRPayload string `json:"qrContent"`
	ExpireAt  int64  `json:"expireAt"`
}

// ExpiresAt converts the wire expiry to a time.Time.
func (lc LoginCode) ExpiresAt() time.Time {
	return time.UnixMilli(lc.ExpireAt)
}

// ScannableAsset is the rendered mini-program code image for a login code.
type ScannableAsset struct {
	ImageBase64 string `json:"imageBase64"`
}

// Attempt status values as the user-center reports them.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusExpired   = "expired"
)

// PollResult is one answer from the status poll endpoint. User and the tokens
// are only present when Status is confirmed.
type PollResult struct {
	Status       string       `json:"status"`
	User         *domain.User `json:"user,omitempty"`
	Token        string       `json:"accessToken,omitempty"`
	RefreshToken string       `json:"refreshToken,omitempty"`
}

// AuthResponse is what password login returns.
type AuthResponse struct {
	User         domain.User `json:"user"`
	Token        string      `json:"token"`
	RefreshToken string      `json:"refreshToken"`
}
