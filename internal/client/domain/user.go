package domain

import "time"

// User is the authenticated account as the user-center reports it. It is
// replaced wholesale on re-auth, never patched field by field.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"name"`
	AvatarURL   string    `json:"avatar,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}
