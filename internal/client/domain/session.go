package domain

// Session is a snapshot of the locally-cached authentication state.
//
// Invariant: User and Token are both set or both nil/empty. The only writers
// are the session service's atomic setter and clearer.
type Session struct {
	User         *User
	Token        string
	RefreshToken string
}

// Empty reports whether the session carries no credentials at all.
func (s Session) Empty() bool {
	return s.User == nil && s.Token == "" && s.RefreshToken == ""
}
