package domain

// CompletionKind tags inbound completion messages. The set is closed on
// purpose: anything else arriving on the bus is dropped at the boundary
// instead of leaking ad hoc shapes into the state machine.
type CompletionKind string

const (
	CompletionSuccess CompletionKind = "login_success"
	CompletionError   CompletionKind = "login_error"
)

// CompletionMessage is a login outcome delivered by a confirming surface in
// the same process (the analogue of a cross-window postMessage). Origin is
// checked against the receiver's own origin before the message is believed.
type CompletionMessage struct {
	Origin       string
	Kind         CompletionKind
	AttemptID    string
	User         *User
	Token        string
	RefreshToken string
	Reason       string
}
