package port

// Session is the externally owned authentication signal both engines read.
// Subscribers are notified on every authenticated/unauthenticated
// transition, never on redundant sets.
type Session interface {
	Authenticated() bool

	// Subscribe registers fn for auth transitions and returns an
	// unsubscribe func. fn is invoked outside the session's internal lock.
	Subscribe(fn func(authenticated bool)) (unsubscribe func())
}

// TokenSource supplies the bearer token for authenticated requests. An
// empty token means no session.
type TokenSource interface {
	Token() string
}
