package session

// State is a step of the per-run login state machine:
//
//	Start → Probing → Authenticated
//	                → Unauthenticated → InteractiveLogin → Authenticated
//	                                                     → Failed
type State int

const (
	StateStart State = iota
	StateProbing
	StateAuthenticated
	StateUnauthenticated
	StateInteractiveLogin
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateProbing:
		return "probing"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateInteractiveLogin:
		return "interactive_login"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition happens in this run.
func (s State) Terminal() bool {
	return s == StateAuthenticated || s == StateFailed
}

// LoginMode records how the run became authenticated.
type LoginMode string

const (
	LoginNone        LoginMode = ""
	LoginResumed     LoginMode = "resumed"
	LoginInteractive LoginMode = "interactive"
)
