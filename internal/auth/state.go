package auth

import "time"

// State is the position of the [Manager] in the credential lifecycle.
type State int

const (
	LoggedOut State = iota
	Authenticating
	LoggedIn
	Expired
	Refreshing
)

func (s State) String() string {
	switch s {
	case LoggedOut:
		return "logged_out"
	case Authenticating:
		return "authenticating"
	case LoggedIn:
		return "logged_in"
	case Expired:
		return "expired"
	case Refreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// Status is a point-in-time view of the stored credential for display.
type Status struct {
	State           State         `json:"state"`
	LoggedIn        bool          `json:"logged_in"`
	ExpiresAt       time.Time     `json:"expires_at,omitzero"`
	Remaining       time.Duration `json:"remaining"`
	HasRefreshToken bool          `json:"has_refresh_token"`
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
