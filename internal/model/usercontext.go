package model

// UserContext is the authenticated caller presented to the broker. The core
// does not authenticate callers (see spec Non-goals) — this value is
// trusted input, supplied already-authenticated by the HTTP shell.
type UserContext struct {
	UserID string         `json:"user_id"`
	Email  string         `json:"email"`
	Groups []string       `json:"groups"`
	Claims map[string]any `json:"claims,omitempty"`
}

// IsServiceAccount reports whether the claims mark this caller as a service
// account, which bypasses the ACL gate.
func (u UserContext) IsServiceAccount() bool {
	v, ok := u.Claims["is_service_account"]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}
