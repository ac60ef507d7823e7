package models

// Role is a closed set: permission checks switch over it exhaustively
// instead of looking capabilities up by string.
type Role string

const (
	RolePlayer  Role = "player"
	RoleSupport Role = "support"
	RoleAdmin   Role = "admin"
)

type Capability int

const (
	// CapPlay gates regular authenticated gameplay endpoints.
	CapPlay Capability = iota
	// CapViewWaitlist allows reading waitlist/admission state for others.
	CapViewWaitlist
	// CapManageAccess allows bulk grant/revoke and waitlist approval.
	CapManageAccess
)

// Can reports whether the role grants the capability. Adding a role means
// deciding every capability here, not sprinkling string checks in handlers.
func (r Role) Can(c Capability) bool {
	switch r {
	case RoleAdmin:
		return true
	case RoleSupport:
		return c == CapPlay || c == CapViewWaitlist
	case RolePlayer:
		return c == CapPlay
	default:
		return false
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RolePlayer, RoleSupport, RoleAdmin:
		return true
	}
	return false
}
