package identity

type Role string

const (
	RoleCustomer Role = "customer"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
	// RoleSystem is used by background jobs, never issued in tokens.
	RoleSystem Role = "system"
)

// Actor is the verified caller context supplied by the auth collaborator.
type Actor struct {
	UserID     int64
	Role       Role
	ProviderID int64
}

func System() Actor {
	return Actor{Role: RoleSystem}
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }
