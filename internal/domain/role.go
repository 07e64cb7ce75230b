package domain

// Role names recognised by the role gate. Stored verbatim on the user
// record and carried in bearer-token claims.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleUser    = "user"
)

// ValidRole reports whether the given name is a known role.
func ValidRole(name string) bool {
	switch name {
	case RoleAdmin, RoleManager, RoleUser:
		return true
	}
	return false
}
