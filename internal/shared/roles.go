package shared

// Role is the auth role carried by a team member and their token.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleClassA Role = "class_a"
	RoleClassB Role = "class_b"
	RoleVA     Role = "va"
)

// Valid reports whether r is one of the recognised auth roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleClassA, RoleClassB, RoleVA:
		return true
	}
	return false
}
