package rbac

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
	RoleDoctor   Role = "doctor"
	RolePatient  Role = "patient"
)

// RoleScope is the capability set attached to a role. Unknown roles
// resolve to the zero value, so everything fails closed.
type RoleScope struct {
	CanSeePII           bool
	CanSeeInternalNotes bool
	CanApplyActions     bool
}

func Scope(role Role) RoleScope {
	switch role {
	case RoleAdmin, RoleEmployee:
		return RoleScope{CanSeePII: true, CanSeeInternalNotes: true, CanApplyActions: true}
	case RoleDoctor:
		return RoleScope{CanSeePII: true}
	case RolePatient:
		return RoleScope{}
	default:
		return RoleScope{}
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleAdmin, RoleEmployee, RoleDoctor, RolePatient:
		return Role(role)
	default:
		return RolePatient
	}
}

// MemoryScope maps a role to the most privileged memory projection it may
// read: internal, doctor, or patient.
func MemoryScope(role Role) string {
	scope := Scope(role)
	switch {
	case scope.CanSeeInternalNotes:
		return "internal"
	case scope.CanSeePII:
		return "doctor"
	default:
		return "patient"
	}
}
