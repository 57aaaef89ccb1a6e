package rbac

import "testing"

func TestScope(t *testing.T) {
	cases := []struct {
		name    string
		role    Role
		pii     bool
		notes   bool
		actions bool
	}{
		{name: "admin", role: RoleAdmin, pii: true, notes: true, actions: true},
		{name: "employee", role: RoleEmployee, pii: true, notes: true, actions: true},
		{name: "doctor", role: RoleDoctor, pii: true, notes: false, actions: false},
		{name: "patient", role: RolePatient, pii: false, notes: false, actions: false},
		{name: "unknown fails closed", role: Role("guest"), pii: false, notes: false, actions: false},
		{name: "empty fails closed", role: Role(""), pii: false, notes: false, actions: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Scope(tc.role)
			if got.CanSeePII != tc.pii || got.CanSeeInternalNotes != tc.notes || got.CanApplyActions != tc.actions {
				t.Fatalf("Scope(%q) = %+v, want pii=%v notes=%v actions=%v", tc.role, got, tc.pii, tc.notes, tc.actions)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("doctor"); got != RoleDoctor {
		t.Fatalf("Normalize(doctor) = %q", got)
	}
	if got := Normalize("root"); got != RolePatient {
		t.Fatalf("Normalize(root) = %q, want patient", got)
	}
}

func TestMemoryScope(t *testing.T) {
	cases := map[Role]string{
		RoleAdmin:    "internal",
		RoleEmployee: "internal",
		RoleDoctor:   "doctor",
		RolePatient:  "patient",
		Role("bot"):  "patient",
	}
	for role, want := range cases {
		if got := MemoryScope(role); got != want {
			t.Errorf("MemoryScope(%q) = %q, want %q", role, got, want)
		}
	}
}
