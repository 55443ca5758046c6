package auth

import "fmt"

// Role is the enumerated role a user holds within a tenant. Role is modeled
// as a single domain type here; token claims and database rows store its
// string form, and ParseRole is the only place the string form is validated
// back into the enum.
type Role string

const (
	RoleSystemAdministrator Role = "system_administrator"
	RoleHealthcareProvider  Role = "healthcare_provider"
	RoleNurse               Role = "nurse"
	RolePatient             Role = "patient"
	RoleFamilyMember        Role = "family_member"
	RoleResearcher          Role = "researcher"
	RoleITSupport           Role = "it_support"
	RoleReadOnlyUser        Role = "read_only_user"
	RoleDataAnalyst         Role = "data_analyst"
	RoleITAdministrator     Role = "it_administrator"
	RoleGuest               Role = "guest"
)

var allRoles = map[Role]bool{
	RoleSystemAdministrator: true,
	RoleHealthcareProvider:  true,
	RoleNurse:               true,
	RolePatient:             true,
	RoleFamilyMember:        true,
	RoleResearcher:          true,
	RoleITSupport:           true,
	RoleReadOnlyUser:        true,
	RoleDataAnalyst:         true,
	RoleITAdministrator:     true,
	RoleGuest:               true,
}

// ParseRole converts the wire/storage form of a role back into the enum.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !allRoles[r] {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

func (r Role) String() string { return string(r) }

// Valid reports whether the role is one of the enumerated values.
func (r Role) Valid() bool { return allRoles[r] }

// CanInvokeEmergencyAccess reports whether the role may create break-glass
// grants.
func (r Role) CanInvokeEmergencyAccess() bool {
	switch r {
	case RoleHealthcareProvider, RoleNurse, RoleSystemAdministrator:
		return true
	}
	return false
}
