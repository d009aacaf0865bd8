package auth

// Canonical role names.
const (
	RoleSystemAdmin = "system_admin"
	RoleSchoolAdmin = "school_admin"
	RoleTeacher     = "teacher"
	RoleParent      = "parent"
	RoleStudent     = "student"
)

// Tier orders roles for access decisions. Higher tiers may act on lower ones.
type Tier int

// Role tiers. Custom roles created through the API sit below every
// canonical role.
const (
	TierCustom Tier = iota
	TierStudent
	TierParent
	TierTeacher
	TierSchoolAdmin
	TierSystemAdmin
)

var roleTiers = map[string]Tier{
	RoleSystemAdmin: TierSystemAdmin,
	RoleSchoolAdmin: TierSchoolAdmin,
	RoleTeacher:     TierTeacher,
	RoleParent:      TierParent,
	RoleStudent:     TierStudent,
}

// canonicalRoles lists the built-in roles, highest tier first.
var canonicalRoles = []struct {
	Name        string
	Description string
}{
	{RoleSystemAdmin, "Platform administrator with access to every organization"},
	{RoleSchoolAdmin, "Administrator of a single organization"},
	{RoleTeacher, "Teaching staff"},
	{RoleParent, "Parent or guardian of a student"},
	{RoleStudent, "Student"},
}

// TierOf returns the tier of a role name.
func TierOf(roleName string) Tier {
	return roleTiers[roleName]
}

// IsTopTier reports whether the role is exempt from organization scoping.
func IsTopTier(roleName string) bool {
	return TierOf(roleName) == TierSystemAdmin
}

// IsAtLeast reports whether roleName sits at or above min.
func IsAtLeast(roleName string, min Tier) bool {
	return TierOf(roleName) >= min
}

// IsCanonicalRole reports whether name is one of the built-in roles.
func IsCanonicalRole(name string) bool {
	_, ok := roleTiers[name]
	return ok
}
