package auth

import "slices"

// Action is a verb in a role's advisory permission map.
type Action string

// Action constants.
const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Permissions maps a resource name to the actions a role may perform on it.
// The map is stored with the role and returned to clients; the gate does
// not consult it.
type Permissions map[string][]Action

// Allows reports whether the map grants action on resource.
func (p Permissions) Allows(resource string, action Action) bool {
	return slices.Contains(p[resource], action)
}

// Clone returns a deep copy so callers can't mutate the defaults table.
func (p Permissions) Clone() Permissions {
	out := make(Permissions, len(p))
	for resource, actions := range p {
		out[resource] = slices.Clone(actions)
	}
	return out
}

var crud = []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete}

// defaultPermissions is the capability table for the canonical roles.
var defaultPermissions = map[string]Permissions{
	RoleSystemAdmin: {
		"users":         crud,
		"roles":         crud,
		"organizations": crud,
		"content":       crud,
		"lessons":       crud,
		"questions":     crud,
	},
	RoleSchoolAdmin: {
		"users":         crud,
		"roles":         {ActionRead},
		"organizations": {ActionRead, ActionUpdate},
		"content":       crud,
		"lessons":       crud,
		"questions":     crud,
	},
	RoleTeacher: {
		"lessons":   crud,
		"questions": crud,
		"students":  {ActionRead},
	},
	RoleParent: {
		"students": {ActionRead},
		"lessons":  {ActionRead},
		"progress": {ActionRead},
	},
	RoleStudent: {
		"lessons":   {ActionRead},
		"questions": {ActionRead},
		"answers":   {ActionCreate, ActionRead},
	},
}

// DefaultPermissions returns a copy of the canonical role's permission map,
// or an empty map for custom roles.
func DefaultPermissions(roleName string) Permissions {
	perms, ok := defaultPermissions[roleName]
	if !ok {
		return Permissions{}
	}
	return perms.Clone()
}
