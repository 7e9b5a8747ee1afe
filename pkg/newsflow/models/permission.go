package models

// Permission says who may act on a content item while it sits in a state.
type Permission string

const (
	// PermissionUser requires the acting user to be bound to the item for the
	// state's actor role.
	PermissionUser Permission = "USER"
	// PermissionGroup lets any member of the state's actor role act.
	PermissionGroup Permission = "GROUP"
)

func (p Permission) Valid() bool {
	return p == PermissionUser || p == PermissionGroup
}
