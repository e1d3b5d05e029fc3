package rbac

// Workspace roles. These strings are stored in JWT claims; keep them stable.
const (
	RoleMaster = "master" // platform operator, crosses workspace role checks
	RoleAdmin  = "admin"
	RoleUser   = "user"
)

func IsMaster(role string) bool { return role == RoleMaster }

// CanManagePipelines reports whether role may close cards or move other users' cards.
func CanManagePipelines(role string) bool {
	return role == RoleMaster || role == RoleAdmin
}
