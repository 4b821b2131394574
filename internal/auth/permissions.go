package auth

const (
	RoleOperator = "operator"
	RoleAnalyst  = "analyst"
	RoleAdmin    = "admin"
	RoleService  = "service"
)

const (
	PermPilaCalculate = "pila:calculate"
	PermRPARead       = "rpa:read"
	PermRPAWrite      = "rpa:write"
	PermVaultAdmin    = "vault:admin"
	PermAuditRead     = "audit:read"
)

var DefaultPermissions = []string{
	PermPilaCalculate,
	PermRPARead,
	PermRPAWrite,
	PermVaultAdmin,
	PermAuditRead,
}

var RolePermissions = map[string][]string{
	RoleAnalyst: {
		PermPilaCalculate,
		PermRPARead,
	},
	RoleOperator: {
		PermPilaCalculate,
		PermRPARead,
		PermRPAWrite,
	},
	RoleService: {
		PermRPARead,
		PermRPAWrite,
	},
	RoleAdmin: {
		PermPilaCalculate,
		PermRPARead,
		PermRPAWrite,
		PermVaultAdmin,
		PermAuditRead,
	},
}

// HasPermission reports whether role grants perm.
func HasPermission(role, perm string) bool {
	for _, p := range RolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}
