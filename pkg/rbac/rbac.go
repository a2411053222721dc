// Package rbac provides role-based access control checks.
package rbac

import "github.com/NicolasHaas/roomspeak/pkg/model"

// permissionMatrix maps roles to their allowed permissions.
var permissionMatrix = map[model.Role]map[model.Permission]bool{
	model.RoleAdmin: {
		model.PermMuteUser: true,
		model.PermKickUser: true,
		model.PermBanUser:  true,
	},
	model.RoleUser: {
		// No special permissions — can chat, create and join rooms, and talk
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role model.Role, perm model.Permission) bool {
	perms, ok := permissionMatrix[role]
	if !ok {
		return false
	}
	return perms[perm]
}

// IsModerator reports whether the role holds any moderation permission.
func IsModerator(role model.Role) bool {
	for _, granted := range permissionMatrix[role] {
		if granted {
			return true
		}
	}
	return false
}

// RequirePermission returns an error message if the role lacks the permission, or empty string if allowed.
func RequirePermission(role model.Role, perm model.Permission) string {
	if HasPermission(role, perm) {
		return ""
	}
	return "permission denied: " + permName(perm) + " requires admin role"
}

func permName(p model.Permission) string {
	switch p {
	case model.PermMuteUser:
		return "mute_user"
	case model.PermKickUser:
		return "kick_user"
	case model.PermBanUser:
		return "ban_user"
	default:
		return "unknown"
	}
}
