package model

// Role represents a user's permission level.
type Role int

const (
	RoleUser  Role = iota // Default role, can chat, create and join rooms, talk
	RoleAdmin             // Moderation: mute, unmute, kick, ban, unban
)

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// ParseRole converts a string to a Role.
func ParseRole(s string) Role {
	switch s {
	case "admin":
		return RoleAdmin
	default:
		return RoleUser
	}
}

// Valid returns true if the role is a recognised value (User or Admin).
func (r Role) Valid() bool {
	return r >= RoleUser && r <= RoleAdmin
}
