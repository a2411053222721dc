package model

import "time"

// Ban represents a banned account.
type Ban struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Reason    string    `json:"reason"`
	BannedBy  int64     `json:"banned_by"`
	ExpiresAt time.Time `json:"expires_at"` // zero = permanent
	CreatedAt time.Time `json:"created_at"`
}

// Active reports whether the ban is still in force at now.
func (b *Ban) Active(now time.Time) bool {
	return b.ExpiresAt.IsZero() || b.ExpiresAt.After(now)
}
