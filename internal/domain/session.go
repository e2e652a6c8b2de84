package domain

import "time"

// Session is the audit record of one issued bearer token. The ledger is
// advisory: token validation never consults it, so a missing or stale row
// cannot lock anyone out.
type Session struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	TokenHash string    `gorm:"size:128;uniqueIndex;not null" json:"-"`
	IP        string    `gorm:"size:64" json:"ip"`
	UserAgent string    `gorm:"size:512" json:"user_agent"`
	ExpiresAt time.Time `gorm:"index;not null" json:"expires_at"`
	Active    bool      `gorm:"index;not null" json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
