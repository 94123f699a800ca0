package session

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// VisitorSession pins a visitor to one fortune slot for a randomized window.
// At most one live row exists per visitor hash; expired rows are purged
// opportunistically on the next resolution, not by a background sweep.
type VisitorSession struct {
	VisitorHash string    `gorm:"column:visitor_hash;primaryKey;size:64;not null"`
	Slot        int       `gorm:"column:fortune_slot;not null"`
	AssignedAt  time.Time `gorm:"column:assigned_at;autoCreateTime"`
	ExpiresAt   time.Time `gorm:"column:expires_at;not null;index:idx_session_expires"`
}

// TableName provides the explicit table binding for GORM.
func (VisitorSession) TableName() string {
	return "user_sessions"
}

// VisitorHash derives the non-reversible visitor identity from the client
// address, user agent and calendar day. Because the day is part of the
// digest, identity rolls over at local midnight even when a session window
// has not expired yet; the stranded row is garbage-collected by the purge.
func VisitorHash(remoteAddr, userAgent, date string) string {
	if remoteAddr == "" {
		remoteAddr = "unknown"
	}
	if userAgent == "" {
		userAgent = "unknown"
	}
	sum := sha256.Sum256([]byte(remoteAddr + userAgent + date))
	return hex.EncodeToString(sum[:])
}
