package analytics

import "time"

// EventKind enumerates the tracked interaction types.
type EventKind string

const (
	// EventView is recorded every time a fortune is served.
	EventView EventKind = "view"
	// EventShare is recorded when a visitor shares their fortune.
	EventShare EventKind = "share"
)

// Event is the append-only interaction log.
type Event struct {
	ID          string    `gorm:"column:id;primaryKey;size:36;not null"`
	Kind        EventKind `gorm:"column:event_type;size:16;not null"`
	FortuneID   uint      `gorm:"column:fortune_id"`
	VisitorHash string    `gorm:"column:visitor_hash;size:64;index:idx_analytics_visitor"`
	UserAgent   string    `gorm:"column:user_agent;size:512"`
	Referrer    string    `gorm:"column:referrer;size:512"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime;index:idx_analytics_date"`
}

// TableName provides the explicit table binding for GORM.
func (Event) TableName() string {
	return "analytics"
}

// DailyStat rolls the event log up into one monotonically incremented row per
// calendar day.
type DailyStat struct {
	Date           string    `gorm:"column:stat_date;primaryKey;size:10;not null" json:"stat_date"`
	TotalViews     int64     `gorm:"column:total_views;not null;default:0" json:"total_views"`
	UniqueVisitors int64     `gorm:"column:unique_visitors;not null;default:0" json:"unique_visitors"`
	TotalShares    int64     `gorm:"column:total_shares;not null;default:0" json:"total_shares"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName provides the explicit table binding for GORM.
func (DailyStat) TableName() string {
	return "daily_stats"
}

// Totals aggregates daily_stats across all days.
type Totals struct {
	Views    int64 `json:"views"`
	Visitors int64 `json:"visitors"`
	Shares   int64 `json:"shares"`
}
