package analytics

import (
	"time"

	"gorm.io/datatypes"
)

// AnalyticsSnapshot stores one UTC day of admin metrics, keyed "YYYY-MM-DD".
type AnalyticsSnapshot struct {
	Day                 string         `gorm:"column:day;primaryKey" json:"day"`
	MRRCents            int64          `gorm:"column:mrr_cents;not null" json:"mrr_cents"`
	ActiveSubscriptions int            `gorm:"column:active_subscriptions;not null" json:"active_subscriptions"`
	PaidSubscriptions   int            `gorm:"column:paid_subscriptions;not null" json:"paid_subscriptions"`
	ChurnRate           float64        `gorm:"column:churn_rate;not null" json:"churn_rate"`
	NewUsers            int            `gorm:"column:new_users;not null" json:"new_users"`
	Generations         int            `gorm:"column:generations;not null" json:"generations"`
	FailedGenerations   int            `gorm:"column:failed_generations;not null" json:"failed_generations"`
	Breakdown           datatypes.JSON `gorm:"column:breakdown" json:"breakdown"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

func (AnalyticsSnapshot) TableName() string { return "analytics_snapshot" }
