package billing

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	SubscriptionActive   = "active"
	SubscriptionTrialing = "trialing"
	SubscriptionPastDue  = "past_due"
	SubscriptionCanceled = "canceled"
)

type Subscription struct {
	ID                   uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID               uuid.UUID  `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	PlanKey              string     `gorm:"column:plan_key;not null;index" json:"plan_key"`
	Status               string     `gorm:"column:status;not null;index" json:"status"`
	StripeCustomerID     string     `gorm:"column:stripe_customer_id;index" json:"-"`
	StripeSubscriptionID string     `gorm:"column:stripe_subscription_id;index" json:"-"`
	CurrentPeriodEnd     *time.Time `gorm:"column:current_period_end" json:"current_period_end,omitempty"`
	StartedAt            time.Time  `gorm:"column:started_at;not null;index" json:"started_at"`
	CanceledAt           *time.Time `gorm:"column:canceled_at;index" json:"canceled_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

func (Subscription) TableName() string { return "subscription" }

func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// Entitled reports whether the subscription still grants its plan. past_due
// keeps access while Stripe retries the charge.
func (s *Subscription) Entitled() bool {
	if s == nil {
		return false
	}
	switch s.Status {
	case SubscriptionActive, SubscriptionTrialing, SubscriptionPastDue:
		return true
	}
	return false
}

// BillingEvent records processed webhook event ids so redeliveries are no-ops.
type BillingEvent struct {
	EventID     string    `gorm:"column:event_id;primaryKey" json:"event_id"`
	Type        string    `gorm:"column:type;not null;index" json:"type"`
	ProcessedAt time.Time `gorm:"column:processed_at;not null" json:"processed_at"`
}

func (BillingEvent) TableName() string { return "billing_event" }
