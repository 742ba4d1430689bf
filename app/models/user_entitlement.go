package models

import "time"

// Billing provider constants used across billing-related models.
const (
	BillingProviderStripe = "stripe"
)

const (
	EntitlementStatusNone     = "none"
	EntitlementStatusTrialing = "trialing"
	EntitlementStatusActive   = "active"
	EntitlementStatusPastDue  = "past_due"
	EntitlementStatusCanceled = "canceled"
)

// UserEntitlement is the authoritative record of a user's paid access. It is
// created on the first grant-type billing event and mutated, never deleted.
//
// LastEventAt carries the occurred-at time of the last applied billing event
// for the current external subscription and is the stale-write guard: an
// event that is not newer is rejected as a no-op. It is deliberately separate
// from the ORM-managed UpdatedAt so bookkeeping writes never move the guard.
type UserEntitlement struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	UserID                 uint       `gorm:"not null;uniqueIndex" json:"user_id"`
	Status                 string     `gorm:"type:varchar(32);not null;default:'none';index" json:"status"`
	ExternalCustomerID     *string    `gorm:"type:varchar(191);default:null;uniqueIndex" json:"external_customer_id,omitempty"`
	ExternalSubscriptionID string     `gorm:"type:varchar(191);not null;default:'';index" json:"external_subscription_id"`
	PlanID                 string     `gorm:"type:varchar(50);not null;default:''" json:"plan_id"`
	CurrentPeriodEnd       *time.Time `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	LastEventAt            *time.Time `gorm:"type:timestamp;default:null" json:"last_event_at,omitempty"`
	CreatedAt              time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsEntitling reports whether a billing status grants paid access.
func IsEntitling(status string) bool {
	switch status {
	case EntitlementStatusActive, EntitlementStatusTrialing, EntitlementStatusPastDue:
		return true
	default:
		return false
	}
}
