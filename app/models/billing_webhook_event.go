package models

import "time"

const (
	WebhookOutcomePending = "pending"
	WebhookOutcomeApplied = "applied"
	WebhookOutcomeNoop    = "noop"
	WebhookOutcomeFailed  = "failed"
)

// BillingWebhookEvent is the processed-event ledger: one row per distinct
// provider event id, created on admission and never deleted. A row with a
// terminal outcome (applied/noop) makes every redelivery of that event a
// no-op acknowledgment; a failed row is re-admitted on redelivery.
type BillingWebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Provider        string     `gorm:"type:varchar(20);not null;index:ux_billing_webhook_events_provider_event,unique,priority:1;index" json:"provider"`
	ProviderEventID string     `gorm:"type:varchar(191);not null;default:'';index:ux_billing_webhook_events_provider_event,unique,priority:2" json:"provider_event_id"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json"`
	SignatureValid  bool       `gorm:"default:false;index" json:"signature_valid"`
	Outcome         string     `gorm:"type:varchar(16);not null;default:'pending';index" json:"outcome"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminal reports whether the stored outcome short-circuits redelivery.
func (e *BillingWebhookEvent) IsTerminal() bool {
	return e.Outcome == WebhookOutcomeApplied || e.Outcome == WebhookOutcomeNoop
}
