package models

import "time"

// EntitlementItem records a single one-time purchase (a paid report). The set
// of items per user only ever grows; the unique (user_id, item_id) pair makes
// re-applying the same purchase a no-op.
type EntitlementItem struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"not null;index:ux_entitlement_items_user_item,unique,priority:1" json:"user_id"`
	ItemID        string    `gorm:"type:varchar(191);not null;index:ux_entitlement_items_user_item,unique,priority:2" json:"item_id"`
	SourceEventID string    `gorm:"type:varchar(191);not null;default:''" json:"source_event_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}
