package billing

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JonasWeber/NomadBase/app/models"
)

// pendingRetryAfter is how long a pending ledger admission blocks concurrent
// deliveries of the same event. After it elapses the row is re-admitted, so
// an attempt that died between admission and commit cannot block redelivery
// forever.
const pendingRetryAfter = 2 * time.Minute

// Admission is the result of claiming an event in the processed-event ledger.
type Admission struct {
	Event *models.BillingWebhookEvent
	// Duplicate is set when a prior delivery already reached a terminal
	// outcome; processing must short-circuit to a no-op acknowledgment.
	Duplicate bool
}

// Repository provides the persistence operations of the billing core.
type Repository interface {
	BeginEvent(event *models.BillingWebhookEvent) (*Admission, error)
	CommitEvent(id uint, outcome string, processingErr error) error

	GetEntitlement(userID uint) (*models.UserEntitlement, error)
	FindEntitlementsByCustomerID(customerID string) ([]models.UserEntitlement, error)
	ListItems(userID uint) ([]models.EntitlementItem, error)
	UserExists(userID uint) (bool, error)
	FindActivePlanMapping(provider, providerPlanRef string) (*models.BillingPlanMapping, error)

	ApplyChange(ch *Change) (bool, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// BeginEvent atomically claims an event id in the ledger. The unique
// (provider, provider_event_id) key is what makes concurrent deliveries of
// the same event safe: exactly one insert wins, everyone else observes the
// stored row.
func (r *gormRepository) BeginEvent(event *models.BillingWebhookEvent) (*Admission, error) {
	event.Outcome = models.WebhookOutcomePending
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return nil, tx.Error
	}
	created := tx.RowsAffected > 0

	var stored models.BillingWebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return nil, err
	}
	if created {
		return &Admission{Event: &stored}, nil
	}
	if stored.IsTerminal() {
		return &Admission{Event: &stored, Duplicate: true}, nil
	}
	if stored.Outcome == models.WebhookOutcomePending && time.Since(stored.UpdatedAt) < pendingRetryAfter {
		return nil, ErrEventInFlight
	}

	// Failed or stale-pending row: re-admit for another attempt.
	res := r.db.Model(&models.BillingWebhookEvent{}).
		Where("id = ? AND outcome IN ?", stored.ID, []string{models.WebhookOutcomeFailed, models.WebhookOutcomePending}).
		Updates(map[string]interface{}{
			"outcome":          models.WebhookOutcomePending,
			"processing_error": "",
			"updated_at":       time.Now(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	stored.Outcome = models.WebhookOutcomePending
	return &Admission{Event: &stored}, nil
}

func (r *gormRepository) CommitEvent(id uint, outcome string, processingErr error) error {
	now := time.Now()
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return r.db.Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(map[string]interface{}{
		"outcome":          outcome,
		"processed_at":     &now,
		"processing_error": errMsg,
	}).Error
}

func (r *gormRepository) GetEntitlement(userID uint) (*models.UserEntitlement, error) {
	var ent models.UserEntitlement
	err := r.db.Where("user_id = ?", userID).First(&ent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ent, nil
}

func (r *gormRepository) FindEntitlementsByCustomerID(customerID string) ([]models.UserEntitlement, error) {
	var ents []models.UserEntitlement
	err := r.db.Where("external_customer_id = ?", customerID).
		Order("updated_at DESC").
		Find(&ents).Error
	return ents, err
}

func (r *gormRepository) ListItems(userID uint) ([]models.EntitlementItem, error) {
	var items []models.EntitlementItem
	err := r.db.Where("user_id = ?", userID).Order("created_at ASC").Find(&items).Error
	return items, err
}

func (r *gormRepository) UserExists(userID uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.User{}).Where("id = ?", userID).Count(&count).Error
	return count > 0, err
}

func (r *gormRepository) FindActivePlanMapping(provider, providerPlanRef string) (*models.BillingPlanMapping, error) {
	var m models.BillingPlanMapping
	err := r.db.
		Where("provider = ? AND provider_plan_ref = ? AND is_active = ?", provider, providerPlanRef, true).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ApplyChange persists a state-machine patch. The subscription-state update
// is a single conditional UPDATE carrying the stale-write guard, never a
// read-modify-write, so two racing deliveries cannot produce a lost update;
// item inserts rely on the unique (user_id, item_id) key for the same
// reason. Returns false when the guard rejected the write and nothing else
// changed.
func (r *gormRepository) ApplyChange(ch *Change) (bool, error) {
	applied := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		// Ensure the base row exists; first writer wins, losers no-op.
		base := &models.UserEntitlement{
			UserID: ch.UserID,
			Status: models.EntitlementStatusNone,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).Create(base).Error; err != nil {
			return err
		}

		for _, itemID := range ch.AddItems {
			res := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{
					{Name: "user_id"},
					{Name: "item_id"},
				},
				DoNothing: true,
			}).Create(&models.EntitlementItem{
				UserID:        ch.UserID,
				ItemID:        itemID,
				SourceEventID: ch.EventID,
			})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				applied = true
			}
		}

		if ch.CustomerID != nil {
			// First linkage wins; the unique index on external_customer_id
			// prevents two users from claiming the same customer.
			if err := tx.Model(&models.UserEntitlement{}).
				Where("user_id = ? AND external_customer_id IS NULL", ch.UserID).
				Update("external_customer_id", *ch.CustomerID).Error; err != nil {
				return err
			}
		}

		if ch.touchesSubscription() {
			updates := map[string]interface{}{
				"status":                   *ch.Status,
				"external_subscription_id": ch.SubscriptionID,
				"last_event_at":            ch.EventTime,
			}
			if ch.PlanID != nil {
				updates["plan_id"] = *ch.PlanID
			}
			if ch.PeriodEnd != nil {
				updates["current_period_end"] = *ch.PeriodEnd
			}

			res := tx.Model(&models.UserEntitlement{}).
				Where("user_id = ?", ch.UserID).
				Where("external_subscription_id <> ? OR status <> ?", ch.SubscriptionID, models.EntitlementStatusCanceled).
				Where("external_subscription_id <> ? OR last_event_at IS NULL OR last_event_at < ?", ch.SubscriptionID, ch.EventTime).
				Updates(updates)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				applied = true
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}
