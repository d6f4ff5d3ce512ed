package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

// PaymentUpdate is the target payment state written for every order sharing
// a gateway reference.
type PaymentUpdate struct {
	Reference string
	PaidAt    time.Time
	Details   models.PaymentDetails
}

// Repository is the order persistence surface for payment reconciliation and
// inventory restoration.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateAggregate(ctx context.Context, aggregate *models.AggregateOrder) error
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindAggregateByReference(ctx context.Context, reference string) (*models.AggregateOrder, error)
	ListByReference(ctx context.Context, reference string) ([]models.Order, error)
	ApplyChargeSuccess(ctx context.Context, update PaymentUpdate) (orders int64, aggregates int64, err error)
	ApplyChargeFailure(ctx context.Context, update PaymentUpdate) (orders int64, aggregates int64, err error)
	MarkItemRestored(ctx context.Context, itemID uuid.UUID) (bool, error)
	MarkInventoryRestored(ctx context.Context, orderID uuid.UUID, reason string, at time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateAggregate(ctx context.Context, aggregate *models.AggregateOrder) error {
	if aggregate == nil {
		return fmt.Errorf("aggregate order is required")
	}
	if err := r.db.WithContext(ctx).Create(aggregate).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "gateway reference already in use")
		}
		return err
	}
	return nil
}

// Create persists the order and its items.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	if order == nil {
		return fmt.Errorf("order is required")
	}
	return r.db.WithContext(ctx).Create(order).Error
}

// FindByID loads an order with its items in insertion order.
func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC").Order("id ASC")
		}).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindAggregateByReference(ctx context.Context, reference string) (*models.AggregateOrder, error) {
	var aggregate models.AggregateOrder
	if err := r.db.WithContext(ctx).Where("gateway_reference = ?", reference).First(&aggregate).Error; err != nil {
		return nil, err
	}
	return &aggregate, nil
}

func (r *repository) ListByReference(ctx context.Context, reference string) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("gateway_reference = ?", reference).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// ApplyChargeSuccess marks every order and the aggregate with the reference
// paid. paid_at keeps its first value. Fulfillment advances to processing
// from pending, or from the cancelled state a failed charge left behind;
// shipped and delivered rows keep theirs. Refunded rows are never touched.
func (r *repository) ApplyChargeSuccess(ctx context.Context, update PaymentUpdate) (int64, int64, error) {
	details, err := encodeDetails(update.Details)
	if err != nil {
		return 0, 0, err
	}
	values := map[string]any{
		"payment_status": enums.PaymentStatusPaid,
		"fulfillment_status": gorm.Expr(
			"CASE WHEN fulfillment_status = ? OR (payment_status = ? AND fulfillment_status = ?) THEN ? ELSE fulfillment_status END",
			enums.FulfillmentStatusPending,
			enums.PaymentStatusFailed, enums.FulfillmentStatusCancelled,
			enums.FulfillmentStatusProcessing,
		),
		"paid_at":         gorm.Expr("COALESCE(paid_at, ?)", update.PaidAt),
		"payment_details": details,
		"updated_at":      time.Now().UTC(),
	}
	scope := func(db *gorm.DB) *gorm.DB {
		return db.Where("gateway_reference = ? AND payment_status <> ?", update.Reference, enums.PaymentStatusRefunded)
	}
	return r.applyBoth(ctx, scope, values)
}

// ApplyChargeFailure marks pending or failed rows failed and cancelled.
// Paid and refunded rows are left as they are.
func (r *repository) ApplyChargeFailure(ctx context.Context, update PaymentUpdate) (int64, int64, error) {
	details, err := encodeDetails(update.Details)
	if err != nil {
		return 0, 0, err
	}
	values := map[string]any{
		"payment_status":     enums.PaymentStatusFailed,
		"fulfillment_status": enums.FulfillmentStatusCancelled,
		"payment_details":    details,
		"updated_at":         time.Now().UTC(),
	}
	scope := func(db *gorm.DB) *gorm.DB {
		return db.Where("gateway_reference = ? AND payment_status NOT IN ?", update.Reference,
			[]enums.PaymentStatus{enums.PaymentStatusPaid, enums.PaymentStatusRefunded})
	}
	return r.applyBoth(ctx, scope, values)
}

func (r *repository) applyBoth(ctx context.Context, scope func(*gorm.DB) *gorm.DB, values map[string]any) (int64, int64, error) {
	orderRes := r.db.WithContext(ctx).Model(&models.Order{}).Scopes(scope).Updates(values)
	if orderRes.Error != nil {
		return 0, 0, orderRes.Error
	}
	aggRes := r.db.WithContext(ctx).Model(&models.AggregateOrder{}).Scopes(scope).Updates(values)
	if aggRes.Error != nil {
		return 0, 0, aggRes.Error
	}
	return orderRes.RowsAffected, aggRes.RowsAffected, nil
}

// MarkItemRestored flips the item's restored marker. It reports false when
// the item was already restored.
func (r *repository) MarkItemRestored(ctx context.Context, itemID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("id = ? AND inventory_restored = ?", itemID, false).
		Update("inventory_restored", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkInventoryRestored sets the order-level marker once.
func (r *repository) MarkInventoryRestored(ctx context.Context, orderID uuid.UUID, reason string, at time.Time) (bool, error) {
	values := map[string]any{
		"inventory_restored":    true,
		"inventory_restored_at": at,
		"updated_at":            at,
	}
	if reason != "" {
		values["cancel_reason"] = gorm.Expr("COALESCE(cancel_reason, ?)", reason)
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND inventory_restored = ?", orderID, false).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func encodeDetails(details models.PaymentDetails) (string, error) {
	raw, err := json.Marshal(details)
	if err != nil {
		return "", fmt.Errorf("encoding payment details: %w", err)
	}
	return string(raw), nil
}
