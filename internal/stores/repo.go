package stores

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// PlanUpdate is the full subscription state written on a plan change.
type PlanUpdate struct {
	Plan         enums.SubscriptionPlan
	ProductLimit int
	StartDate    *time.Time
	EndDate      *time.Time
}

// Repository is the store persistence surface used by subscription flows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, store *models.Store) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Store, error)
	UpdatePlan(ctx context.Context, id uuid.UUID, update PlanUpdate) error
	UpdateProductLimit(ctx context.Context, id uuid.UUID, limit int) error
	ListLapsed(ctx context.Context, now time.Time, limit int, exclude []uuid.UUID) ([]models.Store, error)
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

func (r *repository) Create(ctx context.Context, store *models.Store) error {
	if store == nil {
		return fmt.Errorf("store is required")
	}
	return r.db.WithContext(ctx).Create(store).Error
}

// FindByID loads a store by its UUID. Missing rows surface gorm.ErrRecordNotFound.
func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Store, error) {
	var store models.Store
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&store).Error; err != nil {
		return nil, err
	}
	return &store, nil
}

// UpdatePlan writes plan, quota and the subscription window together. Nil
// dates are written as NULL.
func (r *repository) UpdatePlan(ctx context.Context, id uuid.UUID, update PlanUpdate) error {
	res := r.db.WithContext(ctx).
		Model(&models.Store{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"plan":                    update.Plan,
			"product_limit":           update.ProductLimit,
			"subscription_start_date": update.StartDate,
			"subscription_end_date":   update.EndDate,
			"updated_at":              time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) UpdateProductLimit(ctx context.Context, id uuid.UUID, limit int) error {
	return r.db.WithContext(ctx).
		Model(&models.Store{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"product_limit": limit,
			"updated_at":    time.Now().UTC(),
		}).Error
}

// ListLapsed returns paid-plan stores whose subscription ended before now,
// earliest expiry first, leaving out the excluded ids.
func (r *repository) ListLapsed(ctx context.Context, now time.Time, limit int, exclude []uuid.UUID) ([]models.Store, error) {
	var stores []models.Store
	query := r.db.WithContext(ctx).
		Where("plan <> ?", enums.PlanFree).
		Where("subscription_end_date IS NOT NULL AND subscription_end_date < ?", now)
	if len(exclude) > 0 {
		query = query.Where("id NOT IN ?", exclude)
	}
	query = query.
		Order("subscription_end_date ASC").
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&stores).Error; err != nil {
		return nil, err
	}
	return stores, nil
}
