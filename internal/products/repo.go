package products

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
)

// Repository exposes the product operations needed by plan enforcement and
// inventory restoration.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, product *models.Product) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	ListActiveByStore(ctx context.Context, storeID uuid.UUID) ([]models.Product, error)
	CountActiveByStore(ctx context.Context, storeID uuid.UUID) (int64, error)
	Deactivate(ctx context.Context, storeID uuid.UUID, ids []uuid.UUID) (int64, error)
	IncrementStock(ctx context.Context, id uuid.UUID, qty int) (int64, error)
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

func (r *repository) Create(ctx context.Context, product *models.Product) error {
	if product == nil {
		return fmt.Errorf("product is required")
	}
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// ListActiveByStore returns active, non-deleted products oldest first. The id
// breaks ties between rows created in the same instant.
func (r *repository) ListActiveByStore(ctx context.Context, storeID uuid.UUID) ([]models.Product, error) {
	var rows []models.Product
	err := r.db.WithContext(ctx).
		Where("store_id = ? AND is_active = ? AND is_deleted = ?", storeID, true, false).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) CountActiveByStore(ctx context.Context, storeID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("store_id = ? AND is_active = ? AND is_deleted = ?", storeID, true, false).
		Count(&count).Error
	return count, err
}

// Deactivate flips the given products inactive in one statement. Only rows
// that are still active and belong to the store are touched; callers compare
// the returned count with len(ids).
func (r *repository) Deactivate(ctx context.Context, storeID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("store_id = ? AND id IN ? AND is_active = ?", storeID, ids, true).
		Updates(map[string]any{
			"is_active":  false,
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// IncrementStock adds qty to a non-deleted product's stock. Zero rows
// affected means the product is missing or soft-deleted.
func (r *repository) IncrementStock(ctx context.Context, id uuid.UUID, qty int) (int64, error) {
	if qty <= 0 {
		return 0, fmt.Errorf("quantity must be positive")
	}
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]any{
			"stock_qty":  gorm.Expr("stock_qty + ?", qty),
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}
