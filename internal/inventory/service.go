package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/orders"
	"github.com/angelmondragon/marketplace-backend/internal/products"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
)

const maxReasonLength = 500

var errProductUnavailable = errors.New("product missing or deleted")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Actor is the authenticated caller requesting a restore.
type Actor struct {
	UserID  uuid.UUID
	StoreID *uuid.UUID
	Role    enums.MemberRole
}

type RestoreInput struct {
	OrderID uuid.UUID
	Reason  string
	Actor   Actor
}

type RestoredItem struct {
	ItemID    uuid.UUID `json:"itemId"`
	ProductID uuid.UUID `json:"productId"`
	Title     string    `json:"title"`
	Quantity  int       `json:"quantity"`
}

type ItemError struct {
	ItemID    uuid.UUID `json:"itemId"`
	ProductID uuid.UUID `json:"productId"`
	Message   string    `json:"message"`
}

// RestoreResult is partial when Success is false: some items were credited
// and Errors lists the rest.
type RestoreResult struct {
	Success         bool
	AlreadyRestored bool
	Message         string
	RestoredItems   []RestoredItem
	Errors          []ItemError
}

type Service interface {
	Restore(ctx context.Context, input RestoreInput) (RestoreResult, error)
}

type ServiceParams struct {
	OrderRepo         orders.Repository
	ProductRepo       products.Repository
	TransactionRunner txRunner
	Outbox            outbox.Emitter
	Logger            *logger.Logger
	Metrics           *metrics.ReconcileMetrics
	Now               func() time.Time
}

type service struct {
	orderRepo   orders.Repository
	productRepo products.Repository
	tx          txRunner
	outbox      outbox.Emitter
	logg        *logger.Logger
	metrics     *metrics.ReconcileMetrics
	now         func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.OrderRepo == nil {
		return nil, fmt.Errorf("order repo required")
	}
	if params.ProductRepo == nil {
		return nil, fmt.Errorf("product repo required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		orderRepo:   params.OrderRepo,
		productRepo: params.ProductRepo,
		tx:          params.TransactionRunner,
		outbox:      params.Outbox,
		logg:        params.Logger,
		metrics:     params.Metrics,
		now:         now,
	}, nil
}

// Restore credits each line item's quantity back to product stock at most
// once. Items are processed in their own transactions so one bad product
// does not block the others; the order marker is only set once every item
// has been credited.
func (s *service) Restore(ctx context.Context, input RestoreInput) (RestoreResult, error) {
	if input.OrderID == uuid.Nil {
		return RestoreResult{}, pkgerrors.New(pkgerrors.CodeValidation, "orderId is required")
	}
	reason := strings.TrimSpace(input.Reason)
	if len(reason) > maxReasonLength {
		return RestoreResult{}, pkgerrors.Newf(pkgerrors.CodeValidation, "reason must be at most %d characters", maxReasonLength)
	}

	order, err := s.orderRepo.FindByID(ctx, input.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RestoreResult{}, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return RestoreResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if err := authorize(input.Actor, order); err != nil {
		return RestoreResult{}, err
	}

	ctx = s.logg.WithOrderID(ctx, order.ID.String())

	if order.InventoryRestored {
		return RestoreResult{
			Success:         true,
			AlreadyRestored: true,
			Message:         "inventory already restored",
			RestoredItems:   []RestoredItem{},
			Errors:          []ItemError{},
		}, nil
	}
	if !order.Restorable() {
		return RestoreResult{}, pkgerrors.New(pkgerrors.CodeStateConflict, "inventory can only be restored for cancelled or refunded orders").
			WithDetails(map[string]any{
				"paymentStatus":     order.PaymentStatus,
				"fulfillmentStatus": order.FulfillmentStatus,
			})
	}

	result := RestoreResult{RestoredItems: []RestoredItem{}, Errors: []ItemError{}}
	credited := 0
	for _, item := range order.Items {
		if item.InventoryRestored {
			result.RestoredItems = append(result.RestoredItems, restoredItem(item))
			continue
		}
		flipped, err := s.restoreItem(ctx, item)
		if err != nil {
			result.Errors = append(result.Errors, ItemError{ItemID: item.ID, ProductID: item.ProductID, Message: itemErrorMessage(err)})
			s.logg.Warn(s.logg.WithField(ctx, "product_id", item.ProductID.String()), fmt.Sprintf("restore item failed: %v", err))
			continue
		}
		result.RestoredItems = append(result.RestoredItems, restoredItem(item))
		if flipped {
			credited++
		}
	}
	s.metrics.ItemsRestored(credited)

	if len(result.Errors) > 0 {
		result.Message = fmt.Sprintf("restored %d of %d items", len(result.RestoredItems), len(order.Items))
		return result, nil
	}

	if err := s.markOrder(ctx, order, reason); err != nil {
		return RestoreResult{}, err
	}
	result.Success = true
	result.Message = "inventory restored"
	s.logg.Info(ctx, "order inventory restored")
	return result, nil
}

// restoreItem flips the item marker and credits stock in one transaction.
// It reports false when a concurrent call already restored the item.
func (s *service) restoreItem(ctx context.Context, item models.OrderItem) (bool, error) {
	var flipped bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.orderRepo.WithTx(tx).MarkItemRestored(ctx, item.ID)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		affected, err := s.productRepo.WithTx(tx).IncrementStock(ctx, item.ProductID, item.Quantity)
		if err != nil {
			return err
		}
		if affected != 1 {
			return errProductUnavailable
		}
		flipped = true
		return nil
	})
	return flipped, err
}

// markOrder sets the order marker and emits one event listing every line
// item, including those credited by earlier partial attempts.
func (s *service) markOrder(ctx context.Context, order *models.Order, reason string) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		marked, err := s.orderRepo.WithTx(tx).MarkInventoryRestored(ctx, order.ID, reason, s.now().UTC())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order inventory restored")
		}
		if !marked {
			return nil
		}
		items := make([]outbox.InventoryRestoredItem, 0, len(order.Items))
		for _, item := range order.Items {
			items = append(items, outbox.InventoryRestoredItem{ProductID: item.ProductID, Quantity: item.Quantity})
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventInventoryRestored,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: outbox.InventoryRestoredEvent{
				OrderID: order.ID,
				StoreID: order.StoreID,
				Reason:  reason,
				Items:   items,
			},
		})
	})
}

func authorize(actor Actor, order *models.Order) error {
	switch actor.Role {
	case enums.MemberRoleAdmin:
		return nil
	case enums.MemberRoleSeller:
		if actor.StoreID != nil && *actor.StoreID == order.StoreID {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to your store")
}

func restoredItem(item models.OrderItem) RestoredItem {
	return RestoredItem{ItemID: item.ID, ProductID: item.ProductID, Title: item.Title, Quantity: item.Quantity}
}

func itemErrorMessage(err error) string {
	if errors.Is(err, errProductUnavailable) {
		return "product not found or deleted"
	}
	return "failed to restore stock"
}
