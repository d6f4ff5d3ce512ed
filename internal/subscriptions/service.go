package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/products"
	"github.com/angelmondragon/marketplace-backend/internal/stores"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service keeps store plans and active product counts consistent.
type Service interface {
	Enforce(ctx context.Context, storeID uuid.UUID) (EnforcementResult, error)
	CheckAndEnforce(ctx context.Context, storeID uuid.UUID) (CheckResult, error)
	ChangePlan(ctx context.Context, input ChangePlanInput) (CheckResult, error)
}

// ServiceParams groups dependencies for the subscription service.
type ServiceParams struct {
	StoreRepo         stores.Repository
	ProductRepo       products.Repository
	TransactionRunner txRunner
	Locker            StoreLocker
	Outbox            outbox.Emitter
	Logger            *logger.Logger
	Metrics           *metrics.ReconcileMetrics
	Now               func() time.Time
}

type service struct {
	storeRepo   stores.Repository
	productRepo products.Repository
	tx          txRunner
	locker      StoreLocker
	outbox      outbox.Emitter
	logg        *logger.Logger
	metrics     *metrics.ReconcileMetrics
	now         func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.StoreRepo == nil {
		return nil, fmt.Errorf("store repo required")
	}
	if params.ProductRepo == nil {
		return nil, fmt.Errorf("product repo required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Locker == nil {
		return nil, fmt.Errorf("store locker required")
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
		storeRepo:   params.StoreRepo,
		productRepo: params.ProductRepo,
		tx:          params.TransactionRunner,
		locker:      params.Locker,
		outbox:      params.Outbox,
		logg:        params.Logger,
		metrics:     params.Metrics,
		now:         now,
	}, nil
}

// Enforce deactivates the oldest surplus products so that at most the plan's
// quota stay active. Products are never deleted.
func (s *service) Enforce(ctx context.Context, storeID uuid.UUID) (EnforcementResult, error) {
	if storeID == uuid.Nil {
		return EnforcementResult{}, pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}

	var result EnforcementResult
	err := s.locker.WithStoreLock(ctx, storeID, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			store, err := s.loadStore(ctx, tx, storeID)
			if err != nil {
				return err
			}
			result, err = s.enforceLocked(ctx, tx, store)
			return err
		})
	})
	if err != nil {
		return EnforcementResult{}, err
	}
	s.recordEnforcement(ctx, result)
	return result, nil
}

// CheckAndEnforce downgrades a lapsed paid plan to free and then always runs
// enforcement under the same lock hold.
func (s *service) CheckAndEnforce(ctx context.Context, storeID uuid.UUID) (CheckResult, error) {
	if storeID == uuid.Nil {
		return CheckResult{}, pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}

	var result CheckResult
	err := s.locker.WithStoreLock(ctx, storeID, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			store, err := s.loadStore(ctx, tx, storeID)
			if err != nil {
				return err
			}

			result = CheckResult{Action: ActionChecked}
			if store.SubscriptionLapsed(s.now()) {
				if err := s.applyPlan(ctx, tx, store, enums.PlanFree, nil, nil, enums.EventStorePlanDowngraded); err != nil {
					return err
				}
				result.Action = ActionDowngraded
			}

			enforcement, err := s.enforceLocked(ctx, tx, store)
			if err != nil {
				return err
			}
			result.Plan = store.Plan
			result.Enforcement = enforcement
			return nil
		})
	})
	if err != nil {
		return CheckResult{}, err
	}

	if result.Action == ActionDowngraded {
		s.metrics.PlanDowngraded()
		s.logg.Info(s.logg.WithStoreID(ctx, storeID.String()), "lapsed subscription downgraded to free")
	}
	s.recordEnforcement(ctx, result.Enforcement)
	return result, nil
}

// ChangePlan moves a store onto a new plan and enforces the new quota.
func (s *service) ChangePlan(ctx context.Context, input ChangePlanInput) (CheckResult, error) {
	if input.StoreID == uuid.Nil {
		return CheckResult{}, pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	if !input.Plan.IsValid() {
		return CheckResult{}, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid plan %q", input.Plan)
	}
	start, end, err := s.subscriptionWindow(input)
	if err != nil {
		return CheckResult{}, err
	}

	var result CheckResult
	err = s.locker.WithStoreLock(ctx, input.StoreID, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			store, err := s.loadStore(ctx, tx, input.StoreID)
			if err != nil {
				return err
			}

			previous := QuotaFor(store.Plan)
			next := QuotaFor(input.Plan)
			result = CheckResult{Action: ActionChecked}
			switch {
			case next > previous:
				result.Action = ActionUpgraded
			case next < previous:
				result.Action = ActionDowngraded
			}

			if err := s.applyPlan(ctx, tx, store, input.Plan, start, end, enums.EventStorePlanChanged); err != nil {
				return err
			}
			enforcement, err := s.enforceLocked(ctx, tx, store)
			if err != nil {
				return err
			}
			result.Plan = store.Plan
			result.Enforcement = enforcement
			return nil
		})
	})
	if err != nil {
		return CheckResult{}, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"store_id": input.StoreID.String(),
		"plan":     input.Plan,
		"action":   result.Action,
	})
	s.logg.Info(logCtx, "store plan changed")
	s.recordEnforcement(ctx, result.Enforcement)
	return result, nil
}

func (s *service) subscriptionWindow(input ChangePlanInput) (*time.Time, *time.Time, error) {
	if !input.Plan.IsPaid() {
		return nil, nil, nil
	}
	if input.EndDate == nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "endDate is required for paid plans")
	}
	start := s.now().UTC()
	if input.StartDate != nil {
		start = input.StartDate.UTC()
	}
	end := input.EndDate.UTC()
	if !end.After(start) {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "endDate must be after startDate")
	}
	return &start, &end, nil
}

func (s *service) loadStore(ctx context.Context, tx *gorm.DB, storeID uuid.UUID) (*models.Store, error) {
	store, err := s.storeRepo.WithTx(tx).FindByID(ctx, storeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "store not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load store")
	}
	return store, nil
}

// applyPlan persists plan, quota and window, then mutates store to match.
func (s *service) applyPlan(ctx context.Context, tx *gorm.DB, store *models.Store, plan enums.SubscriptionPlan, start, end *time.Time, event enums.OutboxEventType) error {
	from := store.Plan
	limit := QuotaFor(plan)
	update := stores.PlanUpdate{Plan: plan, ProductLimit: limit, StartDate: start, EndDate: end}
	if err := s.storeRepo.WithTx(tx).UpdatePlan(ctx, store.ID, update); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update store plan")
	}
	store.Plan = plan
	store.ProductLimit = limit
	store.SubscriptionStartDate = start
	store.SubscriptionEndDate = end

	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     event,
		AggregateType: enums.AggregateStore,
		AggregateID:   store.ID,
		Data: outbox.StorePlanChangedEvent{
			StoreID:      store.ID,
			FromPlan:     from,
			ToPlan:       plan,
			ProductLimit: limit,
			EndDate:      end,
		},
	})
}

// enforceLocked must run inside the store lock and tx.
func (s *service) enforceLocked(ctx context.Context, tx *gorm.DB, store *models.Store) (EnforcementResult, error) {
	quota := QuotaFor(store.Plan)
	result := EnforcementResult{StoreID: store.ID, Plan: store.Plan, ProductLimit: quota}

	if store.ProductLimit != quota {
		if err := s.storeRepo.WithTx(tx).UpdateProductLimit(ctx, store.ID, quota); err != nil {
			return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update product limit")
		}
		store.ProductLimit = quota
	}

	productRepo := s.productRepo.WithTx(tx)
	active, err := productRepo.ListActiveByStore(ctx, store.ID)
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list active products")
	}

	surplus := len(active) - quota
	if surplus <= 0 {
		result.KeptCount = len(active)
		return result, nil
	}

	ids := make([]uuid.UUID, 0, surplus)
	for _, p := range active[:surplus] {
		ids = append(ids, p.ID)
	}
	affected, err := productRepo.Deactivate(ctx, store.ID, ids)
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate surplus products")
	}
	if affected != int64(surplus) {
		return result, pkgerrors.Newf(pkgerrors.CodeDependency,
			"deactivated %d of %d surplus products", affected, surplus)
	}

	result.DeactivatedCount = surplus
	result.KeptCount = quota

	err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventStorePlanEnforced,
		AggregateType: enums.AggregateStore,
		AggregateID:   store.ID,
		Data: outbox.StorePlanEnforcedEvent{
			StoreID:          store.ID,
			Plan:             store.Plan,
			ProductLimit:     quota,
			DeactivatedCount: result.DeactivatedCount,
			KeptCount:        result.KeptCount,
		},
	})
	return result, err
}

func (s *service) recordEnforcement(ctx context.Context, result EnforcementResult) {
	if result.DeactivatedCount == 0 {
		return
	}
	s.metrics.ProductsDeactivated(result.DeactivatedCount)
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"store_id":    result.StoreID.String(),
		"plan":        result.Plan,
		"deactivated": result.DeactivatedCount,
		"kept":        result.KeptCount,
	})
	s.logg.Info(logCtx, "surplus products deactivated")
}
