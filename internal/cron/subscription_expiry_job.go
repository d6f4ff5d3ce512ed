package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/marketplace-backend/internal/subscriptions"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

const (
	subscriptionExpiryJobName   = "subscription-expiry"
	defaultSubscriptionBatchMax = 200
)

type lapsedLister interface {
	ListLapsed(ctx context.Context, now time.Time, limit int, exclude []uuid.UUID) ([]models.Store, error)
}

type subscriptionChecker interface {
	CheckAndEnforce(ctx context.Context, storeID uuid.UUID) (subscriptions.CheckResult, error)
}

type SubscriptionExpiryJobParams struct {
	Logger        *logger.Logger
	Stores        lapsedLister
	Subscriptions subscriptionChecker
	Limit         int
	Now           func() time.Time
}

// SubscriptionExpiryJob downgrades stores whose paid plan has lapsed and
// trims their catalog to the free quota.
type SubscriptionExpiryJob struct {
	logg          *logger.Logger
	stores        lapsedLister
	subscriptions subscriptionChecker
	limit         int
	now           func() time.Time

	mu sync.Mutex
	// deferred holds stores that failed last cycle. They sit out one cycle
	// so a batch of repeat failures cannot keep later stores from running.
	deferred []uuid.UUID
}

func NewSubscriptionExpiryJob(params SubscriptionExpiryJobParams) (*SubscriptionExpiryJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Stores == nil {
		return nil, fmt.Errorf("store repository required")
	}
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscription service required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultSubscriptionBatchMax
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &SubscriptionExpiryJob{
		logg:          params.Logger,
		stores:        params.Stores,
		subscriptions: params.Subscriptions,
		limit:         limit,
		now:           now,
	}, nil
}

func (j *SubscriptionExpiryJob) Name() string { return subscriptionExpiryJobName }

// Run handles at most one batch per cycle; anything left over is picked up
// on the next tick. A failing store does not stop the rest of the batch.
func (j *SubscriptionExpiryJob) Run(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now().UTC()
	stores, err := j.stores.ListLapsed(ctx, now, j.limit, j.deferred)
	if err != nil {
		return fmt.Errorf("list lapsed stores: %w", err)
	}
	skipped := len(j.deferred)
	j.deferred = nil
	if len(stores) == 0 {
		j.logg.Info(ctx, "no lapsed subscriptions")
		return nil
	}

	var (
		errs        error
		downgraded  int
		deactivated int
	)
	for _, store := range stores {
		storeCtx := j.logg.WithStoreID(ctx, store.ID.String())
		result, err := j.subscriptions.CheckAndEnforce(storeCtx, store.ID)
		if err != nil {
			j.logg.Error(storeCtx, "subscription expiry check failed", err)
			errs = multierr.Append(errs, fmt.Errorf("store %s: %w", store.ID, err))
			j.deferred = append(j.deferred, store.ID)
			continue
		}
		if result.Action == subscriptions.ActionDowngraded {
			downgraded++
		}
		deactivated += result.Enforcement.DeactivatedCount
	}

	summary := j.logg.WithFields(ctx, map[string]any{
		"candidates":           len(stores),
		"downgraded":           downgraded,
		"products_deactivated": deactivated,
		"failures":             len(multierr.Errors(errs)),
		"deferred":             skipped,
	})
	j.logg.Info(summary, "subscription expiry sweep finished")
	return errs
}
