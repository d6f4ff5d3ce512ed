package subscriptions

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/products"
	"github.com/angelmondragon/marketplace-backend/internal/stores"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
)

type fakeLocker struct {
	err   error
	calls int
}

func (f *fakeLocker) WithStoreLock(ctx context.Context, storeID uuid.UUID, fn func(ctx context.Context) error) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return fn(ctx)
}

type harness struct {
	conn     *gorm.DB
	svc      Service
	locker   *fakeLocker
	stores   stores.Repository
	products products.Repository
	outbox   *outbox.Repository
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	h := &harness{
		conn:     conn,
		locker:   &fakeLocker{},
		stores:   stores.NewRepository(conn),
		products: products.NewRepository(conn),
		outbox:   outbox.NewRepository(conn),
		now:      time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc, err := NewService(ServiceParams{
		StoreRepo:         h.stores,
		ProductRepo:       h.products,
		TransactionRunner: db.NewFromGorm(conn),
		Locker:            h.locker,
		Outbox:            outbox.NewService(h.outbox, logg),
		Logger:            logg,
		Now:               func() time.Time { return h.now },
	})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func (h *harness) seedStore(t *testing.T, plan enums.SubscriptionPlan, start, end *time.Time) *models.Store {
	t.Helper()
	store := &models.Store{
		OwnerID:               uuid.New(),
		CompanyName:           "Harness Store",
		Plan:                  plan,
		ProductLimit:          QuotaFor(plan),
		SubscriptionStartDate: start,
		SubscriptionEndDate:   end,
	}
	require.NoError(t, h.stores.Create(context.Background(), store))
	return store
}

// seedProducts creates n active products with strictly increasing created_at.
func (h *harness) seedProducts(t *testing.T, storeID uuid.UUID, n int) []*models.Product {
	t.Helper()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]*models.Product, 0, n)
	for i := 0; i < n; i++ {
		p := &models.Product{
			StoreID:   storeID,
			Title:     "product",
			Price:     decimal.NewFromInt(10),
			StockQty:  1,
			IsActive:  true,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, h.products.Create(context.Background(), p))
		out = append(out, p)
	}
	return out
}

func (h *harness) isActive(t *testing.T, id uuid.UUID) bool {
	t.Helper()
	p, err := h.products.FindByID(context.Background(), id)
	require.NoError(t, err)
	return p.IsActive
}

func TestEnforceDeactivatesOldestSurplus(t *testing.T) {
	h := newHarness(t)
	store := h.seedStore(t, enums.PlanBasic, nil, nil)
	seeded := h.seedProducts(t, store.ID, 35)

	result, err := h.svc.Enforce(context.Background(), store.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, result.DeactivatedCount)
	assert.Equal(t, 30, result.KeptCount)
	assert.Equal(t, 30, result.ProductLimit)

	for i, p := range seeded {
		if i < 5 {
			assert.False(t, h.isActive(t, p.ID), "T%d should be inactive", i+1)
		} else {
			assert.True(t, h.isActive(t, p.ID), "T%d should stay active", i+1)
		}
	}

	var total int64
	require.NoError(t, h.conn.Model(&models.Product{}).Where("store_id = ?", store.ID).Count(&total).Error)
	assert.EqualValues(t, 35, total, "enforcement must never delete products")

	events, err := h.outbox.ListForAggregate(enums.AggregateStore, store.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventStorePlanEnforced, events[0].EventType)
	assert.Equal(t, 1, h.locker.calls)
}

func TestEnforceWithinQuotaIsNoop(t *testing.T) {
	h := newHarness(t)
	store := h.seedStore(t, enums.PlanFree, nil, nil)
	h.seedProducts(t, store.ID, 4)

	result, err := h.svc.Enforce(context.Background(), store.ID)
	require.NoError(t, err)
	assert.Zero(t, result.DeactivatedCount)
	assert.Equal(t, 4, result.KeptCount)

	again, err := h.svc.Enforce(context.Background(), store.ID)
	require.NoError(t, err)
	assert.Equal(t, result, again)

	events, err := h.outbox.ListForAggregate(enums.AggregateStore, store.ID)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestEnforceRepairsDriftedProductLimit(t *testing.T) {
	h := newHarness(t)
	store := h.seedStore(t, enums.PlanStandard, nil, nil)
	require.NoError(t, h.stores.UpdateProductLimit(context.Background(), store.ID, 3))

	_, err := h.svc.Enforce(context.Background(), store.ID)
	require.NoError(t, err)

	got, err := h.stores.FindByID(context.Background(), store.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.ProductLimit)
}

func TestEnforceMissingStore(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Enforce(context.Background(), uuid.New())
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))

	_, err = h.svc.Enforce(context.Background(), uuid.Nil)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestEnforceLockContention(t *testing.T) {
	h := newHarness(t)
	store := h.seedStore(t, enums.PlanFree, nil, nil)
	h.seedProducts(t, store.ID, 12)
	h.locker.err = pkgerrors.New(pkgerrors.CodeConflict, "store plan update already in progress")

	_, err := h.svc.Enforce(context.Background(), store.ID)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.CodeOf(err))

	count, err := h.products.CountActiveByStore(context.Background(), store.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 12, count)
}

func TestCheckAndEnforceDowngradesLapsedPlan(t *testing.T) {
	h := newHarness(t)
	start := h.now.Add(-60 * 24 * time.Hour)
	end := h.now.Add(-time.Hour)
	store := h.seedStore(t, enums.PlanBasic, &start, &end)
	h.seedProducts(t, store.ID, 25)

	result, err := h.svc.CheckAndEnforce(context.Background(), store.ID)
	require.NoError(t, err)
	assert.Equal(t, ActionDowngraded, result.Action)
	assert.Equal(t, enums.PlanFree, result.Plan)
	assert.Equal(t, 15, result.Enforcement.DeactivatedCount)
	assert.Equal(t, 10, result.Enforcement.KeptCount)

	got, err := h.stores.FindByID(context.Background(), store.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PlanFree, got.Plan)
	assert.Equal(t, 10, got.ProductLimit)
	assert.Nil(t, got.SubscriptionStartDate)
	assert.Nil(t, got.SubscriptionEndDate)

	events, err := h.outbox.ListForAggregate(enums.AggregateStore, store.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, enums.EventStorePlanDowngraded, events[0].EventType)

	second, err := h.svc.CheckAndEnforce(context.Background(), store.ID)
	require.NoError(t, err)
	assert.Equal(t, ActionChecked, second.Action)
	assert.Zero(t, second.Enforcement.DeactivatedCount)
}

func TestCheckAndEnforceKeepsActivePlan(t *testing.T) {
	h := newHarness(t)
	end := h.now.Add(24 * time.Hour)
	store := h.seedStore(t, enums.PlanPremium, nil, &end)
	h.seedProducts(t, store.ID, 40)

	result, err := h.svc.CheckAndEnforce(context.Background(), store.ID)
	require.NoError(t, err)
	assert.Equal(t, ActionChecked, result.Action)
	assert.Equal(t, enums.PlanPremium, result.Plan)
	assert.Equal(t, 40, result.Enforcement.KeptCount)
}

func TestChangePlanUpgradeAndDowngrade(t *testing.T) {
	h := newHarness(t)
	store := h.seedStore(t, enums.PlanFree, nil, nil)
	h.seedProducts(t, store.ID, 12)
	end := h.now.Add(30 * 24 * time.Hour)

	up, err := h.svc.ChangePlan(context.Background(), ChangePlanInput{StoreID: store.ID, Plan: enums.PlanStandard, EndDate: &end})
	require.NoError(t, err)
	assert.Equal(t, ActionUpgraded, up.Action)
	assert.Equal(t, 100, up.Enforcement.ProductLimit)
	assert.Equal(t, 12, up.Enforcement.KeptCount)

	got, err := h.stores.FindByID(context.Background(), store.ID)
	require.NoError(t, err)
	require.NotNil(t, got.SubscriptionStartDate)
	assert.True(t, got.SubscriptionStartDate.Equal(h.now))
	require.NotNil(t, got.SubscriptionEndDate)
	assert.True(t, got.SubscriptionEndDate.Equal(end))

	down, err := h.svc.ChangePlan(context.Background(), ChangePlanInput{StoreID: store.ID, Plan: enums.PlanFree})
	require.NoError(t, err)
	assert.Equal(t, ActionDowngraded, down.Action)
	assert.Equal(t, 2, down.Enforcement.DeactivatedCount)
}

func TestChangePlanValidation(t *testing.T) {
	h := newHarness(t)
	store := h.seedStore(t, enums.PlanFree, nil, nil)
	past := h.now.Add(-time.Hour)

	cases := map[string]ChangePlanInput{
		"unknown plan":     {StoreID: store.ID, Plan: enums.SubscriptionPlan("gold")},
		"paid without end": {StoreID: store.ID, Plan: enums.PlanBasic},
		"end before start": {StoreID: store.ID, Plan: enums.PlanBasic, EndDate: &past},
		"missing store id": {Plan: enums.PlanFree},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.svc.ChangePlan(context.Background(), input)
			assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
		})
	}
}

type shortDeactivateRepo struct {
	products.Repository
}

func (r shortDeactivateRepo) WithTx(tx *gorm.DB) products.Repository {
	return shortDeactivateRepo{Repository: r.Repository.WithTx(tx)}
}

func (r shortDeactivateRepo) Deactivate(ctx context.Context, storeID uuid.UUID, ids []uuid.UUID) (int64, error) {
	affected, err := r.Repository.Deactivate(ctx, storeID, ids[:len(ids)-1])
	return affected, err
}

func TestEnforceFailsWhenDeactivationIsPartial(t *testing.T) {
	h := newHarness(t)
	store := h.seedStore(t, enums.PlanFree, nil, nil)
	h.seedProducts(t, store.ID, 13)

	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc, err := NewService(ServiceParams{
		StoreRepo:         h.stores,
		ProductRepo:       shortDeactivateRepo{Repository: h.products},
		TransactionRunner: db.NewFromGorm(h.conn),
		Locker:            h.locker,
		Outbox:            outbox.NewService(h.outbox, logg),
		Logger:            logg,
	})
	require.NoError(t, err)

	_, err = svc.Enforce(context.Background(), store.ID)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.CodeOf(err))

	count, err := h.products.CountActiveByStore(context.Background(), store.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 13, count, "partial deactivation must roll back")
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	if _, err := NewService(ServiceParams{}); err == nil {
		t.Fatalf("expected error for missing dependencies")
	}
}
