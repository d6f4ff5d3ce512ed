package inventory

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/orders"
	"github.com/angelmondragon/marketplace-backend/internal/products"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
)

type harness struct {
	conn     *gorm.DB
	svc      Service
	orders   orders.Repository
	products products.Repository
	outbox   *outbox.Repository
	storeID  uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	h := &harness{
		conn:     conn,
		orders:   orders.NewRepository(conn),
		products: products.NewRepository(conn),
		outbox:   outbox.NewRepository(conn),
		storeID:  uuid.New(),
	}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc, err := NewService(ServiceParams{
		OrderRepo:         h.orders,
		ProductRepo:       h.products,
		TransactionRunner: db.NewFromGorm(conn),
		Outbox:            outbox.NewService(h.outbox, logg),
		Logger:            logg,
		Now:               func() time.Time { return time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func (h *harness) seedProduct(t *testing.T, stock int) *models.Product {
	t.Helper()
	p := &models.Product{StoreID: h.storeID, Title: "Widget", Price: decimal.NewFromInt(5), StockQty: stock, IsActive: true}
	require.NoError(t, h.products.Create(context.Background(), p))
	return p
}

func (h *harness) seedOrder(t *testing.T, fulfillment enums.FulfillmentStatus, payment enums.PaymentStatus, items ...models.OrderItem) *models.Order {
	t.Helper()
	agg := &models.AggregateOrder{
		BuyerID:          uuid.New(),
		GatewayReference: uuid.NewString(),
		Currency:         enums.CurrencyNGN,
		TotalAmount:      decimal.NewFromInt(20),
	}
	require.NoError(t, h.orders.CreateAggregate(context.Background(), agg))
	order := &models.Order{
		AggregateOrderID:  agg.ID,
		StoreID:           h.storeID,
		BuyerID:           agg.BuyerID,
		GatewayReference:  agg.GatewayReference,
		PaymentStatus:     payment,
		FulfillmentStatus: fulfillment,
		TotalAmount:       decimal.NewFromInt(20),
		Currency:          enums.CurrencyNGN,
		Items:             items,
	}
	require.NoError(t, h.orders.Create(context.Background(), order))
	return order
}

func (h *harness) stock(t *testing.T, id uuid.UUID) int {
	t.Helper()
	p, err := h.products.FindByID(context.Background(), id)
	require.NoError(t, err)
	return p.StockQty
}

func (h *harness) seller() Actor {
	id := h.storeID
	return Actor{UserID: uuid.New(), StoreID: &id, Role: enums.MemberRoleSeller}
}

func item(productID uuid.UUID, qty int) models.OrderItem {
	return models.OrderItem{ProductID: productID, Title: "Widget", Quantity: qty, UnitPrice: decimal.NewFromInt(5)}
}

func TestRestoreCreditsStockExactlyOnce(t *testing.T) {
	h := newHarness(t)
	a := h.seedProduct(t, 10)
	b := h.seedProduct(t, 0)
	order := h.seedOrder(t, enums.FulfillmentStatusCancelled, enums.PaymentStatusPaid, item(a.ID, 2), item(b.ID, 3))

	result, err := h.svc.Restore(context.Background(), RestoreInput{OrderID: order.ID, Reason: "buyer cancelled", Actor: h.seller()})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.False(t, result.AlreadyRestored)
	assert.Len(t, result.RestoredItems, 2)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 12, h.stock(t, a.ID))
	assert.Equal(t, 3, h.stock(t, b.ID))

	second, err := h.svc.Restore(context.Background(), RestoreInput{OrderID: order.ID, Actor: h.seller()})
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.True(t, second.AlreadyRestored)
	assert.Equal(t, 12, h.stock(t, a.ID))
	assert.Equal(t, 3, h.stock(t, b.ID))

	got, err := h.orders.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.True(t, got.InventoryRestored)
	require.NotNil(t, got.InventoryRestoredAt)

	events, err := h.outbox.ListForAggregate(enums.AggregateOrder, order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventInventoryRestored, events[0].EventType)
}

func TestRestoreAllowsRefundedOrders(t *testing.T) {
	h := newHarness(t)
	p := h.seedProduct(t, 1)
	order := h.seedOrder(t, enums.FulfillmentStatusDelivered, enums.PaymentStatusRefunded, item(p.ID, 4))

	result, err := h.svc.Restore(context.Background(), RestoreInput{OrderID: order.ID, Actor: Actor{Role: enums.MemberRoleAdmin}})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 5, h.stock(t, p.ID))
}

func TestRestorePartialFailureContinues(t *testing.T) {
	h := newHarness(t)
	live := h.seedProduct(t, 1)
	deleted := h.seedProduct(t, 1)
	require.NoError(t, h.conn.Model(&models.Product{}).Where("id = ?", deleted.ID).Update("is_deleted", true).Error)
	missing := uuid.New()

	order := h.seedOrder(t, enums.FulfillmentStatusCancelled, enums.PaymentStatusFailed,
		item(missing, 1), item(live.ID, 2), item(deleted.ID, 1))

	result, err := h.svc.Restore(context.Background(), RestoreInput{OrderID: order.ID, Actor: h.seller()})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Len(t, result.RestoredItems, 1)
	assert.Len(t, result.Errors, 2)
	assert.Equal(t, 3, h.stock(t, live.ID))

	got, err := h.orders.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.False(t, got.InventoryRestored)

	// A retry reports the credited item without crediting it twice.
	retry, err := h.svc.Restore(context.Background(), RestoreInput{OrderID: order.ID, Actor: h.seller()})
	require.NoError(t, err)
	assert.False(t, retry.Success)
	assert.Len(t, retry.RestoredItems, 1)
	assert.Equal(t, 3, h.stock(t, live.ID))
}

func TestRestoreEventListsItemsFromEarlierAttempts(t *testing.T) {
	h := newHarness(t)
	live := h.seedProduct(t, 1)
	later := uuid.New()
	order := h.seedOrder(t, enums.FulfillmentStatusCancelled, enums.PaymentStatusPaid, item(live.ID, 2), item(later, 4))

	first, err := h.svc.Restore(context.Background(), RestoreInput{OrderID: order.ID, Actor: h.seller()})
	require.NoError(t, err)
	require.False(t, first.Success)

	require.NoError(t, h.products.Create(context.Background(), &models.Product{
		ID: later, StoreID: h.storeID, Title: "Gadget", Price: decimal.NewFromInt(5), IsActive: true,
	}))
	second, err := h.svc.Restore(context.Background(), RestoreInput{OrderID: order.ID, Actor: h.seller()})
	require.NoError(t, err)
	require.True(t, second.Success)
	assert.Equal(t, 3, h.stock(t, live.ID))
	assert.Equal(t, 4, h.stock(t, later))

	events, err := h.outbox.ListForAggregate(enums.AggregateOrder, order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(events[0].Payload, &envelope))
	var payload outbox.InventoryRestoredEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &payload))
	assert.ElementsMatch(t, []outbox.InventoryRestoredItem{
		{ProductID: live.ID, Quantity: 2},
		{ProductID: later, Quantity: 4},
	}, payload.Items)
}

func TestRestoreRejectsActiveOrders(t *testing.T) {
	h := newHarness(t)
	p := h.seedProduct(t, 1)
	order := h.seedOrder(t, enums.FulfillmentStatusProcessing, enums.PaymentStatusPaid, item(p.ID, 1))

	_, err := h.svc.Restore(context.Background(), RestoreInput{OrderID: order.ID, Actor: h.seller()})
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))
	assert.Equal(t, 1, h.stock(t, p.ID))
}

func TestRestoreErrors(t *testing.T) {
	h := newHarness(t)
	p := h.seedProduct(t, 1)
	order := h.seedOrder(t, enums.FulfillmentStatusCancelled, enums.PaymentStatusPending, item(p.ID, 1))
	otherStore := uuid.New()

	cases := []struct {
		name  string
		input RestoreInput
		code  pkgerrors.Code
	}{
		{name: "missing order id", input: RestoreInput{Actor: h.seller()}, code: pkgerrors.CodeValidation},
		{name: "unknown order", input: RestoreInput{OrderID: uuid.New(), Actor: h.seller()}, code: pkgerrors.CodeNotFound},
		{name: "other seller", input: RestoreInput{OrderID: order.ID, Actor: Actor{Role: enums.MemberRoleSeller, StoreID: &otherStore}}, code: pkgerrors.CodeForbidden},
		{name: "buyer", input: RestoreInput{OrderID: order.ID, Actor: Actor{Role: enums.MemberRoleBuyer}}, code: pkgerrors.CodeForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.Restore(context.Background(), tc.input)
			assert.Equal(t, tc.code, pkgerrors.CodeOf(err))
		})
	}
	assert.Equal(t, 1, h.stock(t, p.ID))
}
