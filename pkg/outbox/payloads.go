package outbox

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

type OrderPaidEvent struct {
	OrderID          uuid.UUID       `json:"orderId"`
	AggregateOrderID uuid.UUID       `json:"aggregateOrderId"`
	StoreID          uuid.UUID       `json:"storeId"`
	Reference        string          `json:"reference"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         enums.Currency  `json:"currency"`
	PaidAt           time.Time       `json:"paidAt"`
}

type OrderPaymentFailedEvent struct {
	OrderID          uuid.UUID `json:"orderId"`
	AggregateOrderID uuid.UUID `json:"aggregateOrderId"`
	StoreID          uuid.UUID `json:"storeId"`
	Reference        string    `json:"reference"`
	GatewayResponse  string    `json:"gatewayResponse,omitempty"`
}

type InventoryRestoredItem struct {
	ProductID uuid.UUID `json:"productId"`
	Quantity  int       `json:"quantity"`
}

type InventoryRestoredEvent struct {
	OrderID uuid.UUID               `json:"orderId"`
	StoreID uuid.UUID               `json:"storeId"`
	Reason  string                  `json:"reason,omitempty"`
	Items   []InventoryRestoredItem `json:"items"`
}

type StorePlanChangedEvent struct {
	StoreID      uuid.UUID              `json:"storeId"`
	FromPlan     enums.SubscriptionPlan `json:"fromPlan"`
	ToPlan       enums.SubscriptionPlan `json:"toPlan"`
	ProductLimit int                    `json:"productLimit"`
	EndDate      *time.Time             `json:"endDate,omitempty"`
}

type StorePlanEnforcedEvent struct {
	StoreID          uuid.UUID              `json:"storeId"`
	Plan             enums.SubscriptionPlan `json:"plan"`
	ProductLimit     int                    `json:"productLimit"`
	DeactivatedCount int                    `json:"deactivatedCount"`
	KeptCount        int                    `json:"keptCount"`
}
