package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// AggregateOrder is the checkout-level parent of the per-store orders that
// share its gateway reference.
type AggregateOrder struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BuyerID           uuid.UUID               `gorm:"column:buyer_id;type:uuid;not null"`
	GatewayReference  string                  `gorm:"column:gateway_reference;not null;uniqueIndex:ux_aggregate_orders_reference"`
	PaymentStatus     enums.PaymentStatus     `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	FulfillmentStatus enums.FulfillmentStatus `gorm:"column:fulfillment_status;type:text;not null;default:'pending'"`
	TotalAmount       decimal.Decimal         `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Currency          enums.Currency          `gorm:"column:currency;type:text;not null"`
	PaidAt            *time.Time              `gorm:"column:paid_at"`
	PaymentDetails    *PaymentDetails         `gorm:"column:payment_details;type:jsonb;serializer:json"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (a *AggregateOrder) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// Order is the per-store sub-order. Orders are never deleted; cancellation
// and refunds are status transitions.
type Order struct {
	ID                  uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AggregateOrderID    uuid.UUID               `gorm:"column:aggregate_order_id;type:uuid;not null"`
	StoreID             uuid.UUID               `gorm:"column:store_id;type:uuid;not null"`
	BuyerID             uuid.UUID               `gorm:"column:buyer_id;type:uuid;not null"`
	GatewayReference    string                  `gorm:"column:gateway_reference;not null;index"`
	PaymentStatus       enums.PaymentStatus     `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	FulfillmentStatus   enums.FulfillmentStatus `gorm:"column:fulfillment_status;type:text;not null;default:'pending'"`
	TotalAmount         decimal.Decimal         `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Currency            enums.Currency          `gorm:"column:currency;type:text;not null"`
	PaidAt              *time.Time              `gorm:"column:paid_at"`
	PaymentDetails      *PaymentDetails         `gorm:"column:payment_details;type:jsonb;serializer:json"`
	InventoryRestored   bool                    `gorm:"column:inventory_restored;not null"`
	InventoryRestoredAt *time.Time              `gorm:"column:inventory_restored_at"`
	CancelReason        *string                 `gorm:"column:cancel_reason"`
	Items               []OrderItem             `gorm:"foreignKey:OrderID"`
	CreatedAt           time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// Restorable reports whether stock may be returned for the order.
func (o *Order) Restorable() bool {
	if o == nil {
		return false
	}
	return o.FulfillmentStatus == enums.FulfillmentStatusCancelled || o.PaymentStatus == enums.PaymentStatusRefunded
}

// OrderItem is the purchase snapshot of one product inside an order.
// InventoryRestored flips once when its quantity is credited back to stock.
type OrderItem struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID           uuid.UUID       `gorm:"column:order_id;type:uuid;not null"`
	ProductID         uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	Title             string          `gorm:"column:title;not null"`
	Quantity          int             `gorm:"column:quantity;not null"`
	UnitPrice         decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	InventoryRestored bool            `gorm:"column:inventory_restored;not null"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
