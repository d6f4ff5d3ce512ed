package models

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// PaymentDetails is the gateway metadata recorded on an order once a charge
// resolves. It is replaced wholesale on every application.
type PaymentDetails struct {
	Amount          decimal.Decimal `json:"amount"`
	Fees            decimal.Decimal `json:"fees"`
	Channel         string          `json:"channel,omitempty"`
	Currency        enums.Currency  `json:"currency,omitempty"`
	GatewayResponse string          `json:"gateway_response,omitempty"`
	TransactionID   string          `json:"transaction_id,omitempty"`
}
