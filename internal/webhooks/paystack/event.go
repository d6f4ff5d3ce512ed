package paystackwebhook

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

const (
	EventChargeSuccess = "charge.success"
	EventChargeFailed  = "charge.failed"
)

// Event is the verified gateway notification.
type Event struct {
	Event string     `json:"event"`
	Data  ChargeData `json:"data"`
}

// ChargeData carries the charge fields reconciliation needs. Amounts are in
// the currency's minor unit.
type ChargeData struct {
	ID              int64      `json:"id"`
	Reference       string     `json:"reference"`
	Status          string     `json:"status"`
	Amount          int64      `json:"amount"`
	Fees            *int64     `json:"fees"`
	Currency        string     `json:"currency"`
	Channel         string     `json:"channel"`
	GatewayResponse string     `json:"gateway_response"`
	PaidAt          *time.Time `json:"paid_at"`
}

// IdempotencyID identifies a delivery for deduplication.
func (e *Event) IdempotencyID() string {
	if e == nil {
		return ""
	}
	return e.Event + ":" + strings.TrimSpace(e.Data.Reference)
}

// Details converts the charge into stored payment metadata in major units.
func (d ChargeData) Details() models.PaymentDetails {
	details := models.PaymentDetails{
		Amount:          minorToMajor(d.Amount),
		Fees:            decimal.Zero,
		Channel:         d.Channel,
		GatewayResponse: d.GatewayResponse,
	}
	if d.Fees != nil {
		details.Fees = minorToMajor(*d.Fees)
	}
	if currency, err := enums.ParseCurrency(d.Currency); err == nil {
		details.Currency = currency
	} else if d.Currency != "" {
		details.Currency = enums.Currency(strings.ToUpper(strings.TrimSpace(d.Currency)))
	}
	if d.ID != 0 {
		details.TransactionID = strconv.FormatInt(d.ID, 10)
	}
	return details
}

func minorToMajor(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}
