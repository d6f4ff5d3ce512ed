package subscriptions

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// Action describes what a subscription check did to the store's plan.
type Action string

const (
	ActionChecked    Action = "checked"
	ActionDowngraded Action = "downgraded"
	ActionUpgraded   Action = "upgraded"
)

// EnforcementResult reports the outcome of bringing a store within its quota.
type EnforcementResult struct {
	StoreID          uuid.UUID
	Plan             enums.SubscriptionPlan
	ProductLimit     int
	DeactivatedCount int
	KeptCount        int
}

// CheckResult is returned by expiry checks and plan changes.
type CheckResult struct {
	Action      Action
	Plan        enums.SubscriptionPlan
	Enforcement EnforcementResult
}

// ChangePlanInput moves a store to a new plan. StartDate defaults to now for
// paid plans; EndDate is required for paid plans and ignored for free.
type ChangePlanInput struct {
	StoreID   uuid.UUID
	Plan      enums.SubscriptionPlan
	StartDate *time.Time
	EndDate   *time.Time
}
