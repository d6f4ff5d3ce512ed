package enums

import (
	"fmt"
	"strings"
)

// SubscriptionPlan is the tier a store subscribes to; it drives the product quota.
type SubscriptionPlan string

const (
	PlanFree     SubscriptionPlan = "free"
	PlanBasic    SubscriptionPlan = "basic"
	PlanStandard SubscriptionPlan = "standard"
	PlanPremium  SubscriptionPlan = "premium"
)

var validSubscriptionPlans = []SubscriptionPlan{
	PlanFree,
	PlanBasic,
	PlanStandard,
	PlanPremium,
}

// String implements fmt.Stringer.
func (p SubscriptionPlan) String() string {
	return string(p)
}

// IsValid reports whether the plan is one of the known tiers.
func (p SubscriptionPlan) IsValid() bool {
	for _, candidate := range validSubscriptionPlans {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsPaid reports whether the plan carries a subscription window.
func (p SubscriptionPlan) IsPaid() bool {
	return p.IsValid() && p != PlanFree
}

// ParseSubscriptionPlan converts raw input (case-insensitive) into a SubscriptionPlan.
func ParseSubscriptionPlan(value string) (SubscriptionPlan, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validSubscriptionPlans {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid subscription plan %q", value)
}
