package subscriptions

import "github.com/angelmondragon/marketplace-backend/pkg/enums"

// planQuotas is the number of simultaneously active products each plan allows.
var planQuotas = map[enums.SubscriptionPlan]int{
	enums.PlanFree:     10,
	enums.PlanBasic:    30,
	enums.PlanStandard: 100,
	enums.PlanPremium:  500,
}

// QuotaFor returns the product quota for plan. Unknown plans get the free
// quota.
func QuotaFor(plan enums.SubscriptionPlan) int {
	if quota, ok := planQuotas[plan]; ok {
		return quota
	}
	return planQuotas[enums.PlanFree]
}
