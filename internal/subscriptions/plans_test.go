package subscriptions

import (
	"testing"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

func TestQuotaFor(t *testing.T) {
	cases := map[enums.SubscriptionPlan]int{
		enums.PlanFree:                 10,
		enums.PlanBasic:                30,
		enums.PlanStandard:             100,
		enums.PlanPremium:              500,
		enums.SubscriptionPlan("gold"): 10,
		enums.SubscriptionPlan(""):     10,
	}
	for plan, want := range cases {
		if got := QuotaFor(plan); got != want {
			t.Fatalf("QuotaFor(%q) = %d, want %d", plan, got, want)
		}
	}
}
