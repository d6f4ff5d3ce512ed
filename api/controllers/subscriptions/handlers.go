package subscriptions

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/api/controllers/actorcontext"
	"github.com/angelmondragon/marketplace-backend/api/responses"
	"github.com/angelmondragon/marketplace-backend/api/validators"
	subsvc "github.com/angelmondragon/marketplace-backend/internal/subscriptions"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

type checkRequest struct {
	StoreID string `json:"storeId" validate:"required,uuid"`
}

type upgradeRequest struct {
	StoreID   string     `json:"storeId" validate:"required,uuid"`
	Plan      string     `json:"plan" validate:"required,plan"`
	StartDate *time.Time `json:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`
}

type subscriptionResponse struct {
	Success          bool   `json:"success"`
	Action           string `json:"action"`
	Plan             string `json:"plan"`
	ProductLimit     int    `json:"productLimit"`
	DeactivatedCount int    `json:"deactivatedCount"`
	KeptCount        int    `json:"keptCount"`
}

// Check downgrades a lapsed store and enforces its product quota.
func Check(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		var payload checkRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		storeID, err := authorizedStore(r, payload.StoreID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithStoreID(ctx, storeID.String())
		}
		result, err := svc.CheckAndEnforce(ctx, storeID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSubscriptionResponse(result))
	}
}

// Upgrade moves a store to the requested plan and enforces the new quota.
// Routed for admins only; sellers pay for plans through the gateway.
func Upgrade(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		var payload upgradeRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		storeID, err := authorizedStore(r, payload.StoreID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		plan, err := enums.ParseSubscriptionPlan(payload.Plan)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid plan"))
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithStoreID(ctx, storeID.String())
		}
		result, err := svc.ChangePlan(ctx, subsvc.ChangePlanInput{
			StoreID:   storeID,
			Plan:      plan,
			StartDate: payload.StartDate,
			EndDate:   payload.EndDate,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSubscriptionResponse(result))
	}
}

func authorizedStore(r *http.Request, raw string) (uuid.UUID, error) {
	storeID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid storeId")
	}
	actor, err := actorcontext.Resolve(r)
	if err != nil {
		return uuid.Nil, err
	}
	if err := actorcontext.AuthorizeStore(actor, storeID); err != nil {
		return uuid.Nil, err
	}
	return storeID, nil
}

func newSubscriptionResponse(result subsvc.CheckResult) subscriptionResponse {
	return subscriptionResponse{
		Success:          true,
		Action:           string(result.Action),
		Plan:             string(result.Plan),
		ProductLimit:     result.Enforcement.ProductLimit,
		DeactivatedCount: result.Enforcement.DeactivatedCount,
		KeptCount:        result.Enforcement.KeptCount,
	}
}
