package orders

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/api/controllers/actorcontext"
	"github.com/angelmondragon/marketplace-backend/api/responses"
	"github.com/angelmondragon/marketplace-backend/api/validators"
	"github.com/angelmondragon/marketplace-backend/internal/inventory"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

type restoreRequest struct {
	OrderID string `json:"orderId" validate:"required,uuid"`
	Reason  string `json:"reason,omitempty" validate:"max=500"`
}

type restoreResponse struct {
	Success         bool                     `json:"success"`
	AlreadyRestored bool                     `json:"alreadyRestored,omitempty"`
	Message         string                   `json:"message"`
	RestoredItems   []inventory.RestoredItem `json:"restoredItems"`
	Errors          []inventory.ItemError    `json:"errors,omitempty"`
}

// RestoreInventory credits stock back for a cancelled or refunded order.
// A partial restore answers 207 so the caller knows to retry.
func RestoreInventory(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		actor, err := actorcontext.Resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload restoreRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := uuid.Parse(payload.OrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid orderId"))
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderID(ctx, orderID.String())
		}
		result, err := svc.Restore(ctx, inventory.RestoreInput{
			OrderID: orderID,
			Reason:  payload.Reason,
			Actor: inventory.Actor{
				UserID:  actor.UserID,
				StoreID: actor.StoreID,
				Role:    actor.Role,
			},
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		resp := restoreResponse{
			Success:         result.Success,
			AlreadyRestored: result.AlreadyRestored,
			Message:         result.Message,
			RestoredItems:   result.RestoredItems,
			Errors:          result.Errors,
		}
		if resp.RestoredItems == nil {
			resp.RestoredItems = []inventory.RestoredItem{}
		}
		if !result.Success {
			responses.WriteSuccessStatus(w, http.StatusMultiStatus, resp)
			return
		}
		responses.WriteSuccess(w, resp)
	}
}
