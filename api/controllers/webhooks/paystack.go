package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/marketplace-backend/api/responses"
	paystackwebhook "github.com/angelmondragon/marketplace-backend/internal/webhooks/paystack"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

const maxWebhookBytes = 1 << 20

type PaystackWebhookService interface {
	HandleEvent(ctx context.Context, event *paystackwebhook.Event) (paystackwebhook.Outcome, error)
}

// PaystackWebhookGuard deduplicates deliveries by event and reference.
type PaystackWebhookGuard interface {
	CheckAndMark(ctx context.Context, deliveryID string) (bool, error)
	Delete(ctx context.Context, deliveryID string) error
}

type paystackClient interface {
	SigningSecret() string
}

type webhookAck struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// PaystackWebhook verifies and reconciles Paystack charge events. Once the
// signature checks out the gateway always gets a 200 so it stops retrying;
// failures are reported in the body and the dedupe key is released.
func PaystackWebhook(svc PaystackWebhookService, client paystackClient, guard PaystackWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if client == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "paystack client unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		event, err := paystackwebhook.VerifyEvent(payload, r.Header.Get(paystackwebhook.SignatureHeader), client.SigningSecret())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"event":     event.Event,
				"reference": event.Data.Reference,
			})
		}

		deliveryID := event.IdempotencyID()
		if guard != nil {
			seen, err := guard.CheckAndMark(ctx, deliveryID)
			if err != nil {
				if logg != nil {
					logg.Error(ctx, "paystack webhook idempotency check failed", err)
				}
			} else if seen {
				if logg != nil {
					logg.Info(ctx, "paystack webhook redelivery ignored")
				}
				responses.WriteJSON(w, http.StatusOK, webhookAck{Status: "duplicate", Message: "event already processed"})
				return
			}
		}

		outcome, err := svc.HandleEvent(ctx, event)
		if err != nil {
			if guard != nil {
				if delErr := guard.Delete(context.WithoutCancel(ctx), deliveryID); delErr != nil && logg != nil {
					logg.Error(ctx, "release paystack idempotency key", delErr)
				}
			}
			if logg != nil {
				logg.Error(ctx, "paystack webhook processing failed", err)
			}
			responses.WriteJSON(w, http.StatusOK, webhookAck{Status: "error", Message: "event received but processing failed"})
			return
		}

		responses.WriteJSON(w, http.StatusOK, webhookAck{Status: "success", Message: ackMessage(outcome)})
	}
}

func ackMessage(outcome paystackwebhook.Outcome) string {
	switch outcome {
	case paystackwebhook.OutcomeIgnored:
		return "event type ignored"
	case paystackwebhook.OutcomeNotFound:
		return "no matching order"
	default:
		return "event processed"
	}
}
