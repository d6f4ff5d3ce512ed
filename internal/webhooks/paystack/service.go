package paystackwebhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/orders"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
)

// Outcome describes what reconciliation did with a verified event.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeNotFound  Outcome = "not_found"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	OrderRepo         orders.Repository
	TransactionRunner txRunner
	Outbox            outbox.Emitter
	Logger            *logger.Logger
	Metrics           *metrics.ReconcileMetrics
	Now               func() time.Time
}

// Service applies verified charge events to orders.
type Service struct {
	orderRepo orders.Repository
	tx        txRunner
	outbox    outbox.Emitter
	logg      *logger.Logger
	metrics   *metrics.ReconcileMetrics
	now       func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.OrderRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order repo required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		orderRepo: params.OrderRepo,
		tx:        params.TransactionRunner,
		outbox:    params.Outbox,
		logg:      params.Logger,
		metrics:   params.Metrics,
		now:       now,
	}, nil
}

// HandleEvent reconciles every order sharing the event's reference. Writes
// set target states, so applying the same event twice yields the same rows.
func (s *Service) HandleEvent(ctx context.Context, event *Event) (Outcome, error) {
	if event == nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "event is required")
	}
	ctx = s.logg.WithField(ctx, "event", event.Event)

	var apply func(ctx context.Context, tx *gorm.DB, event *Event, current []models.Order) error
	switch event.Event {
	case EventChargeSuccess:
		apply = s.applySuccess
	case EventChargeFailed:
		apply = s.applyFailure
	default:
		s.logg.Info(ctx, "ignoring unhandled webhook event")
		s.metrics.WebhookEvent(event.Event, string(OutcomeIgnored))
		return OutcomeIgnored, nil
	}

	reference := strings.TrimSpace(event.Data.Reference)
	if reference == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "charge reference is required")
	}
	event.Data.Reference = reference
	ctx = s.logg.WithReference(ctx, reference)

	outcome := OutcomeProcessed
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orderRepo.WithTx(tx)
		current, err := repo.ListByReference(ctx, reference)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders by reference")
		}
		if len(current) == 0 {
			if _, err := repo.FindAggregateByReference(ctx, reference); err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					outcome = OutcomeNotFound
					return nil
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load aggregate order")
			}
		}
		return apply(ctx, tx, event, current)
	})
	if err != nil {
		s.metrics.WebhookEvent(event.Event, "error")
		return "", err
	}

	s.metrics.WebhookEvent(event.Event, string(outcome))
	if outcome == OutcomeNotFound {
		s.logg.Warn(ctx, "no orders match webhook reference")
		return outcome, nil
	}
	s.logg.Info(ctx, "webhook event reconciled")
	return outcome, nil
}

func (s *Service) applySuccess(ctx context.Context, tx *gorm.DB, event *Event, current []models.Order) error {
	paidAt := s.now().UTC()
	if event.Data.PaidAt != nil {
		paidAt = event.Data.PaidAt.UTC()
	}
	update := orders.PaymentUpdate{Reference: event.Data.Reference, PaidAt: paidAt, Details: event.Data.Details()}
	if _, _, err := s.orderRepo.WithTx(tx).ApplyChargeSuccess(ctx, update); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply charge success")
	}

	for _, order := range current {
		if order.PaymentStatus == enums.PaymentStatusPaid || order.PaymentStatus == enums.PaymentStatusRefunded {
			continue
		}
		err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: outbox.OrderPaidEvent{
				OrderID:          order.ID,
				AggregateOrderID: order.AggregateOrderID,
				StoreID:          order.StoreID,
				Reference:        update.Reference,
				Amount:           order.TotalAmount,
				Currency:         order.Currency,
				PaidAt:           paidAt,
			},
		})
		if err != nil {
			return fmt.Errorf("emit order paid: %w", err)
		}
	}
	return nil
}

func (s *Service) applyFailure(ctx context.Context, tx *gorm.DB, event *Event, current []models.Order) error {
	update := orders.PaymentUpdate{Reference: event.Data.Reference, Details: event.Data.Details()}
	if _, _, err := s.orderRepo.WithTx(tx).ApplyChargeFailure(ctx, update); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply charge failure")
	}

	for _, order := range current {
		if order.PaymentStatus != enums.PaymentStatusPending {
			continue
		}
		err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaymentFailed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: outbox.OrderPaymentFailedEvent{
				OrderID:          order.ID,
				AggregateOrderID: order.AggregateOrderID,
				StoreID:          order.StoreID,
				Reference:        update.Reference,
				GatewayResponse:  event.Data.GatewayResponse,
			},
		})
		if err != nil {
			return fmt.Errorf("emit order payment failed: %w", err)
		}
	}
	return nil
}
