package orderevents

import (
	"context"
	"errors"

	bonusdomain "github.com/smallbiznis/storefront-ledger/internal/bonus/domain"
	commissiondomain "github.com/smallbiznis/storefront-ledger/internal/commission/domain"
	discountdomain "github.com/smallbiznis/storefront-ledger/internal/discount/domain"
	"github.com/smallbiznis/storefront-ledger/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/storefront-ledger/internal/order/domain"
	"github.com/smallbiznis/storefront-ledger/pkg/log/ctxlogger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	OutcomeApplied      = "applied"
	OutcomeUnknownOrder = "unknown_order"
	OutcomeStale        = "stale"
	OutcomeFailed       = "failed"
)

type HandlerParams struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	OrderRepo  orderdomain.Repository
	Commission commissiondomain.Service
	Discount   discountdomain.Service
	Bonus      bonusdomain.Service
}

// Handler routes order payment events into the ledger. Every branch is
// idempotent so redelivered events are safe.
type Handler struct {
	db         *gorm.DB
	log        *zap.Logger
	orderRepo  orderdomain.Repository
	commission commissiondomain.Service
	discount   discountdomain.Service
	bonus      bonusdomain.Service
	metrics    *metrics.LedgerMetrics
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		db:         p.DB,
		log:        p.Log.Named("orderevents.handler"),
		orderRepo:  p.OrderRepo,
		commission: p.Commission,
		discount:   p.Discount,
		bonus:      p.Bonus,
		metrics:    metrics.Ledger(),
	}
}

func (h *Handler) Handle(ctx context.Context, evt Event) (string, error) {
	if err := evt.Validate(); err != nil {
		return "", err
	}
	ctx = ctxlogger.ContextWithOrderID(ctx, evt.OrderID.String())
	log := ctxlogger.WithContext(ctx, h.log).With(zap.String("event_type", evt.Type))

	outcome, err := h.dispatch(ctx, log, evt)
	if err != nil {
		outcome = OutcomeFailed
		log.Error("order event failed", zap.Error(err))
	}
	h.metrics.IncOrderEvent(evt.Type, outcome)
	return outcome, err
}

func (h *Handler) dispatch(ctx context.Context, log *zap.Logger, evt Event) (string, error) {
	order, err := h.orderRepo.FindByID(ctx, h.db, evt.OrderID)
	if err != nil {
		return "", err
	}

	switch evt.Type {
	case TypeOrderPaid:
		if order == nil {
			log.Warn("paid event for unknown order")
			return OutcomeUnknownOrder, nil
		}
		return OutcomeApplied, h.onPaid(ctx, log, order)
	default:
		if order != nil && order.Status != orderdomain.StatusCancelled && order.Status != orderdomain.StatusRefunded {
			log.Warn("ignoring reversal for order that is not cancelled or refunded",
				zap.String("status", string(order.Status)),
			)
			return OutcomeStale, nil
		}
		reverted, err := h.bonus.RevertForOrder(ctx, evt.OrderID)
		if err != nil {
			return "", err
		}
		log.Info("order reversal processed", zap.Int("reverted", reverted))
		return OutcomeApplied, nil
	}
}

// onPaid runs the cascade and the tier update independently; one failing
// does not skip the other.
func (h *Handler) onPaid(ctx context.Context, log *zap.Logger, order *orderdomain.Order) error {
	var errs []error

	result, err := h.commission.Apply(ctx, order)
	if err != nil {
		errs = append(errs, err)
	} else if result.SkipReason != "" {
		log.Debug("commission skipped", zap.String("reason", result.SkipReason))
	}

	if err := h.discount.OnOrderPaid(ctx, order.UserID, order.ID); err != nil {
		log.Error("discount tier update failed", zap.Error(err))
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
