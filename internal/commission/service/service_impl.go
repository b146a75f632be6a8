package service

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	accountdomain "github.com/smallbiznis/storefront-ledger/internal/account/domain"
	bonusdomain "github.com/smallbiznis/storefront-ledger/internal/bonus/domain"
	"github.com/smallbiznis/storefront-ledger/internal/clock"
	commissiondomain "github.com/smallbiznis/storefront-ledger/internal/commission/domain"
	"github.com/smallbiznis/storefront-ledger/internal/config"
	"github.com/smallbiznis/storefront-ledger/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/storefront-ledger/internal/order/domain"
	referraldomain "github.com/smallbiznis/storefront-ledger/internal/referral/domain"
	"github.com/smallbiznis/storefront-ledger/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Clock        clock.Clock
	Ledger       *config.LedgerConfigHolder
	ReferralRepo referraldomain.Repository
	BonusRepo    bonusdomain.Repository
	AccountRepo  accountdomain.Repository
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	clock        clock.Clock
	ledger       *config.LedgerConfigHolder
	referralRepo referraldomain.Repository
	bonusRepo    bonusdomain.Repository
	accountRepo  accountdomain.Repository
	metrics      *metrics.LedgerMetrics
}

func New(p Params) commissiondomain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("commission.service"),
		clock:        p.Clock,
		ledger:       p.Ledger,
		referralRepo: p.ReferralRepo,
		bonusRepo:    p.BonusRepo,
		accountRepo:  p.AccountRepo,
		metrics:      metrics.Ledger(),
	}
}

func (s *Service) Apply(ctx context.Context, order *orderdomain.Order) (*commissiondomain.Result, error) {
	if order == nil || !order.IsPaid() {
		s.metrics.IncCommissionSkipped(commissiondomain.SkipNotPaid)
		result := &commissiondomain.Result{Total: decimal.Zero, SkipReason: commissiondomain.SkipNotPaid}
		if order != nil {
			result.OrderID = order.ID
			s.log.Debug("order not paid, skipping commission",
				zap.String("order_id", order.ID.String()),
				zap.String("status", string(order.Status)),
			)
		}
		return result, nil
	}

	cfg := s.ledger.Get()
	now := s.clock.Now().UTC()
	result := &commissiondomain.Result{OrderID: order.ID, Total: decimal.Zero}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result.Entries = nil
		result.Total = decimal.Zero

		credited, err := s.bonusRepo.ExistsForOrder(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if credited {
			result.SkipReason = commissiondomain.SkipDuplicate
			return nil
		}

		node, err := s.referralRepo.FindByUserID(ctx, tx, order.UserID)
		if err != nil {
			return err
		}
		if node == nil {
			result.SkipReason = commissiondomain.SkipNoNode
			return nil
		}
		if node.ReferrerNodeID == nil {
			result.SkipReason = commissiondomain.SkipNoReferrer
			return nil
		}

		visited := map[uuid.UUID]struct{}{node.ID: {}}
		currentID := node.ReferrerNodeID
		for level := 1; currentID != nil && level <= cfg.Referral.MaxLevel; level++ {
			if _, seen := visited[*currentID]; seen {
				s.log.Warn("referral cycle detected, stopping cascade",
					zap.String("order_id", order.ID.String()),
					zap.String("node_id", currentID.String()),
				)
				break
			}
			current, err := s.referralRepo.FindByID(ctx, tx, *currentID)
			if err != nil {
				return err
			}
			if current == nil {
				s.log.Warn("dangling referrer, stopping cascade",
					zap.String("order_id", order.ID.String()),
					zap.String("node_id", currentID.String()),
					zap.Int("level", level),
				)
				break
			}
			visited[current.ID] = struct{}{}

			if rate := cfg.LevelRate(level); rate.IsPositive() {
				amount := order.Total.Mul(rate).RoundBank(2)
				orderID := order.ID
				entry := bonusdomain.Entry{
					ID:             uuid.New(),
					ReferrerNodeID: current.ID,
					ReferralNodeID: node.ID,
					OrderID:        &orderID,
					Level:          level,
					BonusAmount:    amount,
					CreatedAt:      now,
					ReferrerUserID: current.UserID,
				}
				if err := s.bonusRepo.Insert(ctx, tx, &entry); err != nil {
					return err
				}
				if err := s.accountRepo.IncrementBalance(ctx, tx, current.UserID, amount, now); err != nil {
					return err
				}
				result.Entries = append(result.Entries, entry)
				result.Total = result.Total.Add(amount)
			}

			currentID = current.ReferrerNodeID
		}
		return nil
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			// A concurrent delivery of the same event committed first.
			s.metrics.IncCommissionSkipped(commissiondomain.SkipDuplicate)
			return &commissiondomain.Result{OrderID: order.ID, Total: decimal.Zero, SkipReason: commissiondomain.SkipDuplicate}, nil
		}
		s.log.Error("commission cascade failed",
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	if result.SkipReason != "" {
		s.metrics.IncCommissionSkipped(result.SkipReason)
		return result, nil
	}

	for _, entry := range result.Entries {
		amount, _ := entry.BonusAmount.Float64()
		s.metrics.IncCommissionCredit(strconv.Itoa(entry.Level), amount)
	}
	if len(result.Entries) > 0 {
		s.log.Info("commission credited",
			zap.String("order_id", order.ID.String()),
			zap.Int("levels", len(result.Entries)),
			zap.String("total", result.Total.StringFixed(2)),
		)
	}
	return result, nil
}
