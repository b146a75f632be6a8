package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	accountdomain "github.com/smallbiznis/storefront-ledger/internal/account/domain"
	bonusdomain "github.com/smallbiznis/storefront-ledger/internal/bonus/domain"
	"github.com/smallbiznis/storefront-ledger/internal/clock"
	"github.com/smallbiznis/storefront-ledger/internal/observability/metrics"
	"github.com/smallbiznis/storefront-ledger/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Repo        bonusdomain.Repository
	AccountRepo accountdomain.Repository
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	repo        bonusdomain.Repository
	accountRepo accountdomain.Repository
	metrics     *metrics.LedgerMetrics
}

func New(p Params) bonusdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("bonus.service"),
		clock:       p.Clock,
		repo:        p.Repo,
		accountRepo: p.AccountRepo,
		metrics:     metrics.Ledger(),
	}
}

func (s *Service) AvailableBalance(ctx context.Context, referrerNodeID uuid.UUID, minAgeDays int) (decimal.Decimal, error) {
	if minAgeDays < 0 {
		return decimal.Zero, bonusdomain.ErrInvalidMinAge
	}
	return AvailableBalance(ctx, s.db, s.repo, referrerNodeID, s.clock.Now(), minAgeDays, nil)
}

// AvailableBalance computes the withdrawable balance on db, which may be an
// open transaction. excludeID leaves one payout request out of the reserved sum.
func AvailableBalance(ctx context.Context, db *gorm.DB, repo bonusdomain.Repository, referrerNodeID uuid.UUID, now time.Time, minAgeDays int, excludeID *uuid.UUID) (decimal.Decimal, error) {
	maturedBefore := now.UTC().AddDate(0, 0, -minAgeDays)
	matured, err := repo.SumMatured(ctx, db, referrerNodeID, maturedBefore)
	if err != nil {
		return decimal.Zero, err
	}
	reserved, err := repo.SumReserved(ctx, db, referrerNodeID, excludeID)
	if err != nil {
		return decimal.Zero, err
	}
	return matured.Sub(reserved).Round(2), nil
}

func (s *Service) RevertForOrder(ctx context.Context, orderID uuid.UUID) (int, error) {
	now := s.clock.Now().UTC()
	reverted := 0

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entries, err := s.repo.ListActiveByOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			ok, err := s.repo.MarkReverted(ctx, tx, entry.ID, now)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := s.accountRepo.DecrementBalance(ctx, tx, entry.ReferrerUserID, entry.BonusAmount, now); err != nil {
				return err
			}
			reverted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if reverted > 0 {
		s.metrics.AddBonusReverts(int64(reverted))
		s.log.Info("reverted order commission",
			zap.String("order_id", orderID.String()),
			zap.Int("entries", reverted),
		)
	}
	return reverted, nil
}

func (s *Service) TotalForReferrer(ctx context.Context, referrerNodeID uuid.UUID) (decimal.Decimal, error) {
	return s.repo.SumForReferrer(ctx, s.db, referrerNodeID)
}

func (s *Service) TotalForReferral(ctx context.Context, referralNodeID uuid.UUID) (decimal.Decimal, error) {
	return s.repo.SumForReferral(ctx, s.db, referralNodeID)
}

func (s *Service) ListForReferrer(ctx context.Context, referrerNodeID uuid.UUID, page pagination.Pagination) (*bonusdomain.Statement, error) {
	page = page.Normalize()
	items, total, err := s.repo.ListForReferrer(ctx, s.db, referrerNodeID, page.Offset(), page.Limit())
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []bonusdomain.Entry{}
	}
	return &bonusdomain.Statement{
		Items:    items,
		PageInfo: pagination.BuildPageInfo(page, total),
	}, nil
}
