package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	accountdomain "github.com/smallbiznis/storefront-ledger/internal/account/domain"
	bonusdomain "github.com/smallbiznis/storefront-ledger/internal/bonus/domain"
	bonusservice "github.com/smallbiznis/storefront-ledger/internal/bonus/service"
	"github.com/smallbiznis/storefront-ledger/internal/clock"
	"github.com/smallbiznis/storefront-ledger/internal/config"
	"github.com/smallbiznis/storefront-ledger/internal/observability/metrics"
	payoutdomain "github.com/smallbiznis/storefront-ledger/internal/payout/domain"
	referraldomain "github.com/smallbiznis/storefront-ledger/internal/referral/domain"
	"github.com/smallbiznis/storefront-ledger/pkg/db/pagination"
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
	Repo         payoutdomain.Repository
	AccountRepo  accountdomain.Repository
	ReferralRepo referraldomain.Repository
	BonusRepo    bonusdomain.Repository
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	clock        clock.Clock
	ledger       *config.LedgerConfigHolder
	repo         payoutdomain.Repository
	accountRepo  accountdomain.Repository
	referralRepo referraldomain.Repository
	bonusRepo    bonusdomain.Repository
	metrics      *metrics.LedgerMetrics
}

func New(p Params) payoutdomain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("payout.service"),
		clock:        p.Clock,
		ledger:       p.Ledger,
		repo:         p.Repo,
		accountRepo:  p.AccountRepo,
		referralRepo: p.ReferralRepo,
		bonusRepo:    p.BonusRepo,
		metrics:      metrics.Ledger(),
	}
}

func (s *Service) Create(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*payoutdomain.Request, error) {
	if !amount.IsPositive() || !amount.Equal(amount.Round(2)) {
		return nil, payoutdomain.ErrInvalidAmount
	}
	cfg := s.ledger.Get()
	if amount.LessThan(cfg.MinimumWithdrawal()) {
		return nil, payoutdomain.ErrBelowMinimum
	}

	now := s.clock.Now().UTC()
	var req *payoutdomain.Request
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.accountRepo.FindByID(ctx, tx, userID)
		if err != nil {
			return err
		}
		if account == nil {
			return payoutdomain.ErrAccountNotFound
		}
		if !account.HasPaymentDetails() {
			return payoutdomain.ErrMissingPaymentDetails
		}

		node, err := s.referralRepo.FindByUserID(ctx, tx, userID)
		if err != nil {
			return err
		}
		if node == nil {
			return payoutdomain.ErrInsufficientFunds
		}

		available, err := bonusservice.AvailableBalance(ctx, tx, s.bonusRepo, node.ID, now, cfg.Referral.MaturityDays, nil)
		if err != nil {
			return err
		}
		if amount.GreaterThan(available) {
			return payoutdomain.ErrInsufficientFunds
		}

		reserved, err := s.accountRepo.DecrementBalanceIfSufficient(ctx, tx, userID, amount, now)
		if err != nil {
			return err
		}
		if !reserved {
			return payoutdomain.ErrInsufficientFunds
		}

		req = &payoutdomain.Request{
			ID:             uuid.New(),
			UserID:         userID,
			ReferrerNodeID: node.ID,
			Amount:         amount,
			PaymentDetails: strings.TrimSpace(*account.PaymentDetails),
			Status:         payoutdomain.StatusPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return s.repo.Insert(ctx, tx, req)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncPayoutTransition("NONE", string(payoutdomain.StatusPending))
	s.log.Info("payout requested",
		zap.String("request_id", req.ID.String()),
		zap.String("user_id", userID.String()),
		zap.String("amount", amount.StringFixed(2)),
	)
	return req, nil
}

func (s *Service) Approve(ctx context.Context, requestID uuid.UUID) (*payoutdomain.Request, error) {
	cfg := s.ledger.Get()
	now := s.clock.Now().UTC()

	var req *payoutdomain.Request
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		req, err = s.loadPending(ctx, tx, requestID)
		if err != nil {
			return err
		}

		// Funds may have been reverted or consumed since the request was made.
		headroom, err := bonusservice.AvailableBalance(ctx, tx, s.bonusRepo, req.ReferrerNodeID, now, cfg.Referral.MaturityDays, &req.ID)
		if err != nil {
			return err
		}
		if headroom.LessThan(req.Amount) {
			return payoutdomain.ErrInsufficientFunds
		}

		return s.transition(ctx, tx, req, payoutdomain.StatusApproved, now)
	})
	if err != nil {
		if errors.Is(err, payoutdomain.ErrInsufficientFunds) {
			s.log.Warn("payout approval blocked by insufficient funds",
				zap.String("request_id", requestID.String()),
			)
		}
		return nil, err
	}

	s.metrics.IncPayoutTransition(string(payoutdomain.StatusPending), string(payoutdomain.StatusApproved))
	s.log.Info("payout approved", zap.String("request_id", requestID.String()))
	return req, nil
}

func (s *Service) Reject(ctx context.Context, requestID uuid.UUID) (*payoutdomain.Request, error) {
	now := s.clock.Now().UTC()

	var req *payoutdomain.Request
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		req, err = s.loadPending(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if err := s.transition(ctx, tx, req, payoutdomain.StatusRejected, now); err != nil {
			return err
		}
		return s.accountRepo.IncrementBalance(ctx, tx, req.UserID, req.Amount, now)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncPayoutTransition(string(payoutdomain.StatusPending), string(payoutdomain.StatusRejected))
	s.log.Info("payout rejected", zap.String("request_id", requestID.String()))
	return req, nil
}

func (s *Service) loadPending(ctx context.Context, tx *gorm.DB, requestID uuid.UUID) (*payoutdomain.Request, error) {
	req, err := s.repo.FindByID(ctx, tx, requestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, payoutdomain.ErrNotFound
	}
	if req.Status != payoutdomain.StatusPending {
		return nil, payoutdomain.ErrInvalidTransition
	}
	return req, nil
}

func (s *Service) transition(ctx context.Context, tx *gorm.DB, req *payoutdomain.Request, to payoutdomain.Status, now time.Time) error {
	ok, err := s.repo.TransitionStatus(ctx, tx, req.ID, payoutdomain.StatusPending, to, now)
	if err != nil {
		return err
	}
	if !ok {
		return payoutdomain.ErrInvalidTransition
	}
	req.Status = to
	req.UpdatedAt = now
	return nil
}

func (s *Service) Get(ctx context.Context, requestID uuid.UUID) (*payoutdomain.Request, error) {
	req, err := s.repo.FindByID(ctx, s.db, requestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, payoutdomain.ErrNotFound
	}
	return req, nil
}

func (s *Service) List(ctx context.Context, filter payoutdomain.ListFilter, page pagination.Pagination) (*payoutdomain.ListResponse, error) {
	if filter.CreatedFrom != nil && filter.CreatedTo != nil && filter.CreatedFrom.After(*filter.CreatedTo) {
		return nil, payoutdomain.ErrInvalidDateRange
	}

	page = page.Normalize()
	items, total, err := s.repo.List(ctx, s.db, filter, page.Offset(), page.Limit())
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []payoutdomain.Request{}
	}
	return &payoutdomain.ListResponse{
		Items:    items,
		PageInfo: pagination.BuildPageInfo(page, total),
	}, nil
}
