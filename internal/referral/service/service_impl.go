package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/url"
	"strings"

	"github.com/google/uuid"
	accountdomain "github.com/smallbiznis/storefront-ledger/internal/account/domain"
	bonusdomain "github.com/smallbiznis/storefront-ledger/internal/bonus/domain"
	"github.com/smallbiznis/storefront-ledger/internal/clock"
	"github.com/smallbiznis/storefront-ledger/internal/config"
	orderdomain "github.com/smallbiznis/storefront-ledger/internal/order/domain"
	"github.com/smallbiznis/storefront-ledger/internal/period"
	referraldomain "github.com/smallbiznis/storefront-ledger/internal/referral/domain"
	"github.com/smallbiznis/storefront-ledger/pkg/db"
	"github.com/smallbiznis/storefront-ledger/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultTopLimit = 10
	maxTopLimit     = 100
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Clock        clock.Clock
	Cfg          config.Config
	Ledger       *config.LedgerConfigHolder
	Repo         referraldomain.Repository
	AccountRepo  accountdomain.Repository
	OrderRepo    orderdomain.Repository
	BonusService bonusdomain.Service
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	botUsername string
	ledger      *config.LedgerConfigHolder
	repo        referraldomain.Repository
	accountRepo accountdomain.Repository
	orderRepo   orderdomain.Repository
	bonusSvc    bonusdomain.Service
}

func New(p Params) referraldomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("referral.service"),
		clock:       p.Clock,
		botUsername: p.Cfg.Telegram.BotUsername,
		ledger:      p.Ledger,
		repo:        p.Repo,
		accountRepo: p.AccountRepo,
		orderRepo:   p.OrderRepo,
		bonusSvc:    p.BonusService,
	}
}

func (s *Service) GetOrCreate(ctx context.Context, userID uuid.UUID, referrerNodeID *uuid.UUID) (*referraldomain.Node, error) {
	var node *referraldomain.Node
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		node, err = s.getOrCreate(ctx, tx, userID, referrerNodeID)
		return err
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			// Lost a creation race; the winner's node is authoritative.
			return s.GetByUserID(ctx, userID)
		}
		return nil, err
	}
	return node, nil
}

func (s *Service) getOrCreate(ctx context.Context, tx *gorm.DB, userID uuid.UUID, referrerNodeID *uuid.UUID) (*referraldomain.Node, error) {
	existing, err := s.repo.FindByUserID(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	account, err := s.accountRepo.FindByID(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, referraldomain.ErrAccountNotFound
	}

	if referrerNodeID != nil {
		referrer, err := s.repo.FindByID(ctx, tx, *referrerNodeID)
		if err != nil {
			return nil, err
		}
		if referrer == nil {
			return nil, referraldomain.ErrReferrerNotFound
		}
	}

	node := &referraldomain.Node{
		ID:             uuid.New(),
		UserID:         userID,
		ReferrerNodeID: referrerNodeID,
		CreatedAt:      s.clock.Now().UTC(),
	}
	if err := s.repo.Insert(ctx, tx, node); err != nil {
		return nil, err
	}

	fields := []zap.Field{
		zap.String("user_id", userID.String()),
		zap.String("node_id", node.ID.String()),
	}
	if referrerNodeID != nil {
		fields = append(fields, zap.String("referrer_node_id", referrerNodeID.String()))
	}
	s.log.Info("created referral node", fields...)
	return node, nil
}

func (s *Service) GetByUserID(ctx context.Context, userID uuid.UUID) (*referraldomain.Node, error) {
	node, err := s.repo.FindByUserID(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, referraldomain.ErrNotFound
	}
	return node, nil
}

func (s *Service) GetByID(ctx context.Context, nodeID uuid.UUID) (*referraldomain.Node, error) {
	node, err := s.repo.FindByID(ctx, s.db, nodeID)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, referraldomain.ErrNotFound
	}
	return node, nil
}

func (s *Service) Children(ctx context.Context, nodeID uuid.UUID, page pagination.Pagination) (*referraldomain.ChildPage, error) {
	return s.listChildren(ctx, nodeID, "", page)
}

func (s *Service) SearchChildren(ctx context.Context, nodeID uuid.UUID, name string, page pagination.Pagination) (*referraldomain.ChildPage, error) {
	return s.listChildren(ctx, nodeID, strings.TrimSpace(name), page)
}

func (s *Service) listChildren(ctx context.Context, nodeID uuid.UUID, name string, page pagination.Pagination) (*referraldomain.ChildPage, error) {
	if _, err := s.GetByID(ctx, nodeID); err != nil {
		return nil, err
	}

	page = page.Normalize()
	total, err := s.repo.CountChildren(ctx, s.db, nodeID, name)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListChildren(ctx, s.db, referraldomain.ChildQuery{
		ParentID: nodeID,
		Name:     name,
		Offset:   page.Offset(),
		Limit:    page.Limit(),
	})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []referraldomain.Child{}
	}

	return &referraldomain.ChildPage{
		Items:    items,
		PageInfo: pagination.BuildPageInfo(page, total),
	}, nil
}

func (s *Service) TopChildrenByCommission(ctx context.Context, nodeID uuid.UUID, limit int) ([]referraldomain.Child, error) {
	if _, err := s.GetByID(ctx, nodeID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultTopLimit
	}
	if limit > maxTopLimit {
		limit = maxTopLimit
	}

	children, err := s.repo.TopChildren(ctx, s.db, nodeID, limit)
	if err != nil {
		return nil, err
	}
	if len(children) == 0 {
		return []referraldomain.Child{}, nil
	}

	userIDs := make([]uuid.UUID, 0, len(children))
	for _, child := range children {
		userIDs = append(userIDs, child.UserID)
	}
	month := period.MonthOf(s.clock.Now(), s.ledger.Get().Location())
	counts, err := s.orderRepo.CountPaidSinceByUsers(ctx, s.db, userIDs, month.Start)
	if err != nil {
		return nil, err
	}
	for i := range children {
		children[i].CurrentMonthOrders = counts[children[i].UserID]
	}
	return children, nil
}

func (s *Service) AttachReferral(ctx context.Context, referrerUserID, referralUserID uuid.UUID) (*referraldomain.Node, error) {
	if referrerUserID == referralUserID {
		return nil, referraldomain.ErrSelfReferral
	}

	var node *referraldomain.Node
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByUserID(ctx, tx, referralUserID)
		if err != nil {
			return err
		}
		if existing != nil {
			return referraldomain.ErrAlreadyReferred
		}

		referrer, err := s.getOrCreate(ctx, tx, referrerUserID, nil)
		if err != nil {
			if errors.Is(err, referraldomain.ErrAccountNotFound) {
				return referraldomain.ErrReferrerNotFound
			}
			return err
		}

		node, err = s.getOrCreate(ctx, tx, referralUserID, &referrer.ID)
		return err
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, referraldomain.ErrAlreadyReferred
		}
		return nil, err
	}
	return node, nil
}

func (s *Service) SignConditions(ctx context.Context, userID uuid.UUID) (*referraldomain.Node, error) {
	return s.sign(ctx, userID, s.repo.MarkConditionsSigned, func(n *referraldomain.Node) { n.SignedConditions = true })
}

func (s *Service) SignUserTerms(ctx context.Context, userID uuid.UUID) (*referraldomain.Node, error) {
	return s.sign(ctx, userID, s.repo.MarkUserTermsSigned, func(n *referraldomain.Node) { n.SignedUserTerms = true })
}

func (s *Service) sign(
	ctx context.Context,
	userID uuid.UUID,
	mark func(context.Context, *gorm.DB, uuid.UUID) error,
	apply func(*referraldomain.Node),
) (*referraldomain.Node, error) {
	node, err := s.GetOrCreate(ctx, userID, nil)
	if err != nil {
		return nil, err
	}
	if err := mark(ctx, s.db, node.ID); err != nil {
		return nil, err
	}
	apply(node)
	return node, nil
}

func (s *Service) Summary(ctx context.Context, userID uuid.UUID) (*referraldomain.Summary, error) {
	node, err := s.GetOrCreate(ctx, userID, nil)
	if err != nil {
		return nil, err
	}
	return s.buildSummary(ctx, node)
}

func (s *Service) SummaryByNode(ctx context.Context, nodeID uuid.UUID) (*referraldomain.Summary, error) {
	node, err := s.GetByID(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	return s.buildSummary(ctx, node)
}

func (s *Service) buildSummary(ctx context.Context, node *referraldomain.Node) (*referraldomain.Summary, error) {
	account, err := s.accountRepo.FindByID(ctx, s.db, node.UserID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, referraldomain.ErrAccountNotFound
	}

	cfg := s.ledger.Get()
	withdrawable, err := s.bonusSvc.AvailableBalance(ctx, node.ID, cfg.Referral.MaturityDays)
	if err != nil {
		return nil, err
	}
	lifetime, err := s.bonusSvc.TotalForReferrer(ctx, node.ID)
	if err != nil {
		return nil, err
	}
	referrals, err := s.repo.CountChildren(ctx, s.db, node.ID, "")
	if err != nil {
		return nil, err
	}
	month := period.MonthOf(s.clock.Now(), cfg.Location())
	orders, err := s.orderRepo.CountPaidSince(ctx, s.db, node.UserID, month.Start)
	if err != nil {
		return nil, err
	}

	return &referraldomain.Summary{
		NodeID:              node.ID,
		UserID:              node.UserID,
		FullName:            account.FullName,
		ReferralCode:        account.ReferralCode,
		Balance:             account.BonusBalance.Round(2),
		WithdrawableBalance: withdrawable,
		LifetimeCommission:  lifetime,
		ReferralCount:       referrals,
		CurrentMonthOrders:  orders,
		SignedConditions:    node.SignedConditions,
		SignedUserTerms:     node.SignedUserTerms,
		IsRegistered:        node.IsRegistered(),
		InviteLink:          s.inviteLink(account.ReferralCode),
	}, nil
}

func (s *Service) InviteLink(ctx context.Context, userID uuid.UUID) (string, error) {
	if s.botUsername == "" {
		return "", referraldomain.ErrInviteUnavailable
	}
	if _, err := s.GetOrCreate(ctx, userID, nil); err != nil {
		return "", err
	}
	account, err := s.accountRepo.FindByID(ctx, s.db, userID)
	if err != nil {
		return "", err
	}
	if account == nil {
		return "", referraldomain.ErrAccountNotFound
	}
	return s.inviteLink(account.ReferralCode), nil
}

func (s *Service) inviteLink(referralCode string) string {
	if s.botUsername == "" || referralCode == "" {
		return ""
	}
	return "https://t.me/" + s.botUsername + "?start=" + url.QueryEscape(EncodeInvitePayload(referralCode))
}

func (s *Service) ResolveReferralCode(ctx context.Context, code string) (uuid.UUID, error) {
	referralCode := DecodeInvitePayload(strings.TrimSpace(code))
	if referralCode == "" {
		return uuid.Nil, referraldomain.ErrInvalidReferralCode
	}
	account, err := s.accountRepo.FindByReferralCode(ctx, s.db, referralCode)
	if err != nil {
		return uuid.Nil, err
	}
	if account == nil {
		return uuid.Nil, referraldomain.ErrInvalidReferralCode
	}
	return account.ID, nil
}

// EncodeInvitePayload renders the bot start parameter for a referral code.
func EncodeInvitePayload(referralCode string) string {
	raw, _ := json.Marshal(referraldomain.InvitePayload{ReferralCode: referralCode})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeInvitePayload accepts an encoded start parameter or a bare referral code.
func DecodeInvitePayload(value string) string {
	if value == "" {
		return ""
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(value, "="))
	if err == nil {
		var payload referraldomain.InvitePayload
		if json.Unmarshal(raw, &payload) == nil && payload.ReferralCode != "" {
			return payload.ReferralCode
		}
	}
	return value
}
