package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/google/uuid"
	accountdomain "github.com/smallbiznis/storefront-ledger/internal/account/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectPayoutRequest = "payout_request"
)

const (
	ActionPayoutView    = "payout_request.view"
	ActionPayoutApprove = "payout_request.approve"
	ActionPayoutReject  = "payout_request.reject"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Enforcer    *casbin.SyncedEnforcer
	AccountRepo accountdomain.Repository
}

type ServiceImpl struct {
	db          *gorm.DB
	log         *zap.Logger
	enforcer    *casbin.SyncedEnforcer
	accountRepo accountdomain.Repository
}

// NewEnforcer loads policies from the casbin_rule table and seeds the
// built-in role grants.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:          p.DB,
		log:         p.Log.Named("authorization.service"),
		enforcer:    p.Enforcer,
		accountRepo: p.AccountRepo,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, userID uuid.UUID, object string, action string) error {
	if userID == uuid.Nil {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject := fmt.Sprintf("user:%s", userID)
	roleName, err := s.roleForUser(ctx, userID)
	if err != nil {
		s.logDecision(subject, object, action, false)
		return err
	}
	if err := s.ensureGrouping(subject, roleName); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	s.logDecision(subject, object, action, allowed)
	if !allowed {
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) roleForUser(ctx context.Context, userID uuid.UUID) (string, error) {
	account, err := s.accountRepo.FindByID(ctx, s.db, userID)
	if err != nil {
		return "", err
	}
	if account == nil {
		return "", ErrForbidden
	}
	role := strings.ToLower(strings.TrimSpace(account.Role))
	if role == "" {
		return "", ErrForbidden
	}
	return "role:" + role, nil
}

// ensureGrouping keeps exactly one role link per subject, following role
// changes made on the account row.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		if _, err := s.enforcer.RemoveGroupingPolicy(rule[0], rule[1]); err != nil {
			return err
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func (s *ServiceImpl) logDecision(subject, object, action string, allowed bool) {
	if allowed {
		if shouldLogGrant(action) {
			s.log.Info("authorization.granted",
				zap.String("subject", subject),
				zap.String("object", object),
				zap.String("action", action),
			)
		}
		return
	}
	s.log.Warn("authorization.denied",
		zap.String("subject", subject),
		zap.String("object", object),
		zap.String("action", action),
	)
}

func shouldLogGrant(action string) bool {
	switch action {
	case ActionPayoutApprove, ActionPayoutReject:
		return true
	default:
		return false
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{"role:admin", ObjectPayoutRequest, ActionPayoutView},
		{"role:admin", ObjectPayoutRequest, ActionPayoutApprove},
		{"role:admin", ObjectPayoutRequest, ActionPayoutReject},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
