package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storefront-ledger/pkg/db/pagination"
)

// Node is a user's participation in the referral program. Nodes form a
// forest through ReferrerNodeID.
type Node struct {
	ID               uuid.UUID  `gorm:"column:id;primaryKey" json:"id"`
	UserID           uuid.UUID  `gorm:"column:user_id" json:"user_id"`
	ReferrerNodeID   *uuid.UUID `gorm:"column:referrer_node_id" json:"referrer_node_id,omitempty"`
	SignedConditions bool       `gorm:"column:signed_conditions" json:"signed_conditions"`
	SignedUserTerms  bool       `gorm:"column:signed_user_terms" json:"signed_user_terms"`
	CreatedAt        time.Time  `gorm:"column:created_at" json:"created_at"`
}

func (Node) TableName() string { return "referral_nodes" }

func (n Node) IsRegistered() bool {
	return n.SignedConditions && n.SignedUserTerms
}

// Child is a direct child of a node with its aggregates.
type Child struct {
	NodeID           uuid.UUID       `gorm:"column:node_id" json:"id"`
	UserID           uuid.UUID       `gorm:"column:user_id" json:"user_id"`
	FullName         string          `gorm:"column:full_name" json:"full_name"`
	ChildCount       int64           `gorm:"column:child_count" json:"referral_count"`
	Commission       decimal.Decimal `gorm:"column:commission" json:"lifetime_bonus"`
	SignedConditions bool            `gorm:"column:signed_conditions" json:"signed_conditions"`
	SignedUserTerms  bool            `gorm:"column:signed_user_terms" json:"signed_user_terms"`
	CreatedAt        time.Time       `gorm:"column:created_at" json:"created_at"`

	CurrentMonthOrders int64 `gorm:"-" json:"current_month_orders"`
}

type ChildPage struct {
	Items    []Child             `json:"items"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

// ChildQuery selects a window of direct children. An empty Name matches all.
type ChildQuery struct {
	ParentID uuid.UUID
	Name     string
	Offset   int
	Limit    int
}

type Summary struct {
	NodeID              uuid.UUID       `json:"id"`
	UserID              uuid.UUID       `json:"user_id"`
	FullName            string          `json:"full_name"`
	ReferralCode        string          `json:"referral_code"`
	Balance             decimal.Decimal `json:"total_balance"`
	WithdrawableBalance decimal.Decimal `json:"withdrawable_balance"`
	LifetimeCommission  decimal.Decimal `json:"referral_bonus"`
	ReferralCount       int64           `json:"referrals_count"`
	CurrentMonthOrders  int64           `json:"current_month_orders"`
	SignedConditions    bool            `json:"signed_conditions"`
	SignedUserTerms     bool            `json:"signed_user_terms"`
	IsRegistered        bool            `json:"is_registered"`
	InviteLink          string          `json:"invite_link"`
}

// InvitePayload is carried base64url-encoded in the bot start parameter.
type InvitePayload struct {
	ReferralCode string `json:"referral_code"`
}

var (
	ErrNotFound            = errors.New("referral_node_not_found")
	ErrReferrerNotFound    = errors.New("referrer_not_found")
	ErrAlreadyReferred     = errors.New("referral_already_exists")
	ErrSelfReferral        = errors.New("self_referral")
	ErrInvalidReferralCode = errors.New("invalid_referral_code")
	ErrAccountNotFound     = errors.New("account_not_found")
	ErrInviteUnavailable   = errors.New("invite_link_unavailable")
)
