package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storefront-ledger/pkg/db/pagination"
)

// Entry is one commission credit. It is immutable except for RevertedAt,
// which is set at most once.
type Entry struct {
	ID             uuid.UUID       `gorm:"column:id;primaryKey" json:"id"`
	ReferrerNodeID uuid.UUID       `gorm:"column:referrer_node_id" json:"referrer_node_id"`
	ReferralNodeID uuid.UUID       `gorm:"column:referral_node_id" json:"referral_node_id"`
	OrderID        *uuid.UUID      `gorm:"column:order_id" json:"order_id,omitempty"`
	Level          int             `gorm:"column:level" json:"level"`
	BonusAmount    decimal.Decimal `gorm:"column:bonus_amount;type:numeric(10,2)" json:"bonus_amount"`
	CreatedAt      time.Time       `gorm:"column:created_at" json:"created_at"`
	RevertedAt     *time.Time      `gorm:"column:reverted_at" json:"reverted_at,omitempty"`

	// ReferrerUserID is filled by queries that join the paid node.
	ReferrerUserID uuid.UUID `gorm:"column:referrer_user_id;->" json:"-"`
}

func (Entry) TableName() string { return "referral_bonuses" }

func (e Entry) Reverted() bool { return e.RevertedAt != nil }

type Statement struct {
	Items    []Entry             `json:"items"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

var (
	ErrInvalidMinAge = errors.New("invalid_min_age_days")
)
