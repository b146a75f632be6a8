package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// Account is the storefront user as seen by the ledger. The user subsystem owns
// the row; the ledger only reads it and moves bonus_balance.
type Account struct {
	ID             uuid.UUID       `gorm:"column:id;primaryKey" json:"id"`
	FullName       string          `gorm:"column:full_name" json:"full_name"`
	ReferralCode   string          `gorm:"column:referral_code" json:"referral_code"`
	PaymentDetails *string         `gorm:"column:payment_details" json:"payment_details,omitempty"`
	Role           string          `gorm:"column:role" json:"role"`
	BonusBalance   decimal.Decimal `gorm:"column:bonus_balance;type:numeric(10,2)" json:"bonus_balance"`
	CreatedAt      time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (Account) TableName() string { return "accounts" }

// HasPaymentDetails reports whether a payout destination is on file.
func (a Account) HasPaymentDetails() bool {
	return a.PaymentDetails != nil && strings.TrimSpace(*a.PaymentDetails) != ""
}

var (
	ErrNotFound = errors.New("account_not_found")
)
