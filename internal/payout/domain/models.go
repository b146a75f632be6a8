package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storefront-ledger/pkg/db/pagination"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

func ParseStatus(value string) (Status, bool) {
	switch Status(value) {
	case StatusPending, StatusApproved, StatusRejected:
		return Status(value), true
	default:
		return "", false
	}
}

type Request struct {
	ID             uuid.UUID       `gorm:"column:id;primaryKey" json:"id"`
	UserID         uuid.UUID       `gorm:"column:user_id" json:"user_id"`
	ReferrerNodeID uuid.UUID       `gorm:"column:referrer_node_id" json:"referrer_node_id"`
	Amount         decimal.Decimal `gorm:"column:amount;type:numeric(10,2)" json:"amount"`
	PaymentDetails string          `gorm:"column:payment_details" json:"payment_details"`
	Status         Status          `gorm:"column:status" json:"status"`
	CreatedAt      time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (Request) TableName() string { return "payout_requests" }

type CreateRequest struct {
	Amount string `json:"amount"`
}

type ListFilter struct {
	ID          *uuid.UUID
	UserID      *uuid.UUID
	Status      *Status
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

type ListResponse struct {
	Items    []Request           `json:"items"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

var (
	ErrInvalidAmount         = errors.New("invalid_amount")
	ErrBelowMinimum          = errors.New("amount_below_minimum_withdrawal")
	ErrMissingPaymentDetails = errors.New("missing_payment_details")
	ErrInsufficientFunds     = errors.New("insufficient_funds")
	ErrNotFound              = errors.New("payout_request_not_found")
	ErrInvalidTransition     = errors.New("invalid_payout_transition")
	ErrAccountNotFound       = errors.New("account_not_found")
	ErrInvalidDateRange      = errors.New("invalid_date_range")
)
