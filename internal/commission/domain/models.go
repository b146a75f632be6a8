package domain

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	bonusdomain "github.com/smallbiznis/storefront-ledger/internal/bonus/domain"
	orderdomain "github.com/smallbiznis/storefront-ledger/internal/order/domain"
)

const (
	SkipNotPaid    = "not_paid"
	SkipNoNode     = "no_referral_node"
	SkipNoReferrer = "no_referrer"
	SkipDuplicate  = "duplicate"
)

// Result describes what one cascade run credited.
type Result struct {
	OrderID    uuid.UUID
	Entries    []bonusdomain.Entry
	Total      decimal.Decimal
	SkipReason string
}

func (r Result) Duplicate() bool { return r.SkipReason == SkipDuplicate }

type Service interface {
	// Apply credits the order's ancestors. Orders that are not paid, buyers
	// without a referrer and repeated deliveries are no-ops.
	Apply(ctx context.Context, order *orderdomain.Order) (*Result, error)
}
