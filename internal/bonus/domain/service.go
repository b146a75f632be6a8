package domain

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storefront-ledger/pkg/db/pagination"
)

type Service interface {
	// AvailableBalance is the withdrawable amount: matured non-reverted credits
	// minus pending payout requests.
	AvailableBalance(ctx context.Context, referrerNodeID uuid.UUID, minAgeDays int) (decimal.Decimal, error)
	// RevertForOrder marks the order's credits reverted and takes them back from
	// the paid users' running balances. It returns the number of newly reverted entries.
	RevertForOrder(ctx context.Context, orderID uuid.UUID) (int, error)
	TotalForReferrer(ctx context.Context, referrerNodeID uuid.UUID) (decimal.Decimal, error)
	TotalForReferral(ctx context.Context, referralNodeID uuid.UUID) (decimal.Decimal, error)
	ListForReferrer(ctx context.Context, referrerNodeID uuid.UUID, page pagination.Pagination) (*Statement, error)
}
