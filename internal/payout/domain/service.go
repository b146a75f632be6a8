package domain

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storefront-ledger/pkg/db/pagination"
)

// Service runs the payout workflow. The requested amount is reserved from the
// running balance when the request is created and restored on rejection.
type Service interface {
	Create(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*Request, error)
	Approve(ctx context.Context, requestID uuid.UUID) (*Request, error)
	Reject(ctx context.Context, requestID uuid.UUID) (*Request, error)
	Get(ctx context.Context, requestID uuid.UUID) (*Request, error)
	List(ctx context.Context, filter ListFilter, page pagination.Pagination) (*ListResponse, error)
}
