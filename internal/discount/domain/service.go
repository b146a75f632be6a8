package domain

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Service interface {
	// OnOrderPaid raises the user's tier to match this month's paid spend. It
	// never lowers a tier except to apply a pending monthly decay.
	OnOrderPaid(ctx context.Context, userID, orderID uuid.UUID) error
	Progress(ctx context.Context, userID uuid.UUID) (*Progress, error)
	CurrentPercent(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	// Multiplier is (100 - percent) / 100 with four decimal places.
	Multiplier(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	MonthlyDecay(ctx context.Context) (*DecayReport, error)
}
