package domain

import (
	"context"

	"github.com/google/uuid"
	"github.com/smallbiznis/storefront-ledger/pkg/db/pagination"
)

type Service interface {
	// GetOrCreate returns the user's node, creating it under referrerNodeID
	// when missing. An existing node keeps its referrer.
	GetOrCreate(ctx context.Context, userID uuid.UUID, referrerNodeID *uuid.UUID) (*Node, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Node, error)
	GetByID(ctx context.Context, nodeID uuid.UUID) (*Node, error)
	Children(ctx context.Context, nodeID uuid.UUID, page pagination.Pagination) (*ChildPage, error)
	SearchChildren(ctx context.Context, nodeID uuid.UUID, name string, page pagination.Pagination) (*ChildPage, error)
	TopChildrenByCommission(ctx context.Context, nodeID uuid.UUID, limit int) ([]Child, error)
	AttachReferral(ctx context.Context, referrerUserID, referralUserID uuid.UUID) (*Node, error)
	SignConditions(ctx context.Context, userID uuid.UUID) (*Node, error)
	SignUserTerms(ctx context.Context, userID uuid.UUID) (*Node, error)
	Summary(ctx context.Context, userID uuid.UUID) (*Summary, error)
	SummaryByNode(ctx context.Context, nodeID uuid.UUID) (*Summary, error)
	InviteLink(ctx context.Context, userID uuid.UUID) (string, error)
	// ResolveReferralCode maps an invite start parameter or a bare referral code to the referrer's user id.
	ResolveReferralCode(ctx context.Context, code string) (uuid.UUID, error)
}
