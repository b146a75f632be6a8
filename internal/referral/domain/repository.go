package domain

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Node, error)
	FindByUserID(ctx context.Context, db *gorm.DB, userID uuid.UUID) (*Node, error)
	Insert(ctx context.Context, db *gorm.DB, node *Node) error
	MarkConditionsSigned(ctx context.Context, db *gorm.DB, id uuid.UUID) error
	MarkUserTermsSigned(ctx context.Context, db *gorm.DB, id uuid.UUID) error
	CountChildren(ctx context.Context, db *gorm.DB, parentID uuid.UUID, name string) (int64, error)
	ListChildren(ctx context.Context, db *gorm.DB, query ChildQuery) ([]Child, error)
	// TopChildren ranks direct children by non-reverted commission, ties by node id.
	TopChildren(ctx context.Context, db *gorm.DB, parentID uuid.UUID, limit int) ([]Child, error)
}
