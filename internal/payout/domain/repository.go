package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, req *Request) error
	FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Request, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter, offset, limit int) ([]Request, int64, error)
	// TransitionStatus moves a request out of from; it reports false when the
	// request was no longer in that status.
	TransitionStatus(ctx context.Context, db *gorm.DB, id uuid.UUID, from, to Status, now time.Time) (bool, error)
}
