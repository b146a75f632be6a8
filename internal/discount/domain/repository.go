package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	Find(ctx context.Context, db *gorm.DB, userID uuid.UUID) (*Record, error)
	Insert(ctx context.Context, db *gorm.DB, record *Record) error
	Update(ctx context.Context, db *gorm.DB, record *Record) error
	// ListDecayCandidates pages through records above NONE not yet checked for
	// period, ordered by user id and starting after the given cursor.
	ListDecayCandidates(ctx context.Context, db *gorm.DB, period string, after *uuid.UUID, limit int) ([]Record, error)
	// ApplyDecay moves a record from one tier to another and stamps period. It
	// reports false when the record changed since it was read.
	ApplyDecay(ctx context.Context, db *gorm.DB, userID uuid.UUID, from, to Level, period string, now time.Time) (bool, error)
}
