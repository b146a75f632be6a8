package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/storefront-ledger/internal/discount/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const recordColumns = `user_id, current_level, last_purchase_date, decay_checked_period, created_at, updated_at`

func (r *repo) Find(ctx context.Context, db *gorm.DB, userID uuid.UUID) (*domain.Record, error) {
	var records []domain.Record
	err := db.WithContext(ctx).Raw(
		`SELECT `+recordColumns+` FROM user_discounts WHERE user_id = ?`,
		userID,
	).Scan(&records).Error
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record *domain.Record) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO user_discounts (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		record.UserID,
		record.CurrentLevel,
		record.LastPurchaseDate,
		record.DecayCheckedPeriod,
		record.CreatedAt,
		record.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, record *domain.Record) error {
	return db.WithContext(ctx).Exec(
		`UPDATE user_discounts
		 SET current_level = ?, last_purchase_date = ?, decay_checked_period = ?, updated_at = ?
		 WHERE user_id = ?`,
		record.CurrentLevel,
		record.LastPurchaseDate,
		record.DecayCheckedPeriod,
		record.UpdatedAt,
		record.UserID,
	).Error
}

func (r *repo) ListDecayCandidates(ctx context.Context, db *gorm.DB, period string, after *uuid.UUID, limit int) ([]domain.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM user_discounts
		 WHERE current_level <> ?
		   AND (decay_checked_period IS NULL OR decay_checked_period <> ?)`
	args := []any{domain.LevelNone, period}
	if after != nil {
		query += ` AND user_id > ?`
		args = append(args, *after)
	}
	query += ` ORDER BY user_id ASC LIMIT ?`
	args = append(args, limit)

	var records []domain.Record
	err := db.WithContext(ctx).Raw(query, args...).Scan(&records).Error
	return records, err
}

func (r *repo) ApplyDecay(ctx context.Context, db *gorm.DB, userID uuid.UUID, from, to domain.Level, period string, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE user_discounts
		 SET current_level = ?, decay_checked_period = ?, updated_at = ?
		 WHERE user_id = ? AND current_level = ?
		   AND (decay_checked_period IS NULL OR decay_checked_period <> ?)`,
		to, period, now, userID, from, period,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
