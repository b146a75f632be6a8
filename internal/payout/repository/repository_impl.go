package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/storefront-ledger/internal/payout/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const requestColumns = `id, user_id, referrer_node_id, amount, payment_details, status, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, req *domain.Request) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payout_requests (`+requestColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID,
		req.UserID,
		req.ReferrerNodeID,
		req.Amount,
		req.PaymentDetails,
		req.Status,
		req.CreatedAt,
		req.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*domain.Request, error) {
	var items []domain.Request
	err := db.WithContext(ctx).Raw(
		`SELECT `+requestColumns+` FROM payout_requests WHERE id = ?`,
		id,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter, offset, limit int) ([]domain.Request, int64, error) {
	conditions := make([]string, 0, 5)
	args := make([]any, 0, 7)
	if filter.ID != nil {
		conditions = append(conditions, "id = ?")
		args = append(args, *filter.ID)
	}
	if filter.UserID != nil {
		conditions = append(conditions, "user_id = ?")
		args = append(args, *filter.UserID)
	}
	if filter.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, *filter.Status)
	}
	if filter.CreatedFrom != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.CreatedFrom.UTC())
	}
	if filter.CreatedTo != nil {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, filter.CreatedTo.UTC())
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	if err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM payout_requests`+where, args...,
	).Scan(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []domain.Request
	err := db.WithContext(ctx).Raw(
		`SELECT `+requestColumns+` FROM payout_requests`+where+
			` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...,
	).Scan(&items).Error
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *repo) TransitionStatus(ctx context.Context, db *gorm.DB, id uuid.UUID, from, to domain.Status, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE payout_requests SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, now, id, from,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
