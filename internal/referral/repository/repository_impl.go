package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/smallbiznis/storefront-ledger/internal/referral/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const nodeColumns = `id, user_id, referrer_node_id, signed_conditions, signed_user_terms, created_at`

const childSelect = `SELECT n.id AS node_id, n.user_id, COALESCE(a.full_name, '') AS full_name,
		n.signed_conditions, n.signed_user_terms, n.created_at,
		(SELECT COUNT(1) FROM referral_nodes c WHERE c.referrer_node_id = n.id) AS child_count,
		(SELECT COALESCE(SUM(b.bonus_amount), 0) FROM referral_bonuses b
		 WHERE b.referral_node_id = n.id AND b.reverted_at IS NULL) AS commission
	 FROM referral_nodes n
	 LEFT JOIN accounts a ON a.id = n.user_id`

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*domain.Node, error) {
	return r.findOne(ctx, db, `SELECT `+nodeColumns+` FROM referral_nodes WHERE id = ?`, id)
}

func (r *repo) FindByUserID(ctx context.Context, db *gorm.DB, userID uuid.UUID) (*domain.Node, error) {
	return r.findOne(ctx, db, `SELECT `+nodeColumns+` FROM referral_nodes WHERE user_id = ?`, userID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Node, error) {
	var nodes []domain.Node
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&nodes).Error; err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	return &nodes[0], nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, node *domain.Node) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO referral_nodes (`+nodeColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		node.ID,
		node.UserID,
		node.ReferrerNodeID,
		node.SignedConditions,
		node.SignedUserTerms,
		node.CreatedAt,
	).Error
}

func (r *repo) MarkConditionsSigned(ctx context.Context, db *gorm.DB, id uuid.UUID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE referral_nodes SET signed_conditions = ? WHERE id = ?`, true, id,
	).Error
}

func (r *repo) MarkUserTermsSigned(ctx context.Context, db *gorm.DB, id uuid.UUID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE referral_nodes SET signed_user_terms = ? WHERE id = ?`, true, id,
	).Error
}

func (r *repo) CountChildren(ctx context.Context, db *gorm.DB, parentID uuid.UUID, name string) (int64, error) {
	query := `SELECT COUNT(1) FROM referral_nodes n LEFT JOIN accounts a ON a.id = n.user_id
		 WHERE n.referrer_node_id = ?`
	args := []any{parentID}
	if name != "" {
		query += ` AND LOWER(a.full_name) LIKE ? ESCAPE '!'`
		args = append(args, likePattern(name))
	}

	var count int64
	err := db.WithContext(ctx).Raw(query, args...).Scan(&count).Error
	return count, err
}

func (r *repo) ListChildren(ctx context.Context, db *gorm.DB, q domain.ChildQuery) ([]domain.Child, error) {
	query := childSelect + ` WHERE n.referrer_node_id = ?`
	args := []any{q.ParentID}
	if q.Name != "" {
		query += ` AND LOWER(a.full_name) LIKE ? ESCAPE '!'`
		args = append(args, likePattern(q.Name))
	}
	query += ` ORDER BY n.id ASC LIMIT ? OFFSET ?`
	args = append(args, q.Limit, q.Offset)

	var children []domain.Child
	err := db.WithContext(ctx).Raw(query, args...).Scan(&children).Error
	return children, err
}

func (r *repo) TopChildren(ctx context.Context, db *gorm.DB, parentID uuid.UUID, limit int) ([]domain.Child, error) {
	var children []domain.Child
	err := db.WithContext(ctx).Raw(
		childSelect+` WHERE n.referrer_node_id = ? ORDER BY commission DESC, n.id ASC LIMIT ?`,
		parentID, limit,
	).Scan(&children).Error
	return children, err
}

// likePattern builds a case-insensitive substring pattern with '!' as the escape character.
func likePattern(name string) string {
	replacer := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return "%" + replacer.Replace(strings.ToLower(name)) + "%"
}
