// Package ledgertest provides an in-memory SQLite ledger schema and seed helpers for tests.
package ledgertest

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storefront-ledger/internal/migration"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// sqliteTypes maps postgres column types to the names the sqlite driver
// decodes into time.Time.
var sqliteTypes = strings.NewReplacer("TIMESTAMPTZ", "TIMESTAMP")

// NewDB opens a private in-memory database with the ledger schema built from
// the embedded migrations. Foreign keys are not enforced so tests can seed
// partial graphs.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	return open(t, false)
}

// NewStrictDB is NewDB with foreign keys enforced, for tests of the
// schema's delete behaviour.
func NewStrictDB(t testing.TB) *gorm.DB {
	t.Helper()
	return open(t, true)
}

func open(t testing.TB, foreignKeys bool) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:ledger_%s?mode=memory&cache=shared", strings.ReplaceAll(uuid.NewString(), "-", ""))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if foreignKeys {
		if err := db.Exec(`PRAGMA foreign_keys = ON`).Error; err != nil {
			t.Fatalf("enable foreign keys: %v", err)
		}
	}

	statements, err := migration.Statements()
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	for _, stmt := range statements {
		if err := db.Exec(sqliteTypes.Replace(stmt)).Error; err != nil {
			t.Fatalf("create schema: %v\n%s", err, stmt)
		}
	}
	return db
}

// Dec parses a decimal literal.
func Dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

type AccountSeed struct {
	FullName       string
	PaymentDetails string
	Role           string
	Balance        string
}

func CreateAccount(t testing.TB, db *gorm.DB, seed AccountSeed) uuid.UUID {
	t.Helper()

	id := uuid.New()
	role := seed.Role
	if role == "" {
		role = "customer"
	}
	balance := seed.Balance
	if balance == "" {
		balance = "0"
	}
	var details any
	if seed.PaymentDetails != "" {
		details = seed.PaymentDetails
	}
	now := time.Now().UTC().Truncate(time.Second)
	if err := db.Exec(
		`INSERT INTO accounts (id, full_name, referral_code, payment_details, role, bonus_balance, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, seed.FullName, "ref-"+id.String()[:8], details, role, Dec(balance), now, now,
	).Error; err != nil {
		t.Fatalf("insert account: %v", err)
	}
	return id
}

func CreateOrder(t testing.TB, db *gorm.DB, userID uuid.UUID, status string, total string, createdAt time.Time) uuid.UUID {
	t.Helper()

	id := uuid.New()
	createdAt = createdAt.UTC()
	if err := db.Exec(
		`INSERT INTO orders (id, user_id, status, total, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, userID, status, Dec(total), createdAt, createdAt,
	).Error; err != nil {
		t.Fatalf("insert order: %v", err)
	}
	return id
}

func SetOrderStatus(t testing.TB, db *gorm.DB, orderID uuid.UUID, status string) {
	t.Helper()
	if err := db.Exec(`UPDATE orders SET status = ? WHERE id = ?`, status, orderID).Error; err != nil {
		t.Fatalf("update order: %v", err)
	}
}

func CreateNode(t testing.TB, db *gorm.DB, userID uuid.UUID, referrerNodeID *uuid.UUID, createdAt time.Time) uuid.UUID {
	t.Helper()

	id := uuid.New()
	if err := db.Exec(
		`INSERT INTO referral_nodes (id, user_id, referrer_node_id, signed_conditions, signed_user_terms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, userID, referrerNodeID, false, false, createdAt.UTC(),
	).Error; err != nil {
		t.Fatalf("insert node: %v", err)
	}
	return id
}

// CreateChain creates depth accounts linked root-first and returns their user and node ids.
func CreateChain(t testing.TB, db *gorm.DB, depth int, createdAt time.Time) ([]uuid.UUID, []uuid.UUID) {
	t.Helper()

	users := make([]uuid.UUID, 0, depth)
	nodes := make([]uuid.UUID, 0, depth)
	var parent *uuid.UUID
	for i := 0; i < depth; i++ {
		userID := CreateAccount(t, db, AccountSeed{FullName: fmt.Sprintf("user %d", i)})
		nodeID := CreateNode(t, db, userID, parent, createdAt)
		users = append(users, userID)
		nodes = append(nodes, nodeID)
		parent = &nodes[len(nodes)-1]
	}
	return users, nodes
}

func CreateBonus(t testing.TB, db *gorm.DB, referrerNodeID, referralNodeID uuid.UUID, orderID *uuid.UUID, level int, amount string, createdAt time.Time) uuid.UUID {
	t.Helper()

	id := uuid.New()
	if err := db.Exec(
		`INSERT INTO referral_bonuses (id, referrer_node_id, referral_node_id, order_id, level, bonus_amount, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, referrerNodeID, referralNodeID, orderID, level, Dec(amount), createdAt.UTC(),
	).Error; err != nil {
		t.Fatalf("insert bonus: %v", err)
	}
	return id
}

func CreatePayout(t testing.TB, db *gorm.DB, userID, nodeID uuid.UUID, amount, status string, createdAt time.Time) uuid.UUID {
	t.Helper()

	id := uuid.New()
	if err := db.Exec(
		`INSERT INTO payout_requests (id, user_id, referrer_node_id, amount, payment_details, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, userID, nodeID, Dec(amount), "card 4242", status, createdAt.UTC(), createdAt.UTC(),
	).Error; err != nil {
		t.Fatalf("insert payout: %v", err)
	}
	return id
}

func Balance(t testing.TB, db *gorm.DB, userID uuid.UUID) decimal.Decimal {
	t.Helper()

	var row struct {
		BonusBalance decimal.Decimal
	}
	if err := db.Raw(`SELECT bonus_balance FROM accounts WHERE id = ?`, userID).Scan(&row).Error; err != nil {
		t.Fatalf("read balance: %v", err)
	}
	return row.BonusBalance
}

func Count(t testing.TB, db *gorm.DB, query string, args ...any) int64 {
	t.Helper()

	var count int64
	if err := db.Raw(query, args...).Scan(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return count
}
