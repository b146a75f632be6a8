package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	accountrepository "github.com/smallbiznis/storefront-ledger/internal/account/repository"
	"github.com/smallbiznis/storefront-ledger/internal/authorization"
	bonusrepository "github.com/smallbiznis/storefront-ledger/internal/bonus/repository"
	bonusservice "github.com/smallbiznis/storefront-ledger/internal/bonus/service"
	"github.com/smallbiznis/storefront-ledger/internal/clock"
	commissionservice "github.com/smallbiznis/storefront-ledger/internal/commission/service"
	"github.com/smallbiznis/storefront-ledger/internal/config"
	discountrepository "github.com/smallbiznis/storefront-ledger/internal/discount/repository"
	discountservice "github.com/smallbiznis/storefront-ledger/internal/discount/service"
	"github.com/smallbiznis/storefront-ledger/internal/ledgertest"
	orderrepository "github.com/smallbiznis/storefront-ledger/internal/order/repository"
	"github.com/smallbiznis/storefront-ledger/internal/orderevents"
	payoutrepository "github.com/smallbiznis/storefront-ledger/internal/payout/repository"
	payoutservice "github.com/smallbiznis/storefront-ledger/internal/payout/service"
	referralrepository "github.com/smallbiznis/storefront-ledger/internal/referral/repository"
	referralservice "github.com/smallbiznis/storefront-ledger/internal/referral/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var baseTime = time.Date(2025, time.June, 10, 9, 0, 0, 0, time.UTC)

type testServer struct {
	engine *gin.Engine
	db     *gorm.DB
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := ledgertest.NewDB(t)
	log := zap.NewNop()
	clk := clock.NewFakeClock(baseTime)
	cfg := config.Config{
		Environment: "test",
		Telegram:    config.TelegramConfig{BotUsername: "storefront_bot"},
	}
	ledger := config.NewStaticLedgerConfigHolder(config.DefaultLedgerConfig())

	accountRepo := accountrepository.Provide()
	orderRepo := orderrepository.Provide()
	referralRepo := referralrepository.Provide()
	bonusRepo := bonusrepository.Provide()

	bonusSvc := bonusservice.New(bonusservice.Params{
		DB: db, Log: log, Clock: clk, Repo: bonusRepo, AccountRepo: accountRepo,
	})
	discountSvc := discountservice.New(discountservice.Params{
		DB: db, Log: log, Clock: clk, Cfg: cfg, Ledger: ledger,
		Repo: discountrepository.Provide(), OrderRepo: orderRepo,
	})
	enforcer, err := authorization.NewEnforcer(db)
	require.NoError(t, err)

	engine := NewEngine(cfg)
	NewServer(ServerParams{
		Gin: engine,
		Cfg: cfg,
		Log: log,
		ReferralSvc: referralservice.New(referralservice.Params{
			DB: db, Log: log, Clock: clk, Cfg: cfg, Ledger: ledger, Repo: referralRepo,
			AccountRepo: accountRepo, OrderRepo: orderRepo, BonusService: bonusSvc,
		}),
		BonusSvc: bonusSvc,
		PayoutSvc: payoutservice.New(payoutservice.Params{
			DB: db, Log: log, Clock: clk, Ledger: ledger, Repo: payoutrepository.Provide(),
			AccountRepo: accountRepo, ReferralRepo: referralRepo, BonusRepo: bonusRepo,
		}),
		DiscountSvc: discountSvc,
		AuthzSvc: authorization.NewService(authorization.Params{
			DB: db, Log: log, Enforcer: enforcer, AccountRepo: accountRepo,
		}),
		OrderEvents: orderevents.NewHandler(orderevents.HandlerParams{
			DB:        db,
			Log:       log,
			OrderRepo: orderRepo,
			Commission: commissionservice.New(commissionservice.Params{
				DB: db, Log: log, Clock: clk, Ledger: ledger,
				ReferralRepo: referralRepo, BonusRepo: bonusRepo, AccountRepo: accountRepo,
			}),
			Discount: discountSvc,
			Bonus:    bonusSvc,
		}),
	})

	return &testServer{engine: engine, db: db}
}

func (ts *testServer) do(t *testing.T, method, path string, userID uuid.UUID, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != uuid.Nil {
		req.Header.Set(HeaderUserID, userID.String())
	}
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)

	var payload map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	}
	return rec, payload
}

func errorType(payload map[string]any) string {
	errObj, _ := payload["error"].(map[string]any)
	value, _ := errObj["type"].(string)
	return value
}

func data(payload map[string]any) map[string]any {
	value, _ := payload["data"].(map[string]any)
	return value
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec, payload := ts.do(t, http.MethodGet, "/health", uuid.Nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", payload["status"])
}

func TestIdentityRequired(t *testing.T) {
	ts := newTestServer(t)

	rec, payload := ts.do(t, http.MethodGet, "/api/referral/me", uuid.Nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", errorType(payload))
}

func TestGetMyReferralCreatesNode(t *testing.T) {
	ts := newTestServer(t)
	userID := ledgertest.CreateAccount(t, ts.db, ledgertest.AccountSeed{FullName: "Alice"})

	rec, payload := ts.do(t, http.MethodGet, "/api/referral/me", userID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	summary := data(payload)
	assert.Equal(t, "Alice", summary["full_name"])
	assert.Equal(t, "ref-"+userID.String()[:8], summary["referral_code"])
	assert.Contains(t, summary["invite_link"], "https://t.me/storefront_bot?start=")
	assert.Equal(t, int64(1), ledgertest.Count(t, ts.db, `SELECT COUNT(*) FROM referral_nodes WHERE user_id = ?`, userID))
}

func TestAttachReferral(t *testing.T) {
	ts := newTestServer(t)
	referrer := ledgertest.CreateAccount(t, ts.db, ledgertest.AccountSeed{FullName: "Referrer"})
	newcomer := ledgertest.CreateAccount(t, ts.db, ledgertest.AccountSeed{FullName: "Newcomer"})
	code := "ref-" + referrer.String()[:8]

	rec, payload := ts.do(t, http.MethodPost, "/api/referral/attach", referrer, gin.H{"referral_code": code})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", errorType(payload))

	rec, payload = ts.do(t, http.MethodPost, "/api/referral/attach", newcomer, gin.H{"referral_code": code})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, data(payload)["referrer_node_id"])

	rec, _ = ts.do(t, http.MethodPost, "/api/referral/attach", newcomer, gin.H{"referral_code": code})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, payload = ts.do(t, http.MethodGet, "/api/referral/me/children", referrer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items, _ := data(payload)["items"].([]any)
	assert.Len(t, items, 1)
}

func TestOrderEventHook(t *testing.T) {
	ts := newTestServer(t)
	users, _ := ledgertest.CreateChain(t, ts.db, 2, baseTime)
	orderID := ledgertest.CreateOrder(t, ts.db, users[1], "paid", "1000.00", baseTime)

	rec, payload := ts.do(t, http.MethodPost, "/internal/order-events", uuid.Nil, gin.H{
		"order_id": orderID.String(),
		"type":     "order.paid",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, orderevents.OutcomeApplied, data(payload)["outcome"])
	assert.True(t, ledgertest.Dec("80").Equal(ledgertest.Balance(t, ts.db, users[0])))

	rec, payload = ts.do(t, http.MethodPost, "/internal/order-events", uuid.Nil, gin.H{
		"order_id": orderID.String(),
		"type":     "order.shipped",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", errorType(payload))
}

func TestPayoutWorkflow(t *testing.T) {
	ts := newTestServer(t)
	user := ledgertest.CreateAccount(t, ts.db, ledgertest.AccountSeed{
		FullName:       "Referrer",
		PaymentDetails: "card 4242",
		Balance:        "1500.00",
	})
	admin := ledgertest.CreateAccount(t, ts.db, ledgertest.AccountSeed{Role: "admin"})
	node := ledgertest.CreateNode(t, ts.db, user, nil, baseTime.AddDate(0, -3, 0))
	childUser := ledgertest.CreateAccount(t, ts.db, ledgertest.AccountSeed{})
	child := ledgertest.CreateNode(t, ts.db, childUser, &node, baseTime.AddDate(0, -3, 0))
	ledgertest.CreateBonus(t, ts.db, node, child, nil, 1, "1500.00", baseTime.AddDate(0, 0, -60))

	rec, payload := ts.do(t, http.MethodPost, "/api/referral/payouts", user, gin.H{"amount": "2000.00"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "insufficient_funds", errorType(payload))

	rec, payload = ts.do(t, http.MethodPost, "/api/referral/payouts", user, gin.H{"amount": "abc"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", errorType(payload))

	rec, payload = ts.do(t, http.MethodPost, "/api/referral/payouts", user, gin.H{"amount": "1200.00"})
	require.Equal(t, http.StatusCreated, rec.Code)
	requestID, _ := data(payload)["id"].(string)
	require.NotEmpty(t, requestID)
	assert.Equal(t, "PENDING", data(payload)["status"])

	rec, _ = ts.do(t, http.MethodPost, "/admin/payouts/"+requestID+"/approve", user, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, payload = ts.do(t, http.MethodGet, "/admin/payouts?status=pending", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items, _ := data(payload)["items"].([]any)
	assert.Len(t, items, 1)

	rec, payload = ts.do(t, http.MethodPost, "/admin/payouts/"+requestID+"/approve", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "APPROVED", data(payload)["status"])

	rec, _ = ts.do(t, http.MethodPost, "/admin/payouts/"+requestID+"/reject", admin, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, payload = ts.do(t, http.MethodGet, "/api/referral/payouts", user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items, _ = data(payload)["items"].([]any)
	assert.Len(t, items, 1)
}

func TestReferralNodeVisibility(t *testing.T) {
	ts := newTestServer(t)
	users, nodes := ledgertest.CreateChain(t, ts.db, 3, baseTime)

	rec, _ := ts.do(t, http.MethodGet, "/api/referral/"+nodes[1].String(), users[0], nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// grandchildren are not exposed directly
	rec, _ = ts.do(t, http.MethodGet, "/api/referral/"+nodes[2].String(), users[0], nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = ts.do(t, http.MethodGet, "/api/referral/not-a-uuid", users[0], nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDiscountEndpoints(t *testing.T) {
	ts := newTestServer(t)
	userID := ledgertest.CreateAccount(t, ts.db, ledgertest.AccountSeed{})

	rec, payload := ts.do(t, http.MethodGet, "/api/discount/me/progress", userID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "NONE", data(payload)["current_level"])
	assert.Equal(t, "BRONZE", data(payload)["next_level"])

	rec, payload = ts.do(t, http.MethodGet, "/api/discount/me/multiplier", userID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", data(payload)["multiplier"])
}
