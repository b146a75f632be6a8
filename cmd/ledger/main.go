package main

import (
	"github.com/smallbiznis/storefront-ledger/internal/account"
	"github.com/smallbiznis/storefront-ledger/internal/authorization"
	"github.com/smallbiznis/storefront-ledger/internal/bonus"
	"github.com/smallbiznis/storefront-ledger/internal/clock"
	"github.com/smallbiznis/storefront-ledger/internal/commission"
	"github.com/smallbiznis/storefront-ledger/internal/config"
	"github.com/smallbiznis/storefront-ledger/internal/discount"
	"github.com/smallbiznis/storefront-ledger/internal/lock"
	"github.com/smallbiznis/storefront-ledger/internal/logger"
	"github.com/smallbiznis/storefront-ledger/internal/migration"
	"github.com/smallbiznis/storefront-ledger/internal/order"
	"github.com/smallbiznis/storefront-ledger/internal/orderevents"
	"github.com/smallbiznis/storefront-ledger/internal/payout"
	"github.com/smallbiznis/storefront-ledger/internal/referral"
	"github.com/smallbiznis/storefront-ledger/internal/scheduler"
	"github.com/smallbiznis/storefront-ledger/internal/server"
	"github.com/smallbiznis/storefront-ledger/pkg/db"
	"github.com/smallbiznis/storefront-ledger/pkg/telemetry"
	"go.uber.org/fx"
)

// The monolith serves the HTTP API, consumes order events and runs the
// monthly decay job in one process.
func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		logger.Module,
		telemetry.Module,
		db.Module,
		migration.Module,
		clock.Module,
		lock.Module,

		// Functional Domains
		account.Module,
		order.Module,
		referral.Module,
		bonus.Module,
		commission.Module,
		discount.Module,
		payout.Module,
		authorization.Module,
		orderevents.Module,

		// Background workers
		orderevents.ConsumerModule,
		scheduler.Module,
		scheduler.LoopModule,

		server.Module,
	)
	app.Run()
}
