package main

import (
	"github.com/smallbiznis/storefront-ledger/internal/clock"
	"github.com/smallbiznis/storefront-ledger/internal/config"
	"github.com/smallbiznis/storefront-ledger/internal/discount"
	"github.com/smallbiznis/storefront-ledger/internal/lock"
	"github.com/smallbiznis/storefront-ledger/internal/logger"
	"github.com/smallbiznis/storefront-ledger/internal/order"
	"github.com/smallbiznis/storefront-ledger/internal/scheduler"
	"github.com/smallbiznis/storefront-ledger/pkg/db"
	"github.com/smallbiznis/storefront-ledger/pkg/telemetry"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		telemetry.Module,
		db.Module,
		clock.Module,
		lock.Module,

		// Domain services required by the decay job
		order.Module,
		discount.Module,

		// No server module! Metrics go to the pushgateway instead.
		scheduler.Module,
		scheduler.LoopModule,
		scheduler.PushModule,
	)
	app.Run()
}
