package main

import (
	"github.com/smallbiznis/storefront-ledger/internal/account"
	"github.com/smallbiznis/storefront-ledger/internal/bonus"
	"github.com/smallbiznis/storefront-ledger/internal/clock"
	"github.com/smallbiznis/storefront-ledger/internal/commission"
	"github.com/smallbiznis/storefront-ledger/internal/config"
	"github.com/smallbiznis/storefront-ledger/internal/discount"
	"github.com/smallbiznis/storefront-ledger/internal/logger"
	"github.com/smallbiznis/storefront-ledger/internal/order"
	"github.com/smallbiznis/storefront-ledger/internal/orderevents"
	"github.com/smallbiznis/storefront-ledger/internal/referral"
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

		// Order event processing only touches the commission and discount ledgers.
		account.Module,
		order.Module,
		referral.Module,
		bonus.Module,
		commission.Module,
		discount.Module,
		orderevents.Module,
		orderevents.ConsumerModule,
	)
	app.Run()
}
