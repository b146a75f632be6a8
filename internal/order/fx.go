package order

import (
	"github.com/smallbiznis/storefront-ledger/internal/order/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("order.repository",
	fx.Provide(repository.Provide),
)
