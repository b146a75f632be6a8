package commission

import (
	"github.com/smallbiznis/storefront-ledger/internal/commission/service"
	"go.uber.org/fx"
)

var Module = fx.Module("commission.service",
	fx.Provide(service.New),
)
