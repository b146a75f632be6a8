package discount

import (
	"github.com/smallbiznis/storefront-ledger/internal/discount/repository"
	"github.com/smallbiznis/storefront-ledger/internal/discount/service"
	"go.uber.org/fx"
)

var Module = fx.Module("discount.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
