package checkout

import (
	"github.com/smallbiznis/boxoffice/internal/checkout/repository"
	"github.com/smallbiznis/boxoffice/internal/checkout/service"
	"go.uber.org/fx"
)

var Module = fx.Module("checkout.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
