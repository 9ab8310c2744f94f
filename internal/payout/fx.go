package payout

import (
	"github.com/smallbiznis/boxoffice/internal/payout/repository"
	"github.com/smallbiznis/boxoffice/internal/payout/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payout.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
