package outbox

import (
	"context"

	"github.com/smallbiznis/boxoffice/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("outbox",
	fx.Provide(
		New,
		providePublisher,
		NewRelay,
	),
	fx.Invoke(func(lc fx.Lifecycle, relay *Relay) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				relay.Start()
				return nil
			},
			OnStop: relay.Stop,
		})
	}),
)

func providePublisher(lc fx.Lifecycle, cfg config.Config) Publisher {
	if cfg.Outbox.RabbitMQURL == "" {
		return nil
	}
	publisher := NewAMQPPublisher(cfg.Outbox.RabbitMQURL, cfg.Outbox.Queue)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return publisher.Close()
		},
	})
	return publisher
}
