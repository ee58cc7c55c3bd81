package dunning

import (
	"context"

	appconfig "github.com/smallbiznis/payline/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("dunning",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Invoke(startScheduler),
)

func startScheduler(lc fx.Lifecycle, cfg appconfig.Config, sched *Scheduler) {
	if !cfg.Dunning.Enabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go sched.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
