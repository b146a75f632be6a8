package scheduler

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/smallbiznis/storefront-ledger/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const pushJobName = "storefront_ledger_scheduler"

// PushModule ships scheduler metrics to a Prometheus pushgateway. The
// standalone scheduler has no HTTP listener to scrape.
var PushModule = fx.Module("scheduler.push",
	fx.Invoke(registerPusher),
)

func newPusher(url string, cfg config.Config, gatherer prometheus.Gatherer) *push.Pusher {
	return push.New(url, pushJobName).
		Gatherer(gatherer).
		Grouping("instance", cfg.AppName).
		Grouping("environment", cfg.Environment)
}

func registerPusher(lc fx.Lifecycle, cfg config.Config, schedCfg Config, log *zap.Logger) {
	url := cfg.Scheduler.PushgatewayURL
	if url == "" {
		log.Info("pushgateway not configured, scheduler metrics are not pushed")
		return
	}

	pusher := newPusher(url, cfg, prometheus.DefaultGatherer)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				ticker := time.NewTicker(schedCfg.RunInterval)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						if err := pusher.PushContext(ctx); err != nil && ctx.Err() == nil {
							log.Warn("pushgateway push failed", zap.Error(err))
						}
					}
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			<-done
			return pusher.PushContext(stopCtx)
		},
	})
}
