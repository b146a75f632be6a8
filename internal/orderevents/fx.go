package orderevents

import (
	"context"

	"github.com/smallbiznis/storefront-ledger/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("orderevents",
	fx.Provide(NewHandler),
)

// ConsumerModule starts the Kafka consumer when brokers are configured.
var ConsumerModule = fx.Module("orderevents.consumer",
	fx.Invoke(registerConsumer),
)

func registerConsumer(lc fx.Lifecycle, cfg config.Config, handler *Handler, log *zap.Logger) {
	if !cfg.Kafka.Enabled() {
		log.Info("kafka brokers not configured, order event consumer disabled")
		return
	}

	consumer := NewConsumer(NewKafkaReader(cfg.Kafka), handler, log)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				if err := consumer.Run(ctx); err != nil {
					log.Error("order event consumer stopped", zap.Error(err))
				}
			}()
			log.Info("order event consumer started",
				zap.Strings("brokers", cfg.Kafka.Brokers),
				zap.String("topic", cfg.Kafka.OrderTopic),
			)
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return consumer.Close()
		},
	})
}
