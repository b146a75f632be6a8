package scheduler

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(NewIDGenerator),
	fx.Provide(New),
)

// LoopModule runs the scheduler in the background for the lifetime of the app.
var LoopModule = fx.Module("scheduler.loop",
	fx.Invoke(RegisterLoop),
)

func NewIDGenerator() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func RegisterLoop(lc fx.Lifecycle, sched *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				sched.RunForever(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}
