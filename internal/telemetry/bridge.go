package telemetry

import (
	"context"
	"sync"

	"github.com/matheus3301/thriveup/internal/bus"
	"go.uber.org/zap"
)

// Bridge republishes bus events under a namespace to a Publisher, using
// the event kind as routing key.
type Bridge struct {
	bus       *bus.Bus
	publisher Publisher
	cfg       func() Config
	namespace string
	logger    *zap.Logger
	cancel    context.CancelFunc
	done      sync.WaitGroup
}

// NewBridge creates a bridge for the "notification." namespace. cfg is
// read for every event so the user id can be filled in after startup.
func NewBridge(b *bus.Bus, publisher Publisher, cfg func() Config, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		bus:       b,
		publisher: publisher,
		cfg:       cfg,
		namespace: "notification.",
		logger:    logger,
	}
}

// Start subscribes to the bus and forwards events until Stop.
func (br *Bridge) Start(ctx context.Context) {
	ctx, br.cancel = context.WithCancel(ctx)
	ch, unsub := br.bus.Subscribe(br.namespace, 256)

	br.done.Add(1)
	go func() {
		defer br.done.Done()
		defer unsub()
		for {
			select {
			case evt := <-ch:
				br.forward(ctx, evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends forwarding and waits for the in-flight publish.
func (br *Bridge) Stop() {
	if br.cancel != nil {
		br.cancel()
	}
	br.done.Wait()
}

func (br *Bridge) forward(ctx context.Context, evt bus.Event) {
	env := NewEnvelope(br.cfg(), evt.Kind, evt.Timestamp, evt.Payload)
	if err := br.publisher.Publish(ctx, evt.Kind, env); err != nil {
		br.logger.Warn("failed to publish event", zap.Error(err), zap.String("kind", evt.Kind))
	}
}
