// Package boardsync is the Go client side of the pipeline change stream.
// The API only forwards raw change events (see realtime.ServeWS); workers and
// tools that keep a board in memory embed this package to get typed card and
// column callbacks, a local Board, and resubscription when the watched
// pipeline changes.
package boardsync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"crm-platform/internal/realtime"
	"crm-platform/pkg/logger"
)

var ErrNoPipeline = errors.New("boardsync: pipeline id is required")

// SubscribeToPipeline delivers the pipeline's card and column changes to h,
// in order, from a single goroutine. The returned unsubscribe stops delivery
// and waits for an in-flight handler; it must not be called from a handler.
func SubscribeToPipeline(ctx context.Context, sub realtime.Subscriber, pipelineID string, h Handlers) (func(), error) {
	if pipelineID == "" {
		return nil, ErrNoPipeline
	}
	ctx, cancel := context.WithCancel(ctx)
	s, err := sub.Subscribe(ctx, realtime.PipelineTopic(pipelineID))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe pipeline %s: %w", pipelineID, err)
	}

	log := logger.From(ctx).With("pipeline_id", pipelineID)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range s.C {
			if err := Dispatch(ev, h); err != nil {
				log.Warn("pipeline event dropped", "seq", ev.Seq, "err", err)
			}
		}
		if ctx.Err() == nil && h.OnResync != nil {
			h.OnResync()
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			s.Close()
			<-done
		})
	}, nil
}
