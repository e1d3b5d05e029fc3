package boardsync

import (
	"context"
	"sync"

	"crm-platform/internal/realtime"
)

// Follower keeps one live pipeline subscription and moves it when the
// followed pipeline changes. Missed events are not replayed.
type Follower struct {
	mu          sync.Mutex
	sub         realtime.Subscriber
	handlers    func(pipelineID string) Handlers
	current     string
	unsubscribe func()
}

// NewFollower builds handlers per pipeline, e.g. a fresh Board for each.
func NewFollower(sub realtime.Subscriber, handlers func(pipelineID string) Handlers) *Follower {
	return &Follower{sub: sub, handlers: handlers}
}

// Follow switches to pipelineID. Following the current pipeline is a no-op;
// an empty id just stops.
func (f *Follower) Follow(ctx context.Context, pipelineID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if pipelineID == f.current && f.unsubscribe != nil {
		return nil
	}
	f.stopLocked()
	if pipelineID == "" {
		return nil
	}
	unsub, err := SubscribeToPipeline(ctx, f.sub, pipelineID, f.handlers(pipelineID))
	if err != nil {
		return err
	}
	f.current = pipelineID
	f.unsubscribe = unsub
	return nil
}

func (f *Follower) Current() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *Follower) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopLocked()
}

func (f *Follower) stopLocked() {
	if f.unsubscribe != nil {
		f.unsubscribe()
	}
	f.unsubscribe = nil
	f.current = ""
}
