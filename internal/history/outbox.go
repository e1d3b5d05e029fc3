package history

import (
	"context"
	"fmt"

	"crm-platform/internal/metrics"
	"crm-platform/pkg/logger"
)

// Kind names a best-effort side effect.
type Kind string

const (
	KindUserAssignment  Kind = "user_assignment"
	KindQueueAssignment Kind = "queue_assignment"
	KindAgent           Kind = "agent"
	KindContactTag      Kind = "contact_tag"
)

// WriteError wraps a failed best-effort write. It is logged and counted, never
// returned as the failure of the operation that queued it.
type WriteError struct {
	Kind Kind
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("history: %s write failed: %v", e.Kind, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

type effect struct {
	kind Kind
	run  func(ctx context.Context) error
}

// Outbox collects side effects that follow a committed primary write.
// Each effect is attempted independently; one failing does not stop the rest.
type Outbox struct {
	effects []effect
}

func (o *Outbox) Add(kind Kind, run func(ctx context.Context) error) {
	o.effects = append(o.effects, effect{kind: kind, run: run})
}

func (o *Outbox) Len() int { return len(o.effects) }

// Flush runs every queued effect and returns the failures as *WriteError.
// Effects run detached from ctx cancellation: the primary write already happened.
func (o *Outbox) Flush(ctx context.Context) []error {
	if len(o.effects) == 0 {
		return nil
	}
	ctx = context.WithoutCancel(ctx)
	log := logger.From(ctx)

	var failures []error
	for _, e := range o.effects {
		if err := e.run(ctx); err != nil {
			werr := &WriteError{Kind: e.kind, Err: err}
			failures = append(failures, werr)
			metrics.HistoryWrites.WithLabelValues(string(e.kind), "failed").Inc()
			log.Warn("best-effort write failed", "kind", e.kind, "err", err)
			continue
		}
		metrics.HistoryWrites.WithLabelValues(string(e.kind), "ok").Inc()
	}
	o.effects = nil
	return failures
}
