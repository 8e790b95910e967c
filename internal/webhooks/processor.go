package webhooks

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/wolfman30/autolead-ai-platform/internal/channels/meta"
	"github.com/wolfman30/autolead-ai-platform/internal/events"
	observemetrics "github.com/wolfman30/autolead-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/autolead-ai-platform/pkg/logging"
)

// Item outcomes reported to metrics.
const (
	outcomeSucceeded = "succeeded"
	outcomeFailed    = "failed"
	outcomeDuplicate = "duplicate"
	outcomeCompleted = "completed"
	outcomeSkipped   = "skipped"
)

// Processor handles the decoded envelope of one channel.
type Processor interface {
	Process(ctx context.Context, env meta.Envelope) Summary
}

// Summary counts the sub-items of a delivery. Duplicates, skipped items and
// messages for completed conversations count as succeeded.
type Summary struct {
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// OK reports whether every item succeeded.
func (s Summary) OK() bool { return s.Failed == 0 }

// Error joins the item failures into the message stored on the log entry.
func (s Summary) Error() string {
	return fmt.Sprintf("%d of %d items failed: %s", s.Failed, s.Succeeded+s.Failed, strings.Join(s.Errors, "; "))
}

func (s *Summary) record(kind, outcome string, err error) {
	if outcome == outcomeFailed {
		s.Failed++
		s.Errors = append(s.Errors, fmt.Sprintf("%s: %v", kind, err))
		return
	}
	s.Succeeded++
}

// itemRunner executes sub-items one at a time. A panic or error in one item
// is recorded and the next item still runs.
type itemRunner struct {
	channel string
	metrics *observemetrics.WebhookMetrics
	logger  *logging.Logger
	summary Summary
}

func (r *itemRunner) run(ctx context.Context, kind string, fn func(context.Context) (string, error)) {
	outcome, err := r.safeCall(ctx, kind, fn)
	if err != nil {
		outcome = outcomeFailed
		r.logger.Warn("webhook item failed", "channel", r.channel, "kind", kind, "error", err)
	}
	r.summary.record(kind, outcome, err)
	r.metrics.ObserveItem(r.channel, kind, outcome)
}

func (r *itemRunner) safeCall(ctx context.Context, kind string, fn func(context.Context) (string, error)) (outcome string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("webhook item panicked", "channel", r.channel, "kind", kind, "panic", rec, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn(ctx)
}

// releaseClaim frees a dedup claim so a replay can run the item again.
func releaseClaim(ctx context.Context, dedup events.Deduper, logger *logging.Logger, channel, eventID string) {
	if err := dedup.Release(ctx, channel, eventID); err != nil {
		logger.Error("failed to release dedup claim", "channel", channel, "event_id", eventID, "error", err)
	}
}
