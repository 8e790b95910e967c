package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/wolfman30/autolead-ai-platform/pkg/logging"
)

// Dispatcher hands escalation side effects to a background worker. Calls
// return once the work is queued; delivery is best effort.
type Dispatcher interface {
	DispatchEscalation(ctx context.Context, notice EscalationNotice) error
	ScheduleFollowUp(ctx context.Context, reminder FollowUpReminder) error
}

// RedisOpt builds the asynq connection options shared by client and worker.
func RedisOpt(addr, password string, useTLS bool) asynq.RedisClientOpt {
	opt := asynq.RedisClientOpt{Addr: addr, Password: password}
	if useTLS {
		opt.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opt
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqDispatcher enqueues tasks on Redis for cmd/notification-worker.
type AsynqDispatcher struct {
	client enqueuer
	queue  string
}

func NewAsynqDispatcher(client *asynq.Client, queue string) *AsynqDispatcher {
	if queue == "" {
		queue = "default"
	}
	return &AsynqDispatcher{client: client, queue: queue}
}

func (d *AsynqDispatcher) DispatchEscalation(ctx context.Context, n EscalationNotice) error {
	task, err := NewEscalationTask(n)
	if err != nil {
		return err
	}
	// The task id makes a duplicate enqueue for the same lead a no-op while
	// the first one is pending.
	return d.enqueue(ctx, task, asynq.Queue(d.queue), asynq.TaskID("escalation:"+n.LeadID))
}

func (d *AsynqDispatcher) ScheduleFollowUp(ctx context.Context, r FollowUpReminder) error {
	task, err := NewFollowUpTask(r)
	if err != nil {
		return err
	}
	return d.enqueue(ctx, task,
		asynq.Queue(d.queue),
		asynq.ProcessAt(r.DueAt),
		asynq.TaskID(fmt.Sprintf("followup:%s:%d", r.LeadID, r.DueAt.Unix())),
	)
}

func (d *AsynqDispatcher) enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) error {
	_, err := d.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("notify: enqueue %s: %w", task.Type(), err)
	}
	return nil
}

// InProcessDispatcher runs notifications on goroutines of the API process.
// Used when no Redis is configured; scheduled follow-ups do not survive a
// restart.
type InProcessDispatcher struct {
	svc     *Service
	logger  *logging.Logger
	timeout time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
	wg     sync.WaitGroup
	now    func() time.Time
}

func NewInProcessDispatcher(svc *Service, logger *logging.Logger) *InProcessDispatcher {
	if svc == nil {
		panic("notify: service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &InProcessDispatcher{
		svc:     svc,
		logger:  logger.Component("notify_dispatcher"),
		timeout: 30 * time.Second,
		timers:  map[string]*time.Timer{},
		now:     time.Now,
	}
}

func (d *InProcessDispatcher) DispatchEscalation(ctx context.Context, n EscalationNotice) error {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		if err := d.svc.NotifyEscalation(runCtx, n.LeadName, n.ConversationLabel); err != nil {
			d.logger.Error("escalation notification failed", "lead_id", n.LeadID, "error", err)
		}
	}()
	return nil
}

// ScheduleFollowUp arms a timer; a second schedule for the same lead
// replaces the first.
func (d *InProcessDispatcher) ScheduleFollowUp(ctx context.Context, r FollowUpReminder) error {
	delay := r.DueAt.Sub(d.now())
	if delay < 0 {
		delay = 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.timers[r.LeadID]; ok && t.Stop() {
		d.wg.Done()
	}
	d.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		defer d.wg.Done()
		d.mu.Lock()
		if d.timers[r.LeadID] == timer {
			delete(d.timers, r.LeadID)
		}
		d.mu.Unlock()
		runCtx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.svc.NotifyFollowUpDue(runCtx, r.LeadID); err != nil {
			d.logger.Error("follow-up reminder failed", "lead_id", r.LeadID, "error", err)
		}
	})
	d.timers[r.LeadID] = timer
	return nil
}

// Close cancels pending follow-ups and waits for running notifications.
func (d *InProcessDispatcher) Close() {
	d.mu.Lock()
	for id, t := range d.timers {
		if t.Stop() {
			d.wg.Done()
		}
		delete(d.timers, id)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// Wait blocks until every dispatched notification has finished.
func (d *InProcessDispatcher) Wait() { d.wg.Wait() }

var (
	_ Dispatcher = (*AsynqDispatcher)(nil)
	_ Dispatcher = (*InProcessDispatcher)(nil)
)
