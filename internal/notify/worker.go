package notify

import (
	"context"
	"fmt"
	"os"

	"github.com/hibiken/asynq"
	"github.com/wolfman30/autolead-ai-platform/pkg/logging"
)

// Worker consumes notification tasks from Redis.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	svc    *Service
	logger *logging.Logger
}

func NewWorker(opt asynq.RedisConnOpt, queue string, concurrency int, svc *Service, logger *logging.Logger) *Worker {
	if svc == nil {
		panic("notify: service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if queue == "" {
		queue = "default"
	}
	if concurrency < 1 {
		concurrency = 5
	}
	w := &Worker{
		server: asynq.NewServer(opt, asynq.Config{
			Concurrency: concurrency,
			Queues:      map[string]int{queue: 1},
			Logger:      asynqLogger{l: logger, exit: os.Exit},
		}),
		mux:    asynq.NewServeMux(),
		svc:    svc,
		logger: logger.Component("notification_worker"),
	}
	w.mux.HandleFunc(TaskLeadEscalated, w.handleEscalation)
	w.mux.HandleFunc(TaskFollowUpDue, w.handleFollowUpDue)
	return w
}

// Run blocks until SIGTERM/SIGINT.
func (w *Worker) Run() error {
	return w.server.Run(w.mux)
}

func (w *Worker) Shutdown() {
	w.server.Shutdown()
}

func (w *Worker) handleEscalation(ctx context.Context, task *asynq.Task) error {
	n, err := ParseEscalationTask(task)
	if err != nil {
		return asynq.SkipRetry
	}
	w.logger.Info("processing escalation", "lead_id", n.LeadID, "tenant_id", n.TenantID)
	return w.svc.NotifyEscalation(ctx, n.LeadName, n.ConversationLabel)
}

func (w *Worker) handleFollowUpDue(ctx context.Context, task *asynq.Task) error {
	r, err := ParseFollowUpTask(task)
	if err != nil {
		return asynq.SkipRetry
	}
	return w.svc.NotifyFollowUpDue(ctx, r.LeadID)
}

// asynqLogger routes asynq's internal logs through slog. Fatal stops the
// process like the asynq default logger does.
type asynqLogger struct {
	l    *logging.Logger
	exit func(int)
}

func (a asynqLogger) Debug(args ...any) { a.l.Debug(fmtArgs(args)) }
func (a asynqLogger) Info(args ...any)  { a.l.Info(fmtArgs(args)) }
func (a asynqLogger) Warn(args ...any)  { a.l.Warn(fmtArgs(args)) }
func (a asynqLogger) Error(args ...any) { a.l.Error(fmtArgs(args)) }
func (a asynqLogger) Fatal(args ...any) {
	a.l.Error(fmtArgs(args))
	a.exit(1)
}

func fmtArgs(args []any) string { return fmt.Sprint(args...) }
