package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/casedesk/smechat/internal/config"
	"github.com/casedesk/smechat/pkg/logger"
	"github.com/hibiken/asynq"
)

// notifyBackoffCap bounds asynq's exponential retry delay for expert alerts.
const notifyBackoffCap = 2 * time.Minute

// Worker consumes referral notification tasks from Redis.
type Worker struct {
	mu        sync.Mutex
	server    *asynq.Server
	mux       *asynq.ServeMux
	queue     string
	processor func(context.Context, *ReferralTask) error
	running   bool
}

// NewWorker returns nil when Redis is disabled.
func NewWorker(cfg *config.RedisConfig) *Worker {
	if !cfg.Enabled {
		return nil
	}

	queue := queueName(cfg)
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	server := asynq.NewServer(redisOpt(cfg), asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queue: 1},
		RetryDelayFunc: func(n int, err error, t *asynq.Task) time.Duration {
			d := asynq.DefaultRetryDelayFunc(n, err, t)
			if d > notifyBackoffCap {
				return notifyBackoffCap
			}
			return d
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			logger.Warn().Err(err).Str("type", task.Type()).Int("retried", retried).Msg("[Worker] Referral notification failed")
		}),
	})

	return &Worker{server: server, mux: asynq.NewServeMux(), queue: queue}
}

func (w *Worker) SetProcessor(processor func(context.Context, *ReferralTask) error) {
	w.mu.Lock()
	w.processor = processor
	w.mu.Unlock()
}

// Start consumes tasks in the background until Stop.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	w.mux.HandleFunc(TaskTypeReferralNotify, w.handleReferralTask)
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	w.running = true
	logger.Info().Str("queue", w.queue).Msg("[Worker] Consuming referral notifications")
	return nil
}

func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	w.server.Shutdown()
	w.running = false
}

func (w *Worker) handleReferralTask(ctx context.Context, t *asynq.Task) error {
	var task ReferralTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		return fmt.Errorf("decode referral task: %v: %w", err, asynq.SkipRetry)
	}

	w.mu.Lock()
	processor := w.processor
	w.mu.Unlock()
	if processor == nil {
		return fmt.Errorf("no processor for %s: %w", task.Reference, asynq.SkipRetry)
	}
	return processor(ctx, &task)
}
