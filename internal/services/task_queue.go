package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/casedesk/smechat/internal/config"
	"github.com/casedesk/smechat/pkg/logger"
	"github.com/hibiken/asynq"
)

const (
	TaskTypeReferralNotify = "referral:notify"
)

// ReferralTask asks a worker to alert subject-matter experts about a referral.
type ReferralTask struct {
	ReferralID uint   `json:"referral_id"`
	Reference  string `json:"reference"`
	Automatic  bool   `json:"automatic"`
}

// TaskQueue defines the interface for referral task processing
type TaskQueue interface {
	Enqueue(task *ReferralTask) error
	// IsAsync returns true if queue processes tasks asynchronously
	IsAsync() bool
	Close() error
}

var (
	globalTaskQueue TaskQueue
	taskQueueOnce   sync.Once
)

// InitTaskQueue initializes the global task queue based on config
func InitTaskQueue(cfg *config.Config) TaskQueue {
	taskQueueOnce.Do(func() {
		globalTaskQueue = NewTaskQueue(&cfg.Redis)
	})
	return globalTaskQueue
}

// NewTaskQueue returns a Redis-backed queue, or a SyncQueue when Redis is
// disabled or unreachable.
func NewTaskQueue(cfg *config.RedisConfig) TaskQueue {
	if !cfg.Enabled {
		logger.Info().Msg("[TaskQueue] Sync queue initialized (Redis disabled)")
		return NewSyncQueue()
	}
	queue, err := NewAsyncQueue(cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("[TaskQueue] Redis unavailable, falling back to sync mode")
		return NewSyncQueue()
	}
	logger.Info().Str("addr", cfg.Addr).Msg("[TaskQueue] Async queue initialized with Redis")
	return queue
}

func redisOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

func queueName(cfg *config.RedisConfig) string {
	if cfg.Queue == "" {
		return "referrals"
	}
	return cfg.Queue
}

// notifyTaskID makes a referral's notification task unique in Redis.
func notifyTaskID(task *ReferralTask) string {
	return TaskTypeReferralNotify + ":" + task.Reference
}

// AsyncQueue implements TaskQueue using asynq (Redis-based)
type AsyncQueue struct {
	client *asynq.Client
	queue  string
}

func NewAsyncQueue(cfg *config.RedisConfig) (*AsyncQueue, error) {
	opt := redisOpt(cfg)
	client := asynq.NewClient(opt)

	inspector := asynq.NewInspector(opt)
	defer inspector.Close()

	if _, err := inspector.Queues(); err != nil {
		client.Close()
		return nil, err
	}

	return &AsyncQueue{client: client, queue: queueName(cfg)}, nil
}

func (q *AsyncQueue) Enqueue(task *ReferralTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}

	info, err := q.client.Enqueue(asynq.NewTask(TaskTypeReferralNotify, payload),
		asynq.Queue(q.queue),
		asynq.TaskID(notifyTaskID(task)),
		asynq.MaxRetry(MaxRetryCount),
		asynq.Timeout(30*time.Second),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		logger.Debug().Str("reference", task.Reference).Msg("[AsyncQueue] Notification already queued")
		return nil
	}
	if err != nil {
		return err
	}

	logger.Debug().Str("task_id", info.ID).Str("reference", task.Reference).Msg("[AsyncQueue] Task enqueued")
	return nil
}

func (q *AsyncQueue) IsAsync() bool {
	return true
}

func (q *AsyncQueue) Close() error {
	return q.client.Close()
}

// SyncQueue implements TaskQueue in-process when Redis is not available
type SyncQueue struct {
	mu        sync.RWMutex
	processor func(context.Context, *ReferralTask) error
	wg        sync.WaitGroup
}

func NewSyncQueue() *SyncQueue {
	return &SyncQueue{}
}

func (q *SyncQueue) SetProcessor(processor func(context.Context, *ReferralTask) error) {
	q.mu.Lock()
	q.processor = processor
	q.mu.Unlock()
}

// Enqueue processes the task in a goroutine so the HTTP response is not held up.
func (q *SyncQueue) Enqueue(task *ReferralTask) error {
	q.mu.RLock()
	processor := q.processor
	q.mu.RUnlock()

	if processor == nil {
		logger.Warn().Str("reference", task.Reference).Msg("[SyncQueue] No processor set, task dropped")
		return nil
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		if err := processor(context.Background(), task); err != nil {
			logger.Warn().Err(err).Str("reference", task.Reference).Msg("[SyncQueue] Task processing failed")
		}
	}()
	return nil
}

func (q *SyncQueue) IsAsync() bool {
	return false
}

// Close waits for in-flight tasks.
func (q *SyncQueue) Close() error {
	q.wg.Wait()
	return nil
}
