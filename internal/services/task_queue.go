package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/dailydues/backend/internal/config"
	"github.com/dailydues/backend/pkg/logger"
	"github.com/hibiken/asynq"
)

const TaskTypeNotification = "notification:deliver"

// NotificationTask is one notification bound for one channel.
type NotificationTask struct {
	ID           string                     `json:"id"`
	Channel      config.NotificationChannel `json:"channel"`
	Notification Notification               `json:"notification"`
	CreatedAt    time.Time                  `json:"created_at"`
}

// TaskQueue hands notification tasks to a processor.
type TaskQueue interface {
	Enqueue(task *NotificationTask) error
	// IsAsync returns true if tasks leave the process (Redis)
	IsAsync() bool
	Close() error
}

// NewTaskQueue returns a Redis-backed queue when enabled and reachable, otherwise a SyncQueue.
func NewTaskQueue(cfg *config.RedisConfig) TaskQueue {
	if cfg.Enabled {
		queue, err := NewAsyncQueue(cfg)
		if err == nil {
			logger.Infof("[TaskQueue] Async queue initialized with Redis at %s", cfg.Addr)
			return queue
		}
		logger.Warnf("[TaskQueue] Redis unavailable, falling back to sync mode: %v", err)
	} else {
		logger.Infof("[TaskQueue] Sync queue initialized (Redis disabled)")
	}
	return NewSyncQueue()
}

// AsyncQueue implements TaskQueue using asynq (Redis-based)
type AsyncQueue struct {
	client *asynq.Client
}

func NewAsyncQueue(cfg *config.RedisConfig) (*AsyncQueue, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()
	if _, err := inspector.Queues(); err != nil {
		return nil, err
	}

	return &AsyncQueue{client: asynq.NewClient(redisOpt)}, nil
}

func (q *AsyncQueue) Enqueue(task *NotificationTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}

	info, err := q.client.Enqueue(asynq.NewTask(TaskTypeNotification, payload),
		asynq.Queue("notifications"),
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Second),
		asynq.TaskID(task.ID),
	)
	if err != nil {
		return err
	}

	logger.Debug().Str("id", info.ID).Str("queue", info.Queue).Msg("[AsyncQueue] task enqueued")
	return nil
}

func (q *AsyncQueue) IsAsync() bool { return true }

func (q *AsyncQueue) Close() error {
	return q.client.Close()
}

// SyncQueue runs each task on its own goroutine inside this process.
type SyncQueue struct {
	mu        sync.RWMutex
	processor func(context.Context, *NotificationTask) error
	wg        sync.WaitGroup
}

func NewSyncQueue() *SyncQueue {
	return &SyncQueue{}
}

func (q *SyncQueue) SetProcessor(processor func(context.Context, *NotificationTask) error) {
	q.mu.Lock()
	q.processor = processor
	q.mu.Unlock()
}

func (q *SyncQueue) Enqueue(task *NotificationTask) error {
	q.mu.RLock()
	processor := q.processor
	q.mu.RUnlock()

	if processor == nil {
		logger.Warnf("[SyncQueue] no processor set, task %s dropped", task.ID)
		return nil
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := processor(ctx, task); err != nil {
			logger.Warnf("[SyncQueue] task %s failed: %v", task.ID, err)
		}
	}()
	return nil
}

func (q *SyncQueue) IsAsync() bool { return false }

// Wait blocks until every in-flight task has finished.
func (q *SyncQueue) Wait() {
	q.wg.Wait()
}

// Close waits for in-flight tasks.
func (q *SyncQueue) Close() error {
	q.wg.Wait()
	return nil
}
