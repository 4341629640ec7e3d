package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	applogger "FinPrep/pkg/logger"
)

// Mode defines the operation mode of the queue.
type Mode int

const (
	ModeProducerConsumer Mode = iota
	ModeProducerOnly
)

// RedisQueue is a list-backed job queue with delayed retries in a sorted set
// and a dead-letter list.
type RedisQueue struct {
	l         *applogger.Logger
	cfg       Config
	client    *redis.Client
	mode      Mode
	keyPrefix string
	retryable func(error) bool

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// RedisQueueOption configures RedisQueue.
type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix sets custom key prefix.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		if prefix != "" {
			r.keyPrefix = prefix
		}
	}
}

func WithLogger(l *applogger.Logger) RedisQueueOption {
	return func(r *RedisQueue) {
		if l != nil {
			r.l = l
		}
	}
}

func WithMode(m Mode) RedisQueueOption {
	return func(r *RedisQueue) { r.mode = m }
}

// WithRetryable decides which handler errors are worth retrying. Others go
// straight to the dead-letter list.
func WithRetryable(fn func(error) bool) RedisQueueOption {
	return func(r *RedisQueue) { r.retryable = fn }
}

// NewRedisQueue creates a new Redis queue.
func NewRedisQueue(client *redis.Client, cfg Config, opts ...RedisQueueOption) *RedisQueue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = time.Second
	}
	r := &RedisQueue{
		l:         applogger.Nop(),
		cfg:       cfg,
		client:    client,
		keyPrefix: "finprep:queue",
		jobs:      make(map[string]Job),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a job for its message type. Jobs are ignored in producer-only mode.
func (r *RedisQueue) Register(job Job) {
	if r.mode == ModeProducerOnly {
		r.l.Warn("job registration ignored in producer-only mode", applogger.String("type", job.Type()))
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.Type()]; exists {
		r.l.Warn("job already registered", applogger.String("type", job.Type()))
		return
	}
	r.jobs[job.Type()] = job
	r.l.Info("job registered", applogger.String("type", job.Type()))
}

// Start pings Redis and, unless producer-only, starts the workers and the
// retry mover.
func (r *RedisQueue) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("queue already running")
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.client.Ping(pctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.running = true
	if r.mode == ModeProducerOnly {
		r.l.Info("redis queue started", applogger.String("mode", "producer-only"))
		return nil
	}
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	r.wg.Add(1)
	go r.retryMover()
	r.l.Info("redis queue started",
		applogger.String("mode", "producer-consumer"),
		applogger.Int("workers", r.cfg.Workers),
		applogger.String("addr", r.client.Options().Addr))
	return nil
}

// Stop cancels in-flight handlers and waits for the workers.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for queue workers: %w", ctx.Err())
	case <-done:
		r.l.Info("redis queue stopped")
		return nil
	}
}

// Close releases the Redis client.
func (r *RedisQueue) Close() error {
	return r.client.Close()
}

// Enqueue adds a message and returns its ID.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) (string, error) {
	r.mu.RLock()
	running := r.running
	_, known := r.jobs[msgType]
	r.mu.RUnlock()
	if !running {
		return "", fmt.Errorf("queue not running")
	}
	if r.mode != ModeProducerOnly && !known {
		return "", fmt.Errorf("enqueue %s: %w", msgType, ErrNoJob)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	msg := Message{
		ID:         uuid.NewString(),
		Type:       msgType,
		Payload:    raw,
		EnqueuedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, r.queueKey(), data).Err(); err != nil {
		return "", fmt.Errorf("lpush: %w", err)
	}
	return msg.ID, nil
}

func (r *RedisQueue) worker(id int) {
	defer r.wg.Done()
	r.l.Debug("queue worker started", applogger.Int("worker_id", id))
	for r.ctx.Err() == nil {
		r.processNext()
	}
	r.l.Debug("queue worker stopped", applogger.Int("worker_id", id))
}

func (r *RedisQueue) processNext() {
	result, err := r.client.BRPop(r.ctx, r.cfg.PollTimeout, r.queueKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || r.ctx.Err() != nil {
			return
		}
		r.l.Error("brpop error", applogger.Error(err))
		select {
		case <-r.ctx.Done():
		case <-time.After(time.Second):
		}
		return
	}
	if len(result) < 2 {
		return
	}

	var msg Message
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		r.l.Error("unmarshal message", applogger.Error(err))
		r.push(r.deadLetterKey(), []byte(result[1]))
		return
	}
	r.process(msg)
}

func (r *RedisQueue) process(msg Message) {
	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()

	var err error
	start := time.Now()
	if !ok {
		err = fmt.Errorf("message type %s: %w", msg.Type, ErrNoJob)
	} else {
		err = job.Handle(r.ctx, msg.Payload)
	}
	if err != nil && r.ctx.Err() != nil {
		err = fmt.Errorf("%w: %v", context.Canceled, err)
	}

	retryable := r.retryable
	if !ok {
		retryable = func(error) bool { return false }
	}
	action, next := decide(msg, err, r.cfg.RetryLimit, retryable)
	fields := []applogger.Field{
		applogger.String("id", msg.ID),
		applogger.String("type", msg.Type),
		applogger.Int("attempt", msg.Attempts+1),
		applogger.Duration("elapsed", time.Since(start)),
	}

	switch action {
	case outcomeDone:
		r.l.Debug("message processed", fields...)
	case outcomeRequeue:
		r.l.Warn("message interrupted, requeued", fields...)
		r.pushMessage(r.queueKey(), next)
	case outcomeRetry:
		retryAt := time.Now().Add(r.cfg.RetryDelay)
		r.l.Warn("message failed, retry scheduled",
			append(fields, applogger.String("retry_at", retryAt.Format(time.RFC3339)), applogger.Error(err))...)
		r.scheduleRetry(next, retryAt)
	case outcomeDead:
		r.l.Error("message moved to dead-letter list", append(fields, applogger.Error(err))...)
		r.pushMessage(r.deadLetterKey(), next)
	}
}

func (r *RedisQueue) pushMessage(key string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.l.Error("marshal message", applogger.Error(err))
		return
	}
	r.push(key, data)
}

// push runs outside the worker context so a popped message survives shutdown.
func (r *RedisQueue) push(key string, data []byte) {
	if err := r.client.LPush(context.Background(), key, data).Err(); err != nil {
		r.l.Error("lpush", applogger.String("key", key), applogger.Error(err))
	}
}

func (r *RedisQueue) scheduleRetry(msg Message, at time.Time) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.l.Error("marshal retry", applogger.Error(err))
		return
	}
	err = r.client.ZAdd(context.Background(), r.retryKey(), redis.Z{
		Score:  float64(at.Unix()),
		Member: data,
	}).Err()
	if err != nil {
		r.l.Error("zadd retry", applogger.Error(err))
	}
}

func (r *RedisQueue) retryMover() {
	defer r.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.moveDueRetries()
		}
	}
}

// moveDueRetries requeues retries whose time has come. ZRem decides ownership
// when several instances share the keys.
func (r *RedisQueue) moveDueRetries() {
	due, err := r.client.ZRangeByScore(r.ctx, r.retryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(time.Now().Unix(), 10),
	}).Result()
	if err != nil {
		if r.ctx.Err() == nil {
			r.l.Error("fetch retry messages", applogger.Error(err))
		}
		return
	}
	for _, member := range due {
		removed, err := r.client.ZRem(r.ctx, r.retryKey(), member).Result()
		if err != nil || removed == 0 {
			continue
		}
		r.push(r.queueKey(), []byte(member))
	}
}

func (r *RedisQueue) queueKey() string      { return r.keyPrefix + ":messages" }
func (r *RedisQueue) retryKey() string      { return r.keyPrefix + ":retry" }
func (r *RedisQueue) deadLetterKey() string { return r.keyPrefix + ":dlq" }

var _ Enqueuer = (*RedisQueue)(nil)
