package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNoJob is returned when a message type has no registered job.
var ErrNoJob = errors.New("no job registered")

// Enqueuer hands work to a queue and returns the message ID.
type Enqueuer interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}) (string, error)
}

// Config contains the configuration for the queue.
type Config struct {
	Workers     int           // number of workers
	RetryLimit  int           // retries after the first attempt
	RetryDelay  time.Duration // delay before a failed message is requeued
	PollTimeout time.Duration // blocking pop timeout per worker loop
}

// Message is the envelope stored in Redis.
type Message struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	LastError  string          `json:"last_error,omitempty"`
}

type outcome int

const (
	outcomeDone outcome = iota
	outcomeRetry
	outcomeDead
	outcomeRequeue
)

// decide picks what happens to msg after its handler returned err.
func decide(msg Message, err error, retryLimit int, retryable func(error) bool) (outcome, Message) {
	if err == nil {
		return outcomeDone, msg
	}
	if errors.Is(err, context.Canceled) {
		return outcomeRequeue, msg
	}
	msg.LastError = err.Error()
	if retryable != nil && !retryable(err) {
		return outcomeDead, msg
	}
	if msg.Attempts >= retryLimit {
		return outcomeDead, msg
	}
	msg.Attempts++
	return outcomeRetry, msg
}
