package repository

import (
	"context"
	"fmt"
	"time"

	"FinPrep/internal/domain/models"
	pkgkafka "FinPrep/pkg/kafka"
)

// messageProducer is the subset of the Kafka producer the publisher needs.
type messageProducer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}, headers ...pkgkafka.Header) error
	Close() error
}

// ArraysMessage is the payload written for each prepared run.
type ArraysMessage struct {
	RunID       string                `json:"run_id"`
	PublishedAt time.Time             `json:"published_at"`
	Columns     []models.TechColumn   `json:"tech_columns"`
	Arrays      *models.FeatureArrays `json:"arrays"`
}

// KafkaPublisher implements ArraysPublisher for Kafka, keyed by run ID.
type KafkaPublisher struct {
	producer messageProducer
	topic    string
}

// NewKafkaPublisher creates Kafka publisher.
func NewKafkaPublisher(producer messageProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) PublishArrays(ctx context.Context, runID string, arrays *models.FeatureArrays) error {
	msg := ArraysMessage{
		RunID:       runID,
		PublishedAt: time.Now().UTC(),
		Columns:     arrays.Columns(),
		Arrays:      arrays,
	}
	err := p.producer.Publish(ctx, p.topic, []byte(runID), msg,
		pkgkafka.Header{Key: "run_id", Value: runID},
		pkgkafka.Header{Key: "scalar_source", Value: arrays.ScalarSource},
	)
	if err != nil {
		return fmt.Errorf("publish arrays %s: %w", runID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
