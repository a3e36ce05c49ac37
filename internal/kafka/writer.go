// Package kafka is the alternate telemetry-bus backend. Points are written
// to a single topic, keyed by point name so readings of one series land on
// one partition.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"tempest-gateway/internal/telemetry"
)

type Publisher struct {
	writer *kafka.Writer
}

func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchSize:    100,
			RequiredAcks: kafka.RequireOne,
		},
	}
}

func (p *Publisher) Publish(ctx context.Context, pt telemetry.Point) error {
	value, err := json.Marshal(pt)
	if err != nil {
		return fmt.Errorf("marshal point: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(pt.Name),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("write point %s: %w", pt.Name, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
