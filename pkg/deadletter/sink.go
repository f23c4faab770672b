/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package deadletter publishes dropped messages to Kafka for offline
// inspection.
package deadletter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/barnlink/ingress/pkg/logger"
	"github.com/barnlink/ingress/pkg/models"
)

const (
	writeTimeout = 5 * time.Second
	batchSize    = 10
	fallbackKey  = "invalid"
)

var errNoBrokers = errors.New("deadletter: at least one broker is required")

// Record is one dropped message. Payload is the raw MQTT body and is
// base64 encoded on the wire since it may not be valid JSON.
type Record struct {
	Topic      string    `json:"topic"`
	Class      string    `json:"class"`
	Reason     string    `json:"reason"`
	EventID    string    `json:"event_id,omitempty"`
	TraceID    string    `json:"trace_id,omitempty"`
	TenantID   string    `json:"tenant_id,omitempty"`
	DeviceID   string    `json:"device_id,omitempty"`
	Payload    []byte    `json:"payload"`
	ReceivedAt time.Time `json:"received_at"`
}

// MessageWriter is the subset of *kafka.Writer the sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sink writes Records to a Kafka topic.
type Sink struct {
	writer MessageWriter
	topic  string
	logger logger.Logger
}

// NewSink builds an async kafka.Writer for cfg. Delivery failures are
// logged from the writer's completion callback.
func NewSink(cfg *models.DeadLetterConfig, log logger.Logger) (*Sink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errNoBrokers
	}

	topic := cfg.Topic
	if topic == "" {
		topic = models.DefaultDeadLetterTopic
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    batchSize,
		WriteTimeout: writeTimeout,
		RequiredAcks: kafka.RequireAll,
		Async:        true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				log.Warn().Err(err).Int("messages", len(msgs)).Str("topic", topic).Msg("Dead-letter write failed")
			}
		},
	}

	return NewSinkWithWriter(w, topic, log), nil
}

// NewSinkWithWriter wraps an existing writer.
func NewSinkWithWriter(w MessageWriter, topic string, log logger.Logger) *Sink {
	return &Sink{writer: w, topic: topic, logger: log}
}

// Publish enqueues rec. Errors are returned for the caller to log; they
// never affect message handling.
func (s *Sink) Publish(ctx context.Context, rec *Record) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("deadletter: encode record: %w", err)
	}

	key := fallbackKey
	if rec.TenantID != "" && rec.DeviceID != "" {
		key = rec.TenantID + "/" + rec.DeviceID
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  rec.ReceivedAt,
		Headers: []kafka.Header{
			{Key: "class", Value: []byte(rec.Class)},
			{Key: "mqtt_topic", Value: []byte(rec.Topic)},
		},
	}

	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("deadletter: write to %s: %w", s.topic, err)
	}

	return nil
}

// Close flushes pending messages.
func (s *Sink) Close() error {
	return s.writer.Close()
}
