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

// Package natsutil publishes gateway alerts as CloudEvents on NATS JetStream.
package natsutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/barnlink/ingress/pkg/logger"
	"github.com/barnlink/ingress/pkg/models"
)

const (
	eventSource            = "barnlink/ingress-gateway"
	downstreamFailureType  = "com.barnlink.ingress.downstream.failed"
	cloudEventsSpecVersion = "1.0"
	defaultTenantSegment   = "default"
)

// CloudEvent is the CloudEvents 1.0 JSON envelope.
type CloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	ID              string      `json:"id"`
	Source          string      `json:"source"`
	Type            string      `json:"type"`
	DataContentType string      `json:"datacontenttype"`
	Subject         string      `json:"subject"`
	Time            *time.Time  `json:"time,omitempty"`
	Data            interface{} `json:"data"`
}

// DownstreamFailure describes an accepted message whose downstream call
// failed.
type DownstreamFailure struct {
	Route      string    `json:"route"`
	StatusCode int       `json:"status_code,omitempty"`
	Reason     string    `json:"reason"`
	Topic      string    `json:"topic"`
	EventID    string    `json:"event_id"`
	TraceID    string    `json:"trace_id"`
	TenantID   string    `json:"tenant_id"`
	DeviceID   string    `json:"device_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// Publisher is the part of jetstream.JetStream the EventPublisher needs.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// EventPublisher provides methods for publishing CloudEvents to NATS JetStream.
type EventPublisher struct {
	js              Publisher
	stream          string
	subject         string
	tenantPrefixing bool
	logger          logger.Logger
}

// NewEventPublisher creates a new EventPublisher for the specified stream.
func NewEventPublisher(js Publisher, streamName, subject string, tenantPrefixing bool, log logger.Logger) *EventPublisher {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &EventPublisher{
		js:              js,
		stream:          streamName,
		subject:         subject,
		tenantPrefixing: tenantPrefixing,
		logger:          log,
	}
}

// IsTenantPrefixingEnabled reports whether subjects carry the tenant id.
func (p *EventPublisher) IsTenantPrefixingEnabled() bool {
	return p.tenantPrefixing
}

func (p *EventPublisher) applyTenantPrefix(tenantID, subject string) string {
	if !p.tenantPrefixing {
		return subject
	}

	if tenantID == "" {
		tenantID = defaultTenantSegment
	}

	return tenantID + "." + subject
}

// PublishDownstreamFailure publishes one downstream failure alert.
func (p *EventPublisher) PublishDownstreamFailure(ctx context.Context, data *DownstreamFailure) error {
	subject := p.applyTenantPrefix(data.TenantID, p.subject)
	ts := data.Timestamp

	event := CloudEvent{
		SpecVersion:     cloudEventsSpecVersion,
		ID:              uuid.New().String(),
		Source:          eventSource,
		Type:            downstreamFailureType,
		DataContentType: "application/json",
		Subject:         subject,
		Time:            &ts,
		Data:            data,
	}

	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal downstream failure event: %w", err)
	}

	ack, err := p.js.Publish(ctx, subject, eventBytes, jetstream.WithMsgID(data.EventID+"/"+data.Route))
	if err != nil {
		return fmt.Errorf("failed to publish downstream failure event: %w", err)
	}

	p.logger.Debug().
		Str("event_id", event.ID).
		Str("subject", subject).
		Uint64("seq", ack.Sequence).
		Msg("Published alert event")

	return nil
}

// ConnectAlerts connects to NATS, ensures the alerts stream captures the
// configured subject, and returns a publisher plus the connection to close.
func ConnectAlerts(ctx context.Context, cfg *models.AlertsConfig, log logger.Logger) (*EventPublisher, *nats.Conn, error) {
	opts, err := connectOptions(cfg, log)
	if err != nil {
		return nil, nil, err
	}

	nc, err := nats.Connect(cfg.NATSURL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	subject := cfg.Subject
	if cfg.TenantPrefix {
		subject = "*." + subject
	}

	if err := ensureStream(ctx, js, cfg.Stream, subject, log); err != nil {
		nc.Close()
		return nil, nil, err
	}

	return NewEventPublisher(js, cfg.Stream, cfg.Subject, cfg.TenantPrefix, log), nc, nil
}

func ensureStream(ctx context.Context, js jetstream.JetStream, streamName, subject string, log logger.Logger) error {
	stream, err := js.Stream(ctx, streamName)

	switch {
	case err == nil:
		cfg := stream.CachedInfo().Config

		subjects := ensureSubjectList(cfg.Subjects, subject)
		if len(subjects) == len(cfg.Subjects) {
			return nil
		}

		cfg.Subjects = subjects
		if _, err := js.UpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("failed to update stream %s: %w", streamName, err)
		}

		log.Info().Str("stream", streamName).Strs("subjects", subjects).Msg("Updated NATS JetStream stream subjects")

		return nil
	case isStreamMissingErr(err):
		_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:     streamName,
			Subjects: []string{subject},
		})
		if err != nil {
			return fmt.Errorf("failed to create stream %s: %w", streamName, err)
		}

		log.Info().Str("stream", streamName).Msg("Created NATS JetStream stream")

		return nil
	default:
		return fmt.Errorf("failed to get stream %s: %w", streamName, err)
	}
}

// ensureSubjectList appends subject unless an existing pattern covers it.
func ensureSubjectList(subjects []string, subject string) []string {
	for _, s := range subjects {
		if matchesSubject(s, subject) {
			return subjects
		}
	}

	return append(subjects, subject)
}

// matchesSubject applies NATS wildcard rules: "*" matches one token and a
// trailing ">" matches the rest.
func matchesSubject(pattern, subject string) bool {
	pTokens := strings.Split(pattern, ".")
	sTokens := strings.Split(subject, ".")

	for i, p := range pTokens {
		if p == ">" {
			return len(sTokens) > i
		}

		if i >= len(sTokens) {
			return false
		}

		if p != "*" && p != sTokens[i] {
			return false
		}
	}

	return len(pTokens) == len(sTokens)
}

func isStreamMissingErr(err error) bool {
	return errors.Is(err, jetstream.ErrStreamNotFound) ||
		errors.Is(err, jetstream.ErrNoStreamResponse) ||
		errors.Is(err, nats.ErrStreamNotFound) ||
		errors.Is(err, nats.ErrNoStreamResponse) ||
		errors.Is(err, nats.ErrNoResponders)
}
