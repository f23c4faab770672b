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

// Package ingest runs one inbound message through the gateway stages:
// parse topic, validate envelope, check consistency, gate, dedupe, route.
package ingest

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/barnlink/ingress/pkg/allowlist"
	"github.com/barnlink/ingress/pkg/dedupe"
	"github.com/barnlink/ingress/pkg/downstream"
	"github.com/barnlink/ingress/pkg/envelope"
	"github.com/barnlink/ingress/pkg/models"
	"github.com/barnlink/ingress/pkg/topic"
)

//go:generate mockgen -destination=mock_ingest.go -package=ingest github.com/barnlink/ingress/pkg/ingest Gate,LastSeenRecorder,Router,Forwarder

// Gate decides whether a topic's publisher is allowed.
type Gate interface {
	Check(ctx context.Context, t topic.Topic) (allowlist.Decision, error)
}

// LastSeenRecorder stores device heartbeats.
type LastSeenRecorder interface {
	RecordLastSeen(ctx context.Context, rec *models.LastSeenRecord) error
}

// Router turns an accepted message into a downstream call.
type Router interface {
	Route(t topic.Topic, env *envelope.Envelope) (*downstream.Call, error)
}

// Forwarder performs a downstream call.
type Forwarder interface {
	Forward(ctx context.Context, call *downstream.Call) downstream.Result
}

// Config wires a Pipeline.
type Config struct {
	Gate      Gate
	Dedupe    dedupe.Guard
	LastSeen  LastSeenRecorder
	Router    Router
	Forwarder Forwarder
	DedupeTTL time.Duration
	Tracer    trace.Tracer
	Now       func() time.Time
}

// Pipeline is stateless apart from its collaborators and safe for
// concurrent use.
type Pipeline struct {
	gate      Gate
	dedupe    dedupe.Guard
	lastSeen  LastSeenRecorder
	router    Router
	forwarder Forwarder
	ttl       time.Duration
	tracer    trace.Tracer
	now       func() time.Time
}

func NewPipeline(cfg *Config) *Pipeline {
	p := &Pipeline{
		gate:      cfg.Gate,
		dedupe:    cfg.Dedupe,
		lastSeen:  cfg.LastSeen,
		router:    cfg.Router,
		forwarder: cfg.Forwarder,
		ttl:       cfg.DedupeTTL,
		tracer:    cfg.Tracer,
		now:       cfg.Now,
	}

	if p.ttl <= 0 {
		p.ttl = models.DefaultDedupeTTL
	}

	if p.tracer == nil {
		p.tracer = otel.Tracer("github.com/barnlink/ingress/pkg/ingest")
	}

	if p.now == nil {
		p.now = time.Now
	}

	return p
}

// message carries state between stages.
type message struct {
	rawTopic string
	raw      []byte
	topic    topic.Topic
	result   *envelope.Result
	out      Outcome
}

func (m *message) env() *envelope.Envelope { return m.result.Envelope }

// Process runs every stage and returns the outcome. It does not panic on
// bad input and never returns an error: every failure is an Outcome.
func (p *Pipeline) Process(ctx context.Context, rawTopic string, raw []byte) Outcome {
	ctx, span := p.tracer.Start(ctx, "ingest.process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("messaging.destination.name", rawTopic)))
	defer span.End()

	msg := &message{rawTopic: rawTopic, raw: raw}

	stages := []func(context.Context, *message) bool{
		p.parseTopic,
		p.validate,
		p.check,
		p.authorize,
		p.markSeen,
		p.deliver,
	}

	for _, stage := range stages {
		if !stage(ctx, msg) {
			break
		}
	}

	out := msg.out
	annotate(span, &out)

	return out
}

func annotate(span trace.Span, out *Outcome) {
	span.SetAttributes(
		attribute.String("ingest.status", string(out.Status)),
		attribute.String("ingest.kind", string(out.Kind)),
		attribute.String("ingest.event_id", out.EventID),
		attribute.String("ingest.trace_id", out.TraceID),
	)

	if out.Class != "" {
		span.SetAttributes(attribute.String("ingest.class", string(out.Class)))
	}

	if out.Route != "" {
		span.SetAttributes(
			attribute.String("ingest.route", out.Route),
			attribute.String("ingest.route_result", string(out.RouteResult)),
		)
	}

	switch {
	case out.Class == ClassStorageFailure:
		span.SetStatus(codes.Error, out.Reason)
	case out.RouteResult == RouteFailed:
		span.SetStatus(codes.Error, out.Reason)
	}
}

func (*Pipeline) parseTopic(_ context.Context, m *message) bool {
	m.topic = topic.Parse(m.rawTopic)
	if m.topic == nil {
		m.out = dropped(ClassMalformed, "unparseable topic")
		return false
	}

	m.out.Kind = m.topic.Kind()

	return true
}

func (*Pipeline) validate(_ context.Context, m *message) bool {
	res, err := envelope.Parse(m.raw)
	if err != nil {
		m.out = dropped(ClassMalformed, err.Error()).withKind(m.topic.Kind())
		return false
	}

	m.result = res
	m.out.identify(res)

	return true
}

func (*Pipeline) check(_ context.Context, m *message) bool {
	if err := CheckConsistency(m.topic, m.env()); err != nil {
		m.out.drop(ClassInconsistent, err.Error())
		return false
	}

	return true
}

func (p *Pipeline) authorize(ctx context.Context, m *message) bool {
	decision, err := p.gate.Check(ctx, m.topic)
	if err != nil {
		m.out.drop(ClassStorageFailure, err.Error())
		return false
	}

	if !decision.Allowed {
		m.out.drop(ClassUnauthorized, decision.Reason)
		return false
	}

	return true
}

func (p *Pipeline) markSeen(ctx context.Context, m *message) bool {
	env := m.env()

	accepted, err := p.dedupe.TryMarkSeen(ctx, dedupe.Mark{
		TenantID:    env.TenantID,
		EventID:     env.EventID,
		Topic:       m.rawTopic,
		PayloadHash: env.PayloadHash(),
		TTL:         p.ttl,
	})
	if err != nil {
		m.out.drop(ClassStorageFailure, err.Error())
		return false
	}

	if !accepted {
		m.out.Status = StatusDuplicate
		m.out.Class = ClassDuplicate
		m.out.Reason = "duplicate event_id within dedupe ttl"

		return false
	}

	return true
}

func (p *Pipeline) deliver(ctx context.Context, m *message) bool {
	env := m.env()

	switch m.topic.(type) {
	case *topic.Status:
		return p.recordLastSeen(ctx, m, env)
	case *topic.GenericEvent:
		m.out.processed(RouteNone)
		return true
	}

	call, err := p.router.Route(m.topic, env)

	switch {
	case errors.Is(err, downstream.ErrNotForwarded):
		m.out.processed(RouteNone)
		return true
	case err != nil:
		m.out.drop(ClassNoRoute, err.Error())
		return false
	}

	m.out.Route = call.Route

	res := p.forwarder.Forward(ctx, call)
	m.out.StatusCode = res.StatusCode

	if !res.Succeeded {
		m.out.Reason = res.Reason
		m.out.processed(RouteFailed)

		return true
	}

	m.out.processed(RouteSucceeded)

	return true
}

func (p *Pipeline) recordLastSeen(ctx context.Context, m *message, env *envelope.Envelope) bool {
	seenAt := env.Timestamp
	if seenAt.IsZero() {
		seenAt = p.now()
	}

	err := p.lastSeen.RecordLastSeen(ctx, &models.LastSeenRecord{
		TenantID:        env.TenantID,
		DeviceID:        env.DeviceID,
		LastSeenAt:      seenAt,
		LastTopic:       m.rawTopic,
		LastPayloadHash: env.PayloadHash(),
	})
	if err != nil {
		m.out.drop(ClassStorageFailure, err.Error())
		p.releaseMark(ctx, m, env)

		return false
	}

	m.out.processed(RouteNone)

	return true
}

// releaseMark undoes markSeen after a later storage failure so the broker's
// redelivery is accepted instead of reported as a duplicate.
func (p *Pipeline) releaseMark(ctx context.Context, m *message, env *envelope.Envelope) {
	if err := p.dedupe.Release(ctx, env.TenantID, env.EventID); err != nil {
		m.out.Reason += "; release dedupe mark: " + err.Error()
	}
}
