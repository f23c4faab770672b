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

// Package gateway owns the per-message loop: it takes deliveries from the
// transport, runs them through the ingest pipeline, and turns outcomes into
// counters, log lines and optional dead-letter and alert events.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/barnlink/ingress/pkg/deadletter"
	"github.com/barnlink/ingress/pkg/dedupe"
	"github.com/barnlink/ingress/pkg/ingest"
	"github.com/barnlink/ingress/pkg/logger"
	"github.com/barnlink/ingress/pkg/models"
	"github.com/barnlink/ingress/pkg/natsutil"
	"github.com/barnlink/ingress/pkg/stats"
)

const abortStopTimeout = 10 * time.Second

//go:generate mockgen -destination=mock_gateway.go -package=gateway github.com/barnlink/ingress/pkg/gateway Processor,Transport,DeadLetterPublisher,AlertPublisher

var (
	ErrNoTransport    = errors.New("gateway: transport not attached")
	ErrAlreadyStarted = errors.New("gateway: already started")
	errNilProcessor   = errors.New("gateway: processor is required")
	errNilStats       = errors.New("gateway: stats collector is required")
)

// Processor runs one message through the ingest stages.
type Processor interface {
	Process(ctx context.Context, topic string, raw []byte) ingest.Outcome
}

// Transport delivers broker messages to HandleMessage.
type Transport interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Connected() bool
}

// DeadLetterPublisher receives dropped messages.
type DeadLetterPublisher interface {
	Publish(ctx context.Context, rec *deadletter.Record) error
	Close() error
}

// AlertPublisher receives routed-but-failed outcomes.
type AlertPublisher interface {
	PublishDownstreamFailure(ctx context.Context, data *natsutil.DownstreamFailure) error
}

// Component is an auxiliary server started before and stopped after the
// transport, such as the ops API.
type Component interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Config wires a Service.
type Config struct {
	Processor       Processor
	Dedupe          dedupe.Guard
	Stats           *stats.Collector
	Logger          logger.Logger
	CleanupInterval time.Duration
	DeadLetter      DeadLetterPublisher
	Alerts          AlertPublisher
	Components      []Component
	// Closers run last during Stop, in order. Storage pools go here.
	Closers []func()
	Now     func() time.Time
}

// Service is the ingestion orchestrator.
type Service struct {
	processor       Processor
	dedupe          dedupe.Guard
	stats           *stats.Collector
	logger          logger.Logger
	cleanupInterval time.Duration
	deadLetter      DeadLetterPublisher
	alerts          AlertPublisher
	components      []Component
	closers         []func()
	now             func() time.Time

	transport Transport

	// mu guards stopping against inflight.Add so Stop never waits on a
	// group that is still growing.
	mu       sync.RWMutex
	started  bool
	stopping bool
	inflight sync.WaitGroup

	// componentsUp counts the components whose Start returned nil; only
	// those are stopped.
	componentsUp int

	cleanupCancel context.CancelFunc
	cleanupDone   chan struct{}
}

func New(cfg *Config) (*Service, error) {
	if cfg.Processor == nil {
		return nil, errNilProcessor
	}

	if cfg.Stats == nil {
		return nil, errNilStats
	}

	s := &Service{
		processor:       cfg.Processor,
		dedupe:          cfg.Dedupe,
		stats:           cfg.Stats,
		logger:          cfg.Logger,
		cleanupInterval: cfg.CleanupInterval,
		deadLetter:      cfg.DeadLetter,
		alerts:          cfg.Alerts,
		components:      cfg.Components,
		closers:         cfg.Closers,
		now:             cfg.Now,
	}

	if s.logger == nil {
		s.logger = logger.NewTestLogger()
	}

	if s.cleanupInterval <= 0 {
		s.cleanupInterval = models.DefaultCleanupInterval
	}

	if s.now == nil {
		s.now = time.Now
	}

	return s, nil
}

// AttachTransport sets the transport. It must be called before Start; the
// transport is usually built with HandleMessage as its handler.
func (s *Service) AttachTransport(t Transport) {
	s.transport = t
}

// Ready reports whether the transport holds a live broker session.
func (s *Service) Ready() bool {
	return s.transport != nil && s.transport.Connected()
}

// Start launches components, the cleanup loop and the transport.
func (s *Service) Start(ctx context.Context) error {
	if s.transport == nil {
		return ErrNoTransport
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}

	s.started = true
	s.mu.Unlock()

	for _, c := range s.components {
		if err := c.Start(ctx); err != nil {
			return s.abortStart(ctx, fmt.Errorf("failed to start component: %w", err))
		}

		s.componentsUp++
	}

	if s.dedupe != nil {
		cleanupCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		s.cleanupCancel = cancel
		s.cleanupDone = make(chan struct{})

		go s.cleanupLoop(cleanupCtx)
	}

	// Handlers outlive the run context so in-flight work can finish during
	// a graceful stop.
	if err := s.transport.Start(context.WithoutCancel(ctx)); err != nil {
		return s.abortStart(ctx, fmt.Errorf("failed to start transport: %w", err))
	}

	s.logger.Info().
		Dur("cleanup_interval", s.cleanupInterval).
		Bool("dead_letter", s.deadLetter != nil).
		Bool("alerts", s.alerts != nil).
		Msg("Gateway started")

	return nil
}

// abortStart tears down whatever Start brought up before cause. The service
// cannot be started again afterwards.
func (s *Service) abortStart(ctx context.Context, cause error) error {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortStopTimeout)
	defer cancel()

	if err := s.Stop(stopCtx); err != nil {
		return errors.Join(cause, fmt.Errorf("cleanup after failed start: %w", err))
	}

	return cause
}

// Stop refuses new deliveries, closes the transport, stops the cleanup
// loop and waits for in-flight handlers before closing sinks and storage.
// It returns ctx.Err() if handlers are still running when ctx expires.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return nil
	}

	s.stopping = true
	s.mu.Unlock()

	var errs []error

	if s.transport != nil {
		if err := s.transport.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("transport: %w", err))
		}
	}

	s.stats.SetMQTTConnected(false)

	if s.cleanupCancel != nil {
		s.cleanupCancel()
		<-s.cleanupDone
	}

	if err := s.waitInflight(ctx); err != nil {
		errs = append(errs, err)
	}

	for i := s.componentsUp - 1; i >= 0; i-- {
		if err := s.components[i].Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("component: %w", err))
		}
	}

	if s.deadLetter != nil {
		if err := s.deadLetter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("dead letter: %w", err))
		}
	}

	for _, closeFn := range s.closers {
		closeFn()
	}

	s.logger.Info().Msg("Gateway stopped")

	return errors.Join(errs...)
}

func (s *Service) waitInflight(ctx context.Context) error {
	done := make(chan struct{})

	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight messages: %w", ctx.Err())
	}
}

func (s *Service) acquire() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.stopping {
		return false
	}

	s.inflight.Add(1)

	return true
}

// HandleMessage processes one delivery. It never panics.
func (s *Service) HandleMessage(ctx context.Context, topic string, payload []byte) {
	if !s.acquire() {
		s.logger.Debug().Str("topic", topic).Msg("Refusing delivery during shutdown")
		return
	}
	defer s.inflight.Done()

	start := s.now()

	s.stats.Inc(stats.Received)
	s.stats.MarkMessage(start)

	defer func() {
		if r := recover(); r != nil {
			s.stats.Inc(stats.ProcessingErrors)
			s.logger.Error().
				Str("topic", topic).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Recovered from panic while processing message")
		}
	}()

	out := s.processor.Process(ctx, topic, payload)

	s.record(&out)
	s.logOutcome(topic, &out)
	s.stats.ObserveProcessing(string(out.Kind), outcomeLabel(&out), s.now().Sub(start))

	if out.Dropped() && s.deadLetter != nil {
		s.publishDeadLetter(ctx, topic, payload, &out, start)
	}

	if out.RouteResult == ingest.RouteFailed && s.alerts != nil {
		s.publishAlert(ctx, topic, &out)
	}
}

// record maps an outcome onto the counter taxonomy.
func (s *Service) record(out *ingest.Outcome) {
	switch out.Status {
	case ingest.StatusProcessed:
		s.stats.Inc(stats.Valid)

		switch out.RouteResult {
		case ingest.RouteSucceeded:
			s.stats.Inc(stats.RouteSuccess(out.Route))
		case ingest.RouteFailed:
			s.stats.Inc(stats.RouteFail(out.Route))
			s.stats.SetLastError(out.Route, out.Reason)
		case ingest.RouteNone:
		}
	case ingest.StatusDuplicate:
		s.stats.Inc(stats.Deduped)
	case ingest.StatusDropped:
		switch out.Class {
		case ingest.ClassUnauthorized:
			s.stats.Inc(stats.Invalid)
			s.stats.Inc(stats.Unauthorized)
		case ingest.ClassNoRoute:
			s.stats.Inc(stats.Invalid)
			s.stats.Inc(stats.NoRoute)
		case ingest.ClassStorageFailure:
			s.stats.Inc(stats.ProcessingErrors)
		case ingest.ClassMalformed, ingest.ClassInconsistent, ingest.ClassDuplicate:
			s.stats.Inc(stats.Invalid)
		}
	}
}

func outcomeLabel(out *ingest.Outcome) string {
	if out.Status == ingest.StatusDropped {
		return string(out.Class)
	}

	if out.Status == ingest.StatusProcessed && out.RouteResult == ingest.RouteFailed {
		return "route_failed"
	}

	return string(out.Status)
}

func (s *Service) logOutcome(topic string, out *ingest.Outcome) {
	if out.TraceGenerated {
		s.logger.Warn().Str("event_id", out.EventID).Str("trace_id", out.TraceID).Msg("Envelope had no trace_id, generated one")
	}

	if out.TSFromAlias {
		s.logger.Warn().Str("event_id", out.EventID).Msg("Envelope used legacy timestamp field")
	}

	ev := s.logger.Info()

	switch {
	case out.Class == ingest.ClassStorageFailure:
		ev = s.logger.Error()
	case out.Status == ingest.StatusDropped, out.RouteResult == ingest.RouteFailed:
		ev = s.logger.Warn()
	}

	ev.Str("topic", topic).
		Str("kind", string(out.Kind)).
		Str("event_id", out.EventID).
		Str("trace_id", out.TraceID).
		Str("tenant_id", out.TenantID).
		Str("outcome", outcomeLabel(out)).
		Str("route", out.Route).
		Int("status_code", out.StatusCode).
		Str("reason", out.Reason).
		Msg("Message handled")
}

func (s *Service) publishDeadLetter(ctx context.Context, topic string, payload []byte, out *ingest.Outcome, at time.Time) {
	err := s.deadLetter.Publish(ctx, &deadletter.Record{
		Topic:      topic,
		Class:      string(out.Class),
		Reason:     out.Reason,
		EventID:    out.EventID,
		TraceID:    out.TraceID,
		TenantID:   out.TenantID,
		DeviceID:   out.DeviceID,
		Payload:    payload,
		ReceivedAt: at,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("event_id", out.EventID).Msg("Failed to publish dead letter")
	}
}

func (s *Service) publishAlert(ctx context.Context, topic string, out *ingest.Outcome) {
	err := s.alerts.PublishDownstreamFailure(ctx, &natsutil.DownstreamFailure{
		Route:      out.Route,
		StatusCode: out.StatusCode,
		Reason:     out.Reason,
		Topic:      topic,
		EventID:    out.EventID,
		TraceID:    out.TraceID,
		TenantID:   out.TenantID,
		DeviceID:   out.DeviceID,
		Timestamp:  s.now(),
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("event_id", out.EventID).Msg("Failed to publish downstream failure alert")
	}
}
