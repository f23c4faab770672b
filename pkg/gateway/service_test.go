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

package gateway

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/barnlink/ingress/pkg/deadletter"
	"github.com/barnlink/ingress/pkg/dedupe"
	"github.com/barnlink/ingress/pkg/ingest"
	"github.com/barnlink/ingress/pkg/natsutil"
	"github.com/barnlink/ingress/pkg/stats"
	"github.com/barnlink/ingress/pkg/topic"
)

const testTopic = "iot/telemetry/t1/f1/b1/d1/temperature"

type fakeTransport struct {
	startErr  error
	started   atomic.Bool
	stopped   atomic.Bool
	connected atomic.Bool
}

func (f *fakeTransport) Start(context.Context) error {
	f.started.Store(true)

	if f.startErr != nil {
		return f.startErr
	}

	f.connected.Store(true)

	return nil
}

func (f *fakeTransport) Stop(context.Context) error {
	f.stopped.Store(true)
	f.connected.Store(false)

	return nil
}

func (f *fakeTransport) Connected() bool { return f.connected.Load() }

type fakeComponent struct {
	mu       sync.Mutex
	events   *[]string
	name     string
	startErr error
}

func (c *fakeComponent) Start(context.Context) error {
	c.mu.Lock()
	*c.events = append(*c.events, "start "+c.name)
	c.mu.Unlock()

	return c.startErr
}

func (c *fakeComponent) Stop(context.Context) error {
	c.mu.Lock()
	*c.events = append(*c.events, "stop "+c.name)
	c.mu.Unlock()

	return nil
}

func newService(t *testing.T, cfg *Config) (*Service, *fakeTransport) {
	t.Helper()

	if cfg.Stats == nil {
		cfg.Stats = stats.New(time.Now(), nil)
	}

	svc, err := New(cfg)
	require.NoError(t, err)

	tr := &fakeTransport{}
	svc.AttachTransport(tr)

	return svc, tr
}

func TestHandleMessageCounters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		outcome ingest.Outcome
		want    map[string]int64
		lastErr string
	}{
		{
			name:    "processed and forwarded",
			outcome: ingest.Outcome{Status: ingest.StatusProcessed, Route: "telemetry", RouteResult: ingest.RouteSucceeded},
			want:    map[string]int64{stats.Received: 1, stats.Valid: 1, "route.telemetry.success": 1},
		},
		{
			name: "processed but downstream failed",
			outcome: ingest.Outcome{
				Status: ingest.StatusProcessed, Route: "telemetry", RouteResult: ingest.RouteFailed,
				Reason: "status 500: boom",
			},
			want:    map[string]int64{stats.Received: 1, stats.Valid: 1, "route.telemetry.fail": 1},
			lastErr: "status 500: boom",
		},
		{
			name:    "processed without route",
			outcome: ingest.Outcome{Status: ingest.StatusProcessed, RouteResult: ingest.RouteNone},
			want:    map[string]int64{stats.Received: 1, stats.Valid: 1},
		},
		{
			name:    "duplicate",
			outcome: ingest.Outcome{Status: ingest.StatusDuplicate, Class: ingest.ClassDuplicate},
			want:    map[string]int64{stats.Received: 1, stats.Deduped: 1},
		},
		{
			name:    "malformed",
			outcome: ingest.Outcome{Status: ingest.StatusDropped, Class: ingest.ClassMalformed},
			want:    map[string]int64{stats.Received: 1, stats.Invalid: 1},
		},
		{
			name:    "inconsistent",
			outcome: ingest.Outcome{Status: ingest.StatusDropped, Class: ingest.ClassInconsistent},
			want:    map[string]int64{stats.Received: 1, stats.Invalid: 1},
		},
		{
			name:    "unauthorized",
			outcome: ingest.Outcome{Status: ingest.StatusDropped, Class: ingest.ClassUnauthorized},
			want:    map[string]int64{stats.Received: 1, stats.Invalid: 1, stats.Unauthorized: 1},
		},
		{
			name:    "no route",
			outcome: ingest.Outcome{Status: ingest.StatusDropped, Class: ingest.ClassNoRoute},
			want:    map[string]int64{stats.Received: 1, stats.Invalid: 1, stats.NoRoute: 1},
		},
		{
			name:    "storage failure",
			outcome: ingest.Outcome{Status: ingest.StatusDropped, Class: ingest.ClassStorageFailure},
			want:    map[string]int64{stats.Received: 1, stats.ProcessingErrors: 1},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			proc := NewMockProcessor(ctrl)
			proc.EXPECT().Process(gomock.Any(), testTopic, []byte("{}")).Return(tc.outcome)

			collector := stats.New(time.Now(), nil)
			svc, _ := newService(t, &Config{Processor: proc, Stats: collector})

			svc.HandleMessage(context.Background(), testTopic, []byte("{}"))

			snap := collector.Snapshot()
			assert.Equal(t, tc.want, snap.Counters)
			assert.NotNil(t, snap.LastMessageAt)

			if tc.lastErr != "" {
				assert.Equal(t, tc.lastErr, snap.LastErrors["telemetry"])
			} else {
				assert.Empty(t, snap.LastErrors)
			}
		})
	}
}

type panickingProcessor struct{}

func (panickingProcessor) Process(context.Context, string, []byte) ingest.Outcome {
	panic("nil payload map")
}

func TestHandleMessageRecoversPanic(t *testing.T) {
	t.Parallel()

	collector := stats.New(time.Now(), nil)
	svc, _ := newService(t, &Config{Processor: panickingProcessor{}, Stats: collector})

	assert.NotPanics(t, func() {
		svc.HandleMessage(context.Background(), testTopic, []byte("{}"))
	})

	assert.Equal(t, int64(1), collector.Counter(stats.Received))
	assert.Equal(t, int64(1), collector.Counter(stats.ProcessingErrors))
	assert.Zero(t, collector.Counter(stats.Valid))
}

func TestHandleMessageDeadLettersDrops(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	proc := NewMockProcessor(ctrl)
	dlq := NewMockDeadLetterPublisher(ctrl)

	payload := []byte(`{"schema_version":"2.0"}`)

	proc.EXPECT().Process(gomock.Any(), testTopic, payload).Return(ingest.Outcome{
		Status: ingest.StatusDropped, Class: ingest.ClassMalformed, Reason: "unsupported schema_version",
		Kind: topic.KindTelemetry,
	})
	proc.EXPECT().Process(gomock.Any(), testTopic, payload).Return(ingest.Outcome{
		Status: ingest.StatusDuplicate, Class: ingest.ClassDuplicate,
	})

	dlq.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, rec *deadletter.Record) error {
			assert.Equal(t, testTopic, rec.Topic)
			assert.Equal(t, "malformed", rec.Class)
			assert.Equal(t, "unsupported schema_version", rec.Reason)
			assert.Equal(t, payload, rec.Payload)

			return errors.New("kafka down")
		})

	svc, _ := newService(t, &Config{Processor: proc, DeadLetter: dlq})

	svc.HandleMessage(context.Background(), testTopic, payload)
	svc.HandleMessage(context.Background(), testTopic, payload)
}

func TestHandleMessageAlertsOnDownstreamFailure(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	proc := NewMockProcessor(ctrl)
	alerts := NewMockAlertPublisher(ctrl)

	proc.EXPECT().Process(gomock.Any(), gomock.Any(), gomock.Any()).Return(ingest.Outcome{
		Status: ingest.StatusProcessed, Route: "weighvision.finalize", RouteResult: ingest.RouteFailed,
		StatusCode: 502, Reason: "status 502: bad gateway", EventID: "evt-9", TenantID: "t1",
	})

	alerts.EXPECT().PublishDownstreamFailure(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, data *natsutil.DownstreamFailure) error {
			assert.Equal(t, "weighvision.finalize", data.Route)
			assert.Equal(t, 502, data.StatusCode)
			assert.Equal(t, "evt-9", data.EventID)
			assert.Equal(t, "t1", data.TenantID)

			return nil
		})

	svc, _ := newService(t, &Config{Processor: proc, Alerts: alerts})
	svc.HandleMessage(context.Background(), "iot/weighvision/t1/f1/b1/st/session/s/finalized", []byte("{}"))
}

func TestStartRequiresTransport(t *testing.T) {
	t.Parallel()

	svc, err := New(&Config{Processor: NewMockProcessor(gomock.NewController(t)), Stats: stats.New(time.Now(), nil)})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Start(context.Background()), ErrNoTransport)
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(&Config{Stats: stats.New(time.Now(), nil)})
	assert.ErrorIs(t, err, errNilProcessor)

	_, err = New(&Config{Processor: NewMockProcessor(gomock.NewController(t))})
	assert.ErrorIs(t, err, errNilStats)
}

func TestStartStopLifecycle(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	dlq := NewMockDeadLetterPublisher(ctrl)
	dlq.EXPECT().Close().Return(nil)

	var (
		events []string
		closed atomic.Bool
	)

	collector := stats.New(time.Now(), nil)
	collector.SetMQTTConnected(true)

	svc, tr := newService(t, &Config{
		Processor:  NewMockProcessor(ctrl),
		Stats:      collector,
		Dedupe:     dedupe.NewMemoryGuard(nil),
		DeadLetter: dlq,
		Components: []Component{
			&fakeComponent{events: &events, name: "ops"},
		},
		Closers: []func(){func() { closed.Store(true) }},
	})

	require.NoError(t, svc.Start(context.Background()))
	assert.True(t, tr.started.Load())
	assert.True(t, svc.Ready())
	assert.ErrorIs(t, svc.Start(context.Background()), ErrAlreadyStarted)

	require.NoError(t, svc.Stop(context.Background()))
	require.NoError(t, svc.Stop(context.Background()))

	assert.True(t, tr.stopped.Load())
	assert.False(t, svc.Ready())
	assert.False(t, collector.MQTTConnected())
	assert.True(t, closed.Load())
	assert.Equal(t, []string{"start ops", "stop ops"}, events)
}

func TestStartFailureUnwindsStartedComponents(t *testing.T) {
	t.Parallel()

	var (
		events []string
		closed atomic.Bool
	)

	svc, tr := newService(t, &Config{
		Processor: NewMockProcessor(gomock.NewController(t)),
		Dedupe:    dedupe.NewMemoryGuard(nil),
		Components: []Component{
			&fakeComponent{events: &events, name: "ops"},
			&fakeComponent{events: &events, name: "metrics", startErr: errors.New("address already in use")},
		},
		Closers: []func(){func() { closed.Store(true) }},
	})

	err := svc.Start(context.Background())
	require.ErrorContains(t, err, "address already in use")

	assert.False(t, tr.started.Load())
	assert.True(t, tr.stopped.Load())
	assert.True(t, closed.Load())
	assert.Equal(t, []string{"start ops", "start metrics", "stop ops"}, events)
}

func TestTransportStartFailureStopsCleanupAndComponents(t *testing.T) {
	t.Parallel()

	var events []string

	svc, tr := newService(t, &Config{
		Processor:       NewMockProcessor(gomock.NewController(t)),
		Dedupe:          dedupe.NewMemoryGuard(nil),
		CleanupInterval: time.Hour,
		Components:      []Component{&fakeComponent{events: &events, name: "ops"}},
	})
	tr.startErr = errors.New("bad tls config")

	err := svc.Start(context.Background())
	require.ErrorContains(t, err, "bad tls config")

	assert.True(t, tr.stopped.Load())
	assert.Equal(t, []string{"start ops", "stop ops"}, events)

	select {
	case <-svc.cleanupDone:
	default:
		t.Fatal("cleanup loop still running")
	}
}

func TestStopRefusesNewDeliveries(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	proc := NewMockProcessor(ctrl)

	collector := stats.New(time.Now(), nil)
	svc, _ := newService(t, &Config{Processor: proc, Stats: collector})

	require.NoError(t, svc.Start(context.Background()))
	require.NoError(t, svc.Stop(context.Background()))

	svc.HandleMessage(context.Background(), testTopic, []byte("{}"))

	assert.Zero(t, collector.Counter(stats.Received))
}

type blockingProcessor struct {
	entered chan struct{}
	release chan struct{}
}

func (p *blockingProcessor) Process(context.Context, string, []byte) ingest.Outcome {
	close(p.entered)
	<-p.release

	return ingest.Outcome{Status: ingest.StatusProcessed, RouteResult: ingest.RouteNone}
}

func TestStopWaitsForInflight(t *testing.T) {
	t.Parallel()

	proc := &blockingProcessor{entered: make(chan struct{}), release: make(chan struct{})}
	collector := stats.New(time.Now(), nil)
	svc, _ := newService(t, &Config{Processor: proc, Stats: collector})

	require.NoError(t, svc.Start(context.Background()))

	handled := make(chan struct{})

	go func() {
		svc.HandleMessage(context.Background(), testTopic, []byte("{}"))
		close(handled)
	}()

	<-proc.entered

	stopped := make(chan error, 1)

	go func() {
		stopped <- svc.Stop(context.Background())
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a message was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(proc.release)

	require.NoError(t, <-stopped)
	<-handled
	assert.Equal(t, int64(1), collector.Counter(stats.Valid))
}

func TestStopHonorsDeadline(t *testing.T) {
	t.Parallel()

	proc := &blockingProcessor{entered: make(chan struct{}), release: make(chan struct{})}
	svc, _ := newService(t, &Config{Processor: proc})

	require.NoError(t, svc.Start(context.Background()))

	go svc.HandleMessage(context.Background(), testTopic, []byte("{}"))

	<-proc.entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := svc.Stop(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(proc.release)
}

func TestSweepCountsRemovedRecords(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	guard := dedupe.NewMockGuard(ctrl)
	guard.EXPECT().CleanupExpired(gomock.Any()).Return(int64(3), nil)
	guard.EXPECT().CleanupExpired(gomock.Any()).Return(int64(0), errors.New("timeout"))

	collector := stats.New(time.Now(), nil)
	svc, _ := newService(t, &Config{Processor: NewMockProcessor(ctrl), Dedupe: guard, Stats: collector})

	svc.sweep(context.Background())
	svc.sweep(context.Background())

	assert.Equal(t, int64(3), collector.Counter(stats.DedupeCleaned))
}

func TestCleanupLoopRunsOnTicker(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	guard := dedupe.NewMockGuard(ctrl)
	guard.EXPECT().CleanupExpired(gomock.Any()).Return(int64(1), nil).MinTimes(1)

	collector := stats.New(time.Now(), nil)
	svc, _ := newService(t, &Config{
		Processor:       NewMockProcessor(ctrl),
		Dedupe:          guard,
		Stats:           collector,
		CleanupInterval: 5 * time.Millisecond,
	})

	require.NoError(t, svc.Start(context.Background()))

	assert.Eventually(t, func() bool {
		return collector.Counter(stats.DedupeCleaned) >= 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, svc.Stop(context.Background()))
}
