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

// Package app assembles the ingress gateway from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/barnlink/ingress/pkg/allowlist"
	"github.com/barnlink/ingress/pkg/config"
	"github.com/barnlink/ingress/pkg/db"
	"github.com/barnlink/ingress/pkg/deadletter"
	"github.com/barnlink/ingress/pkg/dedupe"
	"github.com/barnlink/ingress/pkg/downstream"
	"github.com/barnlink/ingress/pkg/gateway"
	"github.com/barnlink/ingress/pkg/ingest"
	"github.com/barnlink/ingress/pkg/lifecycle"
	"github.com/barnlink/ingress/pkg/logger"
	"github.com/barnlink/ingress/pkg/models"
	"github.com/barnlink/ingress/pkg/mqtt"
	"github.com/barnlink/ingress/pkg/natsutil"
	"github.com/barnlink/ingress/pkg/opsapi"
	"github.com/barnlink/ingress/pkg/stats"
	"github.com/barnlink/ingress/pkg/version"
)

const (
	serviceName         = "ingress-gateway"
	tracerName          = "github.com/barnlink/ingress"
	tracerFlushDeadline = 5 * time.Second
)

var (
	errMQTTNotConnected = errors.New("mqtt not connected")
	errNATSDisconnected = errors.New("nats not connected")
)

// Options carries command line settings.
type Options struct {
	ConfigPath  string
	MigrateOnly bool
}

// Run loads configuration, wires every component and blocks until a
// shutdown signal has been handled.
func Run(ctx context.Context, opts Options) error {
	bootLog, err := lifecycle.CreateComponentLogger("config", logger.DefaultConfig())
	if err != nil {
		return err
	}

	var cfg models.GatewayConfig

	if err := config.NewConfig(bootLog).LoadAndValidate(ctx, opts.ConfigPath, &cfg); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := lifecycle.CreateComponentLogger(serviceName, cfg.Logging)
	if err != nil {
		return err
	}

	tp, err := initTracing(ctx, cfg.Tracing, log)
	if err != nil {
		return err
	}

	defer shutdownTracing(tp, log)

	pool, err := db.NewPool(ctx, &cfg.Database, log)
	if err != nil {
		return err
	}

	if err := db.RunMigrations(ctx, pool, log); err != nil {
		pool.Close()
		return err
	}

	if opts.MigrateOnly {
		pool.Close()
		log.Info().Msg("Migrations applied, exiting")

		return nil
	}

	svc, err := build(ctx, &cfg, pool, log)
	if err != nil {
		pool.Close()
		return err
	}

	return lifecycle.RunServer(ctx, &lifecycle.ServerOptions{
		Name:            serviceName,
		Service:         svc,
		Logger:          log,
		ShutdownTimeout: cfg.ShutdownTimeout.Or(models.DefaultShutdownTimeout),
	})
}

func initTracing(ctx context.Context, cfg *logger.TracingConfig, log logger.Logger) (*sdktrace.TracerProvider, error) {
	tracing := logger.TracingConfig{}
	if cfg != nil {
		tracing = *cfg
	}

	if tracing.ServiceName == "" {
		tracing.ServiceName = serviceName
	}

	if tracing.ServiceVersion == "" {
		tracing.ServiceVersion = version.GetVersion()
	}

	return logger.InitializeTracing(ctx, tracing, log)
}

func shutdownTracing(tp *sdktrace.TracerProvider, log logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), tracerFlushDeadline)
	defer cancel()

	if err := tp.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to flush traces")
	}
}

// build wires the gateway service. The pool is handed to the service,
// which closes it last during Stop.
func build(ctx context.Context, cfg *models.GatewayConfig, pool *pgxpool.Pool, log logger.Logger) (*gateway.Service, error) {
	store := db.NewStore(pool, log)
	closers := []func(){pool.Close}
	checks := map[string]opsapi.Check{"storage": store.Ping}

	guard, redisClient := dedupeGuard(cfg, store, log)
	if redisClient != nil {
		closers = append(closers, func() { _ = redisClient.Close() })
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	metrics, err := stats.NewMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	collector := stats.New(time.Now(), metrics)

	pipeline := ingest.NewPipeline(&ingest.Config{
		Gate:     allowlist.NewGate(store),
		Dedupe:   guard,
		LastSeen: store,
		Router:   downstream.NewRouter(cfg.Downstream.TelemetryBaseURL, cfg.Downstream.WeighVisionBaseURL),
		Forwarder: downstream.NewClient(downstream.ClientConfig{
			Timeout: cfg.Downstream.Timeout.Or(models.DefaultDownstreamTO),
			Logger:  log,
		}),
		DedupeTTL: cfg.Dedupe.TTL.Or(models.DefaultDedupeTTL),
		Tracer:    logger.GetTracer(tracerName),
	})

	svcCfg := &gateway.Config{
		Processor:       pipeline,
		Dedupe:          guard,
		Stats:           collector,
		Logger:          log,
		CleanupInterval: cfg.Dedupe.CleanupInterval.Or(models.DefaultCleanupInterval),
	}

	if cfg.DeadLetter.Enabled {
		sink, err := deadletter.NewSink(&cfg.DeadLetter, log)
		if err != nil {
			return nil, err
		}

		svcCfg.DeadLetter = sink
	}

	if cfg.Alerts.Enabled {
		publisher, nc, err := natsutil.ConnectAlerts(ctx, &cfg.Alerts, log)
		if err != nil {
			return nil, err
		}

		svcCfg.Alerts = publisher
		closers = append(closers, nc.Close)
		checks["nats"] = natsCheck(nc)
	}

	var svc *gateway.Service

	checks["mqtt"] = func(context.Context) error {
		if !svc.Ready() {
			return errMQTTNotConnected
		}

		return nil
	}

	ops := opsapi.NewServer(&opsapi.Config{
		ListenAddr: cfg.Ops.ListenAddr,
		Stats:      collector,
		Gatherer:   reg,
		Checks:     checks,
		LastSeen:   store,
		Logger:     log,
	})

	svcCfg.Components = []gateway.Component{ops}
	svcCfg.Closers = closers

	svc, err = gateway.New(svcCfg)
	if err != nil {
		return nil, err
	}

	transport, err := mqtt.New(&cfg.MQTT, svc.HandleMessage,
		mqtt.WithLogger(log),
		mqtt.WithStateListener(func(s mqtt.State) {
			collector.SetMQTTConnected(s == mqtt.StateConnected)
		}),
	)
	if err != nil {
		return nil, err
	}

	svc.AttachTransport(transport)

	return svc, nil
}

func dedupeGuard(cfg *models.GatewayConfig, store *db.Store, log logger.Logger) (dedupe.Guard, *redis.Client) {
	switch cfg.Dedupe.Backend {
	case models.DedupeRedis:
		client := dedupe.NewRedisClient(&cfg.Dedupe.Redis)
		log.Info().Str("addr", cfg.Dedupe.Redis.Addr).Msg("Using Redis dedupe ledger")

		return dedupe.NewRedisGuard(client, cfg.Dedupe.Redis.KeyPrefix), client
	case models.DedupeMemory:
		log.Warn().Msg("Using in-memory dedupe ledger; duplicates are not detected across restarts or replicas")

		return dedupe.NewMemoryGuard(nil), nil
	case models.DedupePostgres:
	}

	return store, nil
}

func natsCheck(nc *nats.Conn) opsapi.Check {
	return func(context.Context) error {
		if !nc.IsConnected() {
			return fmt.Errorf("%w: %s", errNATSDisconnected, nc.Status())
		}

		return nil
	}
}
