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

package models

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/barnlink/ingress/pkg/logger"
	"github.com/barnlink/ingress/pkg/tlsutil"
)

const (
	DefaultDedupeTTL       = 72 * time.Hour
	DefaultCleanupInterval = 10 * time.Minute
	DefaultDownstreamTO    = 5 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultKeepAlive       = 30 * time.Second
	DefaultQoS             = 1
	DefaultConnectRetry    = 5 * time.Second
	DefaultOpsListenAddr   = ":8090"
	DefaultClientIDPrefix  = "ingress-gateway"
	DefaultRedisKeyPrefix  = "ingress:dedupe:"
	DefaultDeadLetterTopic = "ingress.dead-letter"
	DefaultAlertsStream    = "INGRESS_ALERTS"
	DefaultAlertsSubject   = "ingress.alerts.downstream"
)

// DedupeBackend selects the dedupe ledger implementation.
type DedupeBackend string

const (
	DedupePostgres DedupeBackend = "postgres"
	DedupeRedis    DedupeBackend = "redis"
	DedupeMemory   DedupeBackend = "memory"
)

var (
	errMissingBrokerURL     = errors.New("mqtt.broker_url is required")
	errInvalidBrokerURL     = errors.New("mqtt.broker_url is invalid")
	errInvalidQoS           = errors.New("mqtt.qos must be 0, 1 or 2")
	errMissingDatabaseHost  = errors.New("database.host is required")
	errMissingDatabaseName  = errors.New("database.database is required")
	errUnknownDedupeBackend = errors.New("dedupe.backend must be postgres, redis or memory")
	errMissingRedisAddr     = errors.New("dedupe.redis.addr is required for the redis backend")
	errMissingTelemetryURL  = errors.New("downstream.telemetry_base_url is required")
	errMissingWeighURL      = errors.New("downstream.weighvision_base_url is required")
	errMissingKafkaBrokers  = errors.New("dead_letter.brokers is required when dead_letter is enabled")
	errMissingNATSURL       = errors.New("alerts.nats_url is required when alerts are enabled")
)

type MQTTConfig struct {
	BrokerURL            string          `json:"broker_url" yaml:"broker_url"`
	ClientID             string          `json:"client_id" yaml:"client_id"`
	Username             string          `json:"username,omitempty" yaml:"username,omitempty"`
	Password             string          `json:"password,omitempty" yaml:"password,omitempty"`
	QoS                  *int            `json:"qos,omitempty" yaml:"qos,omitempty"`
	SharedGroup          string          `json:"shared_group,omitempty" yaml:"shared_group,omitempty"`
	KeepAlive            Duration        `json:"keep_alive" yaml:"keep_alive"`
	ConnectRetryInterval Duration        `json:"connect_retry_interval" yaml:"connect_retry_interval"`
	TLS                  *tlsutil.Config `json:"tls,omitempty" yaml:"tls,omitempty"`
}

type DatabaseConfig struct {
	Host            string `json:"host" yaml:"host"`
	Port            int    `json:"port" yaml:"port"`
	Database        string `json:"database" yaml:"database"`
	Username        string `json:"username" yaml:"username"`
	Password        string `json:"password,omitempty" yaml:"password,omitempty"`
	SSLMode         string `json:"ssl_mode,omitempty" yaml:"ssl_mode,omitempty"`
	MaxConnections  int32  `json:"max_connections,omitempty" yaml:"max_connections,omitempty"`
	ApplicationName string `json:"application_name,omitempty" yaml:"application_name,omitempty"`
}

type RedisConfig struct {
	Addr      string `json:"addr" yaml:"addr"`
	Password  string `json:"password,omitempty" yaml:"password,omitempty"`
	DB        int    `json:"db" yaml:"db"`
	KeyPrefix string `json:"key_prefix,omitempty" yaml:"key_prefix,omitempty"`
}

type DedupeConfig struct {
	Backend         DedupeBackend `json:"backend" yaml:"backend"`
	TTL             Duration      `json:"ttl" yaml:"ttl"`
	CleanupInterval Duration      `json:"cleanup_interval" yaml:"cleanup_interval"`
	Redis           RedisConfig   `json:"redis" yaml:"redis"`
}

type DownstreamConfig struct {
	TelemetryBaseURL   string   `json:"telemetry_base_url" yaml:"telemetry_base_url"`
	WeighVisionBaseURL string   `json:"weighvision_base_url" yaml:"weighvision_base_url"`
	Timeout            Duration `json:"timeout" yaml:"timeout"`
}

type OpsConfig struct {
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"`
}

// DeadLetterConfig configures the Kafka sink for dropped messages.
type DeadLetterConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
}

// AlertsConfig configures JetStream alerts for failed downstream calls.
type AlertsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	NATSURL string `json:"nats_url" yaml:"nats_url"`
	Stream  string `json:"stream" yaml:"stream"`
	Subject string `json:"subject" yaml:"subject"`
	// TenantPrefix publishes on "{tenant_id}.{subject}".
	TenantPrefix bool `json:"tenant_prefix" yaml:"tenant_prefix"`
	// NKeySeed is a user seed ("SU...") for nkey authentication. Keep it
	// out of the file with a ${NAME} reference.
	NKeySeed string          `json:"nkey_seed,omitempty" yaml:"nkey_seed,omitempty"`
	TLS      *tlsutil.Config `json:"tls,omitempty" yaml:"tls,omitempty"`
}

// GatewayConfig is the full ingress gateway configuration.
type GatewayConfig struct {
	MQTT            MQTTConfig            `json:"mqtt" yaml:"mqtt"`
	Database        DatabaseConfig        `json:"database" yaml:"database"`
	Dedupe          DedupeConfig          `json:"dedupe" yaml:"dedupe"`
	Downstream      DownstreamConfig      `json:"downstream" yaml:"downstream"`
	Ops             OpsConfig             `json:"ops" yaml:"ops"`
	Logging         *logger.Config        `json:"logging,omitempty" yaml:"logging,omitempty"`
	Tracing         *logger.TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
	DeadLetter      DeadLetterConfig      `json:"dead_letter" yaml:"dead_letter"`
	Alerts          AlertsConfig          `json:"alerts" yaml:"alerts"`
	ShutdownTimeout Duration              `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// ApplyDefaults fills unset fields. It is idempotent.
func (c *GatewayConfig) ApplyDefaults() {
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = DefaultClientIDPrefix
	}

	if c.MQTT.QoS == nil {
		qos := DefaultQoS
		c.MQTT.QoS = &qos
	}

	if c.MQTT.KeepAlive <= 0 {
		c.MQTT.KeepAlive = Duration(DefaultKeepAlive)
	}

	if c.MQTT.ConnectRetryInterval <= 0 {
		c.MQTT.ConnectRetryInterval = Duration(DefaultConnectRetry)
	}

	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}

	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}

	if c.Database.ApplicationName == "" {
		c.Database.ApplicationName = DefaultClientIDPrefix
	}

	if c.Dedupe.Backend == "" {
		c.Dedupe.Backend = DedupePostgres
	}

	if c.Dedupe.TTL <= 0 {
		c.Dedupe.TTL = Duration(DefaultDedupeTTL)
	}

	if c.Dedupe.CleanupInterval <= 0 {
		c.Dedupe.CleanupInterval = Duration(DefaultCleanupInterval)
	}

	if c.Dedupe.Redis.KeyPrefix == "" {
		c.Dedupe.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}

	if c.Downstream.Timeout <= 0 {
		c.Downstream.Timeout = Duration(DefaultDownstreamTO)
	}

	if c.Ops.ListenAddr == "" {
		c.Ops.ListenAddr = DefaultOpsListenAddr
	}

	if c.Logging == nil {
		c.Logging = logger.DefaultConfig()
	}

	if c.DeadLetter.Topic == "" {
		c.DeadLetter.Topic = DefaultDeadLetterTopic
	}

	if c.Alerts.Stream == "" {
		c.Alerts.Stream = DefaultAlertsStream
	}

	if c.Alerts.Subject == "" {
		c.Alerts.Subject = DefaultAlertsSubject
	}

	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = Duration(DefaultShutdownTimeout)
	}
}

// Validate reports every configuration problem at once.
func (c *GatewayConfig) Validate() error {
	var errs []error

	switch {
	case c.MQTT.BrokerURL == "":
		errs = append(errs, errMissingBrokerURL)
	default:
		if u, err := url.Parse(c.MQTT.BrokerURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("%w: %q", errInvalidBrokerURL, c.MQTT.BrokerURL))
		}
	}

	if c.MQTT.QoS != nil && (*c.MQTT.QoS < 0 || *c.MQTT.QoS > 2) {
		errs = append(errs, errInvalidQoS)
	}

	if c.MQTT.TLS != nil {
		if err := c.MQTT.TLS.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("mqtt.tls: %w", err))
		}
	}

	if c.Database.Host == "" {
		errs = append(errs, errMissingDatabaseHost)
	}

	if c.Database.Database == "" {
		errs = append(errs, errMissingDatabaseName)
	}

	switch c.Dedupe.Backend {
	case DedupePostgres, DedupeMemory:
	case DedupeRedis:
		if c.Dedupe.Redis.Addr == "" {
			errs = append(errs, errMissingRedisAddr)
		}
	default:
		errs = append(errs, fmt.Errorf("%w: %q", errUnknownDedupeBackend, c.Dedupe.Backend))
	}

	if strings.TrimSpace(c.Downstream.TelemetryBaseURL) == "" {
		errs = append(errs, errMissingTelemetryURL)
	}

	if strings.TrimSpace(c.Downstream.WeighVisionBaseURL) == "" {
		errs = append(errs, errMissingWeighURL)
	}

	if c.DeadLetter.Enabled && len(c.DeadLetter.Brokers) == 0 {
		errs = append(errs, errMissingKafkaBrokers)
	}

	if c.Alerts.Enabled && c.Alerts.NATSURL == "" {
		errs = append(errs, errMissingNATSURL)
	}

	return errors.Join(errs...)
}
