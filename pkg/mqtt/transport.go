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

// Package mqtt subscribes the gateway to the broker and hands every
// delivery to a Handler.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/barnlink/ingress/pkg/logger"
	"github.com/barnlink/ingress/pkg/models"
	"github.com/barnlink/ingress/pkg/topic"
)

const (
	sharedPrefix     = "$share/"
	subscribeTimeout = 10 * time.Second
	pingTimeout      = 10 * time.Second
	quiesceMillis    = 250
)

var (
	errNilHandler     = errors.New("mqtt: handler is required")
	errAlreadyStarted = errors.New("mqtt: transport already started")
	errClosed         = errors.New("mqtt: transport is closed")
)

// State is the connection state of a Transport.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Handler processes one delivery. The broker acknowledges the message
// after Handler returns.
type Handler func(ctx context.Context, topic string, payload []byte)

// ClientFactory builds the paho client. Tests replace it.
type ClientFactory func(opts *paho.ClientOptions) paho.Client

// Option configures a Transport.
type Option func(*Transport)

// WithLogger sets the transport logger.
func WithLogger(log logger.Logger) Option {
	return func(t *Transport) { t.logger = log }
}

// WithStateListener is called after every state change.
func WithStateListener(fn func(State)) Option {
	return func(t *Transport) { t.onState = fn }
}

// WithClientFactory replaces paho.NewClient.
func WithClientFactory(fn ClientFactory) Option {
	return func(t *Transport) { t.newClient = fn }
}

// Transport wraps a paho client. It subscribes the gateway topic patterns
// on every connect, including automatic reconnects.
type Transport struct {
	cfg       *models.MQTTConfig
	handler   Handler
	logger    logger.Logger
	onState   func(State)
	newClient ClientFactory
	filters   map[string]byte

	mu     sync.Mutex
	state  State
	client paho.Client
	ctx    context.Context
}

// New validates the configuration and returns a disconnected Transport.
func New(cfg *models.MQTTConfig, handler Handler, opts ...Option) (*Transport, error) {
	if handler == nil {
		return nil, errNilHandler
	}

	t := &Transport{
		cfg:       cfg,
		handler:   handler,
		newClient: paho.NewClient,
		state:     StateDisconnected,
	}

	for _, opt := range opts {
		opt(t)
	}

	if t.logger == nil {
		t.logger = logger.NewTestLogger()
	}

	qos := models.DefaultQoS
	if cfg.QoS != nil {
		qos = *cfg.QoS
	}

	t.filters = Filters(cfg.SharedGroup, byte(qos))

	return t, nil
}

// Filters returns the subscription set, prefixed for a shared group when
// one is given.
func Filters(sharedGroup string, qos byte) map[string]byte {
	patterns := topic.SubscriptionPatterns()
	filters := make(map[string]byte, len(patterns))

	for _, p := range patterns {
		if sharedGroup != "" {
			p = sharedPrefix + sharedGroup + "/" + p
		}

		filters[p] = qos
	}

	return filters
}

// State returns the current connection state.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.state
}

// Connected reports whether the transport holds a live session.
func (t *Transport) Connected() bool {
	return t.State() == StateConnected
}

func (t *Transport) setState(next State) {
	t.mu.Lock()

	prev := t.state
	if prev == StateClosed || prev == next {
		t.mu.Unlock()
		return
	}

	t.state = next
	listener := t.onState
	t.mu.Unlock()

	t.logger.Debug().Str("from", prev.String()).Str("to", next.String()).Msg("MQTT state change")

	if listener != nil {
		listener(next)
	}
}

// Start begins connecting in the background and returns immediately.
// Connection failures are retried at the configured interval until Stop.
// ctx is passed to every Handler call.
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()

	switch t.state {
	case StateClosed:
		t.mu.Unlock()
		return errClosed
	case StateDisconnected:
	default:
		t.mu.Unlock()
		return errAlreadyStarted
	}

	opts, err := t.clientOptions()
	if err != nil {
		t.mu.Unlock()
		return err
	}

	t.ctx = ctx
	t.client = t.newClient(opts)
	client := t.client
	t.mu.Unlock()

	t.setState(StateConnecting)

	t.logger.Info().
		Str("broker", t.cfg.BrokerURL).
		Str("client_id", t.cfg.ClientID).
		Msg("Connecting to MQTT broker")

	token := client.Connect()

	go func() {
		select {
		case <-token.Done():
			if err := token.Error(); err != nil {
				t.logger.Error().Err(err).Str("broker", t.cfg.BrokerURL).Msg("MQTT connect failed")
				t.setState(StateDisconnected)
			}
		case <-ctx.Done():
		}
	}()

	return nil
}

func (t *Transport) clientOptions() (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().
		AddBroker(t.cfg.BrokerURL).
		SetClientID(t.cfg.ClientID).
		SetOrderMatters(false).
		SetCleanSession(t.cfg.SharedGroup != "").
		SetKeepAlive(t.cfg.KeepAlive.Or(models.DefaultKeepAlive)).
		SetPingTimeout(pingTimeout).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(t.cfg.ConnectRetryInterval.Or(models.DefaultConnectRetry))

	if t.cfg.Username != "" {
		opts.SetUsername(t.cfg.Username)
	}

	if t.cfg.Password != "" {
		opts.SetPassword(t.cfg.Password)
	}

	if t.cfg.TLS != nil {
		tlsConfig, err := t.cfg.TLS.Build()
		if err != nil {
			return nil, fmt.Errorf("mqtt tls: %w", err)
		}

		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetOnConnectHandler(t.onConnect)
	opts.SetConnectionLostHandler(t.onConnectionLost)
	opts.SetReconnectingHandler(func(paho.Client, *paho.ClientOptions) {
		t.setState(StateReconnecting)
	})

	return opts, nil
}

func (t *Transport) onConnect(client paho.Client) {
	if t.State() == StateClosed {
		return
	}

	t.setState(StateConnected)

	t.logger.Info().Str("broker", t.cfg.BrokerURL).Msg("Connected to MQTT broker")

	token := client.SubscribeMultiple(t.filters, t.deliver)
	if !token.WaitTimeout(subscribeTimeout) {
		t.logger.Error().Msg("MQTT subscribe timed out")
		return
	}

	if err := token.Error(); err != nil {
		t.logger.Error().Err(err).Msg("MQTT subscribe failed")
		return
	}

	for filter, qos := range t.filters {
		t.logger.Info().Str("filter", filter).Uint8("qos", qos).Msg("Subscribed")
	}
}

func (t *Transport) onConnectionLost(_ paho.Client, err error) {
	t.logger.Warn().Err(err).Msg("MQTT connection lost")
	t.setState(StateReconnecting)
}

func (t *Transport) deliver(_ paho.Client, msg paho.Message) {
	t.mu.Lock()
	ctx := t.ctx
	t.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	t.handler(ctx, msg.Topic(), msg.Payload())
}

// Stop disconnects from the broker, letting in-flight work quiesce. It is
// idempotent.
func (t *Transport) Stop(_ context.Context) error {
	t.mu.Lock()

	if t.state == StateClosed {
		t.mu.Unlock()
		return nil
	}

	t.state = StateClosed
	client := t.client
	listener := t.onState
	t.mu.Unlock()

	if client != nil {
		client.Disconnect(quiesceMillis)
	}

	if listener != nil {
		listener(StateClosed)
	}

	t.logger.Info().Msg("MQTT transport closed")

	return nil
}
