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

// Package lifecycle runs a long-lived service until a signal arrives and
// bounds how long its shutdown may take.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/barnlink/ingress/pkg/logger"
)

const defaultShutdownTimeout = 30 * time.Second

var errNilService = errors.New("service is required")

// Service is anything with a start/stop lifecycle.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// ServerOptions configures RunServer.
type ServerOptions struct {
	Name            string
	Service         Service
	Logger          logger.Logger
	ShutdownTimeout time.Duration
	// Signals defaults to SIGINT and SIGTERM.
	Signals []os.Signal
	// Exit is called with code 1 if Stop overruns ShutdownTimeout. Defaults to os.Exit.
	Exit func(code int)
}

// RunServer starts the service and blocks until ctx is cancelled or a
// signal is received, then stops it. If Stop has not returned within
// ShutdownTimeout the process is terminated through Exit.
func RunServer(ctx context.Context, opts *ServerOptions) error {
	if opts == nil || opts.Service == nil {
		return errNilService
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewTestLogger()
	}

	timeout := opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	signals := opts.Signals
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	exit := opts.Exit
	if exit == nil {
		exit = os.Exit
	}

	runCtx, stop := signal.NotifyContext(ctx, signals...)
	defer stop()

	if err := opts.Service.Start(runCtx); err != nil {
		startErr := fmt.Errorf("failed to start %s: %w", opts.Name, err)

		// Start may have brought part of the service up.
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()

		if stopErr := opts.Service.Stop(stopCtx); stopErr != nil {
			return errors.Join(startErr, fmt.Errorf("failed to stop %s: %w", opts.Name, stopErr))
		}

		return startErr
	}

	log.Info().Str("service", opts.Name).Msg("Service started")

	<-runCtx.Done()

	log.Info().Str("service", opts.Name).Dur("timeout", timeout).Msg("Shutting down")

	hardStop := time.AfterFunc(timeout, func() {
		log.Error().Str("service", opts.Name).Msg("Shutdown timed out, forcing exit")
		exit(1)
	})
	defer hardStop.Stop()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := opts.Service.Stop(stopCtx); err != nil {
		return fmt.Errorf("failed to stop %s: %w", opts.Name, err)
	}

	log.Info().Str("service", opts.Name).Msg("Service stopped")

	return nil
}
