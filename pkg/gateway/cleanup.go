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
	"time"

	"github.com/barnlink/ingress/pkg/stats"
)

func (s *Service) cleanupLoop(ctx context.Context) {
	defer close(s.cleanupDone)

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep removes expired dedupe records once. Failures are logged and the
// next tick tries again.
func (s *Service) sweep(ctx context.Context) {
	removed, err := s.dedupe.CleanupExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn().Err(err).Msg("Dedupe cleanup failed")
		}

		return
	}

	if removed > 0 {
		s.stats.Add(stats.DedupeCleaned, removed)
		s.logger.Info().Int64("removed", removed).Msg("Removed expired dedupe records")
	}
}
