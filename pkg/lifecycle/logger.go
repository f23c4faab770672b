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

package lifecycle

import (
	"fmt"

	"github.com/barnlink/ingress/pkg/logger"
)

// CreateComponentLogger builds a logger tagged with component. The boot
// logger is created from logger.DefaultConfig before any file is read, so a
// nil config is allowed and means the same thing.
func CreateComponentLogger(component string, config *logger.Config) (logger.Logger, error) {
	if config == nil {
		config = logger.DefaultConfig()
	}

	log, err := logger.NewComponent(component, config)
	if err != nil {
		return nil, fmt.Errorf("%s logger (level %q, output %q): %w", component, config.Level, config.Output, err)
	}

	return log, nil
}
