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

package db

import "errors"

// Configuration.
var (
	ErrNilConfig   = errors.New("database config is nil")
	ErrMissingHost = errors.New("database host is required")
)

// Statement failures. Callers wrap them with the table or key involved.
var (
	ErrFailedToQuery  = errors.New("failed to query")
	ErrFailedToInsert = errors.New("failed to insert")
	ErrFailedToDelete = errors.New("failed to delete")
	ErrMigration      = errors.New("migration failed")
)

// Last-seen input checks.
var (
	ErrLastSeenNil = errors.New("last-seen record is nil")
	ErrLastSeenKey = errors.New("last-seen record needs tenant_id and device_id")
)
