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

package downstream

import (
	"encoding/json"
	"math"
	"strings"
)

// Alternate payload spellings still sent by older weigh-station firmware.
// The first entry is canonical; drop the rest once the device fleet is on it.
var (
	batchIDAliases = []string{"batchId", "batch_id"}
	weightAliases  = []string{"weightKg", "weight_kg", "weight", "value"}
	mediaIDAliases = []string{"mediaObjectId", "media_object_id", "mediaId", "media_id"}
)

// number reads a finite JSON number. Numeric strings are not accepted.
func number(payload map[string]interface{}, key string) (float64, bool) {
	if payload == nil {
		return 0, false
	}

	switch v := payload[key].(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}

		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func firstNumber(payload map[string]interface{}, keys []string) (float64, bool) {
	for _, key := range keys {
		if v, ok := number(payload, key); ok {
			return v, true
		}
	}

	return 0, false
}

func firstString(payload map[string]interface{}, keys []string) (string, bool) {
	for _, key := range keys {
		if s, ok := payload[key].(string); ok && strings.TrimSpace(s) != "" {
			return s, true
		}
	}

	return "", false
}
