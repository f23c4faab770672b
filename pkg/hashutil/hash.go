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

// Package hashutil computes and normalizes the payload digests stored in the
// dedupe and last-seen ledgers.
package hashutil

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
)

var errEmptyChecksum = errors.New("empty checksum string")

var errUnsupportedEncoding = errors.New("unsupported checksum encoding")

// PayloadSHA256 returns the lowercase hex SHA-256 of payload.
func PayloadSHA256(payload []byte) string {
	sum := sha256.Sum256(payload)

	return hex.EncodeToString(sum[:])
}

// DecodeSHA256String attempts to decode the provided checksum string which may be
// hex-encoded or base64/base64url-encoded. It returns the raw 32-byte digest.
func DecodeSHA256String(s string) ([]byte, error) {
	clean := strings.TrimSpace(s)
	if clean == "" {
		return nil, errEmptyChecksum
	}

	if decoded, err := hex.DecodeString(clean); err == nil && len(decoded) == sha256.Size {
		return decoded, nil
	}

	// Firmware revisions disagree on the alphabet.
	base64Variants := []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}

	for _, enc := range base64Variants {
		if decoded, err := enc.DecodeString(clean); err == nil && len(decoded) == sha256.Size {
			return decoded, nil
		}
	}

	return nil, errUnsupportedEncoding
}

// NormalizeContentHash returns the canonical lowercase hex form of a
// device-supplied SHA-256 content hash. Values that are not a SHA-256 digest
// in a known encoding are returned trimmed but otherwise unchanged.
func NormalizeContentHash(s string) string {
	decoded, err := DecodeSHA256String(s)
	if err != nil {
		return strings.TrimSpace(s)
	}

	return hex.EncodeToString(decoded)
}
