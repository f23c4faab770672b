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

package hashutil

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// frameDigest is the digest a WeighVision camera reports for one image.
func frameDigest() (raw []byte, hexForm string) {
	sum := sha256.Sum256([]byte("barn-7/cam-2/frame-000142.jpg"))
	return sum[:], hex.EncodeToString(sum[:])
}

func TestDecodeSHA256String_AcceptsFirmwareEncodings(t *testing.T) {
	raw, want := frameDigest()

	encodings := map[string]string{
		"hex":           want,
		"hex upper":     strings.ToUpper(want),
		"hex padded":    "  " + want + "\n",
		"base64":        base64.StdEncoding.EncodeToString(raw),
		"base64 raw":    base64.RawStdEncoding.EncodeToString(raw),
		"base64url":     base64.URLEncoding.EncodeToString(raw),
		"base64url raw": base64.RawURLEncoding.EncodeToString(raw),
	}

	for name, input := range encodings {
		t.Run(name, func(t *testing.T) {
			got, err := DecodeSHA256String(input)
			require.NoError(t, err)
			assert.Equal(t, want, hex.EncodeToString(got))
		})
	}
}

func TestDecodeSHA256String_Rejects(t *testing.T) {
	_, err := DecodeSHA256String(" \t")
	require.ErrorIs(t, err, errEmptyChecksum)

	md5Hex := "9e107d9d372bb6826bd81d3542a419d6"
	_, err = DecodeSHA256String(md5Hex)
	require.ErrorIs(t, err, errUnsupportedEncoding)

	_, err = DecodeSHA256String("sha256:??")
	require.ErrorIs(t, err, errUnsupportedEncoding)
}

func TestPayloadSHA256(t *testing.T) {
	body := []byte(`{"temperature":21.5,"humidity":63}`)
	sum := sha256.Sum256(body)

	assert.Equal(t, hex.EncodeToString(sum[:]), PayloadSHA256(body))
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", PayloadSHA256(nil))
}

func TestNormalizeContentHash(t *testing.T) {
	raw, want := frameDigest()

	assert.Equal(t, want, NormalizeContentHash(base64.StdEncoding.EncodeToString(raw)))
	assert.Equal(t, want, NormalizeContentHash(strings.ToUpper(want)))
	assert.Equal(t, "crc32:deadbeef", NormalizeContentHash(" crc32:deadbeef "))
}
