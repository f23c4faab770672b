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

package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

var errUnsupportedExtension = errors.New("unsupported config file extension")

// FileConfigLoader reads a JSON or YAML file, chosen by extension. ${NAME}
// references in the file are replaced with the environment value before
// decoding, so credentials can stay out of the file.
type FileConfigLoader struct{}

// Load implements ConfigLoader.
func (*FileConfigLoader) Load(_ context.Context, path string, dst interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	data = expandBraced(data)

	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".json":
		err = json.Unmarshal(data, dst)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, dst)
	default:
		return fmt.Errorf("%w: %q", errUnsupportedExtension, ext)
	}

	if err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}

	return nil
}

// expandBraced substitutes ${NAME} only. A bare $ is left alone because
// broker and database passwords may contain it.
func expandBraced(data []byte) []byte {
	if !bytes.Contains(data, []byte("${")) {
		return data
	}

	var out bytes.Buffer

	for {
		start := bytes.Index(data, []byte("${"))
		if start < 0 {
			out.Write(data)
			return out.Bytes()
		}

		end := bytes.IndexByte(data[start:], '}')
		if end < 0 {
			out.Write(data)
			return out.Bytes()
		}

		out.Write(data[:start])
		out.WriteString(os.Getenv(string(data[start+2 : start+end])))
		data = data[start+end+1:]
	}
}
