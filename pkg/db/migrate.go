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

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/barnlink/ingress/pkg/logger"
)

const migrationsTable = "ingress_schema_migrations"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations applies every embedded *.up.sql file not yet recorded in
// the tracking table, in filename order.
func RunMigrations(ctx context.Context, q Querier, log logger.Logger) error {
	return runMigrations(ctx, q, migrationsFS, "migrations", log)
}

func runMigrations(ctx context.Context, q Querier, fsys fs.FS, dir string, log logger.Logger) error {
	if _, err := q.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+migrationsTable+` (
		version     TEXT PRIMARY KEY,
		applied_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("%w: create tracking table: %w", ErrMigration, err)
	}

	applied, err := appliedVersions(ctx, q)
	if err != nil {
		return err
	}

	files, err := pendingFiles(fsys, dir, applied)
	if err != nil {
		return err
	}

	for _, name := range files {
		log.Info().Str("migration", name).Msg("applying migration")

		content, err := fs.ReadFile(fsys, dir+"/"+name)
		if err != nil {
			return fmt.Errorf("%w: read %s: %w", ErrMigration, name, err)
		}

		for idx, stmt := range splitStatements(string(content)) {
			if _, err := q.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("%w: statement %d in %s: %w", ErrMigration, idx+1, name, err)
			}
		}

		if _, err := q.Exec(ctx, `INSERT INTO `+migrationsTable+` (version) VALUES ($1)`, migrationVersion(name)); err != nil {
			return fmt.Errorf("%w: record %s: %w", ErrMigration, name, err)
		}
	}

	log.Info().Int("applied", len(files)).Msg("migrations complete")

	return nil
}

func appliedVersions(ctx context.Context, q Querier) (map[string]struct{}, error) {
	rows, err := q.Query(ctx, `SELECT version FROM `+migrationsTable)
	if err != nil {
		return nil, fmt.Errorf("%w: list applied versions: %w", ErrMigration, err)
	}
	defer rows.Close()

	applied := make(map[string]struct{})

	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("%w: scan applied version: %w", ErrMigration, err)
		}

		applied[version] = struct{}{}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate applied versions: %w", ErrMigration, err)
	}

	return applied, nil
}

func pendingFiles(fsys fs.FS, dir string, applied map[string]struct{}) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("%w: read embedded migrations: %w", ErrMigration, err)
	}

	var names []string

	for _, entry := range entries {
		// .down.sql files are for manual rollback only
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}

		if _, ok := applied[migrationVersion(entry.Name())]; ok {
			continue
		}

		names = append(names, entry.Name())
	}

	sort.Strings(names)

	return names, nil
}

// migrationVersion returns the numeric prefix of "00001_name.up.sql".
func migrationVersion(filename string) string {
	version, _, _ := strings.Cut(filename, "_")
	return version
}

// splitStatements splits SQL on semicolons that sit outside quotes,
// dollar-quoted bodies and comments. Comments are dropped.
func splitStatements(content string) []string {
	var (
		statements []string
		current    strings.Builder
		quote      byte
		dollarTag  string
	)

	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			statements = append(statements, stmt)
		}

		current.Reset()
	}

	for i := 0; i < len(content); i++ {
		ch := content[i]

		switch {
		case dollarTag != "":
			if strings.HasPrefix(content[i:], dollarTag) {
				current.WriteString(dollarTag)
				i += len(dollarTag) - 1
				dollarTag = ""

				continue
			}
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case strings.HasPrefix(content[i:], "--"):
			if end := strings.IndexByte(content[i:], '\n'); end >= 0 {
				i += end
				current.WriteByte('\n')
			} else {
				i = len(content)
			}

			continue
		case strings.HasPrefix(content[i:], "/*"):
			if end := strings.Index(content[i+2:], "*/"); end >= 0 {
				i += end + 3
			} else {
				i = len(content)
			}

			continue
		case ch == '$':
			if tag := dollarQuoteTag(content[i:]); tag != "" {
				dollarTag = tag
				current.WriteString(tag)
				i += len(tag) - 1

				continue
			}
		case ch == ';':
			flush()
			continue
		}

		current.WriteByte(ch)
	}

	flush()

	return statements
}

// dollarQuoteTag returns "$$" or "$tag$" at the start of s, or "".
func dollarQuoteTag(s string) string {
	for i := 1; i < len(s); i++ {
		c := s[i]

		switch {
		case c == '$':
			return s[:i+1]
		case c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || i > 1 && c >= '0' && c <= '9':
		default:
			return ""
		}
	}

	return ""
}
