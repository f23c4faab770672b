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
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing/fstest"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type execCall struct {
	sql  string
	args []any
}

// fakeQuerier records Exec calls and serves QueryRow/Query from callbacks.
type fakeQuerier struct {
	mu       sync.Mutex
	execs    []execCall
	execFn   func(sql string, args []any) (pgconn.CommandTag, error)
	rowFn    func(sql string, args []any) pgx.Row
	versions []string
	queryErr error
	pingErr  error
}

func (f *fakeQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	f.mu.Unlock()

	if f.execFn != nil {
		return f.execFn(sql, args)
	}

	return pgconn.NewCommandTag("OK"), nil
}

func (f *fakeQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}

	return &fakeRows{values: f.versions, idx: -1}, nil
}

func (f *fakeQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	return f.rowFn(sql, args)
}

func (f *fakeQuerier) Ping(context.Context) error { return f.pingErr }

func (f *fakeQuerier) calls() []execCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]execCall(nil), f.execs...)
}

type rowFunc func(dest ...any) error

func (r rowFunc) Scan(dest ...any) error { return r(dest...) }

func errRow(err error) pgx.Row {
	return rowFunc(func(...any) error { return err })
}

// valuesRow assigns vals to dest by pointer type.
func valuesRow(vals ...any) pgx.Row {
	return rowFunc(func(dest ...any) error {
		if len(dest) != len(vals) {
			return fmt.Errorf("scan: %d dest for %d values", len(dest), len(vals))
		}

		for i, v := range vals {
			switch d := dest[i].(type) {
			case **string:
				s, _ := v.(*string)
				*d = s
			case *string:
				*d = v.(string)
			case *bool:
				*d = v.(bool)
			case *time.Time:
				*d = v.(time.Time)
			default:
				return fmt.Errorf("scan: unsupported dest %T", dest[i])
			}
		}

		return nil
	})
}

type fakeRows struct {
	values []string
	idx    int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	r.idx++
	return r.idx < len(r.values)
}

func (r *fakeRows) Scan(dest ...any) error {
	p, ok := dest[0].(*string)
	if !ok {
		return errors.New("scan: want *string")
	}

	*p = r.values[r.idx]

	return nil
}

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"m/00001_init.up.sql":   {Data: []byte("CREATE TABLE a (id INT);\nCREATE TABLE b (id INT);")},
		"m/00001_init.down.sql": {Data: []byte("DROP TABLE b; DROP TABLE a;")},
		"m/00002_more.up.sql":   {Data: []byte("-- add c\nCREATE TABLE c (note TEXT DEFAULT 'x;y');")},
	}
}

func containsSQL(calls []execCall, fragment string) bool {
	for _, c := range calls {
		if strings.Contains(c.sql, fragment) {
			return true
		}
	}

	return false
}
