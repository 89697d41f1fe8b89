package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"mockforge/internal/infra"
)

type simpleRow struct {
	scan func(dest ...any) error
}

func (r simpleRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

type testRowsBase struct{}

func (testRowsBase) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }

func (testRowsBase) Conn() *pgx.Conn { return nil }

func (testRowsBase) FieldDescriptions() []pgconn.FieldDescription { return nil }

func (testRowsBase) Values() ([]any, error) {
	return nil, fmt.Errorf("values not supported in test rows")
}

func (testRowsBase) RawValues() [][]byte { return nil }

// testRows replays a fixed sequence of scan callbacks as a pgx.Rows.
type testRows struct {
	testRowsBase
	scans []func(dest ...any) error
	pos   int
}

func (r *testRows) Next() bool {
	return r.pos < len(r.scans)
}

func (r *testRows) Scan(dest ...any) error {
	scan := r.scans[r.pos]
	r.pos++
	return scan(dest...)
}

func (r *testRows) Close() {}
func (r *testRows) Err() error { return nil }

// call is one recorded executor invocation.
type call struct {
	query string
	args  []any
}

// stubExecutor scripts responses per invocation and records every call.
type stubExecutor struct {
	calls []call

	execTags []pgconn.CommandTag
	execErr  error
	rows     []simpleRow
	queryRes []*testRows
}

func (s *stubExecutor) record(query string, args []any) int {
	s.calls = append(s.calls, call{query: query, args: args})
	return len(s.calls) - 1
}

func (s *stubExecutor) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	i := s.record(query, args)
	if s.execErr != nil {
		return pgconn.CommandTag{}, s.execErr
	}
	if i < len(s.execTags) {
		return s.execTags[i], nil
	}
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (s *stubExecutor) QueryRow(_ context.Context, query string, args ...any) pgx.Row {
	i := s.record(query, args)
	if i < len(s.rows) {
		return s.rows[i]
	}
	return simpleRow{}
}

func (s *stubExecutor) Query(_ context.Context, query string, args ...any) (pgx.Rows, error) {
	i := s.record(query, args)
	if i < len(s.queryRes) {
		return s.queryRes[i], nil
	}
	return &testRows{}, nil
}

var _ infra.SQLExecutor = (*stubExecutor)(nil)
