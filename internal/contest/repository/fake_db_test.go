package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"

	"edujudge/internal/common/db"
)

type execCall struct {
	query string
	args  []interface{}
	inTx  bool
}

type fakeResult struct {
	affected int64
	lastID   int64
	err      error
}

func (r fakeResult) LastInsertId() (int64, error) {
	if r.lastID == 0 {
		return 0, errors.New("not supported")
	}
	return r.lastID, nil
}
func (r fakeResult) RowsAffected() (int64, error) { return r.affected, nil }

type fakeRow struct {
	values []interface{}
	err    error
}

func (r fakeRow) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	return assignAll(dest, r.values)
}

type fakeRows struct {
	rows [][]interface{}
	pos  int
}

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos <= len(r.rows)
}

func (r *fakeRows) Scan(dest ...interface{}) error { return assignAll(dest, r.rows[r.pos-1]) }
func (r *fakeRows) Close() error                   { return nil }
func (r *fakeRows) Err() error                     { return nil }

func assignAll(dest, values []interface{}) error {
	if len(dest) != len(values) {
		return fmt.Errorf("scan: expected %d columns, got %d", len(dest), len(values))
	}
	for i := range dest {
		if scanner, ok := dest[i].(sql.Scanner); ok {
			if err := scanner.Scan(values[i]); err != nil {
				return err
			}
			continue
		}
		reflect.ValueOf(dest[i]).Elem().Set(reflect.ValueOf(values[i]))
	}
	return nil
}

type fakeDB struct {
	dialect db.Dialect

	execs       []execCall
	execResults []fakeResult
	rows        [][][]interface{}
	row         []fakeRow
	queries     []string

	inTx       bool
	committed  int
	rolledBack int
}

func (f *fakeDB) Query(_ context.Context, query string, _ ...interface{}) (db.Rows, error) {
	f.queries = append(f.queries, query)
	if len(f.rows) == 0 {
		return &fakeRows{}, nil
	}
	next := f.rows[0]
	f.rows = f.rows[1:]
	return &fakeRows{rows: next}, nil
}

func (f *fakeDB) QueryRow(_ context.Context, query string, _ ...interface{}) db.Row {
	f.queries = append(f.queries, query)
	if len(f.row) == 0 {
		return fakeRow{err: sql.ErrNoRows}
	}
	next := f.row[0]
	f.row = f.row[1:]
	return next
}

func (f *fakeDB) Exec(_ context.Context, query string, args ...interface{}) (db.Result, error) {
	f.execs = append(f.execs, execCall{query: query, args: args, inTx: f.inTx})
	if len(f.execResults) == 0 {
		return fakeResult{affected: 1}, nil
	}
	next := f.execResults[0]
	f.execResults = f.execResults[1:]
	if next.err != nil {
		return nil, next.err
	}
	return next, nil
}

func (f *fakeDB) Transaction(_ context.Context, fn func(tx db.Transaction) error) error {
	f.inTx = true
	err := fn(f)
	f.inTx = false
	if err != nil {
		f.rolledBack++
		return err
	}
	f.committed++
	return nil
}

func (f *fakeDB) Dialect() db.Dialect {
	if f.dialect == "" {
		return db.DialectMySQL
	}
	return f.dialect
}

func (f *fakeDB) Ping(context.Context) error { return nil }
func (f *fakeDB) Close() error               { return nil }
