package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestRebindDollar(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"no placeholders", "SELECT 1", "SELECT 1"},
		{"sequential", "UPDATE t SET a=?, b=? WHERE id=?", "UPDATE t SET a=$1, b=$2 WHERE id=$3"},
		{"quoted literal kept", "SELECT '?' , ? FROM t WHERE s = 'a?b'", "SELECT '?' , $1 FROM t WHERE s = 'a?b'"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := RebindDollar(tc.in); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestUniqueViolation(t *testing.T) {
	myErr := fmt.Errorf("insert: %w", &mysql.MySQLError{
		Number:  1062,
		Message: "Duplicate entry '1-2' for key 'contest_participants.uk_contest_user'",
	})
	key, ok := UniqueViolation(myErr)
	if !ok || key != "contest_participants.uk_contest_user" {
		t.Fatalf("expected mysql key, got %q %v", key, ok)
	}

	pgErr := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "uk_contest_user"})
	key, ok = UniqueViolation(pgErr)
	if !ok || key != "uk_contest_user" {
		t.Fatalf("expected postgres constraint, got %q %v", key, ok)
	}

	if _, ok := UniqueViolation(errors.New("boom")); ok {
		t.Fatalf("expected plain error not to be a unique violation")
	}
}

func TestExtractDuplicateKeyName(t *testing.T) {
	if got := ExtractDuplicateKeyName("Duplicate entry 'x' for key `PRIMARY`"); got != "PRIMARY" {
		t.Fatalf("expected PRIMARY, got %q", got)
	}
	if got := ExtractDuplicateKeyName("no marker"); got != "" {
		t.Fatalf("expected empty key, got %q", got)
	}
}

func TestPoolDefaults(t *testing.T) {
	var p PoolConfig
	p.setDefaults()
	if p.MaxOpenConnections != 25 || p.MaxIdleConnections != 5 {
		t.Fatalf("unexpected pool defaults: %+v", p)
	}
}
