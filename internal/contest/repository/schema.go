package repository

import (
	"context"
	"embed"
	"fmt"
	"strings"

	"edujudge/internal/common/db"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Schema returns the DDL for a dialect.
func Schema(dialect db.Dialect) (string, error) {
	name := "schema/mysql.sql"
	if dialect == db.DialectPostgres {
		name = "schema/postgres.sql"
	}
	data, err := schemaFS.ReadFile(name)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Migrate creates missing tables. Every statement is idempotent.
func Migrate(ctx context.Context, database db.Database) error {
	ddl, err := Schema(database.Dialect())
	if err != nil {
		return err
	}
	for _, stmt := range splitStatements(ddl) {
		if _, err := database.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func splitStatements(ddl string) []string {
	parts := strings.Split(ddl, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if stmt := strings.TrimSpace(p); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
