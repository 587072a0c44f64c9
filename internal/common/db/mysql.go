package db

import (
	_ "github.com/go-sql-driver/mysql"
)

// MySQLConfig configures a MySQL connection pool.
type MySQLConfig struct {
	// DSN format: "user:password@tcp(host:port)/dbname?parseTime=true&loc=UTC"
	DSN        string `yaml:"dsn"`
	PoolConfig `yaml:",inline"`
}

// NewMySQL opens and pings a MySQL pool.
func NewMySQL(cfg MySQLConfig) (Database, error) {
	return openSQL("mysql", DialectMySQL, cfg.DSN, cfg.PoolConfig, nil)
}
