package db

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Dialect picks the gorm driver for cfg.Type. Every connection runs in UTC;
// business days are computed in code, never by the database.
func Dialect(cfg Config) (gorm.Dialector, error) {
	switch cfg.Type {
	case "postgres", "postgresql":
		dsn := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(cfg.User, cfg.Password),
			Host:   net.JoinHostPort(cfg.Host, cfg.Port),
			Path:   "/" + cfg.Name,
		}
		q := dsn.Query()
		q.Set("sslmode", orDefault(cfg.SSLMode, "disable"))
		q.Set("TimeZone", "UTC")
		dsn.RawQuery = q.Encode()
		return postgres.Open(dsn.String()), nil
	case "mysql":
		return mysql.New(mysql.Config{
			DSN: fmt.Sprintf("%s:%s@tcp(%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
				cfg.User, cfg.Password, net.JoinHostPort(cfg.Host, cfg.Port), cfg.Name),
			// Bounds untagged string columns under AutoMigrate.
			DefaultStringSize: 255,
		}), nil
	case "sqlite":
		return sqlite.Open(sqliteDSN(orDefault(cfg.Name, "officeflow.db"))), nil
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}
}

// sqliteDSN makes every transaction take the write lock at BEGIN and wait
// for it, so lock-then-write sections queue instead of failing with
// SQLITE_BUSY when they upgrade from a read.
func sqliteDSN(name string) string {
	params := []string{}
	if !strings.Contains(name, "_txlock=") {
		params = append(params, "_txlock=immediate")
	}
	if !strings.Contains(name, "_busy_timeout=") {
		params = append(params, "_busy_timeout=5000")
	}
	if len(params) == 0 {
		return name
	}
	sep := "?"
	if strings.Contains(name, "?") {
		sep = "&"
	}
	return name + sep + strings.Join(params, "&")
}

func orDefault(value, def string) string {
	if value == "" {
		return def
	}
	return value
}
