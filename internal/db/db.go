package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"brandhub/backend/internal/config"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

const (
	driverSQLite = "sqlite"
	driverLibsql = "libsql"
)

// Open connects to TURSO_DATABASE_URL. Local file and in-memory URLs use the
// embedded sqlite driver; libsql:// and http(s) URLs go to a remote libsql
// server.
func Open(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	driver, dsn, err := buildDSN(cfg.TursoDatabaseURL, cfg.TursoAuthToken)
	if err != nil {
		return nil, err
	}

	database, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", driver, err)
	}
	if driver == driverSQLite {
		// One connection keeps :memory: databases shared and serializes
		// writers on local files.
		database.SetMaxOpenConns(1)
	}

	if err := database.PingContext(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return database, nil
}

func buildDSN(rawURL, authToken string) (driver, dsn string, err error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return "", "", fmt.Errorf("empty database url")
	}

	if trimmed == ":memory:" || strings.HasPrefix(trimmed, "file:") {
		return driverSQLite, trimmed, nil
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", "", fmt.Errorf("parse database url: %w", err)
	}

	switch parsed.Scheme {
	case "libsql", "http", "https", "ws", "wss":
	default:
		return "", "", fmt.Errorf("unsupported database url scheme %q", parsed.Scheme)
	}

	if token := strings.TrimSpace(authToken); token != "" {
		query := parsed.Query()
		if query.Get("authToken") == "" {
			query.Set("authToken", token)
			parsed.RawQuery = query.Encode()
		}
	}
	return driverLibsql, parsed.String(), nil
}
