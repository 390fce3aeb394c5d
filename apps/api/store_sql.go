package main

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/postgres/*.sql migrations/mysql/*.sql
var migrationFiles embed.FS

type sqlDialect struct {
	name                  string
	driver                string
	migrationsDir         string
	createMigrationsTable string
	migrationApplied      string
	recordMigration       string
	selectDocument        string
	upsertDocument        string
}

var postgresDialect = sqlDialect{
	name:          "postgres",
	driver:        "pgx",
	migrationsDir: "migrations/postgres",
	createMigrationsTable: `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	migrationApplied: `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`,
	recordMigration:  `INSERT INTO schema_migrations (filename) VALUES ($1)`,
	selectDocument:   `SELECT body FROM report_documents WHERE doc_key = $1`,
	upsertDocument: `
		INSERT INTO report_documents (doc_key, body, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (doc_key)
		DO UPDATE SET body = EXCLUDED.body, updated_at = NOW()`,
}

var mysqlDialect = sqlDialect{
	name:          "mysql",
	driver:        "mysql",
	migrationsDir: "migrations/mysql",
	createMigrationsTable: `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename VARCHAR(191) NOT NULL PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	migrationApplied: `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = ?)`,
	recordMigration:  `INSERT INTO schema_migrations (filename) VALUES (?)`,
	selectDocument:   `SELECT body FROM report_documents WHERE doc_key = ?`,
	upsertDocument: `
		INSERT INTO report_documents (doc_key, body, updated_at)
		VALUES (?, ?, NOW())
		ON DUPLICATE KEY UPDATE body = VALUES(body), updated_at = NOW()`,
}

func dialectForDriver(name string) (sqlDialect, error) {
	switch name {
	case "postgres":
		return postgresDialect, nil
	case "mysql":
		return mysqlDialect, nil
	default:
		return sqlDialect{}, fmt.Errorf("unsupported sql store driver %q", name)
	}
}

// sqlBackend keeps the report document in a single row of report_documents.
type sqlBackend struct {
	db      *sql.DB
	dialect sqlDialect
}

func openSQLBackend(ctx context.Context, dialect sqlDialect, dsn string) (*sqlBackend, error) {
	db, err := sql.Open(dialect.driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect.name, err)
	}
	return &sqlBackend{db: db, dialect: dialect}, nil
}

func (b *sqlBackend) Name() string { return b.dialect.name }

func (b *sqlBackend) Read(ctx context.Context, key string) ([]byte, error) {
	var body string
	err := b.db.QueryRowContext(ctx, b.dialect.selectDocument, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(body), nil
}

func (b *sqlBackend) Write(ctx context.Context, key string, body []byte) error {
	_, err := b.db.ExecContext(ctx, b.dialect.upsertDocument, key, string(body))
	return err
}

func (b *sqlBackend) Close() error {
	return b.db.Close()
}

// migrate applies embedded migrations in filename order, one transaction each.
func (b *sqlBackend) migrate(ctx context.Context, logger *slog.Logger) error {
	entries, err := migrationFiles.ReadDir(b.dialect.migrationsDir)
	if err != nil {
		return err
	}

	if _, err := b.db.ExecContext(ctx, b.dialect.createMigrationsTable); err != nil {
		return err
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	for _, file := range files {
		var applied bool
		if err := b.db.QueryRowContext(ctx, b.dialect.migrationApplied, file).Scan(&applied); err != nil {
			return err
		}
		if applied {
			continue
		}

		content, err := migrationFiles.ReadFile(path.Join(b.dialect.migrationsDir, file))
		if err != nil {
			return err
		}

		tx, err := b.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %s failed: %w", file, err)
		}
		if _, err := tx.ExecContext(ctx, b.dialect.recordMigration, file); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}

		logger.Info("applied migration", "driver", b.dialect.name, "file", file)
	}

	return nil
}
