//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	logx "showbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Load(ctx context.Context) (*Document, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	doc := EmptyDocument()

	rows, err := s.db.QueryContext(ctx,
		`SELECT key, enabled, chat_id, thread_id FROM contexts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key     string
			enabled int
			rec     Record
		)
		if err := rows.Scan(&key, &enabled, &rec.ChatID, &rec.ThreadID); err != nil {
			return nil, err
		}
		rec.Enabled = enabled != 0
		doc.Contexts[key] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prows, err := s.db.QueryContext(ctx,
		`SELECT ctx_key, project_id FROM projects ORDER BY ctx_key, position`)
	if err != nil {
		return nil, err
	}
	defer prows.Close()
	for prows.Next() {
		var key, pid string
		if err := prows.Scan(&key, &pid); err != nil {
			return nil, err
		}
		rec, ok := doc.Contexts[key]
		if !ok {
			continue
		}
		rec.Projects = append(rec.Projects, pid)
		doc.Contexts[key] = rec
	}
	return doc, prows.Err()
}

func (s *sqliteStore) Save(ctx context.Context, doc *Document) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if doc == nil {
		doc = EmptyDocument()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM projects`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM contexts`); err != nil {
		return err
	}

	for key, rec := range doc.Contexts {
		enabled := 0
		if rec.Enabled {
			enabled = 1
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO contexts(key, enabled, chat_id, thread_id) VALUES(?,?,?,?)`,
			key, enabled, rec.ChatID, rec.ThreadID,
		); err != nil {
			return err
		}
		for i, pid := range rec.Projects {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO projects(ctx_key, position, project_id) VALUES(?,?,?)`,
				key, i, pid,
			); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}
