// Package descache keeps task descriptions fetched from the trackers in a
// local SQLite database so listings do not hit the network for every entry.
package descache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/Tiliavir/tracktime/internal/backend"
	"github.com/Tiliavir/tracktime/internal/model"
)

// FileName is the database file created inside the cache directory.
const FileName = "descriptions.db"

type Cache struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (creating when needed) the cache database in dir.
func Open(dir string, log zerolog.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, FileName))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	c := &Cache{db: db, log: log}
	if err := c.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) ensureSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS descriptions (
	backend TEXT NOT NULL,
	project TEXT NOT NULL,
	taskid TEXT NOT NULL,
	description TEXT NOT NULL,
	fetched_at TEXT NOT NULL,
	PRIMARY KEY (backend, project, taskid)
);
`
	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Get returns the cached description, if any.
func (c *Cache) Get(ctx context.Context, backendName, project, taskID string) (string, bool, error) {
	var desc string
	err := c.db.QueryRowContext(ctx,
		`SELECT description FROM descriptions WHERE backend = ? AND project = ? AND taskid = ?;`,
		backendName, project, taskID,
	).Scan(&desc)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query description: %w", err)
	}
	return desc, true, nil
}

// Put stores or replaces a description.
func (c *Cache) Put(ctx context.Context, backendName, project, taskID, description string) error {
	_, err := c.db.ExecContext(ctx, `
INSERT INTO descriptions (backend, project, taskid, description, fetched_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (backend, project, taskid) DO UPDATE SET
	description = excluded.description,
	fetched_at = excluded.fetched_at;`,
		backendName, project, taskID, description, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("store description: %w", err)
	}
	return nil
}

// Describe returns the task description of e from the cache, falling back to
// b and caching a successful lookup. Cache failures are logged and never hide
// a description the backend can provide.
func (c *Cache) Describe(ctx context.Context, b backend.Backend, e model.Entry) (string, bool) {
	if _, ok := b.(backend.TaskDescriber); !ok || !backend.Owns(b, e.Type) || e.TaskID == "" {
		return "", false
	}

	desc, ok, err := c.Get(ctx, b.Name(), e.Project, e.TaskID)
	if err != nil {
		c.log.Warn().Err(err).Str("backend", b.Name()).Msg("reading description cache")
	}
	if ok {
		return desc, true
	}

	desc, ok = backend.TaskDescription(ctx, b, e)
	if !ok {
		return "", false
	}
	if err := c.Put(ctx, b.Name(), e.Project, e.TaskID, desc); err != nil {
		c.log.Warn().Err(err).Str("backend", b.Name()).Msg("writing description cache")
	}
	return desc, true
}
