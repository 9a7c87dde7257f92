package statestore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// sqlitePollInterval is how often Watch checks for foreign writes. One
// second matches the granularity of the session timer, so a neighbouring
// process never lags by more than a tick.
const sqlitePollInterval = time.Second

// SQLite is a Store backed by a local SQLite database. Deletes leave a
// tombstone row so that pollers in other processes can observe them.
type SQLite struct {
	db     *sql.DB
	origin string
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens (or creates) the state database at dir/session.db.
func OpenSQLite(dir string) (*SQLite, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir %s: %w", dir, err)
	}

	dbPath := filepath.Join(dir, "session.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		key        TEXT PRIMARY KEY,
		value      TEXT,
		origin     TEXT NOT NULL,
		updated_ms INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating kv table: %w", err)
	}

	return &SQLite{db: db, origin: uuid.New().String()}, nil
}

func (s *SQLite) Get(ctx context.Context, key string) (string, error) {
	var value sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE key = ?`, key,
	).Scan(&value)
	if err == sql.ErrNoRows || (err == nil && !value.Valid) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading key %s: %w", key, err)
	}
	return value.String, nil
}

func (s *SQLite) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO kv (key, value, origin, updated_ms) VALUES (?, ?, ?, ?)`,
		key, value, s.origin, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("writing key %s: %w", key, err)
	}
	return nil
}

// Delete tombstones the key (NULL value) rather than removing the row, so
// Watch pollers in other processes see the deletion.
func (s *SQLite) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO kv (key, value, origin, updated_ms) VALUES (?, NULL, ?, ?)`,
		key, s.origin, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("deleting key %s: %w", key, err)
	}
	return nil
}

// pollCursor tracks poll progress. Polls re-scan the boundary millisecond
// with >= and dedup by key, so a foreign write that lands in the same
// millisecond as an already-reported row is still picked up.
type pollCursor struct {
	since int64
	// seen holds the keys already reported at exactly since.
	seen map[string]bool
}

// Watch polls for rows updated by other origins since the previous poll.
func (s *SQLite) Watch(ctx context.Context) (<-chan Event, error) {
	ch := make(chan Event, 16)
	cur := &pollCursor{since: time.Now().UnixMilli(), seen: make(map[string]bool)}

	go func() {
		defer close(ch)
		ticker := time.NewTicker(sqlitePollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.poll(ctx, ch, cur)
			}
		}
	}()

	return ch, nil
}

func (s *SQLite) poll(ctx context.Context, ch chan<- Event, cur *pollCursor) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value, origin, updated_ms FROM kv
		 WHERE updated_ms >= ? AND origin != ?
		 ORDER BY updated_ms ASC`,
		cur.since, s.origin,
	)
	if err != nil {
		return
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key, origin string
			value       sql.NullString
			updatedMs   int64
		)
		if err := rows.Scan(&key, &value, &origin, &updatedMs); err != nil {
			return
		}
		if updatedMs == cur.since && cur.seen[key] {
			continue
		}
		if updatedMs > cur.since {
			cur.since = updatedMs
			cur.seen = make(map[string]bool)
		}
		cur.seen[key] = true
		ev := Event{Key: key, Origin: origin}
		if value.Valid {
			ev.Value = value.String
		} else {
			ev.Deleted = true
		}
		select {
		case ch <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func (s *SQLite) Origin() string { return s.origin }

func (s *SQLite) Close() error {
	return s.db.Close()
}
