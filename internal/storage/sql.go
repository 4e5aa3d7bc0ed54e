package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentcom/agentcom/internal/common/logger"
)

// tableNamePattern restricts table names to plain identifiers. Table names
// are interpolated into SQL, so anything else is rejected up front.
var tableNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// SQLStore implements Store over a read/write connection pool. It serves
// both the SQLite and PostgreSQL backends; the driver name decides the
// placeholder style (via Rebind) and the Sync behavior.
type SQLStore struct {
	pool   *Pool
	driver string
	logger *logger.Logger

	mu     sync.Mutex
	tables map[string]*sqlTable
}

// NewSQLStore wraps an open pool. The caller owns the pool lifecycle via
// Store.Close.
func NewSQLStore(pool *Pool, log *logger.Logger) *SQLStore {
	if log == nil {
		log = logger.Default()
	}
	return &SQLStore{
		pool:   pool,
		driver: pool.Writer().DriverName(),
		logger: log,
		tables: make(map[string]*sqlTable),
	}
}

// Table opens (and lazily creates) the named table. Repeated opens of the
// same name return the same Table.
func (s *SQLStore) Table(name string) (Table, error) {
	if !tableNamePattern.MatchString(name) {
		return nil, fmt.Errorf("invalid table name %q", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.tables[name]; ok {
		return t, nil
	}

	if _, err := s.pool.Writer().Exec(createTableSQL(name)); err != nil {
		return nil, fmt.Errorf("failed to create table %s: %w", name, err)
	}

	t := &sqlTable{store: s, name: name}
	s.tables[name] = t
	s.logger.Debug("storage table ready",
		zap.String("table", name),
		zap.String("driver", s.driver))
	return t, nil
}

// Ping reports whether the database is reachable.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the underlying pool.
func (s *SQLStore) Close() error {
	return s.pool.Close()
}

// checkpoint folds the SQLite WAL back into the main database file. Commits
// are already fsynced (synchronous=FULL), so this is a compaction fence used
// at restore boundaries and shutdown, not a per-write requirement.
// PostgreSQL commits are durable on their own, so it is a no-op there.
func (s *SQLStore) checkpoint(ctx context.Context) error {
	if IsPostgres(s.driver) {
		return nil
	}
	if _, err := s.pool.Writer().ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	return nil
}

type sqlTable struct {
	store *SQLStore
	name  string
}

func (t *sqlTable) Put(ctx context.Context, id string, record any) error {
	if id == "" {
		return errors.New("empty id")
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record for table %s: %w", t.name, err)
	}

	db := t.store.pool.Writer()
	query := db.Rebind(upsertSQL(t.name))
	if _, err := db.ExecContext(ctx, query, id, string(raw), time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("failed to put %s/%s: %w", t.name, id, err)
	}
	return nil
}

func (t *sqlTable) Get(ctx context.Context, id string, out any) error {
	db := t.store.pool.Reader()
	query := db.Rebind(`SELECT record FROM ` + t.name + ` WHERE id = ?`)

	var raw string
	if err := db.GetContext(ctx, &raw, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s/%s", ErrKeyNotFound, t.name, id)
		}
		return fmt.Errorf("failed to get %s/%s: %w", t.name, id, err)
	}

	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return CorruptionError(t.name, id, err)
	}
	return nil
}

func (t *sqlTable) Delete(ctx context.Context, id string) error {
	db := t.store.pool.Writer()
	query := db.Rebind(`DELETE FROM ` + t.name + ` WHERE id = ?`)

	result, err := db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", t.name, id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", t.name, id, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s/%s", ErrKeyNotFound, t.name, id)
	}
	return nil
}

func (t *sqlTable) Fold(ctx context.Context, fn FoldFunc) error {
	db := t.store.pool.Reader()
	rows, err := db.QueryxContext(ctx, `SELECT id, record FROM `+t.name+` ORDER BY id`)
	if err != nil {
		return fmt.Errorf("failed to fold table %s: %w", t.name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return fmt.Errorf("failed to scan row in table %s: %w", t.name, err)
		}
		if err := fn(id, []byte(raw)); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (t *sqlTable) Count(ctx context.Context) (int, error) {
	db := t.store.pool.Reader()
	var n int
	if err := db.GetContext(ctx, &n, `SELECT COUNT(*) FROM `+t.name); err != nil {
		return 0, fmt.Errorf("failed to count table %s: %w", t.name, err)
	}
	return n, nil
}

func (t *sqlTable) Sync(ctx context.Context) error {
	return t.store.checkpoint(ctx)
}
