// Package storage provides the durable keyed tables backing the coordination
// core. A Store opens named Tables; values are JSON documents keyed by a
// primary id. Structural corruption is surfaced as ErrTableCorrupted, never
// as a panic, and callers decide whether to quarantine or abort.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// Table names used by the coordination core.
const (
	TableTaskQueue      = "task_queue"
	TableTaskDeadLetter = "task_dead_letter"
	TableConfig         = "agentcom_config"
)

var (
	// ErrKeyNotFound is returned by Get and Delete when the id has no row.
	ErrKeyNotFound = errors.New("key not found")

	// ErrTableCorrupted is returned when a stored record cannot be decoded.
	// It is always wrapped with the table name and offending key.
	ErrTableCorrupted = errors.New("table corrupted")
)

// CorruptionError wraps ErrTableCorrupted with the location of the bad
// record so callers can publish a corruption event without string parsing.
func CorruptionError(table, key string, cause error) error {
	return fmt.Errorf("%w: table %s key %s: %v", ErrTableCorrupted, table, key, cause)
}

// FoldFunc receives each row during a Fold. Returning an error stops the
// fold and propagates the error to the caller. The raw bytes are only valid
// for the duration of the call.
type FoldFunc func(id string, record []byte) error

// Table is a durable keyed collection of JSON documents.
type Table interface {
	// Put upserts the record under id. The value is marshalled to JSON.
	Put(ctx context.Context, id string, record any) error

	// Get decodes the record under id into out. Returns ErrKeyNotFound when
	// the id has no row and a wrapped ErrTableCorrupted when the stored
	// bytes do not decode.
	Get(ctx context.Context, id string, out any) error

	// Delete removes the record under id. Returns ErrKeyNotFound when the
	// id has no row.
	Delete(ctx context.Context, id string) error

	// Fold iterates all rows in ascending id order. Used for startup index
	// rebuilds.
	Fold(ctx context.Context, fn FoldFunc) error

	// Count returns the number of rows.
	Count(ctx context.Context) (int, error)

	// Sync flushes pending writes to stable media. Operations that must be
	// durable before their caller observes success call Sync after Put.
	Sync(ctx context.Context) error
}

// Store opens named tables. Implementations create missing tables on first
// open and return the same Table for repeated opens of one name.
type Store interface {
	Table(name string) (Table, error)

	// Ping reports whether the backing database is reachable. Health
	// probes call it.
	Ping(ctx context.Context) error

	Close() error
}
