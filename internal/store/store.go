// Package store implements the embedded document store: durable, versioned,
// key-addressed collections backed by a local SQLite file. Records are kept
// as JSON documents; key and secondary-index values live in dedicated columns
// so collections can be read in key or index order.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var (
	// ErrDuplicateKey is returned by Add when the record's key already exists.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrUnknownCollection is a programmer error: the named collection is not
	// part of the schema.
	ErrUnknownCollection = errors.New("unknown collection")
)

// collection describes one logical collection's physical layout.
type collection struct {
	table     string
	keyColumn string
	// indexColumns are the secondary ordering columns extracted on every
	// write, keyed by column name.
	indexColumns map[string]bool
}

var collections = map[string]collection{
	"sessions": {table: "sessions", keyColumn: "id", indexColumns: map[string]bool{"last_updated": true}},
	"messages": {table: "messages", keyColumn: "id", indexColumns: map[string]bool{"session_id": true}},
	"commands": {table: "commands", keyColumn: "id", indexColumns: map[string]bool{"use_count": true}},
	"config":   {table: "config", keyColumn: "id"},
	"users":    {table: "users", keyColumn: "username"},
	"prefs":    {table: "prefs", keyColumn: "key"},
}

// Store is the process-wide document store handle. It is opened once at
// startup and passed by reference to every component; *sql.DB makes all
// collection operations safe for concurrent callers.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Open opens (or creates) the store at path and brings its schema up to the
// current version. A store that cannot be opened or migrated is treated as
// corrupt: the file is dropped and recreated once, so callers must be ready
// to rebuild bootstrap state after a wipe.
func Open(path string, log *zap.Logger) (*Store, error) {
	s, err := open(path, log)
	if err == nil {
		return s, nil
	}

	log.Warn("store unusable, dropping and recreating", zap.String("path", path), zap.Error(err))
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if rmErr := os.Remove(p); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to remove corrupt store %s: %w", p, rmErr)
		}
	}
	s, err = open(path, log)
	if err != nil {
		return nil, fmt.Errorf("failed to recreate store: %w", err)
	}
	return s, nil
}

func open(path string, log *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err = runMigrations(db, log); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Get reads one record by primary key into dest. The second return value is
// false when the key is absent.
func (s *Store) Get(ctx context.Context, coll, key string, dest any) (bool, error) {
	c, ok := collections[coll]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownCollection, coll)
	}
	var doc []byte
	query := fmt.Sprintf("SELECT doc FROM %s WHERE %s = ?", c.table, c.keyColumn)
	err := s.db.QueryRowContext(ctx, query, key).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query %s: %w", coll, err)
	}
	if err := json.Unmarshal(doc, dest); err != nil {
		return false, fmt.Errorf("failed to decode %s record %q: %w", coll, key, err)
	}
	return true, nil
}

// GetAll returns every record of a collection in natural key order.
func (s *Store) GetAll(ctx context.Context, coll string) ([]json.RawMessage, error) {
	c, ok := collections[coll]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, coll)
	}
	return s.getAll(ctx, c, c.keyColumn, false)
}

// GetAllByIndex returns every record ordered by one of the collection's
// secondary index columns.
func (s *Store) GetAllByIndex(ctx context.Context, coll, column string, descending bool) ([]json.RawMessage, error) {
	c, ok := collections[coll]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, coll)
	}
	if !c.indexColumns[column] {
		return nil, fmt.Errorf("%w: %s has no index %q", ErrUnknownCollection, coll, column)
	}
	return s.getAll(ctx, c, column, descending)
}

func (s *Store) getAll(ctx context.Context, c collection, orderBy string, descending bool) ([]json.RawMessage, error) {
	dir := "ASC"
	if descending {
		dir = "DESC"
	}
	query := fmt.Sprintf("SELECT doc FROM %s ORDER BY %s %s", c.table, orderBy, dir)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", c.table, err)
	}
	defer rows.Close()

	var docs []json.RawMessage
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", c.table, err)
		}
		docs = append(docs, json.RawMessage(doc))
	}
	return docs, rows.Err()
}

// Put inserts or replaces a record by primary key. index supplies the values
// of the collection's secondary index columns; unnamed columns default.
func (s *Store) Put(ctx context.Context, coll, key string, record any, index map[string]int64) error {
	return s.write(ctx, coll, key, record, index, true)
}

// Add inserts a record, failing with ErrDuplicateKey when the key already
// exists. Used only where duplicate insertion would be a bug, such as the
// first-session bootstrap.
func (s *Store) Add(ctx context.Context, coll, key string, record any, index map[string]int64) error {
	return s.write(ctx, coll, key, record, index, false)
}

func (s *Store) write(ctx context.Context, coll, key string, record any, index map[string]int64, replace bool) error {
	c, ok := collections[coll]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCollection, coll)
	}

	doc, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode %s record: %w", coll, err)
	}

	columns := []string{c.keyColumn}
	args := []any{key}
	// Deterministic column order keeps generated SQL stable.
	indexed := make([]string, 0, len(index))
	for col := range index {
		indexed = append(indexed, col)
	}
	sort.Strings(indexed)
	for _, col := range indexed {
		if !c.indexColumns[col] {
			return fmt.Errorf("%w: %s has no index column %q", ErrUnknownCollection, coll, col)
		}
		columns = append(columns, col)
		args = append(args, index[col])
	}
	columns = append(columns, "doc")
	args = append(args, string(doc))

	verb := "INSERT"
	if replace {
		verb = "INSERT OR REPLACE"
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	query := fmt.Sprintf("%s INTO %s (%s) VALUES (%s)", verb, c.table, strings.Join(columns, ", "), placeholders)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("%w: %s/%s", ErrDuplicateKey, coll, key)
		}
		return fmt.Errorf("failed to write %s record %q: %w", coll, key, err)
	}
	return nil
}

// Delete removes a record by primary key. Deleting an absent key is not an
// error.
func (s *Store) Delete(ctx context.Context, coll, key string) error {
	c, ok := collections[coll]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCollection, coll)
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", c.table, c.keyColumn)
	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("failed to delete %s record %q: %w", coll, key, err)
	}
	return nil
}
