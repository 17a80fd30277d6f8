// Package sqlite keeps the in-process store durable for single-node runs.
// Every committed transaction snapshots the full state into one SQLite table
// of JSON blobs, one row per bucket.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	gerrors "github.com/go-faster/errors"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/infrastructure/memory"
)

const (
	createState = `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`
	upsertState = `INSERT INTO state(bucket, payload) VALUES(?, ?)
		ON CONFLICT(bucket) DO UPDATE SET payload = excluded.payload`
)

// bucket maps a state row to its part of the snapshot.
type bucket struct {
	name string
	ref  func(s *memory.Snapshot) any
}

var buckets = []bucket{
	{"leads", func(s *memory.Snapshot) any { return &s.Leads }},
	{"contacts", func(s *memory.Snapshot) any { return &s.Contacts }},
	{"accounts", func(s *memory.Snapshot) any { return &s.Accounts }},
	{"sourcing_records", func(s *memory.Snapshot) any { return &s.SourcingRecords }},
	{"opportunities", func(s *memory.Snapshot) any { return &s.Opportunities }},
	{"activities", func(s *memory.Snapshot) any { return &s.Activities }},
	{"notes", func(s *memory.Snapshot) any { return &s.Notes }},
	{"documents", func(s *memory.Snapshot) any { return &s.Documents }},
	{"assignees", func(s *memory.Snapshot) any { return &s.Assignees }},
	{"profiles", func(s *memory.Snapshot) any { return &s.Profiles }},
	{"transitions", func(s *memory.Snapshot) any { return &s.Transitions }},
}

type Store struct {
	*memory.Store
	db   *sql.DB
	path string
}

// Open loads the state at path, creating the file when missing.
func Open(ctx context.Context, path string, opts ...memory.Option) (*Store, error) {
	if path == "" {
		path = "crm.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer; commit hooks already run under the store lock
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, createState); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}

	s := &Store{db: db, path: path}
	s.Store = memory.New(append(opts, memory.WithCommitHook(s.persist))...)
	if err := s.load(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return gerrors.Wrap(err, "select state")
	}
	defer func() { _ = rows.Close() }()

	raw := map[string][]byte{}
	for rows.Next() {
		var name string
		var payload []byte
		if err := rows.Scan(&name, &payload); err != nil {
			return gerrors.Wrap(err, "scan state")
		}
		raw[name] = payload
	}
	if err := rows.Err(); err != nil {
		return gerrors.Wrap(err, "select state")
	}
	if len(raw) == 0 {
		return nil
	}

	snap := memory.NewSnapshot()
	for _, b := range buckets {
		payload, ok := raw[b.name]
		if !ok {
			continue
		}
		if err := json.Unmarshal(payload, b.ref(&snap)); err != nil {
			return gerrors.Wrapf(err, "decode %s", b.name)
		}
	}
	s.ImportState(snap)
	return nil
}

func (s *Store) persist(ctx context.Context, next memory.Snapshot) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return gerrors.Wrap(err, "begin sqlite tx")
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, b := range buckets {
		data, err := json.Marshal(b.ref(&next))
		if err != nil {
			return gerrors.Wrapf(err, "encode %s", b.name)
		}
		if _, err := tx.ExecContext(ctx, upsertState, b.name, data); err != nil {
			return gerrors.Wrapf(err, "upsert %s", b.name)
		}
	}
	return tx.Commit()
}
