// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package state

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// DefaultPath is where the store lives when no path is configured
const DefaultPath = "ingest.db"

// ErrDuplicateRecord is returned when a key is recorded twice
var ErrDuplicateRecord = errors.Base("duplicate ingest record")

const schema = `
CREATE TABLE IF NOT EXISTS files (
	ingest_block_name TEXT NOT NULL,
	source            TEXT NOT NULL,
	size              INTEGER NOT NULL,
	mtime             INTEGER NOT NULL,
	sha1              BLOB,
	destination       TEXT,
	PRIMARY KEY (ingest_block_name, source, size, mtime)
)`

// 🔑 Key identifies one ingested origin. A file that changes size or
// modification time is a new origin.
type Key struct {
	Block   string
	Source  string
	Size    int64
	ModTime time.Time
}

// Record is a row of the files table
type Record struct {
	Key
	ContentHash []byte
	Destination string
}

// 🗄️ Store is the sqlite-backed idempotency store
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the store at path and ensures the schema exists
func Open(ctx context.Context, path string) (*Store, error) {
	logger := zerolog.Ctx(ctx)
	logger.Debug().Str("path", path).Msg("opening idempotency store")

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Errorf("creating database directory: %w", err)
		}
	}

	dsn := "file:" + filepath.ToSlash(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Errorf("opening database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Errorf("pinging database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, errors.Errorf("creating schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database file the store was opened on
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether key has been recorded
func (s *Store) Exists(ctx context.Context, key Key) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM files WHERE ingest_block_name = ? AND source = ? AND size = ? AND mtime = ?`,
		key.Block, key.Source, key.Size, key.ModTime.UnixNano(),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.Errorf("checking record for %s: %w", key.Source, err)
	}
	return true, nil
}

// 📝 Record inserts rec. A second insert of the same key returns an error
// wrapping ErrDuplicateRecord.
func (s *Store) Record(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO files (ingest_block_name, source, size, mtime, sha1, destination) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Block, rec.Source, rec.Size, rec.ModTime.UnixNano(), rec.ContentHash, rec.Destination,
	)
	if err != nil {
		if errors.Is(err, sqlite3.CONSTRAINT_PRIMARYKEY) {
			return errors.Errorf("%w: %s (block %s)", ErrDuplicateRecord, rec.Source, rec.Block)
		}
		return errors.Errorf("recording %s: %w", rec.Source, err)
	}

	zerolog.Ctx(ctx).Debug().Str("block", rec.Block).Str("source", rec.Source).Str("destination", rec.Destination).Msg("recorded ingest")
	return nil
}

// List returns the records of block, or of every block when block is empty
func (s *Store) List(ctx context.Context, block string) ([]Record, error) {
	query := `SELECT ingest_block_name, source, size, mtime, sha1, destination FROM files`
	var args []any
	if block != "" {
		query += ` WHERE ingest_block_name = ?`
		args = append(args, block)
	}
	query += ` ORDER BY ingest_block_name, source, mtime`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec   Record
			mtime int64
			dest  sql.NullString
		)
		if err := rows.Scan(&rec.Block, &rec.Source, &rec.Size, &mtime, &rec.ContentHash, &dest); err != nil {
			return nil, errors.Errorf("scanning record: %w", err)
		}
		rec.ModTime = time.Unix(0, mtime)
		rec.Destination = dest.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Errorf("iterating records: %w", err)
	}
	return records, nil
}

// Count returns the number of recorded origins
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files`).Scan(&n); err != nil {
		return 0, errors.Errorf("counting records: %w", err)
	}
	return n, nil
}

// Close checkpoints the WAL and closes the database
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	_, _ = s.db.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`)
	if err := s.db.Close(); err != nil {
		return errors.Errorf("closing database: %w", err)
	}
	s.db = nil
	return nil
}
