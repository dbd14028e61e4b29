package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	// Packages
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	transfer "github.com/mutablelogic/go-transfer"
	schema "github.com/mutablelogic/go-transfer/pkg/schema"

	// Drivers
	_ "modernc.org/sqlite"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Store persists records of saved uploads in SQLite. A record exists if and
// only if the metadata for a stored file was saved.
type Store struct {
	db  *sql.DB
	dsn string
	now func() time.Time
}

var _ transfer.Persister = (*Store)(nil)

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	// MemoryDSN opens a private in-memory database
	MemoryDSN = ":memory:"

	// primary result code, extended codes carry it in the low byte
	sqliteConstraintCode = 19
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS records (
		transfer_id  TEXT PRIMARY KEY,
		backend      TEXT NOT NULL,
		path         TEXT NOT NULL,
		filename     TEXT NOT NULL DEFAULT '',
		size         INTEGER NOT NULL DEFAULT 0,
		content_type TEXT NOT NULL DEFAULT '',
		etag         TEXT NOT NULL DEFAULT '',
		checksum     TEXT NOT NULL DEFAULT '',
		created_at   TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS records_backend_path ON records (backend, path)`,
}

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// Open connects to the database at dsn, which is a file path or MemoryDSN,
// and applies migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = MemoryDSN
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// An in-memory database exists per connection
	if dsn == MemoryDSN {
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
	}
	if dsn != MemoryDSN {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	store := &Store{db: db, dsn: dsn, now: time.Now}
	if err := store.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// CreateRecord saves a record. A record for the same transfer already
// existing is a conflict.
func (s *Store) CreateRecord(ctx context.Context, meta schema.RecordMeta) (*schema.Record, error) {
	if !schema.IsTransferID(meta.TransferID) {
		return nil, httpresponse.ErrBadRequest.Withf("invalid transfer id %q", meta.TransferID)
	} else if meta.Backend == "" || meta.Path == "" {
		return nil, httpresponse.ErrBadRequest.With("backend and path are required")
	} else if meta.Size < 0 {
		return nil, httpresponse.ErrBadRequest.Withf("invalid size %d", meta.Size)
	}

	record := schema.Record{RecordMeta: meta, Created: s.now().UTC()}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO records (transfer_id, backend, path, filename, size, content_type, etag, checksum, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		meta.TransferID, meta.Backend, meta.Path, meta.FileName, meta.Size,
		meta.ContentType, meta.ETag, meta.Checksum, record.Created.Format(time.RFC3339Nano),
	); err != nil {
		if isConstraint(err) {
			return nil, httpresponse.ErrConflict.Withf("record for transfer %q already exists", meta.TransferID)
		}
		return nil, httpresponse.ErrInternalError.Withf("insert record: %v", err)
	}
	return &record, nil
}

// GetRecord returns the record for a transfer.
func (s *Store) GetRecord(ctx context.Context, transferID string) (*schema.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT transfer_id, backend, path, filename, size, content_type, etag, checksum, created_at
		 FROM records WHERE transfer_id = ?`, transferID)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httpresponse.ErrNotFound.Withf("record for transfer %q not found", transferID)
	} else if err != nil {
		return nil, httpresponse.ErrInternalError.Withf("get record: %v", err)
	}
	return record, nil
}

// ListRecords returns records matching the request, newest first.
func (s *Store) ListRecords(ctx context.Context, req schema.ListRecordsRequest) (*schema.ListRecordsResponse, error) {
	var where []string
	var args []any
	if req.TransferID != "" {
		where = append(where, "transfer_id = ?")
		args = append(args, req.TransferID)
	}
	if req.Backend != "" {
		where = append(where, "backend = ?")
		args = append(args, req.Backend)
	}
	if req.Path != "" {
		where = append(where, "path LIKE ? ESCAPE '\\'")
		args = append(args, escapeLike(req.Path)+"%")
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	// Count
	var response schema.ListRecordsResponse
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM records"+clause, args...).Scan(&response.Count); err != nil {
		return nil, httpresponse.ErrInternalError.Withf("count records: %v", err)
	}

	// Limit==0 means count-only
	limit := min(req.Limit, schema.MaxListLimit)
	if limit <= 0 {
		return &response, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT transfer_id, backend, path, filename, size, content_type, etag, checksum, created_at
		 FROM records`+clause+` ORDER BY created_at DESC, transfer_id LIMIT ? OFFSET ?`,
		append(args, limit, max(req.Offset, 0))...)
	if err != nil {
		return nil, httpresponse.ErrInternalError.Withf("list records: %v", err)
	}
	defer rows.Close()
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, httpresponse.ErrInternalError.Withf("list records: %v", err)
		}
		response.Body = append(response.Body, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, httpresponse.ErrInternalError.Withf("list records: %v", err)
	}
	return &response, nil
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*schema.Record, error) {
	var record schema.Record
	var created string
	if err := row.Scan(
		&record.TransferID, &record.Backend, &record.Path, &record.FileName, &record.Size,
		&record.ContentType, &record.ETag, &record.Checksum, &created,
	); err != nil {
		return nil, err
	}
	if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
		record.Created = t
	}
	return &record, nil
}

func isConstraint(err error) bool {
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteConstraintCode {
		return true
	}
	return strings.Contains(err.Error(), "constraint failed")
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
