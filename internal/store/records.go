package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Record is one stored document within a collection.
type Record struct {
	Seq        int64
	Collection string
	ID         string
	Body       json.RawMessage
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

const recordColumns = "seq, collection, record_id, body, created_at, updated_at"

// ReadAll returns every record in collection in insertion order.
func (s *Store) ReadAll(ctx context.Context, collection string) ([]Record, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE collection = ? ORDER BY seq`,
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("read collection %s: %w", collection, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Get fetches one record, returning nil when it does not exist.
func (s *Store) Get(ctx context.Context, collection, id string) (*Record, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE collection = ? AND record_id = ?`,
		collection, id,
	)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return &record, nil
}

// Put inserts or replaces the body of a record. An existing record keeps its position.
func (s *Store) Put(ctx context.Context, collection, id string, body json.RawMessage) (*Record, error) {
	if strings.TrimSpace(collection) == "" || strings.TrimSpace(id) == "" {
		return nil, errors.New("collection and id are required")
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("record %s: body is not valid JSON", id)
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO records (collection, record_id, body, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT (collection, record_id) DO UPDATE
         SET body = excluded.body, updated_at = excluded.updated_at`,
		collection, id, string(body), timestamp, timestamp,
	); err != nil {
		return nil, fmt.Errorf("put record: %w", err)
	}
	return s.Get(ctx, collection, id)
}

// Delete removes a record and reports whether it existed.
func (s *Store) Delete(ctx context.Context, collection, id string) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM records WHERE collection = ? AND record_id = ?`, collection, id)
	if err != nil {
		return false, fmt.Errorf("delete record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Clear removes every record in collection.
func (s *Store) Clear(ctx context.Context, collection string) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM records WHERE collection = ?`, collection)
	if err != nil {
		return 0, fmt.Errorf("clear collection: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of records in collection.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	ctx = ensureContext(ctx)
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM records WHERE collection = ?`, collection).Scan(&count); err != nil {
		return 0, fmt.Errorf("count collection: %w", err)
	}
	return count, nil
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (Record, error) {
	var (
		record     Record
		body       string
		createdRaw sql.NullString
		updatedRaw sql.NullString
	)
	if err := scanner.Scan(&record.Seq, &record.Collection, &record.ID, &body, &createdRaw, &updatedRaw); err != nil {
		return Record{}, err
	}
	record.Body = json.RawMessage(body)
	if created, err := parseTimeString(createdRaw.String); err == nil {
		record.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		record.UpdatedAt = updated
	}
	return record, nil
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
