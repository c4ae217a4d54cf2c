// Package sqlite persists the match journal in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"arena-rooms/server/internal/journal"
	"arena-rooms/server/internal/journal/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store implements journal.Store.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	if value == 0 {
		return time.Time{}
	}
	return time.UnixMilli(value).UTC()
}

// Open opens the database at path and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// AppendMatch inserts one match record.
func (s *Store) AppendMatch(ctx context.Context, match journal.Match) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	participants, err := encodeIDs(match.Participants)
	if err != nil {
		return err
	}
	winners, err := encodeIDs(match.Winners)
	if err != nil {
		return err
	}
	losers, err := encodeIDs(match.Losers)
	if err != nil {
		return err
	}
	finished := 0
	if match.Finished {
		finished = 1
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO matches (
		   sequence,
		   room_id,
		   slot,
		   origin_x,
		   origin_y,
		   origin_z,
		   participants,
		   winners,
		   losers,
		   reason,
		   finished,
		   created_at,
		   destroyed_at,
		   recorded_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(match.Sequence),
		int64(match.RoomID),
		match.Slot,
		match.Origin[0],
		match.Origin[1],
		match.Origin[2],
		participants,
		winners,
		losers,
		match.Reason,
		finished,
		toMillis(match.CreatedAt),
		toMillis(match.DestroyedAt),
		toMillis(match.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("insert match: %w", err)
	}
	return nil
}

// RecentMatches returns up to limit matches, newest first.
func (s *Store) RecentMatches(ctx context.Context, limit int) ([]journal.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT sequence, room_id, slot, origin_x, origin_y, origin_z,
		        participants, winners, losers, reason, finished,
		        created_at, destroyed_at, recorded_at
		   FROM matches
		  ORDER BY recorded_at DESC, sequence DESC
		  LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query matches: %w", err)
	}
	defer rows.Close()

	var matches []journal.Match
	for rows.Next() {
		var (
			match                         journal.Match
			sequence, roomID              int64
			participants, winners, losers string
			finished                      int
			createdAt, destroyedAt        int64
			recordedAt                    int64
		)
		if err := rows.Scan(
			&sequence,
			&roomID,
			&match.Slot,
			&match.Origin[0],
			&match.Origin[1],
			&match.Origin[2],
			&participants,
			&winners,
			&losers,
			&match.Reason,
			&finished,
			&createdAt,
			&destroyedAt,
			&recordedAt,
		); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		match.Sequence = uint64(sequence)
		match.RoomID = uint64(roomID)
		match.Finished = finished != 0
		match.CreatedAt = fromMillis(createdAt)
		match.DestroyedAt = fromMillis(destroyedAt)
		match.RecordedAt = fromMillis(recordedAt)
		if match.Participants, err = decodeIDs(participants); err != nil {
			return nil, err
		}
		if match.Winners, err = decodeIDs(winners); err != nil {
			return nil, err
		}
		if match.Losers, err = decodeIDs(losers); err != nil {
			return nil, err
		}
		matches = append(matches, match)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matches: %w", err)
	}
	return matches, nil
}

func encodeIDs(ids []string) (string, error) {
	if len(ids) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("encode ids: %w", err)
	}
	return string(data), nil
}

func decodeIDs(raw string) ([]string, error) {
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("decode ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return ids, nil
}

var _ journal.Store = (*Store)(nil)
