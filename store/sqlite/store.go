// Package sqlite persists instrumentation records in a SQLite database.
//
// A Store is an observe.Observer. Logs, events and marks are written only when
// their Persist flag is set; every settlement is written. Write failures are
// logged, never returned to the emitting code.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/aponysus/ilw/observe"
	"github.com/aponysus/ilw/store/sqlite/migrations"
	"github.com/rs/zerolog"

	_ "modernc.org/sqlite"
)

var _ observe.Observer = (*Store)(nil)

// Store is a SQLite backed record sink.
type Store struct {
	sqlDB  *sql.DB
	logger zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used to report write failures.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// Open opens (or creates) the database at path and applies migrations.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &Store{sqlDB: sqlDB, logger: zerolog.Nop()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) OnLog(rec observe.LogRecord) {
	if !rec.Flags.Persist {
		return
	}
	s.report("log", s.SaveLog(context.Background(), rec))
}

func (s *Store) OnEvent(rec observe.EventRecord) {
	if !rec.Flags.Persist {
		return
	}
	s.report("event", s.SaveEvent(context.Background(), rec))
}

func (s *Store) OnMark(rec observe.MarkRecord) {
	if !rec.Flags.Persist {
		return
	}
	s.report("mark", s.SaveMark(context.Background(), rec))
}

func (s *Store) OnSettle(rec observe.SettleRecord) {
	s.report("settlement", s.SaveSettlement(context.Background(), rec))
}

func (s *Store) report(kind string, err error) {
	if err == nil || s == nil {
		return
	}
	s.logger.Error().Err(err).Str("record", kind).Msg("persist record")
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// SaveLog inserts one log record regardless of its flags.
func (s *Store) SaveLog(ctx context.Context, rec observe.LogRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	messages := encodeJSON(rec.Messages)
	if !messages.Valid {
		messages = sql.NullString{String: "[]", Valid: true}
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO logs (level, messages_json, meta_json, time_ns) VALUES (?, ?, ?, ?)`,
		rec.Level.String(), messages.String, encodeJSON(rec.Meta), toNanos(rec.Time),
	)
	if err != nil {
		return fmt.Errorf("insert log: %w", err)
	}
	return nil
}

// SaveEvent inserts one event record regardless of its flags.
func (s *Store) SaveEvent(ctx context.Context, rec observe.EventRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(rec.Name) == "" {
		return fmt.Errorf("event name is required")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO events (level, name, message, detail_json, meta_json, time_ns) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Level.String(), rec.Name, rec.Message, encodeJSON(rec.Detail), encodeJSON(rec.Meta), toNanos(rec.Time),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// SaveMark inserts one mark record regardless of its flags. History is not stored.
func (s *Store) SaveMark(ctx context.Context, rec observe.MarkRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO marks (timeline_id, timeline, branch, level, name, message, payload_json, meta_json, duration_ns, time_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TimelineID, rec.Timeline, rec.Branch, rec.Level.String(), rec.Name, rec.Message,
		encodeJSON(rec.Payload), encodeJSON(rec.Meta), int64(rec.Duration), toNanos(rec.Time),
	)
	if err != nil {
		return fmt.Errorf("insert mark: %w", err)
	}
	return nil
}

// SaveSettlement inserts one settlement record.
func (s *Store) SaveSettlement(ctx context.Context, rec observe.SettleRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO settlements (timeline_id, timeline, branch, outcome, reason, meta_json, start_ns, end_ns, duration_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TimelineID, rec.Timeline, rec.Branch, string(rec.Outcome), rec.ReasonString(),
		encodeJSON(rec.Meta), toNanos(rec.Start), toNanos(rec.End), int64(rec.Duration),
	)
	if err != nil {
		return fmt.Errorf("insert settlement: %w", err)
	}
	return nil
}

// Logs returns every stored log record, oldest first.
func (s *Store) Logs(ctx context.Context) ([]observe.LogRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT level, messages_json, meta_json, time_ns FROM logs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}
	defer rows.Close()

	var out []observe.LogRecord
	for rows.Next() {
		var (
			level, messages string
			meta            sql.NullString
			timeNS          int64
		)
		if err := rows.Scan(&level, &messages, &meta, &timeNS); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		rec := observe.LogRecord{
			Level: parseLevel(level),
			Time:  fromNanos(timeNS),
			Flags: observe.Flags{Persist: true},
			Meta:  decodeJSON(meta),
		}
		if err := json.Unmarshal([]byte(messages), &rec.Messages); err != nil {
			return nil, fmt.Errorf("decode log messages: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate logs: %w", err)
	}
	return out, nil
}

// Events returns stored events with the given name ("" for all), oldest first.
func (s *Store) Events(ctx context.Context, name string) ([]observe.EventRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	query := `SELECT level, name, message, detail_json, meta_json, time_ns FROM events`
	var args []any
	if name != "" {
		query += ` WHERE name = ?`
		args = append(args, name)
	}
	rows, err := s.sqlDB.QueryContext(ctx, query+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []observe.EventRecord
	for rows.Next() {
		var (
			level, evName, message string
			detail, meta           sql.NullString
			timeNS                 int64
		)
		if err := rows.Scan(&level, &evName, &message, &detail, &meta, &timeNS); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, observe.EventRecord{
			Level:   parseLevel(level),
			Name:    evName,
			Message: message,
			Detail:  decodeJSON(detail),
			Time:    fromNanos(timeNS),
			Flags:   observe.Flags{Persist: true},
			Meta:    decodeJSON(meta),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// Marks returns the stored marks of one timeline, in emission order.
func (s *Store) Marks(ctx context.Context, timelineID string) ([]observe.MarkRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT timeline_id, timeline, branch, level, name, message, payload_json, meta_json, duration_ns, time_ns
		 FROM marks WHERE timeline_id = ? ORDER BY id`, timelineID)
	if err != nil {
		return nil, fmt.Errorf("query marks: %w", err)
	}
	defer rows.Close()

	var out []observe.MarkRecord
	for rows.Next() {
		var (
			rec              observe.MarkRecord
			level            string
			payload, meta    sql.NullString
			durationNS, tsNS int64
		)
		if err := rows.Scan(&rec.TimelineID, &rec.Timeline, &rec.Branch, &level, &rec.Name, &rec.Message,
			&payload, &meta, &durationNS, &tsNS); err != nil {
			return nil, fmt.Errorf("scan mark: %w", err)
		}
		rec.Level = parseLevel(level)
		rec.Payload = decodeJSON(payload)
		rec.Meta = decodeJSON(meta)
		rec.Duration = time.Duration(durationNS)
		rec.Time = fromNanos(tsNS)
		rec.Flags = observe.Flags{Persist: true}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate marks: %w", err)
	}
	return out, nil
}

// Settlements returns the stored settlements of one timeline in settlement
// order; the root, when settled, is last.
func (s *Store) Settlements(ctx context.Context, timelineID string) ([]observe.SettleRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT timeline_id, timeline, branch, outcome, reason, meta_json, start_ns, end_ns, duration_ns
		 FROM settlements WHERE timeline_id = ? ORDER BY id`, timelineID)
	if err != nil {
		return nil, fmt.Errorf("query settlements: %w", err)
	}
	defer rows.Close()

	var out []observe.SettleRecord
	for rows.Next() {
		var (
			rec                        observe.SettleRecord
			outcome, reason            string
			meta                       sql.NullString
			startNS, endNS, durationNS int64
		)
		if err := rows.Scan(&rec.TimelineID, &rec.Timeline, &rec.Branch, &outcome, &reason, &meta,
			&startNS, &endNS, &durationNS); err != nil {
			return nil, fmt.Errorf("scan settlement: %w", err)
		}
		rec.Outcome = observe.Outcome(outcome)
		if reason != "" {
			rec.Reason = errors.New(reason)
		}
		rec.Meta = decodeJSON(meta)
		rec.Start = fromNanos(startNS)
		rec.End = fromNanos(endNS)
		rec.Duration = time.Duration(durationNS)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settlements: %w", err)
	}
	return out, nil
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

func parseLevel(s string) observe.Level {
	level, err := observe.ParseLevel(s)
	if err != nil {
		return observe.LevelInfo
	}
	return level
}

// encodeJSON stores v as JSON text. Values that do not marshal fall back to
// their fmt rendering as a JSON string.
func encodeJSON(v any) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	data, err := json.Marshal(v)
	if err != nil {
		data, _ = json.Marshal(fmt.Sprint(v))
	}
	return sql.NullString{String: string(data), Valid: true}
}

func decodeJSON(s sql.NullString) any {
	if !s.Valid || s.String == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(s.String), &v); err != nil {
		return s.String
	}
	return v
}
