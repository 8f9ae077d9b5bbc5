// Package db persists road quality sessions, scores and events in SQLite.
package db

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"net/url"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/roadquality/internal/roadquality"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// MigrationsFS returns the embedded schema migrations.
func MigrationsFS() fs.FS {
	sub, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		// The embed pattern guarantees the directory exists.
		panic(err)
	}
	return sub
}

type DB struct {
	*sql.DB
}

// pragmas are applied through the DSN so that every pooled connection gets
// them, not only the first.
var pragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"temp_store(MEMORY)",
	"foreign_keys(1)",
}

func dsn(path string) string {
	q := make(url.Values)
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	return "file:" + path + "?" + q.Encode()
}

// OpenDB opens the database with the connection PRAGMAs set, without
// touching the schema.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return &DB{sqlDB}, nil
}

// NewDB opens the database and migrates it to the latest embedded schema.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(MigrationsFS()); err != nil {
		db.Close()
		return nil, err
	}
	log.Printf("initialized road quality database %s", path)
	return db, nil
}

// Session is one measurement run. Every score and event is recorded against
// the session that was active when it was produced.
type Session struct {
	db        *DB
	ID        string
	StartedAt time.Time
	Source    roadquality.QualitySource
}

// StartSession creates a new session row. config is stored as JSON for
// later inspection and may be nil.
func (db *DB) StartSession(ctx context.Context, source roadquality.QualitySource, startedAt time.Time, config any) (*Session, error) {
	var configJSON sql.NullString
	if config != nil {
		b, err := json.Marshal(config)
		if err != nil {
			return nil, fmt.Errorf("failed to encode session config: %w", err)
		}
		configJSON = sql.NullString{String: string(b), Valid: true}
	}

	s := &Session{db: db, ID: uuid.NewString(), StartedAt: startedAt, Source: source}
	_, err := db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, started_unix, quality_source, config_json) VALUES (?, ?, ?, ?)`,
		s.ID, unixSeconds(startedAt), source.String(), configJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}
	return s, nil
}

// RecordResult stores one analyzer result.
func (s *Session) RecordResult(ctx context.Context, r roadquality.Result) error {
	calibrated := 0
	if r.Calibrated {
		calibrated = 1
	}
	lat, lon := gpsColumns(r.GPS)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO quality_scores (
			session_id, ts_unix, quality_source, score, classification,
			lidar_score, raw_lidar_score, lidar_trend, accel_score,
			texture_score, texture_label, calibrated, lat, lon
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, unixSeconds(r.UpdatedAt), r.Source.String(), r.Score, string(r.Classification),
		r.LidarScore, r.RawLidarScore, r.LidarTrend, r.AccelScore,
		r.TextureScore, r.TextureLabel, calibrated, lat, lon,
	)
	if err != nil {
		return fmt.Errorf("failed to insert quality score: %w", err)
	}
	return nil
}

// RecordEvents stores a batch of events in one transaction.
func (s *Session) RecordEvents(ctx context.Context, events []roadquality.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			log.Printf("warning: failed to rollback transaction: %v", err)
		}
	}()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO road_events (
			event_id, session_id, event_type, source, severity, magnitude,
			angle_deg, ts_unix, lat, lon
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare event insert: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		var angle sql.NullFloat64
		if ev.Source == roadquality.SourceLidarProfile {
			angle = sql.NullFloat64{Float64: ev.AngleDeg, Valid: true}
		}
		lat, lon := gpsColumns(roadquality.GPSFix{Lat: ev.Lat, Lon: ev.Lon})
		if _, err := stmt.ExecContext(ctx,
			ev.ID, s.ID, string(ev.Type), string(ev.Source), ev.Severity, ev.Magnitude,
			angle, unixSeconds(ev.Timestamp), lat, lon,
		); err != nil {
			return fmt.Errorf("failed to insert event %s: %w", ev.ID, err)
		}
	}
	return tx.Commit()
}

// ScorePoint is one stored score, as plotted on the quality timeline.
type ScorePoint struct {
	Timestamp      time.Time `json:"timestamp"`
	Score          float64   `json:"score"`
	Classification string    `json:"classification"`
	LidarScore     float64   `json:"lidar_score"`
	AccelScore     float64   `json:"accel_score"`
	TextureScore   float64   `json:"texture_score"`
	Lat            *float64  `json:"lat,omitempty"`
	Lon            *float64  `json:"lon,omitempty"`
}

// RecentScores returns the newest limit scores in chronological order.
func (db *DB) RecentScores(ctx context.Context, limit int) ([]ScorePoint, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := db.QueryContext(ctx, `
		SELECT ts_unix, score, classification, lidar_score, accel_score, texture_score, lat, lon
		  FROM (
			SELECT score_id, ts_unix, score, classification, lidar_score, accel_score, texture_score, lat, lon
			  FROM quality_scores
			 ORDER BY ts_unix DESC, score_id DESC
			 LIMIT ?
		  )
		 ORDER BY ts_unix ASC, score_id ASC`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScorePoint
	for rows.Next() {
		var (
			ts                 float64
			p                  ScorePoint
			lidar, accel, text sql.NullFloat64
			lat, lon           sql.NullFloat64
		)
		if err := rows.Scan(&ts, &p.Score, &p.Classification, &lidar, &accel, &text, &lat, &lon); err != nil {
			return nil, err
		}
		p.Timestamp = fromUnixSeconds(ts)
		p.LidarScore = lidar.Float64
		p.AccelScore = accel.Float64
		p.TextureScore = text.Float64
		if lat.Valid && lon.Valid {
			p.Lat = &lat.Float64
			p.Lon = &lon.Float64
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListEvents returns the newest limit events, newest first.
func (db *DB) ListEvents(ctx context.Context, limit int) ([]roadquality.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `
		SELECT event_id, event_type, source, severity, magnitude, angle_deg, ts_unix, lat, lon
		  FROM road_events
		 ORDER BY ts_unix DESC, rowid DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []roadquality.Event
	for rows.Next() {
		var (
			ev          roadquality.Event
			typ, source string
			angle       sql.NullFloat64
			ts          float64
			lat, lon    sql.NullFloat64
		)
		if err := rows.Scan(&ev.ID, &typ, &source, &ev.Severity, &ev.Magnitude, &angle, &ts, &lat, &lon); err != nil {
			return nil, err
		}
		ev.Type = roadquality.EventType(typ)
		ev.Source = roadquality.EventSource(source)
		ev.AngleDeg = angle.Float64
		ev.Timestamp = fromUnixSeconds(ts)
		ev.Lat = lat.Float64
		ev.Lon = lon.Float64
		events = append(events, ev)
	}
	return events, rows.Err()
}

// EventCount aggregates events by type and detector.
type EventCount struct {
	Type        roadquality.EventType   `json:"type"`
	Source      roadquality.EventSource `json:"source"`
	Count       int                     `json:"count"`
	MaxSeverity int                     `json:"max_severity"`
}

// EventCountsByType reads the road_event_counts view.
func (db *DB) EventCountsByType(ctx context.Context) ([]EventCount, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT event_type, source, event_count, max_severity
		  FROM road_event_counts
		 ORDER BY event_type, source`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventCount
	for rows.Next() {
		var (
			c           EventCount
			typ, source string
		)
		if err := rows.Scan(&typ, &source, &c.Count, &c.MaxSeverity); err != nil {
			return nil, err
		}
		c.Type = roadquality.EventType(typ)
		c.Source = roadquality.EventSource(source)
		out = append(out, c)
	}
	return out, rows.Err()
}

// SessionSummary is a stored session with its row counts.
type SessionSummary struct {
	ID            string    `json:"id"`
	StartedAt     time.Time `json:"started_at"`
	QualitySource string    `json:"quality_source"`
	Scores        int       `json:"scores"`
	Events        int       `json:"events"`
}

// Sessions lists sessions, newest first.
func (db *DB) Sessions(ctx context.Context) ([]SessionSummary, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT s.session_id, s.started_unix, s.quality_source,
		       (SELECT COUNT(*) FROM quality_scores q WHERE q.session_id = s.session_id),
		       (SELECT COUNT(*) FROM road_events e WHERE e.session_id = s.session_id)
		  FROM sessions s
		 ORDER BY s.started_unix DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var (
			s       SessionSummary
			started float64
		)
		if err := rows.Scan(&s.ID, &started, &s.QualitySource, &s.Scores, &s.Events); err != nil {
			return nil, err
		}
		s.StartedAt = fromUnixSeconds(started)
		out = append(out, s)
	}
	return out, rows.Err()
}

func gpsColumns(g roadquality.GPSFix) (lat, lon sql.NullFloat64) {
	if !g.HasFix() {
		return lat, lon
	}
	return sql.NullFloat64{Float64: g.Lat, Valid: true}, sql.NullFloat64{Float64: g.Lon, Valid: true}
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// fromUnixSeconds rounds to the microsecond, the precision a DOUBLE keeps
// for present-day timestamps.
func fromUnixSeconds(s float64) time.Time {
	return time.UnixMicro(int64(s*1e6 + 0.5)).UTC()
}
