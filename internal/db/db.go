// Package db persists shot history to SQLite.
package db

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/fairway-data/launch.monitor/internal/ballistics"
	"github.com/fairway-data/launch.monitor/internal/monitoring"
)

type DB struct {
	*sql.DB
}

// NewDB opens (or creates) the shot database at path and ensures the schema
// exists. Versioned schema changes go through MigrateUp; the inline DDL here
// matches migration 000001 so a fresh database works without the migrations
// directory present.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS shots (
			shot_id TEXT PRIMARY KEY,
			profile TEXT NOT NULL DEFAULT '',
			carry_yards DOUBLE NOT NULL,
			apex_yards DOUBLE NOT NULL,
			offset_yards DOUBLE NOT NULL,
			launch_angle_deg DOUBLE NOT NULL,
			ball_speed_mps DOUBLE NOT NULL,
			sidespin_sign INTEGER NOT NULL DEFAULT 0,
			wind_speed_mph DOUBLE NOT NULL DEFAULT 0,
			wind_direction_deg DOUBLE NOT NULL DEFAULT 0,
			temperature_f DOUBLE NOT NULL DEFAULT 75,
			compression TEXT NOT NULL DEFAULT 'mid',
			frames INTEGER NOT NULL DEFAULT 0,
			timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS shots_profile_ts ON shots (profile, timestamp);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// Shot is one persisted shot history row.
type Shot struct {
	ID               string                      `json:"id"`
	Profile          string                      `json:"profile"`
	CarryYards       float64                     `json:"carry_yards"`
	ApexYards        float64                     `json:"apex_yards"`
	OffsetYards      float64                     `json:"offset_yards"`
	LaunchAngleDeg   float64                     `json:"launch_angle_deg"`
	BallSpeedMps     float64                     `json:"ball_speed_mps"`
	SidespinSign     int                         `json:"sidespin_sign"`
	WindSpeedMph     float64                     `json:"wind_speed_mph"`
	WindDirectionDeg float64                     `json:"wind_direction_deg"`
	TemperatureF     float64                     `json:"temperature_f"`
	Compression      ballistics.CompressionClass `json:"compression"`
	Frames           int                         `json:"frames"`
	Timestamp        time.Time                   `json:"timestamp"`
}

// NewShot builds a Shot row from a trajectory and the conditions it was
// struck under.
func NewShot(profile string, traj *ballistics.Trajectory, env ballistics.Environment, frames int) Shot {
	return Shot{
		ID:               uuid.NewString(),
		Profile:          profile,
		CarryYards:       traj.CarryDistanceYards,
		ApexYards:        traj.ApexHeightYards,
		OffsetYards:      traj.LandingOffsetYards,
		LaunchAngleDeg:   traj.LaunchAngleDeg,
		BallSpeedMps:     traj.BallSpeedMps,
		SidespinSign:     traj.SidespinSign,
		WindSpeedMph:     env.WindSpeedMph,
		WindDirectionDeg: env.WindDirectionDeg,
		TemperatureF:     env.TemperatureF,
		Compression:      env.Compression,
		Frames:           frames,
	}
}

// RecordShot inserts a shot row. A missing ID gets one assigned.
func (db *DB) RecordShot(s Shot) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now().UTC()
	}
	_, err := db.Exec(`
		INSERT INTO shots (
			shot_id, profile, carry_yards, apex_yards, offset_yards,
			launch_angle_deg, ball_speed_mps, sidespin_sign,
			wind_speed_mph, wind_direction_deg, temperature_f, compression,
			frames, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Profile, s.CarryYards, s.ApexYards, s.OffsetYards,
		s.LaunchAngleDeg, s.BallSpeedMps, s.SidespinSign,
		s.WindSpeedMph, s.WindDirectionDeg, s.TemperatureF, string(s.Compression),
		s.Frames, s.Timestamp,
	)
	return err
}

// Shots returns the most recent shots for a profile, newest first. An empty
// profile returns shots across all profiles. limit <= 0 defaults to 100.
func (db *DB) Shots(profile string, limit int) ([]Shot, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT shot_id, profile, carry_yards, apex_yards, offset_yards,
			launch_angle_deg, ball_speed_mps, sidespin_sign,
			wind_speed_mph, wind_direction_deg, temperature_f, compression,
			frames, timestamp
		FROM shots`
	args := []any{}
	if profile != "" {
		query += " WHERE profile = ?"
		args = append(args, profile)
	}
	query += " ORDER BY timestamp DESC, shot_id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var shots []Shot
	for rows.Next() {
		var s Shot
		var comp string
		if err := rows.Scan(
			&s.ID, &s.Profile, &s.CarryYards, &s.ApexYards, &s.OffsetYards,
			&s.LaunchAngleDeg, &s.BallSpeedMps, &s.SidespinSign,
			&s.WindSpeedMph, &s.WindDirectionDeg, &s.TemperatureF, &comp,
			&s.Frames, &s.Timestamp,
		); err != nil {
			return nil, err
		}
		s.Compression = ballistics.CompressionClass(comp)
		shots = append(shots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return shots, nil
}

// ClearShots deletes shot history. An empty profile clears everything.
func (db *DB) ClearShots(profile string) error {
	if profile == "" {
		_, err := db.Exec("DELETE FROM shots")
		return err
	}
	_, err := db.Exec("DELETE FROM shots WHERE profile = ?", profile)
	return err
}

// ShotCount returns the number of stored shots for a profile. An empty
// profile counts everything.
func (db *DB) ShotCount(profile string) (int, error) {
	var n int
	var err error
	if profile == "" {
		err = db.QueryRow("SELECT COUNT(*) FROM shots").Scan(&n)
	} else {
		err = db.QueryRow("SELECT COUNT(*) FROM shots WHERE profile = ?", profile).Scan(&n)
	}
	return n, err
}

// AttachAdminRoutes mounts database maintenance endpoints under /debug/db/.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/db/backup", func(w http.ResponseWriter, r *http.Request) {
		unixTime := time.Now().Unix()
		backupPath := fmt.Sprintf("backup-%d.db", unixTime)
		if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				monitoring.Logf("db: failed to remove backup file: %v", err)
			}
		}()

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()
		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			monitoring.Logf("db: failed to stream backup: %v", err)
		}
	})
}
