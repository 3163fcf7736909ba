/*
 * runlog.go, part of golinac.
 *
 * Copyright 2026 The golinac Authors
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License as
 * published by the Free Software Foundation; either version 2.1 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU Lesser General
 * Public License along with this program.  If not, see
 * <http://www.gnu.org/licenses/>.
 *
 */

//Package runlog keeps the history of calibration runs in a SQLite database, so
//earlier calibrations can be inspected and their phase tables recovered.
//A session is one call to the calibration loop, and holds its iterations.
package runlog

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	linac "github.com/rmera/golinac"
	"github.com/rmera/golinac/calib"
	"github.com/rmera/golinac/diag"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id  TEXT PRIMARY KEY,
	note        TEXT,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT NOT NULL,
	iteration   INTEGER NOT NULL,
	started_at  TEXT NOT NULL,
	elapsed_ns  INTEGER NOT NULL,
	max_change  REAL,
	phases_csv  TEXT NOT NULL,
	next_csv    TEXT NOT NULL,
	gaps_json   TEXT NOT NULL,
	UNIQUE (session_id, iteration),
	FOREIGN KEY (session_id) REFERENCES sessions(session_id)
);

CREATE TABLE IF NOT EXISTS readings (
	run_id      INTEGER NOT NULL,
	name        TEXT NOT NULL,
	s           REAL,
	phase       REAL,
	particles   INTEGER NOT NULL,
	gap         TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(id)
);

CREATE TABLE IF NOT EXISTS energy (
	run_id      INTEGER NOT NULL,
	step        INTEGER NOT NULL,
	s           REAL,
	kinetic_ref REAL,
	kinetic     REAL,
	spread      REAL,
	particles   INTEGER NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(id)
);
`

//Store is a run log database.
type Store struct {
	db *sql.DB
}

//Session is a calibration session.
type Session struct {
	ID      string
	Note    string
	Created time.Time
	Runs    int
}

//NewStore opens (creating it if needed) the database at path.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	//pragmas are per connection
	db.SetMaxOpenConns(1)
	for _, p := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

//Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

//Begin starts a new session and returns its id.
func (s *Store) Begin(ctx context.Context, note string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx, `INSERT INTO sessions (session_id, note, created_at) VALUES (?, ?, ?)`,
		id, note, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	return id, nil
}

//nullable turns NaN into NULL, which is what SQLite would do anyway.
func nullable(f float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: f, Valid: !math.IsNaN(f) && !math.IsInf(f, 0)}
}

func orNaN(f sql.NullFloat64) float64 {
	if !f.Valid {
		return math.NaN()
	}
	return f.Float64
}

func tableText(T linac.PhaseTable) (string, error) {
	var b bytes.Buffer
	if err := linac.EncodePhaseTable(&b, T); err != nil {
		return "", err
	}
	return b.String(), nil
}

//Record stores one run in the session.
func (s *Store) Record(ctx context.Context, session string, r calib.Run) error {
	phases, err := tableText(r.Table)
	if err != nil {
		return fmt.Errorf("encode table: %w", err)
	}
	next, err := tableText(r.Next)
	if err != nil {
		return fmt.Errorf("encode table: %w", err)
	}
	gaps := r.Gaps
	if gaps == nil {
		gaps = []string{}
	}
	gapsJSON, err := json.Marshal(gaps)
	if err != nil {
		return fmt.Errorf("marshal gaps: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (session_id, iteration, started_at, elapsed_ns, max_change, phases_csv, next_csv, gaps_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session, r.Iteration, r.Started.UTC().Format(time.RFC3339Nano), int64(r.Elapsed),
		nullable(r.MaxChange()), phases, next, string(gapsJSON))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("run id: %w", err)
	}
	for _, p := range r.Measurement.Readings {
		_, err := tx.ExecContext(ctx, `INSERT INTO readings (run_id, name, s, phase, particles, gap) VALUES (?, ?, ?, ?, ?, ?)`,
			id, p.Name, nullable(p.S), nullable(p.Phase), p.Particles, p.Gap)
		if err != nil {
			return fmt.Errorf("insert reading: %w", err)
		}
	}
	for _, e := range r.Energy {
		_, err := tx.ExecContext(ctx, `INSERT INTO energy (run_id, step, s, kinetic_ref, kinetic, spread, particles) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, e.Step, nullable(e.S), nullable(e.KineticRef), nullable(e.Kinetic), nullable(e.KineticSpread), e.Particles)
		if err != nil {
			return fmt.Errorf("insert energy: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

//Sessions returns all the sessions, oldest first.
func (s *Store) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.session_id, s.note, s.created_at, COUNT(r.id)
		 FROM sessions s LEFT JOIN runs r ON r.session_id = s.session_id
		 GROUP BY s.session_id ORDER BY s.created_at, s.rowid`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()
	ret := make([]Session, 0)
	for rows.Next() {
		var v Session
		var note sql.NullString
		var created string
		if err := rows.Scan(&v.ID, &note, &created, &v.Runs); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		v.Note = note.String
		v.Created, _ = time.Parse(time.RFC3339Nano, created)
		ret = append(ret, v)
	}
	return ret, rows.Err()
}

//Runs returns the runs of a session, in iteration order.
func (s *Store) Runs(ctx context.Context, session string) (calib.History, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, iteration, started_at, elapsed_ns, phases_csv, next_csv, gaps_json
		 FROM runs WHERE session_id = ? ORDER BY iteration`, session)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	ids := make([]int64, 0)
	ret := make(calib.History, 0)
	for rows.Next() {
		var r calib.Run
		var id, elapsed int64
		var started, phases, next, gaps string
		if err := rows.Scan(&id, &r.Iteration, &started, &elapsed, &phases, &next, &gaps); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Started, _ = time.Parse(time.RFC3339Nano, started)
		r.Elapsed = time.Duration(elapsed)
		if r.Table, err = linac.DecodePhaseTable(strings.NewReader(phases)); err != nil {
			rows.Close()
			return nil, fmt.Errorf("decode table: %w", err)
		}
		if r.Next, err = linac.DecodePhaseTable(strings.NewReader(next)); err != nil {
			rows.Close()
			return nil, fmt.Errorf("decode table: %w", err)
		}
		if err := json.Unmarshal([]byte(gaps), &r.Gaps); err != nil {
			rows.Close()
			return nil, fmt.Errorf("unmarshal gaps: %w", err)
		}
		ids = append(ids, id)
		ret = append(ret, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, id := range ids {
		if ret[i].Measurement.Readings, err = s.readings(ctx, id); err != nil {
			return nil, err
		}
		if ret[i].Energy, err = s.energy(ctx, id); err != nil {
			return nil, err
		}
	}
	return ret, nil
}

func (s *Store) readings(ctx context.Context, run int64) ([]calib.Reading, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, s, phase, particles, gap FROM readings WHERE run_id = ? ORDER BY rowid`, run)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()
	ret := make([]calib.Reading, 0)
	for rows.Next() {
		var p calib.Reading
		var pos, phase sql.NullFloat64
		if err := rows.Scan(&p.Name, &pos, &phase, &p.Particles, &p.Gap); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		p.S, p.Phase = orNaN(pos), orNaN(phase)
		ret = append(ret, p)
	}
	return ret, rows.Err()
}

func (s *Store) energy(ctx context.Context, run int64) ([]diag.EnergyPoint, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT step, s, kinetic_ref, kinetic, spread, particles FROM energy WHERE run_id = ? ORDER BY rowid`, run)
	if err != nil {
		return nil, fmt.Errorf("query energy: %w", err)
	}
	defer rows.Close()
	ret := make([]diag.EnergyPoint, 0)
	for rows.Next() {
		var e diag.EnergyPoint
		var pos, ref, kin, spread sql.NullFloat64
		if err := rows.Scan(&e.Step, &pos, &ref, &kin, &spread, &e.Particles); err != nil {
			return nil, fmt.Errorf("scan energy: %w", err)
		}
		e.S, e.KineticRef, e.Kinetic, e.KineticSpread = orNaN(pos), orNaN(ref), orNaN(kin), orNaN(spread)
		ret = append(ret, e)
	}
	return ret, rows.Err()
}

//sessionRecorder records the runs of a calibration into one session.
type sessionRecorder struct {
	store   *Store
	session string
}

func (r sessionRecorder) Record(ctx context.Context, run calib.Run) error {
	return r.store.Record(ctx, r.session, run)
}

//Recorder returns a calib.Recorder that stores runs in the given session.
func (s *Store) Recorder(session string) calib.Recorder {
	return sessionRecorder{store: s, session: session}
}
