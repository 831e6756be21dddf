// Package store keeps scan runs and their points in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mastercactapus/proxscan/collect"
	"github.com/mastercactapus/proxscan/scan"
	"github.com/mastercactapus/proxscan/stats"
)

type DB struct {
	*sql.DB
}

var _ scan.Recorder = (*DB)(nil)

func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer; sqlite serializes anyway
	db.SetMaxOpenConns(1)

	s := &DB{db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	return s, nil
}

func (db *DB) migrate() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			started_at BIGINT NOT NULL,
			finished_at BIGINT,
			scan_axis TEXT NOT NULL,
			step DOUBLE NOT NULL,
			iterations INTEGER NOT NULL,
			samples INTEGER NOT NULL,
			policy TEXT NOT NULL,
			state TEXT NOT NULL,
			error TEXT
		);
		CREATE TABLE IF NOT EXISTS points (
			run_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			position DOUBLE NOT NULL,
			outcome INTEGER NOT NULL,
			samples INTEGER NOT NULL,
			means TEXT NOT NULL,
			stddevs TEXT NOT NULL,
			gap BOOLEAN NOT NULL,
			error TEXT,
			settle_ns BIGINT NOT NULL,
			collect_ns BIGINT NOT NULL,
			PRIMARY KEY (run_id, idx),
			FOREIGN KEY(run_id) REFERENCES runs(run_id)
		);
	`)
	return err
}

func (db *DB) BeginRun(ctx context.Context, res *scan.Result, cfg scan.Config) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO runs (run_id, started_at, scan_axis, step, iterations, samples, policy, state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RunID, res.StartedAt.UnixNano(), cfg.ScanAxis, cfg.Step, cfg.Iterations, cfg.Samples,
		string(cfg.OnFailure), string(scan.StateHoming),
	)
	return err
}

func (db *DB) AddPoint(ctx context.Context, runID string, p scan.Point) error {
	means, err := json.Marshal(nonNil(p.Summary.Means))
	if err != nil {
		return err
	}
	stddevs, err := json.Marshal(nonNil(p.Summary.StdDevs))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO points (run_id, idx, position, outcome, samples, means, stddevs, gap, error, settle_ns, collect_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, p.Index, p.Position, int(p.Outcome), p.Samples, string(means), string(stddevs),
		p.Gap, nullString(p.Err), int64(p.SettleTime), int64(p.CollectTime),
	)
	return err
}

func (db *DB) FinishRun(ctx context.Context, runID string, state scan.State, runErr error) error {
	var msg string
	if runErr != nil {
		msg = runErr.Error()
	}
	res, err := db.ExecContext(ctx, `UPDATE runs SET state = ?, error = ?, finished_at = ? WHERE run_id = ?`,
		string(state), nullString(msg), time.Now().UnixNano(), runID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", runID, sql.ErrNoRows)
	}
	return nil
}

// Run is one row of the run history.
type Run struct {
	ID         string     `json:"run_id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	ScanAxis   string     `json:"scan_axis"`
	Step       float64    `json:"step"`
	Iterations int        `json:"iterations"`
	Samples    int        `json:"samples"`
	Policy     string     `json:"policy"`
	State      scan.State `json:"state"`
	Error      string     `json:"error,omitempty"`
	Points     int        `json:"points"`
}

// Runs returns the most recent runs first.
func (db *DB) Runs(ctx context.Context, limit int) ([]Run, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT r.run_id, r.started_at, r.finished_at, r.scan_axis, r.step, r.iterations, r.samples,
			r.policy, r.state, r.error, (SELECT COUNT(*) FROM points p WHERE p.run_id = r.run_id)
		FROM runs r
		ORDER BY r.started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r        Run
			started  int64
			finished sql.NullInt64
			state    string
			errMsg   sql.NullString
		)
		err := rows.Scan(&r.ID, &started, &finished, &r.ScanAxis, &r.Step, &r.Iterations, &r.Samples,
			&r.Policy, &state, &errMsg, &r.Points)
		if err != nil {
			return nil, err
		}
		r.StartedAt = time.Unix(0, started)
		if finished.Valid {
			t := time.Unix(0, finished.Int64)
			r.FinishedAt = &t
		}
		r.State = scan.State(state)
		r.Error = errMsg.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Points reads back every point of a run in index order.
func (db *DB) Points(ctx context.Context, runID string) ([]scan.Point, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT idx, position, outcome, samples, means, stddevs, gap, error, settle_ns, collect_ns
		FROM points
		WHERE run_id = ?
		ORDER BY idx`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []scan.Point
	for rows.Next() {
		var (
			p               scan.Point
			outcome         int
			means, stddevs  string
			errMsg          sql.NullString
			settleNs, colNs int64
		)
		err := rows.Scan(&p.Index, &p.Position, &outcome, &p.Samples, &means, &stddevs, &p.Gap, &errMsg, &settleNs, &colNs)
		if err != nil {
			return nil, err
		}
		p.Outcome = collect.Outcome(outcome)
		p.Err = errMsg.String
		p.SettleTime = time.Duration(settleNs)
		p.CollectTime = time.Duration(colNs)

		if !p.Gap {
			p.Summary = stats.Summary{N: p.Samples}
			if err := json.Unmarshal([]byte(means), &p.Summary.Means); err != nil {
				return nil, fmt.Errorf("point %d means: %w", p.Index, err)
			}
			if err := json.Unmarshal([]byte(stddevs), &p.Summary.StdDevs); err != nil {
				return nil, fmt.Errorf("point %d stddevs: %w", p.Index, err)
			}
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if points == nil {
		var exists int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE run_id = ?`, runID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run %s: %w", runID, err)
		}
		if err != nil {
			return nil, err
		}
	}
	return points, nil
}

func nonNil(v []float64) []float64 {
	if v == nil {
		return []float64{}
	}
	return v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
