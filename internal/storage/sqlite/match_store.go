package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/evtrack/internal/eklt"
)

// Run is one replay or live session whose match lists are stored together.
type Run struct {
	RunID      string          `json:"run_id"`
	Label      string          `json:"label"`
	ParamsJSON json.RawMessage `json:"params_json,omitempty"`
	CreatedAt  int64           `json:"created_at"`
}

// StoredMatchList is a persisted flush.
type StoredMatchList struct {
	Seq       int
	FlushedAt float64
	Matches   eklt.MatchList
}

// MatchStore provides persistence for emitted match lists.
type MatchStore struct {
	db *sql.DB
}

// OpenMatchStore opens (or creates) the database at path and migrates it
// to the latest schema.
func OpenMatchStore(path string) (*MatchStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer keeps SQLite from returning SQLITE_BUSY to ourselves.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &MatchStore{db: db}, nil
}

// Close closes the underlying database.
func (s *MatchStore) Close() error {
	return s.db.Close()
}

// SchemaVersion returns the applied migration version.
func (s *MatchStore) SchemaVersion() (uint, error) {
	v, dirty, err := schemaVersion(s.db)
	if err != nil {
		return 0, err
	}
	if dirty {
		return v, fmt.Errorf("schema version %d is dirty", v)
	}
	return v, nil
}

// StartRun records a new run. If RunID is empty, a UUID is generated.
func (s *MatchStore) StartRun(run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = time.Now().UnixNano()
	}

	var paramsStr interface{}
	if len(run.ParamsJSON) > 0 {
		paramsStr = string(run.ParamsJSON)
	}

	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO runs (run_id, label, params_json, created_at)
			VALUES (?, ?, ?, ?)`,
			run.RunID, run.Label, paramsStr, run.CreatedAt,
		)
		return err
	})
}

// InsertMatchList stores one flush of runID atomically.
func (s *MatchStore) InsertMatchList(runID string, seq int, flushedAt float64, ml eklt.MatchList) error {
	return retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		res, err := tx.Exec(`
			INSERT INTO match_lists (run_id, seq, flushed_at, match_count)
			VALUES (?, ?, ?, ?)`,
			runID, seq, flushedAt, len(ml),
		)
		if err != nil {
			return err
		}
		listID, err := res.LastInsertId()
		if err != nil {
			return err
		}

		stmt, err := tx.Prepare(`
			INSERT INTO matches (list_id, idx, patch_id, prev_t, prev_x, prev_y, cur_t, cur_x, cur_y)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, m := range ml {
			if _, err := stmt.Exec(listID, i, m.PatchID,
				m.Previous.Timestamp, m.Previous.X, m.Previous.Y,
				m.Current.Timestamp, m.Current.X, m.Current.Y,
			); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// Runs returns all runs, oldest first.
func (s *MatchStore) Runs() ([]*Run, error) {
	rows, err := s.db.Query(`
		SELECT run_id, label, params_json, created_at
		FROM runs
		ORDER BY created_at, run_id`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var r Run
		var paramsStr sql.NullString
		if err := rows.Scan(&r.RunID, &r.Label, &paramsStr, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if paramsStr.Valid {
			r.ParamsJSON = json.RawMessage(paramsStr.String)
		}
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}

// MatchLists returns every flush of runID in sequence order.
func (s *MatchStore) MatchLists(runID string) ([]StoredMatchList, error) {
	rows, err := s.db.Query(`
		SELECT l.seq, l.flushed_at, m.patch_id,
		       m.prev_t, m.prev_x, m.prev_y, m.cur_t, m.cur_x, m.cur_y
		FROM match_lists l
		LEFT JOIN matches m ON m.list_id = l.list_id
		WHERE l.run_id = ?
		ORDER BY l.seq, m.idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("query match lists: %w", err)
	}
	defer rows.Close()

	var out []StoredMatchList
	for rows.Next() {
		var seq int
		var flushedAt float64
		var patchID sql.NullString
		var pt, px, py, ct, cx, cy sql.NullFloat64
		if err := rows.Scan(&seq, &flushedAt, &patchID, &pt, &px, &py, &ct, &cx, &cy); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		if len(out) == 0 || out[len(out)-1].Seq != seq {
			out = append(out, StoredMatchList{Seq: seq, FlushedAt: flushedAt, Matches: eklt.MatchList{}})
		}
		if !patchID.Valid {
			continue
		}
		last := &out[len(out)-1]
		last.Matches = append(last.Matches, eklt.Match{
			PatchID:  patchID.String,
			Previous: eklt.Feature{Timestamp: pt.Float64, X: px.Float64, Y: py.Float64},
			Current:  eklt.Feature{Timestamp: ct.Float64, X: cx.Float64, Y: cy.Float64},
		})
	}
	return out, rows.Err()
}

// CountMatchLists returns how many flushes are stored for runID.
func (s *MatchStore) CountMatchLists(runID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM match_lists WHERE run_id = ?`, runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count match lists: %w", err)
	}
	return n, nil
}

// PatchTrack returns the successive positions reported for one patch
// across all runs, oldest first.
func (s *MatchStore) PatchTrack(patchID string) ([]eklt.Feature, error) {
	rows, err := s.db.Query(`
		SELECT cur_t, cur_x, cur_y FROM matches
		WHERE patch_id = ?
		ORDER BY cur_t`, patchID)
	if err != nil {
		return nil, fmt.Errorf("query patch track: %w", err)
	}
	defer rows.Close()

	var out []eklt.Feature
	for rows.Next() {
		var f eklt.Feature
		if err := rows.Scan(&f.Timestamp, &f.X, &f.Y); err != nil {
			return nil, fmt.Errorf("scan feature: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// retryOnBusy retries fn while SQLite reports the database as locked.
func retryOnBusy(fn func() error) error {
	const attempts = 5
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !isBusy(err) {
			return err
		}
		time.Sleep(time.Duration(i+1) * 10 * time.Millisecond)
	}
	return fmt.Errorf("database busy after %d attempts: %w", attempts, err)
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
