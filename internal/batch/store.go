package batch

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS batch_runs (
	batch_id    TEXT PRIMARY KEY,
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	scenarios   INTEGER NOT NULL,
	succeeded   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS scenario_results (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	batch_id    TEXT NOT NULL,
	position    INTEGER NOT NULL,
	name        TEXT NOT NULL,
	status      TEXT NOT NULL,
	error       TEXT,
	duration_ms INTEGER NOT NULL,
	detail_json TEXT,
	FOREIGN KEY (batch_id) REFERENCES batch_runs(batch_id)
);
`

// Store persists batch run history in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// resultDetail is the JSON payload stored per scenario: the numbers a later
// inspection actually wants, not the full in-memory result.
type resultDetail struct {
	Dose        float64            `json:"dose,omitempty"`
	Doses       []float64          `json:"doses,omitempty"`
	Score       float64            `json:"score,omitempty"`
	Evaluations int                `json:"evaluations,omitempty"`
	Values      map[string]float64 `json:"values,omitempty"`
}

func detailFor(res ScenarioResult) resultDetail {
	var d resultDetail
	switch {
	case res.Observation != nil:
		d.Values = res.Observation.Values
	case res.Search != nil:
		d.Dose = res.Search.Dose
		d.Evaluations = res.Search.Evaluations
		if res.Search.Observation != nil {
			d.Values = res.Search.Observation.Values
		}
	case res.Optimize != nil:
		d.Evaluations = res.Optimize.Evaluations
		if res.Optimize.Best != nil {
			d.Doses = res.Optimize.Best.Doses
			d.Score = res.Optimize.Best.Score
			if res.Optimize.Best.Observation != nil {
				d.Values = res.Optimize.Best.Observation.Values
			}
		}
	}
	return d
}

// Save writes one batch report atomically.
func (s *Store) Save(report *BatchReport) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO batch_runs (batch_id, started_at, finished_at, scenarios, succeeded)
		 VALUES (?, ?, ?, ?, ?)`,
		report.ID,
		report.StartedAt.UTC().Format(time.RFC3339Nano),
		report.FinishedAt.UTC().Format(time.RFC3339Nano),
		report.Len(), report.Succeeded(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for i, res := range report.Results {
		detail, err := json.Marshal(detailFor(res))
		if err != nil {
			return fmt.Errorf("marshal detail for %s: %w", res.Name, err)
		}
		var errText interface{}
		if res.Err != nil {
			errText = res.Err.Error()
		}
		_, err = tx.Exec(
			`INSERT INTO scenario_results (batch_id, position, name, status, error, duration_ms, detail_json)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			report.ID, i, res.Name, string(res.Status), errText,
			res.Duration.Milliseconds(), string(detail),
		)
		if err != nil {
			return fmt.Errorf("insert result %s: %w", res.Name, err)
		}
	}

	return tx.Commit()
}

// StoredRun is one persisted batch run header.
type StoredRun struct {
	BatchID    string
	StartedAt  time.Time
	FinishedAt time.Time
	Scenarios  int
	Succeeded  int
}

// StoredResult is one persisted scenario row.
type StoredResult struct {
	Position int
	Name     string
	Status   Status
	Error    string
	Duration time.Duration
	Detail   resultDetail
}

// ListRuns returns the most recent batch runs.
func (s *Store) ListRuns(limit int) ([]StoredRun, error) {
	rows, err := s.db.Query(
		`SELECT batch_id, started_at, finished_at, scenarios, succeeded
		 FROM batch_runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []StoredRun
	for rows.Next() {
		var run StoredRun
		var startedStr, finishedStr string
		if err := rows.Scan(&run.BatchID, &startedStr, &finishedStr, &run.Scenarios, &run.Succeeded); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.StartedAt, _ = time.Parse(time.RFC3339Nano, startedStr)
		run.FinishedAt, _ = time.Parse(time.RFC3339Nano, finishedStr)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Results returns one run's scenario rows in batch order.
func (s *Store) Results(batchID string) ([]StoredResult, error) {
	rows, err := s.db.Query(
		`SELECT position, name, status, error, duration_ms, detail_json
		 FROM scenario_results WHERE batch_id = ? ORDER BY position`, batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var results []StoredResult
	for rows.Next() {
		var res StoredResult
		var status string
		var errText sql.NullString
		var durationMs int64
		var detailJSON string
		if err := rows.Scan(&res.Position, &res.Name, &status, &errText, &durationMs, &detailJSON); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		res.Status = Status(status)
		if errText.Valid {
			res.Error = errText.String
		}
		res.Duration = time.Duration(durationMs) * time.Millisecond
		if err := json.Unmarshal([]byte(detailJSON), &res.Detail); err != nil {
			return nil, fmt.Errorf("unmarshal detail for %s: %w", res.Name, err)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}
