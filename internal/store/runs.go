package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/stimalign/internal/model"
)

// Session statuses
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// ErrRunNotFound is returned for an unknown run ID
var ErrRunNotFound = errors.New("run not found")

// Run is one batch invocation
type Run struct {
	ID         string
	Corpus     string
	DataDir    string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// SessionRecord is the ledger entry of one session within a run
type SessionRecord struct {
	Session           string
	Status            string
	Error             string
	ValidPercent      float64
	Confidence        string
	Counts            model.Counts
	RejectedSentences []string
}

// RecordFromReport builds the ledger entry of a processed session
func RecordFromReport(report *model.Report) SessionRecord {
	return SessionRecord{
		Session:           report.Session,
		Status:            StatusOK,
		ValidPercent:      report.Score.ValidPercent,
		Confidence:        report.Score.Confidence,
		Counts:            report.Counts,
		RejectedSentences: report.RejectedSentences,
	}
}

// FailedRecord builds the ledger entry of a session that did not complete
func FailedRecord(session string, err error) SessionRecord {
	return SessionRecord{
		Session: session,
		Status:  StatusFailed,
		Error:   err.Error(),
	}
}

// BeginRun records the start of a batch run and returns its ID
func (s *Store) BeginRun(ctx context.Context, corpus, dataDir string) (string, error) {
	id := uuid.Must(uuid.NewV7()).String()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, corpus, data_dir, started_at)
		VALUES (?, ?, ?, ?)
	`, id, corpus, dataDir, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}
	return id, nil
}

// FinishRun stamps the run's completion time
func (s *Store) FinishRun(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ? WHERE id = ?
	`, time.Now().UTC().Format(time.RFC3339Nano), runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: %w", runID, ErrRunNotFound)
	}
	return nil
}

// GetRun returns a run by ID
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, corpus, data_dir, started_at, finished_at
		FROM runs WHERE id = ?
	`, runID)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns all runs, most recent first. Run IDs are UUIDv7 and
// sort by creation time.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, corpus, data_dir, started_at, finished_at
		FROM runs ORDER BY id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run      Run
		started  string
		finished sql.NullString
	)
	if err := row.Scan(&run.ID, &run.Corpus, &run.DataDir, &started, &finished); err != nil {
		return nil, err
	}

	var err error
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if finished.Valid {
		t, err := time.Parse(time.RFC3339Nano, finished.String)
		if err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		run.FinishedAt = &t
	}
	return &run, nil
}

// WriteSession records a session's outcome. Writing the same session twice
// within a run replaces the earlier entry.
func (s *Store) WriteSession(ctx context.Context, runID string, rec SessionRecord) error {
	counts, err := json.Marshal(rec.Counts)
	if err != nil {
		return fmt.Errorf("write session: marshal counts: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (run_id, session, status, error, valid_percent, confidence, counts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, session) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			valid_percent = excluded.valid_percent,
			confidence = excluded.confidence,
			counts = excluded.counts
	`, runID, rec.Session, rec.Status, rec.Error, rec.ValidPercent, rec.Confidence, string(counts))
	if err != nil {
		return fmt.Errorf("write session %s: %w", rec.Session, err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM rejected_sentences WHERE run_id = ? AND session = ?
	`, runID, rec.Session); err != nil {
		return fmt.Errorf("write session %s: clear rejected: %w", rec.Session, err)
	}

	for i, text := range rec.RejectedSentences {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO rejected_sentences (run_id, session, seq, text)
			VALUES (?, ?, ?, ?)
		`, runID, rec.Session, i, text); err != nil {
			return fmt.Errorf("write session %s: rejected sentence: %w", rec.Session, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write session %s: commit: %w", rec.Session, err)
	}
	return nil
}

// ListSessions returns the sessions of a run ordered by session ID.
// RejectedSentences is not populated; use RejectedSentences.
func (s *Store) ListSessions(ctx context.Context, runID string) ([]SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session, status, error, valid_percent, confidence, counts
		FROM sessions
		WHERE run_id = ?
		ORDER BY session
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	records := []SessionRecord{}
	for rows.Next() {
		var (
			rec    SessionRecord
			counts string
		)
		if err := rows.Scan(&rec.Session, &rec.Status, &rec.Error, &rec.ValidPercent, &rec.Confidence, &counts); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if err := json.Unmarshal([]byte(counts), &rec.Counts); err != nil {
			return nil, fmt.Errorf("decode counts of %s: %w", rec.Session, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return records, nil
}

// RejectedSentences returns a session's rejected sentence candidates in
// log order
func (s *Store) RejectedSentences(ctx context.Context, runID, session string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT text FROM rejected_sentences
		WHERE run_id = ? AND session = ?
		ORDER BY seq
	`, runID, session)
	if err != nil {
		return nil, fmt.Errorf("rejected sentences: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("scan rejected sentence: %w", err)
		}
		out = append(out, text)
	}
	return out, rows.Err()
}
