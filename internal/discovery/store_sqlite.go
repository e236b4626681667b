package discovery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens a SQLite database at dsn and configures WAL mode.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS keyword_runs (
	id           TEXT PRIMARY KEY,
	client_id    TEXT NOT NULL,
	request      TEXT NOT NULL,
	stats        TEXT NOT NULL,
	failures     INTEGER NOT NULL DEFAULT 0,
	saved        INTEGER NOT NULL DEFAULT 0,
	started_at   DATETIME NOT NULL,
	completed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS keyword_candidates (
	run_id             TEXT NOT NULL REFERENCES keyword_runs(id) ON DELETE CASCADE,
	canonical_key      TEXT NOT NULL,
	keyword            TEXT NOT NULL,
	source             TEXT NOT NULL,
	search_volume      INTEGER NOT NULL DEFAULT 0,
	competition_level  TEXT NOT NULL,
	cpc                REAL NOT NULL DEFAULT 0,
	intent             TEXT NOT NULL,
	enriched           BOOLEAN NOT NULL DEFAULT 0,
	clicks             REAL NOT NULL DEFAULT 0,
	impressions        REAL NOT NULL DEFAULT 0,
	ctr                REAL NOT NULL DEFAULT 0,
	position           REAL NOT NULL DEFAULT 0,
	has_client_ranking BOOLEAN NOT NULL DEFAULT 0,
	priority_score     REAL NOT NULL,
	priority_category  TEXT NOT NULL,
	opportunity_type   TEXT NOT NULL,
	rank               INTEGER NOT NULL,
	PRIMARY KEY (run_id, canonical_key)
);

CREATE TABLE IF NOT EXISTS brand_terms (
	client_id  TEXT NOT NULL,
	term       TEXT NOT NULL,
	is_regex   BOOLEAN NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (client_id, term)
);

CREATE INDEX IF NOT EXISTS idx_keyword_runs_client ON keyword_runs(client_id, completed_at);
`

// Migrate creates the tables if they do not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun inserts a run record and its candidates in one transaction.
// Either both land or neither does.
func (s *SQLiteStore) SaveRun(ctx context.Context, run RunRecord, cands []Candidate) (int64, error) {
	reqJSON, statsJSON, err := marshalRun(run)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: marshal run")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin save run")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO keyword_runs (id, client_id, request, stats, failures, saved, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ClientID, string(reqJSON), string(statsJSON), run.Failures, run.Saved, run.StartedAt, run.CompletedAt,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: create run %s", run.ID)
	}

	var n int64
	if len(cands) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(candidateColumns)), ", ")
		stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
			`INSERT INTO keyword_candidates (%s) VALUES (%s)`,
			strings.Join(candidateColumns, ", "), placeholders,
		))
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: prepare keyword insert")
		}
		defer stmt.Close() //nolint:errcheck

		for i, c := range cands {
			if _, err := stmt.ExecContext(ctx, candidateRow(run.ID, i, c)...); err != nil {
				return 0, eris.Wrapf(err, "sqlite: insert keyword %q", c.CanonicalKey)
			}
			n++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrapf(err, "sqlite: commit run %s", run.ID)
	}
	return n, nil
}

// GetRun returns a single run. It returns ErrRunNotFound when no run matches.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, client_id, request, stats, failures, saved, started_at, completed_at
		FROM keyword_runs WHERE id = ?`,
		runID,
	)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrRunNotFound, "sqlite: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return r, nil
}

// ListRuns returns the most recent runs for a client.
func (s *SQLiteStore) ListRuns(ctx context.Context, clientID string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, client_id, request, stats, failures, saved, started_at, completed_at
		FROM keyword_runs WHERE client_id = ? ORDER BY completed_at DESC LIMIT ?`,
		clientID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

// ListKeywords returns the saved keywords of a run in rank order.
func (s *SQLiteStore) ListKeywords(ctx context.Context, runID string, opts ListOpts) ([]Candidate, error) {
	where, args := keywordFilter(runID, opts, func(int) string { return "?" })
	query := fmt.Sprintf(`SELECT %s FROM keyword_candidates WHERE %s ORDER BY rank LIMIT ? OFFSET ?`,
		strings.Join(candidateColumns[1:], ", "), where)
	args = append(args, listLimit(opts), opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list keywords")
	}
	defer rows.Close() //nolint:errcheck

	var out []Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate keywords")
}

// Terms returns the brand terms of a client.
func (s *SQLiteStore) Terms(ctx context.Context, clientID string) ([]BrandTerm, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT term, is_regex FROM brand_terms WHERE client_id = ? ORDER BY created_at, term`,
		clientID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list brand terms")
	}
	defer rows.Close() //nolint:errcheck

	var terms []BrandTerm
	for rows.Next() {
		var t BrandTerm
		if err := rows.Scan(&t.Term, &t.IsRegex); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan brand term")
		}
		terms = append(terms, t)
	}
	return terms, eris.Wrap(rows.Err(), "sqlite: iterate brand terms")
}

// AddTerm upserts a brand term for a client.
func (s *SQLiteStore) AddTerm(ctx context.Context, clientID string, term BrandTerm) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO brand_terms (client_id, term, is_regex) VALUES (?, ?, ?)
		ON CONFLICT (client_id, term) DO UPDATE SET is_regex = excluded.is_regex`,
		clientID, term.Term, term.IsRegex,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: add brand term %q", term.Term)
	}
	return nil
}

// RemoveTerm deletes a brand term.
func (s *SQLiteStore) RemoveTerm(ctx context.Context, clientID, term string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM brand_terms WHERE client_id = ? AND term = ?`, clientID, term)
	if err != nil {
		return eris.Wrapf(err, "sqlite: remove brand term %q", term)
	}
	return nil
}
