package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
)

// Store persists finished runs, the keywords a user kept, and client brand
// terms. It also serves as the BrandTermStore for the pipeline.
type Store interface {
	BrandTermStore
	Migrate(ctx context.Context) error
	SaveRun(ctx context.Context, run RunRecord, cands []Candidate) (int64, error)
	GetRun(ctx context.Context, runID string) (*RunRecord, error)
	ListRuns(ctx context.Context, clientID string, limit int) ([]RunRecord, error)
	ListKeywords(ctx context.Context, runID string, opts ListOpts) ([]Candidate, error)
	AddTerm(ctx context.Context, clientID string, term BrandTerm) error
	RemoveTerm(ctx context.Context, clientID, term string) error
	Close() error
}

// ErrRunNotFound is returned when a run ID has no persisted record.
var ErrRunNotFound = eris.New("run not found")

// RunRecord is the persisted summary of a run.
type RunRecord struct {
	ID          string    `json:"id"`
	ClientID    string    `json:"client_id"`
	Request     Request   `json:"request"`
	Stats       Stats     `json:"stats"`
	Failures    int       `json:"failures"`
	Saved       int       `json:"saved"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// ListOpts filters persisted keywords.
type ListOpts struct {
	Category Category
	MinScore *float64
	Limit    int
	Offset   int
}

// Pool is the subset of pgxpool.Pool used by PostgresStore, satisfied by
// pgxmock in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS keyword_runs (
	id           UUID PRIMARY KEY,
	client_id    TEXT NOT NULL,
	request      JSONB NOT NULL,
	stats        JSONB NOT NULL,
	failures     INTEGER NOT NULL DEFAULT 0,
	saved        INTEGER NOT NULL DEFAULT 0,
	started_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS keyword_candidates (
	run_id             UUID NOT NULL REFERENCES keyword_runs(id) ON DELETE CASCADE,
	canonical_key      TEXT NOT NULL,
	keyword            TEXT NOT NULL,
	source             TEXT NOT NULL,
	search_volume      BIGINT NOT NULL DEFAULT 0,
	competition_level  TEXT NOT NULL,
	cpc                DOUBLE PRECISION NOT NULL DEFAULT 0,
	intent             TEXT NOT NULL,
	enriched           BOOLEAN NOT NULL DEFAULT false,
	clicks             DOUBLE PRECISION NOT NULL DEFAULT 0,
	impressions        DOUBLE PRECISION NOT NULL DEFAULT 0,
	ctr                DOUBLE PRECISION NOT NULL DEFAULT 0,
	position           DOUBLE PRECISION NOT NULL DEFAULT 0,
	has_client_ranking BOOLEAN NOT NULL DEFAULT false,
	priority_score     DOUBLE PRECISION NOT NULL,
	priority_category  TEXT NOT NULL,
	opportunity_type   TEXT NOT NULL,
	rank               INTEGER NOT NULL,
	PRIMARY KEY (run_id, canonical_key)
);

CREATE TABLE IF NOT EXISTS brand_terms (
	client_id  TEXT NOT NULL,
	term       TEXT NOT NULL,
	is_regex   BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (client_id, term)
);

CREATE INDEX IF NOT EXISTS idx_keyword_runs_client ON keyword_runs(client_id, completed_at DESC);
`

// candidateColumns is the column order shared by COPY and SELECT.
var candidateColumns = []string{
	"run_id", "canonical_key", "keyword", "source", "search_volume",
	"competition_level", "cpc", "intent", "enriched", "clicks", "impressions",
	"ctr", "position", "has_client_ranking", "priority_score",
	"priority_category", "opportunity_type", "rank",
}

// candidateRow flattens a candidate into column order. rank is the
// candidate's index in the sorted result.
func candidateRow(runID string, rank int, c Candidate) []any {
	return []any{
		runID, c.CanonicalKey, c.Keyword, string(c.Source), c.SearchVolume,
		string(c.Competition), c.CPC, string(c.Intent), c.Enriched, c.Clicks, c.Impressions,
		c.CTR, c.Position, c.HasClientRanking, c.PriorityScore,
		string(c.Category), c.OpportunityType, rank,
	}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// SaveRun inserts a run record and bulk-copies its candidates in one
// transaction. Either both land or neither does.
func (s *PostgresStore) SaveRun(ctx context.Context, run RunRecord, cands []Candidate) (int64, error) {
	reqJSON, statsJSON, err := marshalRun(run)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: marshal run")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin save run")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO keyword_runs (id, client_id, request, stats, failures, saved, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.ClientID, reqJSON, statsJSON, run.Failures, run.Saved, run.StartedAt, run.CompletedAt,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: create run %s", run.ID)
	}

	var n int64
	if len(cands) > 0 {
		rows := make([][]any, len(cands))
		for i, c := range cands {
			rows[i] = candidateRow(run.ID, i, c)
		}
		n, err = tx.CopyFrom(ctx, pgx.Identifier{"keyword_candidates"}, candidateColumns, pgx.CopyFromRows(rows))
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: copy keywords for run %s", run.ID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrapf(err, "postgres: commit run %s", run.ID)
	}
	return n, nil
}

// GetRun returns a single run. It returns ErrRunNotFound when no run matches.
func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, client_id, request, stats, failures, saved, started_at, completed_at
		FROM keyword_runs WHERE id = $1`,
		runID,
	)
	r, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrRunNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

// ListRuns returns the most recent runs for a client.
func (s *PostgresStore) ListRuns(ctx context.Context, clientID string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, client_id, request, stats, failures, saved, started_at, completed_at
		FROM keyword_runs WHERE client_id = $1 ORDER BY completed_at DESC LIMIT $2`,
		clientID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

// ListKeywords returns the saved keywords of a run in rank order.
func (s *PostgresStore) ListKeywords(ctx context.Context, runID string, opts ListOpts) ([]Candidate, error) {
	where, args := keywordFilter(runID, opts, func(i int) string { return fmt.Sprintf("$%d", i) })
	query := fmt.Sprintf(`SELECT %s FROM keyword_candidates WHERE %s ORDER BY rank LIMIT $%d OFFSET $%d`,
		strings.Join(candidateColumns[1:], ", "), where, len(args)+1, len(args)+2)
	args = append(args, listLimit(opts), opts.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list keywords")
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate keywords")
}

// Terms returns the brand terms of a client.
func (s *PostgresStore) Terms(ctx context.Context, clientID string) ([]BrandTerm, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT term, is_regex FROM brand_terms WHERE client_id = $1 ORDER BY created_at, term`,
		clientID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list brand terms")
	}
	defer rows.Close()

	var terms []BrandTerm
	for rows.Next() {
		var t BrandTerm
		if err := rows.Scan(&t.Term, &t.IsRegex); err != nil {
			return nil, eris.Wrap(err, "postgres: scan brand term")
		}
		terms = append(terms, t)
	}
	return terms, eris.Wrap(rows.Err(), "postgres: iterate brand terms")
}

// AddTerm upserts a brand term for a client.
func (s *PostgresStore) AddTerm(ctx context.Context, clientID string, term BrandTerm) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO brand_terms (client_id, term, is_regex) VALUES ($1, $2, $3)
		ON CONFLICT (client_id, term) DO UPDATE SET is_regex = EXCLUDED.is_regex`,
		clientID, term.Term, term.IsRegex,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: add brand term %q", term.Term)
	}
	return nil
}

// RemoveTerm deletes a brand term.
func (s *PostgresStore) RemoveTerm(ctx context.Context, clientID, term string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM brand_terms WHERE client_id = $1 AND term = $2`, clientID, term)
	if err != nil {
		return eris.Wrapf(err, "postgres: remove brand term %q", term)
	}
	return nil
}

func marshalRun(run RunRecord) ([]byte, []byte, error) {
	reqJSON, err := json.Marshal(run.Request)
	if err != nil {
		return nil, nil, err
	}
	statsJSON, err := json.Marshal(run.Stats)
	if err != nil {
		return nil, nil, err
	}
	return reqJSON, statsJSON, nil
}

// rowScanner is satisfied by pgx.Rows and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(r rowScanner) (*RunRecord, error) {
	var (
		run       RunRecord
		reqJSON   []byte
		statsJSON []byte
	)
	if err := r.Scan(&run.ID, &run.ClientID, &reqJSON, &statsJSON, &run.Failures, &run.Saved, &run.StartedAt, &run.CompletedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(reqJSON, &run.Request); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal run request")
	}
	if err := json.Unmarshal(statsJSON, &run.Stats); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal run stats")
	}
	return &run, nil
}

func scanCandidate(r rowScanner) (Candidate, error) {
	var (
		c                                   Candidate
		source, competition, intent, catStr string
		rank                                int
	)
	err := r.Scan(
		&c.CanonicalKey, &c.Keyword, &source, &c.SearchVolume,
		&competition, &c.CPC, &intent, &c.Enriched, &c.Clicks, &c.Impressions,
		&c.CTR, &c.Position, &c.HasClientRanking, &c.PriorityScore,
		&catStr, &c.OpportunityType, &rank,
	)
	if err != nil {
		return Candidate{}, eris.Wrap(err, "store: scan keyword")
	}
	c.Source = Source(source)
	c.Competition = CompetitionLevel(competition)
	c.Intent = Intent(intent)
	c.Category = Category(catStr)
	return c, nil
}

// keywordFilter builds the WHERE clause for ListKeywords. placeholder renders
// the i-th (1-based) bind parameter for the driver.
func keywordFilter(runID string, opts ListOpts, placeholder func(int) string) (string, []any) {
	conditions := []string{"run_id = " + placeholder(1)}
	args := []any{runID}

	if opts.Category != "" {
		args = append(args, string(opts.Category))
		conditions = append(conditions, "priority_category = "+placeholder(len(args)))
	}
	if opts.MinScore != nil {
		args = append(args, *opts.MinScore)
		conditions = append(conditions, "priority_score >= "+placeholder(len(args)))
	}
	return strings.Join(conditions, " AND "), args
}

func listLimit(opts ListOpts) int {
	if opts.Limit <= 0 {
		return 1000
	}
	return opts.Limit
}
