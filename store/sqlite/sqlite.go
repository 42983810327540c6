/*
Package sqlite provides a SQLite-backed implementation of the ballot storage
interfaces.

PURPOSE:
  Implements ballot.Store and ballot.Registry on SQLite. The PostgreSQL
  backend (store/postgres) follows the same schema with dialect changes only.

INTERFACES IMPLEMENTED:
  ballot.Store:    Ballot persistence (insert, retract, scans)
  ballot.Registry: Voters, candidates and elections

KEY TABLES:
  ballots:             One row per accepted ballot; retracted rows are kept
  voters:              Eligibility roll, read for lookups and turnout
  candidates:          Registered candidates (no vote counters)
  elections:           Election definitions
  election_candidates: Who stands in which election

INDEXES:
  - idx_unique_active_ballot: At most one active ballot per (voter, election)
  - idx_ballots_active_scan:  Keyset scans of active ballots by election
  - idx_ballots_voter:        Voter history

CONCURRENCY:
  Uniqueness is enforced by the partial unique index, so concurrent casts
  need no lock in Go. The database runs in WAL mode with a busy timeout so
  writers queue instead of failing with SQLITE_BUSY.

TIME STORAGE:
  Timestamps are TEXT in a fixed-width UTC layout with nanoseconds, so
  lexical order equals time order and keyset comparisons work in SQL.

USAGE:
  store, err := sqlite.New("./data/ballots.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := ballot.NewLedger(store, store)

SEE ALSO:
  - ballot/store.go: Interface definitions and contracts
  - ballot/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/warp/ballot-engine/ballot"
)

// timeLayout sorts lexically. Always format in UTC.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const defaultPageSize = 500

// Store implements ballot.Store and ballot.Registry using SQLite.
type Store struct {
	db *sql.DB
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the schema. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS ballots (
		id TEXT PRIMARY KEY,
		voter_id TEXT NOT NULL,
		candidate_id TEXT NOT NULL,
		election_id TEXT NOT NULL,
		region TEXT NOT NULL,
		zone TEXT NOT NULL,
		region_key TEXT NOT NULL,
		zone_key TEXT NOT NULL,
		cast_at TEXT NOT NULL,
		retracted_at TEXT
	);

	-- CRITICAL: one active ballot per voter per election.
	-- Retracted rows drop out of the index, so re-casting is allowed.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_active_ballot
		ON ballots(voter_id, election_id)
		WHERE retracted_at IS NULL;

	CREATE INDEX IF NOT EXISTS idx_ballots_active_scan
		ON ballots(election_id, cast_at, id)
		WHERE retracted_at IS NULL;

	CREATE INDEX IF NOT EXISTS idx_ballots_voter
		ON ballots(voter_id, cast_at);

	CREATE TABLE IF NOT EXISTS voters (
		id TEXT PRIMARY KEY,
		region TEXT NOT NULL,
		zone TEXT NOT NULL,
		region_key TEXT NOT NULL,
		zone_key TEXT NOT NULL,
		eligible INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_voters_area
		ON voters(region_key, zone_key) WHERE eligible = 1;

	CREATE TABLE IF NOT EXISTS candidates (
		id TEXT PRIMARY KEY,
		full_name TEXT NOT NULL,
		party TEXT NOT NULL DEFAULT '',
		constituency TEXT NOT NULL DEFAULT '',
		age INTEGER NOT NULL,
		criminal_record TEXT NOT NULL,
		independent INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS elections (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		region TEXT NOT NULL DEFAULT '',
		starts_at TEXT,
		ends_at TEXT,
		status TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS election_candidates (
		election_id TEXT NOT NULL REFERENCES elections(id) ON DELETE CASCADE,
		candidate_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (election_id, candidate_id)
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	tables := []string{"ballots", "election_candidates", "elections", "candidates", "voters"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// BALLOTS
// =============================================================================

func (s *Store) InsertBallot(ctx context.Context, b ballot.Ballot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ballots (id, voter_id, candidate_id, election_id, region, zone,
			region_key, zone_key, cast_at, retracted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(b.ID),
		string(b.VoterID),
		string(b.CandidateID),
		string(b.ElectionID),
		b.Region,
		b.Zone,
		ballot.AreaKey(b.Region),
		ballot.AreaKey(b.Zone),
		formatTime(b.CastAt),
		nullTime(b.RetractedAt),
	)
	if err != nil {
		if isActiveBallotConflict(err) {
			return ballot.ErrAlreadyVoted
		}
		return fmt.Errorf("insert ballot: %w", err)
	}
	return nil
}

func (s *Store) ActiveBallot(ctx context.Context, voterID ballot.VoterID, electionID ballot.ElectionID) (*ballot.Ballot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+ballotColumns+` FROM ballots
		WHERE voter_id = ? AND election_id = ? AND retracted_at IS NULL`,
		string(voterID), string(electionID))

	b, err := scanBallot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) MarkRetracted(ctx context.Context, id ballot.BallotID, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE ballots SET retracted_at = ? WHERE id = ? AND retracted_at IS NULL`,
		formatTime(at), string(id))
	if err != nil {
		return fmt.Errorf("retract ballot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ballot.ErrBallotNotFound
	}
	return nil
}

func (s *Store) ActiveBallots(ctx context.Context, q ballot.ActiveQuery) ([]ballot.Ballot, error) {
	where := []string{"retracted_at IS NULL"}
	var args []any

	if q.Scope.ElectionID != "" {
		where = append(where, "election_id = ?")
		args = append(args, string(q.Scope.ElectionID))
	}
	if q.Scope.Region != "" {
		where = append(where, "region_key = ?")
		args = append(args, ballot.AreaKey(q.Scope.Region))
	}
	if q.Scope.Zone != "" {
		where = append(where, "zone_key = ?")
		args = append(args, ballot.AreaKey(q.Scope.Zone))
	}
	if q.After != nil {
		castAt := formatTime(q.After.CastAt)
		where = append(where, "(cast_at > ? OR (cast_at = ? AND id > ?))")
		args = append(args, castAt, castAt, string(q.After.ID))
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	args = append(args, limit)

	query := `SELECT ` + ballotColumns + ` FROM ballots WHERE ` +
		strings.Join(where, " AND ") +
		` ORDER BY cast_at, id LIMIT ?`
	return s.queryBallots(ctx, query, args...)
}

func (s *Store) BallotsByVoter(ctx context.Context, voterID ballot.VoterID) ([]ballot.Ballot, error) {
	return s.queryBallots(ctx,
		`SELECT `+ballotColumns+` FROM ballots WHERE voter_id = ? ORDER BY cast_at, id`,
		string(voterID))
}

const ballotColumns = `id, voter_id, candidate_id, election_id, region, zone, cast_at, retracted_at`

func (s *Store) queryBallots(ctx context.Context, query string, args ...any) ([]ballot.Ballot, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ballot.Ballot
	for rows.Next() {
		b, err := scanBallot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBallot(row scanner) (ballot.Ballot, error) {
	var b ballot.Ballot
	var id, voterID, candidateID, electionID, castAt string
	var retractedAt sql.NullString
	if err := row.Scan(&id, &voterID, &candidateID, &electionID, &b.Region, &b.Zone, &castAt, &retractedAt); err != nil {
		return ballot.Ballot{}, err
	}
	b.ID = ballot.BallotID(id)
	b.VoterID = ballot.VoterID(voterID)
	b.CandidateID = ballot.CandidateID(candidateID)
	b.ElectionID = ballot.ElectionID(electionID)

	var err error
	if b.CastAt, err = parseTime(castAt); err != nil {
		return ballot.Ballot{}, fmt.Errorf("ballot %s: cast_at: %w", id, err)
	}
	if retractedAt.Valid {
		t, err := parseTime(retractedAt.String)
		if err != nil {
			return ballot.Ballot{}, fmt.Errorf("ballot %s: retracted_at: %w", id, err)
		}
		b.RetractedAt = &t
	}
	return b, nil
}

// =============================================================================
// VOTERS
// =============================================================================

func (s *Store) SaveVoter(ctx context.Context, v ballot.VoterIdentity) error {
	if v.ID == "" {
		return fmt.Errorf("voter id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO voters (id, region, zone, region_key, zone_key, eligible)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			region = excluded.region,
			zone = excluded.zone,
			region_key = excluded.region_key,
			zone_key = excluded.zone_key,
			eligible = excluded.eligible`,
		string(v.ID), v.Region, v.Zone, ballot.AreaKey(v.Region), ballot.AreaKey(v.Zone), v.Eligible)
	return err
}

func (s *Store) LookupVoter(ctx context.Context, id ballot.VoterID) (ballot.VoterIdentity, error) {
	v := ballot.VoterIdentity{ID: id}
	err := s.db.QueryRowContext(ctx,
		`SELECT region, zone, eligible FROM voters WHERE id = ?`, string(id),
	).Scan(&v.Region, &v.Zone, &v.Eligible)
	if errors.Is(err, sql.ErrNoRows) {
		return ballot.VoterIdentity{}, ballot.ErrVoterNotFound
	}
	if err != nil {
		return ballot.VoterIdentity{}, err
	}
	return v, nil
}

func (s *Store) CountEligible(ctx context.Context, scope ballot.Scope) (int, error) {
	query := `SELECT COUNT(*) FROM voters WHERE eligible = 1`
	var args []any
	if scope.Region != "" {
		query += ` AND region_key = ?`
		args = append(args, ballot.AreaKey(scope.Region))
	}
	if scope.Zone != "" {
		query += ` AND zone_key = ?`
		args = append(args, ballot.AreaKey(scope.Zone))
	}

	var n int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

// =============================================================================
// CANDIDATES & ELECTIONS
// =============================================================================

func (s *Store) SaveCandidate(ctx context.Context, c ballot.Candidate) error {
	if c.ID == "" {
		return fmt.Errorf("candidate id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO candidates (id, full_name, party, constituency, age, criminal_record, independent)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(c.ID), c.FullName, c.Party, c.Constituency, c.Age, string(c.CriminalRecord), c.Independent)
	return err
}

const candidateColumns = `c.id, c.full_name, c.party, c.constituency, c.age, c.criminal_record, c.independent`

func (s *Store) Candidates(ctx context.Context, electionID ballot.ElectionID) ([]ballot.Candidate, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if electionID == ballot.DefaultElection {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+candidateColumns+` FROM candidates c ORDER BY c.id`)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+candidateColumns+` FROM candidates c
			JOIN election_candidates ec ON ec.candidate_id = c.id
			WHERE ec.election_id = ?
			ORDER BY c.id`, string(electionID))
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ballot.Candidate
	for rows.Next() {
		var c ballot.Candidate
		var id, record string
		if err := rows.Scan(&id, &c.FullName, &c.Party, &c.Constituency, &c.Age, &record, &c.Independent); err != nil {
			return nil, err
		}
		c.ID = ballot.CandidateID(id)
		c.CriminalRecord = ballot.CriminalRecord(record)
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *Store) CandidateEligible(ctx context.Context, id ballot.CandidateID, electionID ballot.ElectionID) (bool, error) {
	var n int
	var err error
	if electionID == ballot.DefaultElection {
		err = s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM candidates WHERE id = ?`, string(id)).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM election_candidates ec
			JOIN candidates c ON c.id = ec.candidate_id
			WHERE ec.election_id = ? AND ec.candidate_id = ?`,
			string(electionID), string(id)).Scan(&n)
	}
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SaveElection upserts the election and replaces its candidate list atomically.
func (s *Store) SaveElection(ctx context.Context, e ballot.Election) error {
	if e.ID == "" {
		return fmt.Errorf("election id is required")
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO elections (id, title, region, starts_at, ends_at, status)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				region = excluded.region,
				starts_at = excluded.starts_at,
				ends_at = excluded.ends_at,
				status = excluded.status`,
			string(e.ID), e.Title, e.Region, nullZeroTime(e.StartsAt), nullZeroTime(e.EndsAt), string(e.Status))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM election_candidates WHERE election_id = ?`, string(e.ID)); err != nil {
			return err
		}
		for i, c := range e.Candidates {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO election_candidates (election_id, candidate_id, position) VALUES (?, ?, ?)`,
				string(e.ID), string(c), i); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) Elections(ctx context.Context) ([]ballot.Election, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, region, starts_at, ends_at, status FROM elections ORDER BY id`)
	if err != nil {
		return nil, err
	}

	var result []ballot.Election
	for rows.Next() {
		var e ballot.Election
		var id, status string
		var startsAt, endsAt sql.NullString
		if err := rows.Scan(&id, &e.Title, &e.Region, &startsAt, &endsAt, &status); err != nil {
			rows.Close()
			return nil, err
		}
		e.ID = ballot.ElectionID(id)
		e.Status = ballot.ElectionStatus(status)
		var err error
		if startsAt.Valid {
			if e.StartsAt, err = parseTime(startsAt.String); err != nil {
				rows.Close()
				return nil, fmt.Errorf("election %s: starts_at: %w", id, err)
			}
		}
		if endsAt.Valid {
			if e.EndsAt, err = parseTime(endsAt.String); err != nil {
				rows.Close()
				return nil, fmt.Errorf("election %s: ends_at: %w", id, err)
			}
		}
		result = append(result, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range result {
		ids, err := s.electionCandidates(ctx, result[i].ID)
		if err != nil {
			return nil, err
		}
		result[i].Candidates = ids
	}
	return result, nil
}

func (s *Store) electionCandidates(ctx context.Context, electionID ballot.ElectionID) ([]ballot.CandidateID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT candidate_id FROM election_candidates WHERE election_id = ? ORDER BY position`,
		string(electionID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []ballot.CandidateID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, ballot.CandidateID(id))
	}
	return ids, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

// withTx runs fn within a database transaction.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullZeroTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return nullTime(&t)
}

// isActiveBallotConflict reports whether err is the partial unique index
// rejecting a second active ballot, as opposed to a primary key collision.
func isActiveBallotConflict(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.ExtendedCode != sqlite3.ErrConstraintUnique {
		return false
	}
	return strings.Contains(sqliteErr.Error(), "ballots.voter_id")
}

// Compile-time checks.
var (
	_ ballot.Store    = (*Store)(nil)
	_ ballot.Registry = (*Store)(nil)
)
