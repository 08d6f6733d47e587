// Package store implements the Watch Store (spec.md §4.11): a durable,
// transactional sqlite-backed relational store for tracked repositories,
// snapshots, changes, and review sessions. The teacher carries no sqlite
// dependency at all; the driver (modernc.org/sqlite) and the open/
// migrate shape are grounded on theRebelliousNerd-codenerd's
// internal/store package and AKJUS-bsc-erigon's go.mod, both in the
// retrieved pack.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/scoutforge/scout/internal/scouterr"
)

// SessionStatus is the monotonic state of a review Session row.
type SessionStatus string

const (
	SessionPending SessionStatus = "pending"
	SessionRunning SessionStatus = "running"
	SessionSuccess SessionStatus = "success"
	SessionFailure SessionStatus = "failure"
	SessionSkipped SessionStatus = "skipped"
)

// sessionRank gives each status a position in the allowed monotonic
// progression (spec.md §4.11: "disallow non-monotonic transitions").
var sessionRank = map[SessionStatus]int{
	SessionPending: 0,
	SessionRunning: 1,
	SessionSuccess: 2,
	SessionFailure: 2,
	SessionSkipped: 2,
}

// Repo is a tracked repository row (spec.md §3).
type Repo struct {
	ID             int64
	FullName       string
	URL            string
	DefaultBranch  string
	License        string
	CreatedAt      time.Time
}

// Tracked is a (repo, kind) tracking configuration row.
type Tracked struct {
	ID              int64
	RepoID          int64
	Kind            string
	Paths           []string
	Enabled         bool
	PollIntervalHrs int
}

// Snapshot is a recorded head commit for a repo at a point in time.
type Snapshot struct {
	ID         int64
	RepoID     int64
	HeadCommit string
	ObservedAt time.Time
}

// DiffStats is the optional per-change diff summary.
type DiffStats struct {
	FilesChanged int `json:"files_changed"`
	Insertions   int `json:"insertions"`
	Deletions    int `json:"deletions"`
}

// Change is a detected head movement for a tracked entry.
type Change struct {
	ID         int64
	RepoID     int64
	FromCommit string
	ToCommit   string
	Kind       string
	DiffStats  *DiffStats
	Drift      bool
	CreatedAt  time.Time
}

// Session is a review session row tied to a Change.
type Session struct {
	ID         int64
	ChangeID   int64
	Path       string
	Status     SessionStatus
	ExitCode   *int
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// Store wraps the lazily-opened, process-reused sqlite connection.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the watch store at path, enables WAL
// journaling and foreign-key enforcement, and runs the schema migration.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, scouterr.New(scouterr.ConfigInvalid, "watch store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, scouterr.Wrap(scouterr.ArtifactInvalid, "create watch store directory", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, scouterr.Wrap(scouterr.ArtifactInvalid, "open watch store", err)
	}
	// One writer at a time (spec.md §4.11).
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close deterministically tears down the connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA foreign_keys=ON;`,
		`CREATE TABLE IF NOT EXISTS repos (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			full_name TEXT NOT NULL UNIQUE,
			url TEXT NOT NULL,
			default_branch TEXT,
			license TEXT,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tracked (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			repo_id INTEGER NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
			kind TEXT NOT NULL,
			paths TEXT NOT NULL,
			enabled INTEGER NOT NULL,
			poll_interval_hours INTEGER NOT NULL,
			UNIQUE(repo_id, kind)
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			repo_id INTEGER NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
			head_commit TEXT NOT NULL,
			observed_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS changes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			repo_id INTEGER NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
			from_commit TEXT NOT NULL,
			to_commit TEXT NOT NULL,
			kind TEXT NOT NULL,
			diff_stats TEXT,
			drift INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			change_id INTEGER NOT NULL REFERENCES changes(id) ON DELETE CASCADE,
			path TEXT NOT NULL,
			status TEXT NOT NULL,
			exit_code INTEGER,
			started_at TEXT,
			finished_at TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tracked_repo_kind ON tracked(repo_id, kind);`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_repo ON snapshots(repo_id);`,
		`CREATE INDEX IF NOT EXISTS idx_changes_repo ON changes(repo_id);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_change ON sessions(change_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return scouterr.Wrap(scouterr.ArtifactInvalid, "migrate watch store schema", err)
		}
	}
	return nil
}

// UpsertRepo inserts or updates a Repo row keyed by full_name.
func (s *Store) UpsertRepo(ctx context.Context, fullName, url, defaultBranch, license string) (Repo, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO repos (full_name, url, default_branch, license, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(full_name) DO UPDATE SET url=excluded.url, default_branch=excluded.default_branch, license=excluded.license
	`, fullName, url, defaultBranch, license, now.Format(time.RFC3339))
	if err != nil {
		return Repo{}, scouterr.Wrap(scouterr.ArtifactInvalid, "upsert repo", err)
	}
	return s.RepoByFullName(ctx, fullName)
}

// RepoByFullName fetches a Repo row by its unique full name.
func (s *Store) RepoByFullName(ctx context.Context, fullName string) (Repo, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, full_name, url, default_branch, license, created_at FROM repos WHERE full_name = ?`, fullName)
	return scanRepo(row)
}

func scanRepo(row *sql.Row) (Repo, error) {
	var r Repo
	var defaultBranch, license sql.NullString
	var createdAt string
	if err := row.Scan(&r.ID, &r.FullName, &r.URL, &defaultBranch, &license, &createdAt); err != nil {
		return Repo{}, scouterr.Wrap(scouterr.ArtifactInvalid, "scan repo row", err)
	}
	r.DefaultBranch = defaultBranch.String
	r.License = license.String
	ts, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Repo{}, scouterr.Wrap(scouterr.ArtifactInvalid, "parse repo created_at", err)
	}
	r.CreatedAt = ts
	return r, nil
}

// UpsertTracked inserts or updates a Tracked row keyed by (repo_id, kind).
func (s *Store) UpsertTracked(ctx context.Context, repoID int64, kind string, paths []string, enabled bool, pollIntervalHrs int) (Tracked, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tracked (repo_id, kind, paths, enabled, poll_interval_hours)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(repo_id, kind) DO UPDATE SET paths=excluded.paths, enabled=excluded.enabled, poll_interval_hours=excluded.poll_interval_hours
	`, repoID, kind, joinPaths(paths), boolToInt(enabled), pollIntervalHrs)
	if err != nil {
		return Tracked{}, scouterr.Wrap(scouterr.ArtifactInvalid, "upsert tracked", err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT id, repo_id, kind, paths, enabled, poll_interval_hours FROM tracked WHERE repo_id = ? AND kind = ?`, repoID, kind)
	return scanTracked(row)
}

func scanTracked(row *sql.Row) (Tracked, error) {
	var t Tracked
	var paths string
	var enabled int
	if err := row.Scan(&t.ID, &t.RepoID, &t.Kind, &paths, &enabled, &t.PollIntervalHrs); err != nil {
		return Tracked{}, scouterr.Wrap(scouterr.ArtifactInvalid, "scan tracked row", err)
	}
	t.Paths = splitPaths(paths)
	t.Enabled = enabled != 0
	return t, nil
}

// TrackedByRepoKind fetches a single tracked row, if one exists, regardless
// of its enabled state.
func (s *Store) TrackedByRepoKind(ctx context.Context, repoID int64, kind string) (Tracked, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, repo_id, kind, paths, enabled, poll_interval_hours FROM tracked WHERE repo_id = ? AND kind = ?`, repoID, kind)
	t, err := scanTracked(row)
	if err == nil {
		return t, true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return Tracked{}, false, nil
	}
	return Tracked{}, false, err
}

// EnabledTracked returns tracked rows joined with their repo metadata,
// restricted to enabled entries (spec.md §4.11 query: "tracked rows joined
// with repo metadata").
func (s *Store) EnabledTracked(ctx context.Context) ([]Tracked, []Repo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.repo_id, t.kind, t.paths, t.enabled, t.poll_interval_hours,
		       r.id, r.full_name, r.url, r.default_branch, r.license, r.created_at
		FROM tracked t JOIN repos r ON r.id = t.repo_id
		WHERE t.enabled = 1
	`)
	if err != nil {
		return nil, nil, scouterr.Wrap(scouterr.ArtifactInvalid, "query enabled tracked", err)
	}
	defer rows.Close()

	var tracked []Tracked
	var repos []Repo
	for rows.Next() {
		var t Tracked
		var paths string
		var enabled int
		var r Repo
		var defaultBranch, license sql.NullString
		var createdAt string
		if err := rows.Scan(&t.ID, &t.RepoID, &t.Kind, &paths, &enabled, &t.PollIntervalHrs,
			&r.ID, &r.FullName, &r.URL, &defaultBranch, &license, &createdAt); err != nil {
			return nil, nil, scouterr.Wrap(scouterr.ArtifactInvalid, "scan enabled tracked row", err)
		}
		t.Paths = splitPaths(paths)
		t.Enabled = enabled != 0
		r.DefaultBranch = defaultBranch.String
		r.License = license.String
		ts, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, nil, scouterr.Wrap(scouterr.ArtifactInvalid, "parse repo created_at", err)
		}
		r.CreatedAt = ts
		tracked = append(tracked, t)
		repos = append(repos, r)
	}
	return tracked, repos, rows.Err()
}

// AppendSnapshot appends a Snapshot row.
func (s *Store) AppendSnapshot(ctx context.Context, repoID int64, headCommit string) (Snapshot, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `INSERT INTO snapshots (repo_id, head_commit, observed_at) VALUES (?, ?, ?)`, repoID, headCommit, now.Format(time.RFC3339))
	if err != nil {
		return Snapshot{}, scouterr.Wrap(scouterr.ArtifactInvalid, "append snapshot", err)
	}
	id, _ := res.LastInsertId()
	return Snapshot{ID: id, RepoID: repoID, HeadCommit: headCommit, ObservedAt: now}, nil
}

// LatestSnapshot returns the max-id snapshot for a repo, or ok=false if none
// exists yet (spec.md §5: "latest snapshot is the max-id row").
func (s *Store) LatestSnapshot(ctx context.Context, repoID int64) (snap Snapshot, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, repo_id, head_commit, observed_at FROM snapshots WHERE repo_id = ? ORDER BY id DESC LIMIT 1`, repoID)
	var observedAt string
	scanErr := row.Scan(&snap.ID, &snap.RepoID, &snap.HeadCommit, &observedAt)
	if scanErr == sql.ErrNoRows {
		return Snapshot{}, false, nil
	}
	if scanErr != nil {
		return Snapshot{}, false, scouterr.Wrap(scouterr.ArtifactInvalid, "query latest snapshot", scanErr)
	}
	ts, parseErr := time.Parse(time.RFC3339, observedAt)
	if parseErr != nil {
		return Snapshot{}, false, scouterr.Wrap(scouterr.ArtifactInvalid, "parse snapshot observed_at", parseErr)
	}
	snap.ObservedAt = ts
	return snap, true, nil
}

// AppendChange appends a Change row with optional diff-stats JSON.
func (s *Store) AppendChange(ctx context.Context, repoID int64, fromCommit, toCommit, kind string, stats *DiffStats, drift bool) (Change, error) {
	now := time.Now().UTC()
	var statsJSON sql.NullString
	if stats != nil {
		statsJSON = sql.NullString{String: fmt.Sprintf(`{"files_changed":%d,"insertions":%d,"deletions":%d}`, stats.FilesChanged, stats.Insertions, stats.Deletions), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO changes (repo_id, from_commit, to_commit, kind, diff_stats, drift, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, repoID, fromCommit, toCommit, kind, statsJSON, boolToInt(drift), now.Format(time.RFC3339))
	if err != nil {
		return Change{}, scouterr.Wrap(scouterr.ArtifactInvalid, "append change", err)
	}
	id, _ := res.LastInsertId()
	return Change{ID: id, RepoID: repoID, FromCommit: fromCommit, ToCommit: toCommit, Kind: kind, DiffStats: stats, Drift: drift, CreatedAt: now}, nil
}

// AppendSession appends a Session row in the pending state.
func (s *Store) AppendSession(ctx context.Context, changeID int64, path string) (Session, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO sessions (change_id, path, status) VALUES (?, ?, ?)`, changeID, path, string(SessionPending))
	if err != nil {
		return Session{}, scouterr.Wrap(scouterr.ArtifactInvalid, "append session", err)
	}
	id, _ := res.LastInsertId()
	return Session{ID: id, ChangeID: changeID, Path: path, Status: SessionPending}, nil
}

// TransitionSession moves a session to a new status, rejecting non-monotonic
// transitions (spec.md §4.11).
func (s *Store) TransitionSession(ctx context.Context, sessionID int64, to SessionStatus, exitCode *int) error {
	row := s.db.QueryRowContext(ctx, `SELECT status FROM sessions WHERE id = ?`, sessionID)
	var current string
	if err := row.Scan(&current); err != nil {
		return scouterr.Wrap(scouterr.ArtifactInvalid, "read session status", err)
	}
	fromRank, fromOK := sessionRank[SessionStatus(current)]
	toRank, toOK := sessionRank[to]
	if !fromOK || !toOK || toRank < fromRank || (fromRank == toRank && fromRank != 0) {
		return scouterr.New(scouterr.SessionInvalid, fmt.Sprintf("non-monotonic session transition %s -> %s", current, to))
	}

	now := time.Now().UTC().Format(time.RFC3339)
	switch to {
	case SessionRunning:
		_, err := s.db.ExecContext(ctx, `UPDATE sessions SET status = ?, started_at = ? WHERE id = ?`, string(to), now, sessionID)
		return wrapExecErr(err, "transition session to running")
	default:
		_, err := s.db.ExecContext(ctx, `UPDATE sessions SET status = ?, exit_code = ?, finished_at = ? WHERE id = ?`, string(to), exitCode, now, sessionID)
		return wrapExecErr(err, "transition session")
	}
}

func wrapExecErr(err error, msg string) error {
	if err == nil {
		return nil
	}
	return scouterr.Wrap(scouterr.ArtifactInvalid, msg, err)
}

// PendingSessions returns every session in the pending state.
func (s *Store) PendingSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, change_id, path, status, exit_code, started_at, finished_at FROM sessions WHERE status = ?`, string(SessionPending))
	if err != nil {
		return nil, scouterr.Wrap(scouterr.ArtifactInvalid, "query pending sessions", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

// SessionsByRepo returns every session whose change belongs to repoID.
func (s *Store) SessionsByRepo(ctx context.Context, repoID int64) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.change_id, s.path, s.status, s.exit_code, s.started_at, s.finished_at
		FROM sessions s JOIN changes c ON c.id = s.change_id
		WHERE c.repo_id = ?
	`, repoID)
	if err != nil {
		return nil, scouterr.Wrap(scouterr.ArtifactInvalid, "query sessions by repo", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

// SessionByPath finds the session row for a given session directory path, if
// any (used by the review command to find the row for --path).
func (s *Store) SessionByPath(ctx context.Context, path string) (session Session, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, change_id, path, status, exit_code, started_at, finished_at FROM sessions WHERE path = ?`, path)
	var exitCode sql.NullInt64
	var startedAt, finishedAt sql.NullString
	var status string
	scanErr := row.Scan(&session.ID, &session.ChangeID, &session.Path, &status, &exitCode, &startedAt, &finishedAt)
	if scanErr == sql.ErrNoRows {
		return Session{}, false, nil
	}
	if scanErr != nil {
		return Session{}, false, scouterr.Wrap(scouterr.ArtifactInvalid, "query session by path", scanErr)
	}
	session.Status = SessionStatus(status)
	applyNullableSessionFields(&session, exitCode, startedAt, finishedAt)
	return session, true, nil
}

// SessionByChangeKey finds the most recent session for the (repo, from,
// to, kind) transition, if any (spec.md §4.14: "if a Session row for
// (repo, from, to, kind) already exists, return it without recreating
// files"). This is the Session Builder's idempotence check; unlike
// SessionByPath it is independent of the date-stamped session directory
// name, so rebuilding the same transition on a later calendar day still
// finds the existing session.
func (s *Store) SessionByChangeKey(ctx context.Context, repoID int64, fromCommit, toCommit, kind string) (session Session, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.change_id, s.path, s.status, s.exit_code, s.started_at, s.finished_at
		FROM sessions s JOIN changes c ON c.id = s.change_id
		WHERE c.repo_id = ? AND c.from_commit = ? AND c.to_commit = ? AND c.kind = ?
		ORDER BY s.id DESC LIMIT 1
	`, repoID, fromCommit, toCommit, kind)
	var exitCode sql.NullInt64
	var startedAt, finishedAt sql.NullString
	var status string
	scanErr := row.Scan(&session.ID, &session.ChangeID, &session.Path, &status, &exitCode, &startedAt, &finishedAt)
	if scanErr == sql.ErrNoRows {
		return Session{}, false, nil
	}
	if scanErr != nil {
		return Session{}, false, scouterr.Wrap(scouterr.ArtifactInvalid, "query session by change key", scanErr)
	}
	session.Status = SessionStatus(status)
	applyNullableSessionFields(&session, exitCode, startedAt, finishedAt)
	return session, true, nil
}

func scanSessions(rows *sql.Rows) ([]Session, error) {
	var out []Session
	for rows.Next() {
		var session Session
		var exitCode sql.NullInt64
		var startedAt, finishedAt sql.NullString
		var status string
		if err := rows.Scan(&session.ID, &session.ChangeID, &session.Path, &status, &exitCode, &startedAt, &finishedAt); err != nil {
			return nil, scouterr.Wrap(scouterr.ArtifactInvalid, "scan session row", err)
		}
		session.Status = SessionStatus(status)
		applyNullableSessionFields(&session, exitCode, startedAt, finishedAt)
		out = append(out, session)
	}
	return out, rows.Err()
}

func applyNullableSessionFields(session *Session, exitCode sql.NullInt64, startedAt, finishedAt sql.NullString) {
	if exitCode.Valid {
		v := int(exitCode.Int64)
		session.ExitCode = &v
	}
	if startedAt.Valid {
		if ts, err := time.Parse(time.RFC3339, startedAt.String); err == nil {
			session.StartedAt = &ts
		}
	}
	if finishedAt.Valid {
		if ts, err := time.Parse(time.RFC3339, finishedAt.String); err == nil {
			session.FinishedAt = &ts
		}
	}
}

// DeleteRepo deletes a Repo row; cascades remove Tracked, Snapshot, Change,
// and Session rows transitively (spec.md §4.11).
func (s *Store) DeleteRepo(ctx context.Context, repoID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM repos WHERE id = ?`, repoID)
	return wrapExecErr(err, "delete repo")
}

func joinPaths(paths []string) string {
	out := ""
	for i, p := range paths {
		if i > 0 {
			out += "\n"
		}
		out += p
	}
	return out
}

func splitPaths(joined string) []string {
	if joined == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(joined); i++ {
		if i == len(joined) || joined[i] == '\n' {
			out = append(out, joined[start:i])
			start = i + 1
		}
	}
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
