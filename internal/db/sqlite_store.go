package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/soaringjerry/Wellbeing/internal/api"
)

type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the database file at path. ":memory:" is kept
// on a single connection so every query sees the same database.
func Open(path string) (*sql.DB, error) {
	if path == ":memory:" {
		db, err := sql.Open("sqlite3", ":memory:")
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		db.SetMaxOpenConns(1)
		return db, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", filepath.ToSlash(path))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return db, nil
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if err := execWithRetry(db, stmt, 5, 10*time.Millisecond); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// NewStore opens path, applies migrations and returns it as an api.Store.
func NewStore(path, migrationsDir string) (api.Store, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(db, migrationsDir); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	s, err := NewSQLiteStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// execWithRetry backs off on "database is locked" while another process holds the file.
func execWithRetry(db *sql.DB, stmt string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(stmt)
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}
		lastErr = err
		time.Sleep(baseDelay * time.Duration(1<<attempt))
	}
	return lastErr
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func encodeAnswers(m map[string]int) (string, error) {
	if m == nil {
		m = map[string]int{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeAnswers(s string) (map[string]int, error) {
	out := map[string]int{}
	if strings.TrimSpace(s) == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) GetDraft(ctx context.Context, sessionID string) (*api.DraftRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT session_id, assessment_id, owner_id, step, answers, started_at, updated_at
		FROM drafts WHERE session_id = ?`, sessionID)
	var (
		d                  api.DraftRecord
		answers            string
		started, updatedAt int64
	)
	if err := row.Scan(&d.SessionID, &d.AssessmentID, &d.OwnerID, &d.Step, &answers, &started, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get draft: %w", err)
	}
	m, err := decodeAnswers(answers)
	if err != nil {
		return nil, err
	}
	d.Answers = m
	d.StartedAt = fromNanos(started)
	d.UpdatedAt = fromNanos(updatedAt)
	return &d, nil
}

func (s *SQLiteStore) UpsertDraft(ctx context.Context, d *api.DraftRecord) error {
	if d == nil || d.SessionID == "" {
		return errors.New("draft session id required")
	}
	answers, err := encodeAnswers(d.Answers)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO drafts (session_id, assessment_id, owner_id, step, answers, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			assessment_id = excluded.assessment_id,
			owner_id = excluded.owner_id,
			step = excluded.step,
			answers = excluded.answers,
			started_at = excluded.started_at,
			updated_at = excluded.updated_at`,
		d.SessionID, d.AssessmentID, d.OwnerID, d.Step, answers, toNanos(d.StartedAt), toNanos(d.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert draft: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteDraft(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AddAssessment(ctx context.Context, a *api.AssessmentRecord) error {
	if a == nil || a.ID == "" {
		return errors.New("assessment id required")
	}
	answers, err := encodeAnswers(a.Answers)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO assessments
		(id, owner_id, started_at, completed_at, answers, psychology, health, spirituality, relationships, finances, overall)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.OwnerID, toNanos(a.StartedAt), toNanos(a.CompletedAt), answers,
		a.Psychology, a.Health, a.Spirituality, a.Relationships, a.Finances, a.Overall)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("assessment %s: %w", a.ID, api.ErrDuplicate)
		}
		return fmt.Errorf("add assessment: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListAssessmentsByOwner(ctx context.Context, ownerID string) ([]*api.AssessmentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, owner_id, started_at, completed_at, answers,
			psychology, health, spirituality, relationships, finances, overall
		FROM assessments WHERE owner_id = ? ORDER BY completed_at, seq`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	defer func() { _ = rows.Close() }()
	out := []*api.AssessmentRecord{}
	for rows.Next() {
		var (
			a                  api.AssessmentRecord
			answers            string
			started, completed int64
		)
		if err := rows.Scan(&a.ID, &a.OwnerID, &started, &completed, &answers,
			&a.Psychology, &a.Health, &a.Spirituality, &a.Relationships, &a.Finances, &a.Overall); err != nil {
			return nil, fmt.Errorf("scan assessment: %w", err)
		}
		m, err := decodeAnswers(answers)
		if err != nil {
			return nil, err
		}
		a.Answers = m
		a.StartedAt = fromNanos(started)
		a.CompletedAt = fromNanos(completed)
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddUser(ctx context.Context, u *api.User) error {
	if u == nil || u.ID == "" {
		return errors.New("user id required")
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO users (id, email, name, pass_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, strings.ToLower(u.Email), u.Name, u.PassHash, toNanos(u.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %s: %w", u.Email, api.ErrDuplicate)
		}
		return fmt.Errorf("add user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*api.User, error) {
	var (
		u       api.User
		created int64
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PassHash, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.CreatedAt = fromNanos(created)
	return &u, nil
}

func (s *SQLiteStore) FindUserByEmail(ctx context.Context, email string) (*api.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, email, name, pass_hash, created_at FROM users WHERE email = ?`, strings.ToLower(email)))
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*api.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, email, name, pass_hash, created_at FROM users WHERE id = ?`, id))
}

func (s *SQLiteStore) DeleteUserData(ctx context.Context, id string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()
	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM assessments WHERE owner_id = ?`, id); err != nil {
		return false, fmt.Errorf("delete assessments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM drafts WHERE owner_id = ?`, id); err != nil {
		return false, fmt.Errorf("delete drafts: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var _ api.Store = (*SQLiteStore)(nil)
