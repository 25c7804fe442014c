package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nkarpov/solvd/internal/domain"
	"github.com/nkarpov/solvd/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL for concurrency, foreign keys for chat-message cascade.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	PRAGMA foreign_keys = ON;
	CREATE TABLE IF NOT EXISTS problems (
		id TEXT PRIMARY KEY,
		original_input TEXT NOT NULL,
		extracted_text TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		answer TEXT NOT NULL DEFAULT '',
		explanation TEXT NOT NULL DEFAULT '',
		input_kind TEXT NOT NULL,
		status TEXT NOT NULL,
		image_png BLOB,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_problems_created ON problems(created_at DESC);

	CREATE TABLE IF NOT EXISTS chat_messages (
		id TEXT PRIMARY KEY,
		problem_id TEXT NOT NULL REFERENCES problems(id) ON DELETE CASCADE,
		body TEXT NOT NULL,
		from_user INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_problem ON chat_messages(problem_id, created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveProblem inserts a new problem record.
func (s *SQLiteStore) SaveProblem(ctx context.Context, p *domain.Problem) error {
	query := `
	INSERT INTO problems (id, original_input, extracted_text, title, answer,
		explanation, input_kind, status, image_png, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var image interface{}
	if len(p.ImagePNG) > 0 {
		image = p.ImagePNG
	}

	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.OriginalInput, p.ExtractedText, p.Title, p.Answer,
		p.Explanation, string(p.InputKind), string(p.Status),
		image, p.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save problem: %w", err)
	}
	return nil
}

// UpdateProblem rewrites the mutable fields of an existing problem.
func (s *SQLiteStore) UpdateProblem(ctx context.Context, p *domain.Problem) error {
	query := `
	UPDATE problems SET extracted_text = ?, title = ?, answer = ?,
		explanation = ?, status = ?
	WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query,
		p.ExtractedText, p.Title, p.Answer, p.Explanation,
		string(p.Status), p.ID,
	)
	if err != nil {
		return fmt.Errorf("update problem: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("update problem: not found: %s", p.ID)
	}
	return nil
}

const problemColumns = `id, original_input, extracted_text, title, answer,
	explanation, input_kind, status, image_png, created_at`

func scanProblem(scan func(dest ...interface{}) error) (*domain.Problem, error) {
	var p domain.Problem
	var kind, status string
	var image []byte
	var createdAt int64

	err := scan(
		&p.ID, &p.OriginalInput, &p.ExtractedText, &p.Title, &p.Answer,
		&p.Explanation, &kind, &status, &image, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	p.InputKind = domain.InputKind(kind)
	p.Status = domain.Status(status)
	p.ImagePNG = image
	p.CreatedAt = time.Unix(0, createdAt)
	return &p, nil
}

// GetProblem retrieves a problem by id.
func (s *SQLiteStore) GetProblem(ctx context.Context, id string) (*domain.Problem, error) {
	query := `SELECT ` + problemColumns + ` FROM problems WHERE id = ?`

	row := s.db.QueryRowContext(ctx, query, id)
	p, err := scanProblem(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan problem row: %w", err)
	}
	return p, nil
}

// ListRecent returns up to limit problems, newest first.
func (s *SQLiteStore) ListRecent(ctx context.Context, limit int) ([]*domain.Problem, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + problemColumns + ` FROM problems ORDER BY created_at DESC LIMIT ?`
	return s.queryProblems(ctx, query, limit)
}

// Search returns problems matching the query, newest first.
func (s *SQLiteStore) Search(ctx context.Context, query string) ([]*domain.Problem, error) {
	like := "%" + escapeLike(query) + "%"
	q := `SELECT ` + problemColumns + ` FROM problems
		WHERE original_input LIKE ? ESCAPE '\'
		   OR extracted_text LIKE ? ESCAPE '\'
		   OR title LIKE ? ESCAPE '\'
		ORDER BY created_at DESC`
	return s.queryProblems(ctx, q, like, like, like)
}

func (s *SQLiteStore) queryProblems(ctx context.Context, query string, args ...interface{}) ([]*domain.Problem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query problems: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close problem rows", "error", closeErr)
		}
	}()

	var problems []*domain.Problem
	for rows.Next() {
		p, err := scanProblem(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan problem row: %w", err)
		}
		problems = append(problems, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate problems: %w", err)
	}
	return problems, nil
}

// DeleteProblem removes a problem and cascades its chat messages.
func (s *SQLiteStore) DeleteProblem(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM problems WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete problem: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("DeleteProblem affected 0 rows", "problem_id", id)
	}
	return nil
}

// SaveChatMessage appends one conversation turn. Retries on SQLITE_BUSY so a
// concurrent solve cannot drop a user's turn.
func (s *SQLiteStore) SaveChatMessage(ctx context.Context, m *domain.ChatMessage) error {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	query := `
	INSERT INTO chat_messages (id, problem_id, body, from_user, created_at)
	VALUES (?, ?, ?, ?, ?)`

	var err error
	for i := 0; i < maxRetries; i++ {
		_, err = s.db.ExecContext(ctx, query,
			m.ID, m.ProblemID, m.Text, m.FromUser, m.CreatedAt.UnixNano(),
		)
		if err == nil {
			return nil
		}
		if shared.IsSQLiteConflictError(err) && i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i) // 100ms, 200ms, 400ms
			slog.Debug("SaveChatMessage hit SQLITE_BUSY, retrying",
				"problem_id", m.ProblemID,
				"attempt", i+1,
				"delay", delay)
			time.Sleep(delay)
			continue
		}
		break
	}
	if shared.IsSQLiteConstraintError(err) {
		// Foreign-key failure: the problem was deleted under us.
		return fmt.Errorf("save chat message: problem %s no longer exists: %w", m.ProblemID, err)
	}
	return fmt.Errorf("save chat message: %w", err)
}

// ListChatMessages returns all messages for a problem, oldest first.
// Nanosecond timestamps keep same-second turns ordered; rowid breaks ties.
func (s *SQLiteStore) ListChatMessages(ctx context.Context, problemID string) ([]*domain.ChatMessage, error) {
	query := `
	SELECT id, problem_id, body, from_user, created_at
	FROM chat_messages WHERE problem_id = ?
	ORDER BY created_at ASC, rowid ASC`

	rows, err := s.db.QueryContext(ctx, query, problemID)
	if err != nil {
		return nil, fmt.Errorf("query chat messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close chat message rows", "error", closeErr)
		}
	}()

	var messages []*domain.ChatMessage
	for rows.Next() {
		var m domain.ChatMessage
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.ProblemID, &m.Text, &m.FromUser, &createdAt); err != nil {
			return nil, fmt.Errorf("scan chat message row: %w", err)
		}
		m.CreatedAt = time.Unix(0, createdAt)
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat messages: %w", err)
	}
	return messages, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
