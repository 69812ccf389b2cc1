package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"brandhub/backend/internal/research"
)

var ErrNotFound = errors.New("research session not found")

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SessionSummary is the list view of a stored session.
type SessionSummary struct {
	ID              string              `json:"id"`
	Query           string              `json:"query"`
	Complexity      research.Complexity `json:"complexity"`
	Status          research.Status     `json:"status"`
	Code            research.ErrorCode  `json:"code,omitempty"`
	RoundsCompleted int                 `json:"roundsCompleted"`
	CostUSD         float64             `json:"costUsd"`
	StartedAt       time.Time           `json:"startedAt"`
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) Store {
	return Store{db: db}
}

// SaveSession writes a finished session and replaces its sources.
func (s Store) SaveSession(ctx context.Context, session *research.Session) error {
	if session == nil || strings.TrimSpace(session.ID) == "" {
		return errors.New("session id is required")
	}

	warnings, err := json.Marshal(nonNil(session.Warnings))
	if err != nil {
		return fmt.Errorf("encode warnings: %w", err)
	}
	rounds, err := json.Marshal(session.Rounds)
	if err != nil {
		return fmt.Errorf("encode rounds: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save session: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
INSERT INTO research_sessions (
  id, query, complexity, use_pro_model, status, code, message, answer_text, confidence,
  rounds_completed, cost_usd, estimated_cost_usd, warnings_json, rounds_json, started_at, finished_at
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  status = excluded.status,
  code = excluded.code,
  message = excluded.message,
  answer_text = excluded.answer_text,
  confidence = excluded.confidence,
  rounds_completed = excluded.rounds_completed,
  cost_usd = excluded.cost_usd,
  warnings_json = excluded.warnings_json,
  rounds_json = excluded.rounds_json,
  finished_at = excluded.finished_at;
`
	if _, err := tx.ExecContext(ctx, query,
		session.ID,
		session.Query,
		string(session.Complexity),
		boolToInt(session.UseProModel),
		string(session.Status),
		string(session.Code),
		session.Message,
		session.Answer.AnswerText,
		session.Answer.Confidence,
		session.RoundsCompleted,
		session.AccumulatedCost,
		session.EstimatedCost,
		string(warnings),
		string(rounds),
		formatTime(session.StartedAt),
		formatTime(session.FinishedAt),
	); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM research_sources WHERE session_id = ?;`, session.ID); err != nil {
		return fmt.Errorf("clear session sources: %w", err)
	}
	for i, source := range session.Answer.Sources {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO research_sources (session_id, position, title, url) VALUES (?, ?, ?, ?);`,
			session.ID, i+1, source.Title, source.URL,
		); err != nil {
			return fmt.Errorf("save session source: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save session: %w", err)
	}
	return nil
}

func (s Store) GetSession(ctx context.Context, id string) (*research.Session, error) {
	query := `
SELECT id, query, complexity, use_pro_model, status, code, message, answer_text, confidence,
  rounds_completed, cost_usd, estimated_cost_usd, warnings_json, rounds_json, started_at, finished_at
FROM research_sessions
WHERE id = ?
LIMIT 1;
`
	var (
		out                      research.Session
		complexity, status, code string
		useProModel              int
		warnings, rounds         string
		startedAt, finishedAt    string
	)
	err := s.db.QueryRowContext(ctx, query, strings.TrimSpace(id)).Scan(
		&out.ID,
		&out.Query,
		&complexity,
		&useProModel,
		&status,
		&code,
		&out.Message,
		&out.Answer.AnswerText,
		&out.Answer.Confidence,
		&out.RoundsCompleted,
		&out.AccumulatedCost,
		&out.EstimatedCost,
		&warnings,
		&rounds,
		&startedAt,
		&finishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	out.Complexity = research.Complexity(complexity)
	out.Status = research.Status(status)
	out.Code = research.ErrorCode(code)
	out.UseProModel = useProModel != 0
	out.StartedAt = parseTime(startedAt)
	out.FinishedAt = parseTime(finishedAt)
	out.Answer.RoundsCompleted = out.RoundsCompleted
	out.Answer.CostIncurred = out.AccumulatedCost
	if err := json.Unmarshal([]byte(warnings), &out.Warnings); err != nil {
		return nil, fmt.Errorf("decode warnings: %w", err)
	}
	if err := json.Unmarshal([]byte(rounds), &out.Rounds); err != nil {
		return nil, fmt.Errorf("decode rounds: %w", err)
	}

	sources, err := s.sessionSources(ctx, out.ID)
	if err != nil {
		return nil, err
	}
	out.Answer.Sources = sources
	return &out, nil
}

// ListSessions returns the most recent sessions first.
func (s Store) ListSessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, query, complexity, status, code, rounds_completed, cost_usd, started_at
FROM research_sessions
ORDER BY started_at DESC, id DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := make([]SessionSummary, 0, limit)
	for rows.Next() {
		var (
			item                     SessionSummary
			complexity, status, code string
			startedAt                string
		)
		if err := rows.Scan(&item.ID, &item.Query, &complexity, &status, &code, &item.RoundsCompleted, &item.CostUSD, &startedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		item.Complexity = research.Complexity(complexity)
		item.Status = research.Status(status)
		item.Code = research.ErrorCode(code)
		item.StartedAt = parseTime(startedAt)
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

func (s Store) sessionSources(ctx context.Context, sessionID string) ([]research.Source, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT title, url FROM research_sources WHERE session_id = ? ORDER BY position ASC;`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list session sources: %w", err)
	}
	defer rows.Close()

	var out []research.Source
	for rows.Next() {
		var source research.Source
		if err := rows.Scan(&source.Title, &source.URL); err != nil {
			return nil, fmt.Errorf("scan session source: %w", err)
		}
		out = append(out, source)
	}
	return out, rows.Err()
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(timeLayout)
}

func parseTime(raw string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
