package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brandhub/backend/internal/config"
	"brandhub/backend/internal/db"
	"brandhub/backend/internal/research"
)

func newTestStore(t *testing.T) (Store, *sql.DB) {
	t.Helper()
	ctx := context.Background()
	database, err := db.Open(ctx, config.Config{TursoDatabaseURL: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, db.EnsureSchema(ctx, database))
	return NewStore(database), database
}

func finishedSession(id string, startedAt time.Time) *research.Session {
	synthesis := &research.Synthesis{AnswerText: "Remote work cut demand [1].", Confidence: 0.82}
	return &research.Session{
		ID:              id,
		Query:           "impact of remote work on office demand",
		Complexity:      research.ComplexityComplex,
		UseProModel:     true,
		Status:          research.StatusCompleted,
		Message:         research.Message(research.CodeNone),
		RoundsCompleted: 1,
		AccumulatedCost: 0.0634,
		EstimatedCost:   0.17325,
		StartedAt:       startedAt,
		FinishedAt:      startedAt.Add(42 * time.Second),
		Warnings:        []string{"Round 1: 1 of 5 searches failed."},
		Rounds: []research.Round{{
			Index:        1,
			SubQuestions: []research.SubQuestion{{ID: "q1", Question: "office vacancy", Priority: research.PriorityHigh}},
			SearchResults: []research.SearchResult{{
				SubQuestionID: "q1",
				Query:         "office vacancy",
				Summary:       "- Report: vacancy rose",
				Sources:       []research.Source{{Title: "Report", URL: "https://example.com/report"}},
				CostIncurred:  0.015,
			}},
			Synthesis: synthesis,
		}},
		Answer: research.Answer{
			AnswerText: synthesis.AnswerText,
			Sources: []research.Source{
				{Title: "Report", URL: "https://example.com/report"},
				{Title: "Survey", URL: "https://example.com/survey"},
			},
			Confidence:      0.82,
			RoundsCompleted: 1,
			CostIncurred:    0.0634,
		},
	}
}

func TestSaveAndGetSession(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	startedAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	session := finishedSession("s-1", startedAt)

	require.NoError(t, store.SaveSession(ctx, session))
	got, err := store.GetSession(ctx, "s-1")
	require.NoError(t, err)

	assert.Equal(t, session.Query, got.Query)
	assert.Equal(t, research.ComplexityComplex, got.Complexity)
	assert.True(t, got.UseProModel)
	assert.Equal(t, research.StatusCompleted, got.Status)
	assert.True(t, got.StartedAt.Equal(startedAt))
	assert.Equal(t, 42*time.Second, got.Duration())
	assert.Equal(t, session.Answer, got.Answer)
	assert.Equal(t, session.Warnings, got.Warnings)
	require.Len(t, got.Rounds, 1)
	assert.Equal(t, session.Rounds[0].SearchResults, got.Rounds[0].SearchResults)
	require.NotNil(t, got.Rounds[0].Synthesis)
	assert.InDelta(t, 0.82, got.Rounds[0].Synthesis.Confidence, 1e-9)
}

func TestSaveSessionReplacesSources(t *testing.T) {
	store, database := newTestStore(t)
	ctx := context.Background()
	session := finishedSession("s-1", time.Now())
	require.NoError(t, store.SaveSession(ctx, session))

	session.Status = research.StatusPartial
	session.Code = research.CodeTimeout
	session.Answer.Sources = session.Answer.Sources[:1]
	require.NoError(t, store.SaveSession(ctx, session))

	got, err := store.GetSession(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, research.StatusPartial, got.Status)
	assert.Equal(t, research.CodeTimeout, got.Code)
	assert.Len(t, got.Answer.Sources, 1)

	var rows int
	require.NoError(t, database.QueryRowContext(ctx, `SELECT COUNT(*) FROM research_sessions`).Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestGetSessionNotFound(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveSessionRequiresID(t *testing.T) {
	store, _ := newTestStore(t)

	assert.Error(t, store.SaveSession(context.Background(), nil))
	assert.Error(t, store.SaveSession(context.Background(), &research.Session{}))
}

func TestListSessionsNewestFirst(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveSession(ctx, finishedSession("older", base)))
	require.NoError(t, store.SaveSession(ctx, finishedSession("newer", base.Add(500*time.Millisecond))))
	require.NoError(t, store.SaveSession(ctx, finishedSession("newest", base.Add(time.Minute))))

	items, err := store.ListSessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"newest", "newer", "older"}, []string{items[0].ID, items[1].ID, items[2].ID})
	assert.InDelta(t, 0.0634, items[0].CostUSD, 1e-9)

	limited, err := store.ListSessions(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
