package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/issueflow/internal/workflow"
)

// The repo tests need a real Postgres; point ISSUEFLOW_TEST_DATABASE_URL
// at a scratch database to run them.
func testRepo(t *testing.T) *EventsRepo {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}
	dsn := os.Getenv("ISSUEFLOW_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("ISSUEFLOW_TEST_DATABASE_URL not set")
	}

	db, err := Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewEventsRepo(db)
	require.NoError(t, repo.EnsureSchema(context.Background()))
	_, err = db.Exec("TRUNCATE workflow_events")
	require.NoError(t, err)
	return repo
}

func TestRecordAndList(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Record(ctx, workflow.AuditEvent{
		Repo:      "acme/widgets",
		Number:    11,
		Trigger:   "issue-opened",
		Iteration: 1,
		Detail:    "issue #7, branch fix-issue-7, 2 files",
	}))
	require.NoError(t, repo.Record(ctx, workflow.AuditEvent{
		Repo:      "acme/widgets",
		Number:    11,
		Trigger:   "review-comment",
		Verdict:   "request changes",
		Iteration: 2,
	}))
	require.NoError(t, repo.Record(ctx, workflow.AuditEvent{
		Repo:    "acme/gadgets",
		Number:  11,
		Trigger: "check-run",
	}))

	events, err := repo.ListByPullRequest(ctx, "acme/widgets", 11)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "issue-opened", events[0].Trigger)
	assert.Equal(t, "review-comment", events[1].Trigger)
	assert.Equal(t, "request changes", events[1].Verdict)
	assert.NotEmpty(t, events[0].ID)
	assert.False(t, events[0].CreatedAt.IsZero())
}

func TestListEmptyIsNotNil(t *testing.T) {
	repo := testRepo(t)

	events, err := repo.ListByPullRequest(context.Background(), "acme/widgets", 99)

	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}
