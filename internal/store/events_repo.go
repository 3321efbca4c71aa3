package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/issueflow/internal/workflow"
)

// Event is one persisted workflow action. The trail is append-only and
// diagnostic; the workflow itself never reads it back.
type Event struct {
	ID        string    `json:"id" db:"id"`
	Repo      string    `json:"repo" db:"repo"`
	Number    int       `json:"number" db:"number"`
	Trigger   string    `json:"trigger" db:"trigger_name"`
	Verdict   string    `json:"verdict,omitempty" db:"verdict"`
	Iteration int       `json:"iteration" db:"iteration"`
	Detail    string    `json:"detail,omitempty" db:"detail"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// EventsRepo persists workflow events. It implements workflow.Recorder.
type EventsRepo struct {
	db *sql.DB
}

var _ workflow.Recorder = (*EventsRepo)(nil)

// NewEventsRepo returns a repo over db.
func NewEventsRepo(db *sql.DB) *EventsRepo {
	return &EventsRepo{db: db}
}

// EnsureSchema creates the events table when missing.
func (r *EventsRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS workflow_events (
			id UUID PRIMARY KEY,
			repo TEXT NOT NULL,
			number INTEGER NOT NULL,
			trigger_name TEXT NOT NULL,
			verdict TEXT NOT NULL DEFAULT '',
			iteration INTEGER NOT NULL DEFAULT 0,
			detail TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	return err
}

// Record inserts one audit row.
func (r *EventsRepo) Record(ctx context.Context, event workflow.AuditEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO workflow_events (id, repo, number, trigger_name, verdict, iteration, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.New().String(), event.Repo, event.Number, event.Trigger, event.Verdict, event.Iteration, event.Detail, time.Now().UTC())
	return err
}

// ListByPullRequest returns the trail for one pull request, oldest first.
func (r *EventsRepo) ListByPullRequest(ctx context.Context, repo string, number int) ([]*Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, repo, number, trigger_name, verdict, iteration, detail, created_at
		FROM workflow_events
		WHERE repo = $1 AND number = $2
		ORDER BY created_at`,
		repo, number)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	// Allocate so JSON encodes to [] rather than null when empty.
	events := make([]*Event, 0)
	for rows.Next() {
		var event Event
		if err := rows.Scan(&event.ID, &event.Repo, &event.Number, &event.Trigger, &event.Verdict, &event.Iteration, &event.Detail, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, &event)
	}
	return events, rows.Err()
}
