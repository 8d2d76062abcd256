package river

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/riverqueue/river"

	"github.com/neomorfeo/stageline/internal/domain"
)

// Compile-time check: Publisher implements domain.EventPublisher.
var _ domain.EventPublisher = (*Publisher)(nil)

// StageEventJobArgs carries the data needed to process a stage
// configuration event asynchronously. River serializes this as JSON into
// its job queue table. It includes a snapshot of the stage at the time the
// event was published, so the worker never needs to query the database.
type StageEventJobArgs struct {
	Event    string `json:"event"`
	TenantID string `json:"tenant_id"`
	StageID  string `json:"stage_id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Position int    `json:"position"`
}

// Kind returns the unique job type identifier used by River's job routing.
func (StageEventJobArgs) Kind() string { return "stage_event.published" }

// Client is the River client type parameterized for SQLite (*sql.Tx).
type Client = river.Client[*sql.Tx]

// Publisher implements domain.EventPublisher by enqueuing River jobs.
type Publisher struct {
	client *Client
}

// NewPublisher creates a publisher backed by the given River client.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// Publish enqueues a stage configuration event as an async job in River.
// For generic stages the tenant id identifies whose view changed, since
// the stage itself carries no owner.
func (p *Publisher) Publish(ctx context.Context, event domain.Event, tenantID string, stage domain.Stage) error {
	_, err := p.client.Insert(ctx, StageEventJobArgs{
		Event:    string(event),
		TenantID: tenantID,
		StageID:  stage.ID,
		Name:     stage.Name,
		Category: string(stage.Category),
		Position: stage.Position,
	}, nil)
	if err != nil {
		return fmt.Errorf("enqueuing stage event job: %w", err)
	}
	return nil
}
