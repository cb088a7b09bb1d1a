package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const ImportCompletedRoutingKey = "terminology.import.completed"

// ImportCompletedEvent is emitted after a queued import batch commits.
type ImportCompletedEvent struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	System     string    `json:"system"`
	Concepts   int       `json:"concepts"`
	Properties int       `json:"properties"`
	OccurredAt time.Time `json:"occurredAt"`
}

func (p *Publisher) PublishImportCompletedEvent(ctx context.Context, event *ImportCompletedEvent) error {
	if ctx == nil {
		return errors.New("context cannot be nil")
	}

	if event == nil {
		return errors.New("event cannot be nil")
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	if event.Source == "" {
		event.Source = EventsSource
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to marshal import completed event")
	}

	if err := p.Publish(ctx, data, ImportCompletedRoutingKey); err != nil {
		return errors.Wrap(err, "failed to publish import completed event")
	}

	return nil
}
