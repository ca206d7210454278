package templates

import (
	"context"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// Storage persists templates.
type Storage interface {
	// Create stores t. It returns ErrDuplicateTemplate when a template with
	// the same key exists and leaves the existing record untouched.
	Create(ctx context.Context, t Template) error
	Get(ctx context.Context, id uuid.UUID) (Template, error)
	GetByKey(ctx context.Context, key Key) (Template, error)
	// ListByEvent returns the templates of an event ordered by channel.
	ListByEvent(ctx context.Context, eventKey string, activeOnly bool) ([]Template, error)
	// Update replaces the stored template with the same ID.
	Update(ctx context.Context, t Template) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f Filter) ([]Template, error)
	EventKeys(ctx context.Context) ([]string, error)
	CountActiveByChannel(ctx context.Context) (map[notifications.Channel]int, error)
}
