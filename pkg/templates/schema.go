package templates

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// Built-in event keys.
const (
	EventUserRegistered = "USER_REGISTERED"
	EventPasswordReset  = "PASSWORD_RESET"
	EventOrderCreated   = "ORDER_CREATED"
)

// Schema declares the data variables an event provides to its templates.
// Payload roots (recipient, event, category, timestamp, meta) are always
// available and need not be listed.
type Schema struct {
	EventKey    string   `yaml:"-" json:"event_key"`
	Description string   `yaml:"description" json:"description,omitempty"`
	Variables   []string `yaml:"variables" json:"variables"`
}

// SchemaConfig points at an optional YAML file of event schemas.
type SchemaConfig struct {
	File string `env:"TEMPLATE_SCHEMA_FILE"`
}

// DefaultSchemas returns the schemas of the built-in events.
func DefaultSchemas() []Schema {
	return []Schema{
		{
			EventKey:    EventUserRegistered,
			Description: "A new account was created.",
			Variables:   []string{"user.id", "user.name", "user.email", "verification_url", "app_name"},
		},
		{
			EventKey:    EventPasswordReset,
			Description: "A password reset was requested.",
			Variables:   []string{"user.name", "reset_url", "expires_at", "ip_address"},
		},
		{
			EventKey:    EventOrderCreated,
			Description: "An order was placed.",
			Variables:   []string{"order.id", "order.total", "order.currency", "order.items", "order_url"},
		},
	}
}

// SchemaRegistry maps event keys to their schemas.
type SchemaRegistry struct {
	mu      sync.RWMutex
	schemas map[string]Schema
}

// NewSchemaRegistry returns a registry holding the built-in schemas plus
// the given ones. Later schemas replace earlier ones for the same event.
func NewSchemaRegistry(schemas ...Schema) *SchemaRegistry {
	r := &SchemaRegistry{schemas: make(map[string]Schema)}
	for _, s := range DefaultSchemas() {
		r.Register(s)
	}
	for _, s := range schemas {
		r.Register(s)
	}
	return r
}

func (r *SchemaRegistry) Register(s Schema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.Variables = slices.Clone(s.Variables)
	r.schemas[s.EventKey] = s
}

// Lookup returns the schema for eventKey.
func (r *SchemaRegistry) Lookup(eventKey string) (Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[eventKey]
	return s, ok
}

// Declared returns the variables templates of eventKey may reference,
// payload roots included. ok is false for events without a schema.
func (r *SchemaRegistry) Declared(eventKey string) ([]string, bool) {
	s, ok := r.Lookup(eventKey)
	if !ok {
		return nil, false
	}
	return append(notifications.ReservedRoots(), s.Variables...), true
}

// Events returns the registered event keys in sorted order.
func (r *SchemaRegistry) Events() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.schemas))
}

type schemaFile struct {
	Events map[string]Schema `yaml:"events"`
}

// ParseSchemas decodes a YAML schema document:
//
//	events:
//	  INVOICE_PAID:
//	    description: An invoice was paid.
//	    variables: [invoice.number, invoice.total]
func ParseSchemas(data []byte) ([]Schema, error) {
	var f schemaFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Join(ErrInvalidSchema, err)
	}
	out := make([]Schema, 0, len(f.Events))
	for _, key := range slices.Sorted(maps.Keys(f.Events)) {
		if key == "" {
			return nil, fmt.Errorf("%w: empty event key", ErrInvalidSchema)
		}
		s := f.Events[key]
		s.EventKey = key
		out = append(out, s)
	}
	return out, nil
}

// LoadSchemas reads and decodes a YAML schema file.
func LoadSchemas(path string) ([]Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Join(ErrInvalidSchema, err)
	}
	return ParseSchemas(data)
}
