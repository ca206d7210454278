package templates_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/templates"
)

const schemaYAML = `
events:
  INVOICE_PAID:
    description: An invoice was paid.
    variables: [invoice.number, invoice.total]
  USER_REGISTERED:
    variables: [user.name, promo_code]
`

func TestSchemaRegistry_Defaults(t *testing.T) {
	t.Parallel()

	r := templates.NewSchemaRegistry()
	assert.Equal(t, []string{
		templates.EventOrderCreated,
		templates.EventPasswordReset,
		templates.EventUserRegistered,
	}, r.Events())

	declared, ok := r.Declared(templates.EventPasswordReset)
	require.True(t, ok)
	assert.Contains(t, declared, "recipient")
	assert.Contains(t, declared, "reset_url")

	_, ok = r.Declared("UNKNOWN")
	assert.False(t, ok)
}

func TestParseSchemas(t *testing.T) {
	t.Parallel()

	schemas, err := templates.ParseSchemas([]byte(schemaYAML))
	require.NoError(t, err)
	require.Len(t, schemas, 2)
	assert.Equal(t, "INVOICE_PAID", schemas[0].EventKey)
	assert.Equal(t, []string{"invoice.number", "invoice.total"}, schemas[0].Variables)

	r := templates.NewSchemaRegistry(schemas...)
	s, ok := r.Lookup(templates.EventUserRegistered)
	require.True(t, ok)
	assert.Equal(t, []string{"user.name", "promo_code"}, s.Variables, "file overrides built-in schema")

	_, err = templates.ParseSchemas([]byte("events: [oops"))
	assert.ErrorIs(t, err, templates.ErrInvalidSchema)
}

func TestLoadSchemas(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "schemas.yaml")
	require.NoError(t, os.WriteFile(path, []byte(schemaYAML), 0o600))

	schemas, err := templates.LoadSchemas(path)
	require.NoError(t, err)
	assert.Len(t, schemas, 2)

	_, err = templates.LoadSchemas(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, templates.ErrInvalidSchema)
}
