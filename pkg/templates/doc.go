// Package templates manages notification templates keyed by event and
// channel.
//
// Template content may start with a header of provider directives ended by
// a "---" line. The header is decoded once when the template is saved, so
// dispatchers receive Metadata and Body without re-parsing:
//
//	subject: Welcome, {{ recipient.name }}
//	tag: onboarding
//	---
//	Hi {{ recipient.name }}, confirm your address: {{ verification_url }}
//
// Manager validates content against the event's Schema before storing it.
// Events without a schema are checked for syntax only. Storage has an
// in-memory implementation and a PostgreSQL one whose goose migrations are
// embedded in Migrations.
package templates
