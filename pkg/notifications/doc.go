// Package notifications holds the domain types shared by every stage of the
// delivery pipeline: delivery channels, the event payload submitted by the
// host application, its recipient, and the normalised result a channel
// dispatcher returns.
//
// Payload.TemplateData flattens a payload into the variable map templates
// are rendered against:
//
//	{{ recipient.name }}   recipient fields (id, name, email, external_id)
//	{{ event }}            event key, also category and timestamp
//	{{ meta.source }}      caller supplied metadata
//	{{ order.total }}      every top-level key of Payload.Data
//
// Data keys never shadow the reserved roots.
package notifications
