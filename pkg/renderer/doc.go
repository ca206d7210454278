// Package renderer renders and validates notification templates.
//
// Templates use Django-style syntax executed by github.com/flosch/pongo2/v6:
//
//	Hello {{ recipient.name }}!
//	{% if order.items %}
//	{% for item in order.items %}- {{ item.title }}
//	{% endfor %}
//	{% else %}Your cart is empty.{% endif %}
//
// Render never fails because of a missing variable; absent values render as
// the value set by WithMissingValue. Syntax errors match ErrRender and carry
// their position in a *RenderError.
//
// Scan and ExtractVariables perform a lexical pass over the source that does
// not depend on the template compiling, so the variable list is available
// even for broken templates. ValidateForEvent checks that list against the
// variables an event declares.
//
// ParseContent splits the optional "KEY: value" header from the body:
//
//	subject: Welcome
//	---
//	Body text
package renderer
