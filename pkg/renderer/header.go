package renderer

import (
	"strings"
)

// HeaderSeparator terminates the metadata header of template content.
const HeaderSeparator = "---"

// Metadata holds provider directives decoded from a template header.
// Keys are lower-case.
type Metadata map[string]string

// Get returns the value for key, matching case-insensitively.
func (m Metadata) Get(key string) string {
	return m[strings.ToLower(key)]
}

// GetOr returns the value for key or fallback when it is unset or blank.
func (m Metadata) GetOr(key, fallback string) string {
	if v := strings.TrimSpace(m.Get(key)); v != "" {
		return v
	}
	return fallback
}

// ParseContent splits template content into its metadata header and body.
//
//	subject: Welcome, {{ recipient.name }}
//	from: hello@example.com
//	---
//	Thanks for signing up.
//
// Content without a separator line has no header and is returned unchanged
// as the body, as is content whose lines above the separator are not all
// KEY: value pairs.
func ParseContent(content string) (Metadata, string) {
	normalized := strings.ReplaceAll(content, "\r\n", "\n")

	lines := strings.Split(normalized, "\n")
	sep := -1
	for i, line := range lines {
		if strings.TrimSpace(line) == HeaderSeparator {
			sep = i
			break
		}
	}
	if sep < 0 {
		return Metadata{}, content
	}

	meta := make(Metadata, sep)
	for _, line := range lines[:sep] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		key = strings.ToLower(strings.TrimSpace(key))
		if !ok || key == "" || strings.ContainsAny(key, " \t{") {
			// not a header, the separator belongs to the body
			return Metadata{}, content
		}
		meta[key] = strings.TrimSpace(value)
	}

	body := strings.Join(lines[sep+1:], "\n")
	return meta, strings.TrimLeft(body, "\n")
}

// FormatContent is the inverse of ParseContent. Keys are written in the
// order given by keys; a nil or empty header yields the body unchanged.
func FormatContent(meta Metadata, keys []string, body string) string {
	if len(meta) == 0 {
		return body
	}
	var b strings.Builder
	for _, k := range keys {
		if v, ok := meta[k]; ok {
			b.WriteString(k)
			b.WriteString(": ")
			b.WriteString(v)
			b.WriteByte('\n')
		}
	}
	b.WriteString(HeaderSeparator)
	b.WriteByte('\n')
	b.WriteString(body)
	return b.String()
}

// RenderMetadata renders every header value against data.
func (r *Renderer) RenderMetadata(meta Metadata, data map[string]any) (Metadata, error) {
	out := make(Metadata, len(meta))
	for k, v := range meta {
		if !strings.Contains(v, "{") {
			out[k] = v
			continue
		}
		rendered, err := r.Render(v, data)
		if err != nil {
			return nil, err
		}
		out[k] = strings.TrimSpace(rendered)
	}
	return out, nil
}
