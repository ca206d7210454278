package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// FilterAction defines the action to take on matched metadata fields
type FilterAction string

const (
	FilterActionRemove FilterAction = "remove"
	FilterActionHash   FilterAction = "hash"
	FilterActionMask   FilterAction = "mask"
)

// Fields filtered unless WithoutPIIDefaults is used. Keys are matched
// case-insensitively; a leading or trailing "*" matches a suffix or prefix.
var defaultPIIFields = map[string]FilterAction{
	"password":     FilterActionRemove,
	"secret":       FilterActionRemove,
	"token":        FilterActionRemove,
	"*_token":      FilterActionRemove,
	"api_key":      FilterActionRemove,
	"device_token": FilterActionRemove,
	"email":        FilterActionHash,
	"to":           FilterActionHash,
	"reply_to":     FilterActionHash,
	"phone":        FilterActionMask,
	"phone_number": FilterActionMask,
}

// MetadataFilter scrubs sensitive values from audit record metadata.
type MetadataFilter struct {
	custom    map[string]FilterAction
	allowed   map[string]bool
	filterPII bool
}

// FilterOption configures MetadataFilter behavior
type FilterOption func(*MetadataFilter)

// NewMetadataFilter creates a new metadata filter with default PII filtering enabled
func NewMetadataFilter(opts ...FilterOption) *MetadataFilter {
	f := &MetadataFilter{
		custom:    make(map[string]FilterAction),
		allowed:   make(map[string]bool),
		filterPII: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// WithCustomField adds a custom field filter rule
func WithCustomField(field string, action FilterAction) FilterOption {
	return func(f *MetadataFilter) {
		f.custom[strings.ToLower(field)] = action
	}
}

// WithAllowedField explicitly allows a field to pass through without filtering
func WithAllowedField(field string) FilterOption {
	return func(f *MetadataFilter) {
		f.allowed[strings.ToLower(field)] = true
	}
}

// WithoutPIIDefaults disables default PII field filtering
func WithoutPIIDefaults() FilterOption {
	return func(f *MetadataFilter) {
		f.filterPII = false
	}
}

// Filter returns a filtered copy of metadata. Nested maps are filtered recursively.
func (f *MetadataFilter) Filter(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}

	out := make(map[string]any, len(metadata))
	for key, value := range metadata {
		lower := strings.ToLower(key)
		if f.allowed[lower] {
			out[key] = value
			continue
		}

		action, ok := f.lookup(lower)
		if !ok {
			if nested, isMap := value.(map[string]any); isMap {
				value = f.Filter(nested)
			}
			out[key] = value
			continue
		}

		switch action {
		case FilterActionRemove:
		case FilterActionHash:
			out[key] = hashValue(value)
		case FilterActionMask:
			out[key] = maskValue(value)
		default:
			out[key] = value
		}
	}
	return out
}

func (f *MetadataFilter) lookup(key string) (FilterAction, bool) {
	if a, ok := f.custom[key]; ok {
		return a, true
	}
	if a, ok := matchWildcard(key, f.custom); ok {
		return a, true
	}
	if !f.filterPII {
		return "", false
	}
	if a, ok := defaultPIIFields[key]; ok {
		return a, true
	}
	return matchWildcard(key, defaultPIIFields)
}

func matchWildcard(key string, rules map[string]FilterAction) (FilterAction, bool) {
	for pattern, action := range rules {
		switch {
		case strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*") && len(pattern) > 2:
			if strings.Contains(key, pattern[1:len(pattern)-1]) {
				return action, true
			}
		case strings.HasPrefix(pattern, "*"):
			if strings.HasSuffix(key, pattern[1:]) {
				return action, true
			}
		case strings.HasSuffix(pattern, "*"):
			if strings.HasPrefix(key, pattern[:len(pattern)-1]) {
				return action, true
			}
		}
	}
	return "", false
}

func hashValue(value any) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%v", value)))
	return hex.EncodeToString(sum[:])
}

// maskValue keeps the first and last two characters of long values.
func maskValue(value any) string {
	s := fmt.Sprintf("%v", value)
	n := len(s)
	switch {
	case n <= 4:
		return strings.Repeat("*", n)
	case n <= 8:
		return s[:1] + strings.Repeat("*", n-2) + s[n-1:]
	default:
		return s[:2] + strings.Repeat("*", n-4) + s[n-2:]
	}
}
