package renderer

import (
	"fmt"
	"strings"
	"time"
)

// Preview renders tpl with data, substituting sample values for every
// variable data does not provide. Sample values are picked from the
// variable name so the output reads like a real notification.
func (r *Renderer) Preview(tpl string, data map[string]any) (string, error) {
	sample := deepClone(data)
	if sample == nil {
		sample = map[string]any{}
	}

	s := Scan(tpl)
	// collections first so their binder sub-paths can shape the sample items
	for _, ref := range s.Refs {
		if ref.Kind == RefCollection && !has(sample, ref.Path) {
			set(sample, ref.Path, r.sampleCollection(tpl, ref.Path))
		}
	}
	for _, ref := range s.Refs {
		if ref.Kind == RefCollection || s.isBound(ref.Path) || has(sample, ref.Path) {
			continue
		}
		set(sample, ref.Path, r.sampleValue(ref.Path))
	}

	return r.Render(tpl, sample)
}

// sampleCollection builds two items for a loop over path. Item fields come
// from binder sub-paths used in the template.
func (r *Renderer) sampleCollection(tpl, path string) []any {
	binders := loopBinders(tpl, path)
	s := Scan(tpl)

	items := make([]any, 0, 2)
	for i := 1; i <= 2; i++ {
		item := map[string]any{}
		for _, ref := range s.Refs {
			for _, b := range binders {
				if rest, ok := strings.CutPrefix(ref.Path, b+"."); ok {
					set(item, rest, r.sampleValue(rest))
				}
			}
		}
		if len(item) == 0 {
			items = append(items, fmt.Sprintf("Sample item %d", i))
			continue
		}
		items = append(items, item)
	}
	return items
}

func loopBinders(tpl, collection string) []string {
	var binders []string
	for _, m := range tokenRe.FindAllStringSubmatch(tpl, -1) {
		if m[2] == "" {
			continue
		}
		fm := forRe.FindStringSubmatch(strings.TrimSpace(m[2]))
		if fm == nil || strings.TrimSpace(fm[3]) != collection {
			continue
		}
		binders = append(binders, fm[1])
		if fm[2] != "" {
			binders = append(binders, fm[2])
		}
	}
	return binders
}

func (r *Renderer) sampleValue(path string) string {
	name := strings.ToLower(path)
	switch {
	case strings.Contains(name, "email"):
		return "user@example.com"
	case strings.Contains(name, "url"), strings.Contains(name, "link"):
		return "https://example.com"
	case strings.Contains(name, "date"), strings.Contains(name, "time"):
		return r.now().UTC().Format(time.RFC3339)
	case strings.Contains(name, "count"), strings.Contains(name, "amount"):
		return "3"
	case strings.Contains(name, "name"):
		return "Jane Doe"
	}
	last := path
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		last = path[i+1:]
	}
	return "[" + last + "]"
}
