package renderer

import (
	"errors"
	"maps"
	"regexp"
	"strings"
	"time"

	"github.com/flosch/pongo2/v6"

	"github.com/dmitrymomot/notifykit/pkg/cache"
)

const (
	autoescapeOff = "{% autoescape off %}"
	autoescapeEnd = "{% endautoescape %}"

	defaultCacheSize = 256
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Renderer compiles and executes notification templates.
// It is safe for concurrent use.
type Renderer struct {
	missing    string
	autoescape bool
	cacheSize  int
	now        func() time.Time
	compiled   *cache.LRU[string, *pongo2.Template]
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithMissingValue sets the text rendered in place of variables absent from
// the data map. The default is the empty string.
func WithMissingValue(v string) Option {
	return func(r *Renderer) { r.missing = v }
}

// WithAutoescape toggles HTML escaping of interpolated values. Off by default;
// enable it for channels whose body is HTML.
func WithAutoescape(on bool) Option {
	return func(r *Renderer) { r.autoescape = on }
}

// WithCacheSize sets how many compiled templates are kept. Zero disables caching.
func WithCacheSize(n int) Option {
	return func(r *Renderer) { r.cacheSize = n }
}

// WithClock overrides the time source used by Preview.
func WithClock(now func() time.Time) Option {
	return func(r *Renderer) {
		if now != nil {
			r.now = now
		}
	}
}

// New creates a Renderer.
func New(opts ...Option) *Renderer {
	r := &Renderer{
		cacheSize: defaultCacheSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cacheSize > 0 {
		r.compiled = cache.New[string, *pongo2.Template](r.cacheSize)
	}
	return r
}

// Render executes tpl against data. Variables missing from data render as
// the configured missing value; only template syntax or execution failures
// return an error, always matching ErrRender.
func (r *Renderer) Render(tpl string, data map[string]any) (string, error) {
	t, err := r.compile(tpl)
	if err != nil {
		return "", err
	}

	ctx := r.context(tpl, data)
	out, err := t.Execute(ctx)
	if err != nil {
		return "", r.wrap(err)
	}
	return out, nil
}

// context prepares the execution context: keys that are not valid
// identifiers are dropped and missing interpolations get the default value.
func (r *Renderer) context(tpl string, data map[string]any) pongo2.Context {
	ctx := make(pongo2.Context, len(data))
	for k, v := range data {
		if identRe.MatchString(k) {
			ctx[k] = v
		}
	}
	if r.missing == "" {
		return ctx
	}

	s := Scan(tpl)
	var missing []string
	for _, ref := range s.Refs {
		if ref.Kind != RefInterpolation || ref.HasDefault || s.isBound(ref.Path) {
			continue
		}
		if !has(ctx, ref.Path) {
			missing = append(missing, ref.Path)
		}
	}
	if len(missing) == 0 {
		return ctx
	}

	filled := pongo2.Context(deepClone(ctx))
	for _, path := range missing {
		set(filled, path, r.missing)
	}
	return filled
}

func (r *Renderer) compile(tpl string) (*pongo2.Template, error) {
	src := r.source(tpl)
	if r.compiled == nil {
		return r.parse(src)
	}
	if t, ok := r.compiled.Get(src); ok {
		return t, nil
	}
	t, err := r.parse(src)
	if err != nil {
		return nil, err
	}
	r.compiled.Put(src, t)
	return t, nil
}

func (r *Renderer) parse(src string) (*pongo2.Template, error) {
	t, err := pongo2.FromString(src)
	if err != nil {
		return nil, r.wrap(err)
	}
	return t, nil
}

// wrap converts an engine error into a *RenderError with positions relative
// to the caller's template.
func (r *Renderer) wrap(err error) error {
	re := &RenderError{Err: err}
	var perr *pongo2.Error
	if errors.As(err, &perr) {
		re.Line = perr.Line
		re.Column = perr.Column
		if perr.Token != nil {
			re.Token = perr.Token.Val
		}
		if perr.OrigError != nil {
			re.Err = perr.OrigError
		}
		if !r.autoescape && re.Line == 1 && re.Column > len(autoescapeOff) {
			re.Column -= len(autoescapeOff)
		}
	}
	return re
}

// has reports whether path resolves in data. Paths that walk through
// non-map values are treated as present since they can't be checked.
func has(data map[string]any, path string) bool {
	cur := any(data)
	for seg := range strings.SplitSeq(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return true
		}
		v, ok := m[seg]
		if !ok || v == nil {
			return false
		}
		cur = v
	}
	return true
}

// set writes value at path, creating intermediate maps. Existing non-map
// values along the path are left alone.
func set(data map[string]any, path string, value any) {
	segs := strings.Split(path, ".")
	cur := data
	for i, seg := range segs {
		if i == len(segs)-1 {
			if v, ok := cur[seg]; !ok || v == nil {
				cur[seg] = value
			}
			return
		}
		next, ok := cur[seg]
		if !ok || next == nil {
			m := map[string]any{}
			cur[seg] = m
			cur = m
			continue
		}
		m, ok := asMap(next)
		if !ok {
			return
		}
		cur = m
	}
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case pongo2.Context:
		return m, true
	}
	return nil, false
}

func deepClone(m map[string]any) map[string]any {
	out := maps.Clone(m)
	for k, v := range out {
		if nested, ok := asMap(v); ok {
			out[k] = deepClone(nested)
		}
	}
	return out
}
