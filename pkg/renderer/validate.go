package renderer

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Issue is a single problem found while validating a template.
type Issue struct {
	Variable string `json:"variable,omitempty"`
	Message  string `json:"message"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
}

// ValidationResult summarises a template check.
type ValidationResult struct {
	Valid     bool     `json:"valid"`
	Variables []string `json:"variables"`
	Issues    []Issue  `json:"issues,omitempty"`
}

// Err joins the issues into a single error, or returns nil when valid.
func (v ValidationResult) Err() error {
	if v.Valid {
		return nil
	}
	errs := make([]error, 0, len(v.Issues))
	for _, is := range v.Issues {
		errs = append(errs, errors.New(is.Message))
	}
	return errors.Join(errs...)
}

// Validate parses tpl without executing it, reporting syntax errors and
// the variables it references. It neither renders nor caches.
func (r *Renderer) Validate(tpl string) ValidationResult {
	res := ValidationResult{Valid: true, Variables: ExtractVariables(tpl)}

	if strings.TrimSpace(tpl) == "" {
		res.Valid = false
		res.Issues = append(res.Issues, Issue{Message: ErrEmptyTemplate.Error()})
		return res
	}

	if _, err := r.parse(r.source(tpl)); err != nil {
		res.Valid = false
		is := Issue{Message: err.Error()}
		var re *RenderError
		if errors.As(err, &re) {
			is.Line, is.Column = re.Line, re.Column
		}
		res.Issues = append(res.Issues, is)
	}
	return res
}

// ValidateForEvent validates tpl and checks every referenced variable
// against declared, producing one issue per undeclared variable. Loop and
// assignment binders are always allowed, and a declared path allows its
// sub-paths (declaring "user" allows "user.name").
func (r *Renderer) ValidateForEvent(tpl string, declared []string) ValidationResult {
	res := r.Validate(tpl)
	s := Scan(tpl)

	for _, v := range res.Variables {
		if s.isBound(v) || Declared(v, declared) {
			continue
		}
		res.Valid = false
		res.Issues = append(res.Issues, Issue{
			Variable: v,
			Message:  fmt.Sprintf("variable %q is not declared for this event", v),
		})
	}
	return res
}

// Declared reports whether path is covered by the declared variable set.
func Declared(path string, declared []string) bool {
	if slices.Contains(declared, path) {
		return true
	}
	for _, d := range declared {
		if strings.HasPrefix(path, d+".") || strings.HasPrefix(d, path+".") {
			return true
		}
	}
	return false
}

func (r *Renderer) source(tpl string) string {
	if r.autoescape {
		return tpl
	}
	return autoescapeOff + tpl + autoescapeEnd
}
