package renderer

import (
	"regexp"
	"slices"
	"strings"
)

// RefKind describes where a variable reference was found.
type RefKind int

const (
	// RefInterpolation is a {{ expr }} output.
	RefInterpolation RefKind = iota
	// RefCollection is the iterable of a {% for %} loop.
	RefCollection
	// RefGuard is a variable tested by {% if %} or {% elif %}.
	RefGuard
	// RefAssignment is a variable read by {% with %} or {% set %}.
	RefAssignment
)

// Ref is one variable reference in template source.
type Ref struct {
	Path   string
	Kind   RefKind
	Offset int
	// HasDefault is set when the interpolation pipes through the default filter.
	HasDefault bool
}

// Root returns the first segment of the reference path.
func (r Ref) Root() string {
	root, _, _ := strings.Cut(r.Path, ".")
	return root
}

// ScanResult is the lexical view of a template.
type ScanResult struct {
	// Refs holds every reference in source order, duplicates included.
	Refs []Ref
	// Binders are names introduced by for, with and set tags.
	Binders []string
}

func (s ScanResult) isBound(path string) bool {
	root, _, _ := strings.Cut(path, ".")
	return builtins[root] || slices.Contains(s.Binders, root)
}

// Variables returns the distinct reference paths in order of first appearance.
func (s ScanResult) Variables() []string {
	seen := make(map[string]struct{}, len(s.Refs))
	out := make([]string, 0, len(s.Refs))
	for _, ref := range s.Refs {
		if _, ok := seen[ref.Path]; ok {
			continue
		}
		seen[ref.Path] = struct{}{}
		out = append(out, ref.Path)
	}
	return out
}

var (
	tokenRe   = regexp.MustCompile(`(?s)\{\{(.*?)\}\}|\{%-?(.*?)-?%\}`)
	filterRe  = regexp.MustCompile(`\|\s*[A-Za-z_]\w*(?:\s*:\s*(?:"(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*'|[\w.]+))?`)
	stringRe  = regexp.MustCompile(`"(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*'`)
	pathRe    = regexp.MustCompile(`[A-Za-z_]\w*(?:\.\w+)*`)
	forRe     = regexp.MustCompile(`^for\s+(\w+)(?:\s*,\s*(\w+))?\s+in\s+(.+?)(?:\s+(?:reversed|sorted))*$`)
	defaultRe = regexp.MustCompile(`\|\s*default(?:_if_none)?\b`)
	assignRe  = regexp.MustCompile(`(\w+)\s*=\s*`)
)

// keywords are expression words that are never variables.
var keywords = map[string]bool{
	"and": true, "or": true, "not": true, "in": true, "is": true,
	"true": true, "false": true, "none": true, "nil": true,
	"True": true, "False": true, "None": true,
	"as": true, "only": true,
}

// builtins are names the engine defines inside templates.
var builtins = map[string]bool{
	"forloop": true,
}

// Scan lexically extracts variable references from tpl without parsing it.
// Interpolations are captured with filters stripped, loops contribute their
// collection, and conditional guards contribute their operands with
// operators and literals dropped.
func Scan(tpl string) ScanResult {
	var res ScanResult
	for _, m := range tokenRe.FindAllStringSubmatchIndex(tpl, -1) {
		if m[2] >= 0 {
			expr := tpl[m[2]:m[3]]
			hasDefault := defaultRe.MatchString(expr)
			for _, ref := range expressionRefs(expr, m[2]) {
				ref.Kind = RefInterpolation
				ref.HasDefault = hasDefault
				res.Refs = append(res.Refs, ref)
			}
			continue
		}
		res.scanTag(strings.TrimSpace(tpl[m[4]:m[5]]), m[4])
	}
	return res
}

func (s *ScanResult) scanTag(body string, offset int) {
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return
	}
	name := fields[0]
	rest := strings.TrimSpace(body[len(name):])

	switch name {
	case "if", "elif":
		s.add(expressionRefs(rest, offset), RefGuard)
	case "for":
		m := forRe.FindStringSubmatch("for " + rest)
		if m == nil {
			return
		}
		s.bind(m[1])
		if m[2] != "" {
			s.bind(m[2])
		}
		s.add(expressionRefs(m[3], offset), RefCollection)
	case "with", "set":
		for _, am := range assignRe.FindAllStringSubmatch(rest, -1) {
			s.bind(am[1])
		}
		s.add(expressionRefs(assignRe.ReplaceAllString(rest, " "), offset), RefAssignment)
	}
}

func (s *ScanResult) add(refs []Ref, kind RefKind) {
	for _, ref := range refs {
		ref.Kind = kind
		s.Refs = append(s.Refs, ref)
	}
}

func (s *ScanResult) bind(name string) {
	if !slices.Contains(s.Binders, name) {
		s.Binders = append(s.Binders, name)
	}
}

// expressionRefs returns variable paths in a template expression.
func expressionRefs(expr string, offset int) []Ref {
	clean := filterRe.ReplaceAllStringFunc(expr, blank)
	clean = stringRe.ReplaceAllStringFunc(clean, blank)

	var refs []Ref
	for _, loc := range pathRe.FindAllStringIndex(clean, -1) {
		if loc[0] > 0 {
			prev := clean[loc[0]-1]
			if prev == '.' || prev == '_' || isAlnum(prev) {
				continue
			}
		}
		path := clean[loc[0]:loc[1]]
		root, _, _ := strings.Cut(path, ".")
		if keywords[root] || builtins[root] {
			continue
		}
		// function calls such as now() are not variables
		if rest := strings.TrimLeft(clean[loc[1]:], " "); strings.HasPrefix(rest, "(") {
			continue
		}
		refs = append(refs, Ref{Path: path, Offset: offset + loc[0]})
	}
	return refs
}

// blank keeps offsets stable by replacing matched text with spaces.
func blank(s string) string {
	return strings.Repeat(" ", len(s))
}

func isAlnum(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// ExtractVariables returns the distinct variables referenced by tpl in
// order of first appearance.
func ExtractVariables(tpl string) []string {
	return Scan(tpl).Variables()
}
