package renderer

import (
	"errors"
	"fmt"
)

var (
	// ErrRender wraps every template parse or execution failure.
	ErrRender = errors.New("renderer: render failed")
	// ErrEmptyTemplate is returned when validating a blank template.
	ErrEmptyTemplate = errors.New("renderer: template is empty")
)

// RenderError carries the position of a template failure.
// It matches both ErrRender and the underlying engine error with errors.Is.
type RenderError struct {
	Line   int
	Column int
	Token  string
	Err    error
}

func (e *RenderError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("renderer: line %d, column %d: %v", e.Line, e.Column, e.Err)
	}
	return fmt.Sprintf("renderer: %v", e.Err)
}

func (e *RenderError) Unwrap() []error {
	return []error{ErrRender, e.Err}
}
