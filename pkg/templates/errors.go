package templates

import "errors"

var (
	ErrTemplateNotFound  = errors.New("templates: template not found")
	ErrDuplicateTemplate = errors.New("templates: template already exists for event and channel")
	ErrInvalidTemplate   = errors.New("templates: invalid template")
	ErrInvalidSchema     = errors.New("templates: invalid schema file")
)
