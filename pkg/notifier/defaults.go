package notifier

import (
	"maps"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dmitrymomot/notifykit/pkg/dispatcher"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/renderer"
	"github.com/dmitrymomot/notifykit/pkg/templates"
)

// HumanizeEventKey turns USER_REGISTERED into "User Registered".
func HumanizeEventKey(eventKey string) string {
	words := strings.FieldsFunc(eventKey, func(r rune) bool {
		return r == '_' || r == '-' || r == '.' || r == ' '
	})
	return cases.Title(language.English).String(strings.ToLower(strings.Join(words, " ")))
}

// DefaultTemplate synthesizes the template used for a channel of an event
// that has no active templates.
func DefaultTemplate(eventKey string, ch notifications.Channel) templates.Template {
	title := HumanizeEventKey(eventKey)
	t := templates.Template{
		EventKey: eventKey,
		Channel:  ch,
		Title:    title,
		IsActive: true,
		Metadata: renderer.Metadata{},
	}

	switch ch {
	case notifications.ChannelEmail:
		t.Metadata[dispatcher.MetaSubject] = title
		t.Body = "Hi {{ recipient.name }},\n\n" +
			"This is a notification about: " + title + "."
	case notifications.ChannelPush:
		t.Metadata[dispatcher.MetaTitle] = title
		t.Body = "{{ recipient.name }}, you have a new " + strings.ToLower(title) + " notification."
	case notifications.ChannelSocket:
		t.Metadata[dispatcher.MetaEvent] = strings.ToLower(eventKey)
		t.Body = title
	default:
		t.Body = title
	}

	t.Content = renderer.FormatContent(t.Metadata, slices.Sorted(maps.Keys(t.Metadata)), t.Body)
	return t
}
