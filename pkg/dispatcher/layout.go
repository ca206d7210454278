package dispatcher

import (
	"context"
	"html"
	"io"
	"regexp"
	"strings"

	"github.com/a-h/templ"
)

// Layout wraps a rendered email body into a complete HTML document.
type Layout func(title, body string) templ.Component

var (
	tagRe   = regexp.MustCompile(`(?s)<[a-zA-Z/!][^>]*>`)
	blankRe = regexp.MustCompile(`\n{3,}`)
)

// DefaultLayout is a single-column layout with inline styles safe for most
// email clients. body is inserted as HTML.
func DefaultLayout(title, body string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`+
			`<meta name="viewport" content="width=device-width, initial-scale=1"><title>`); err != nil {
			return err
		}
		if _, err := io.WriteString(w, templ.EscapeString(title)); err != nil {
			return err
		}
		if _, err := io.WriteString(w, `</title></head>`+
			`<body style="margin:0;padding:0;background:#f4f4f5;font-family:Helvetica,Arial,sans-serif;">`+
			`<table role="presentation" width="100%" cellpadding="0" cellspacing="0"><tr><td align="center" style="padding:24px;">`+
			`<table role="presentation" width="600" cellpadding="0" cellspacing="0" style="background:#ffffff;border-radius:8px;">`+
			`<tr><td style="padding:32px;color:#18181b;font-size:16px;line-height:1.5;">`); err != nil {
			return err
		}
		if err := templ.Raw(body).Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</td></tr></table></td></tr></table></body></html>`)
		return err
	})
}

// RenderComponent renders a templ component to a string.
func RenderComponent(ctx context.Context, c templ.Component) (string, error) {
	var sb strings.Builder
	if err := c.Render(ctx, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// isHTML reports whether body contains markup.
func isHTML(body string) bool {
	return tagRe.MatchString(body)
}

// htmlBody returns body as HTML, converting plain text line breaks.
func htmlBody(body string) string {
	if isHTML(body) {
		return body
	}
	return strings.ReplaceAll(html.EscapeString(body), "\n", "<br>\n")
}

// textBody returns a plain text rendition of body.
func textBody(body string) string {
	if !isHTML(body) {
		return body
	}
	text := tagRe.ReplaceAllString(body, "")
	text = html.UnescapeString(text)
	return strings.TrimSpace(blankRe.ReplaceAllString(text, "\n\n"))
}
