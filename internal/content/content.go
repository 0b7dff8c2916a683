package content

import (
	"bytes"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

var policy = bluemonday.UGCPolicy()

// Sanitize removes unsafe HTML from the input string using a strict
// policy. Applied to every user-supplied text body before persistence.
func Sanitize(input string) string {
	return policy.Sanitize(input)
}

// RenderMarkdown converts a text message body to sanitized HTML for
// clients that show a rich preview.
func RenderMarkdown(input string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(input), &buf); err != nil {
		return "", err
	}
	return policy.Sanitize(buf.String()), nil
}
