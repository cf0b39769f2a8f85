// Package transport delivers personalized messages over an email provider.
package transport

import (
	"context"
	"html"
	"strings"
)

// Outcome is what every transport reports. Accepted is false whenever the
// provider rejected the message or the call failed; Error then carries a
// human readable reason.
type Outcome struct {
	Accepted  bool
	MessageID string
	Error     string
}

// Transport sends a single message. Implementations never retry and never
// panic on provider errors; failures come back as a rejected Outcome.
type Transport interface {
	Name() string
	Send(ctx context.Context, to, subject, body string) Outcome
}

// ToHTML derives the HTML alternative from a plain-text body.
func ToHTML(body string) string {
	return strings.ReplaceAll(html.EscapeString(body), "\n", "<br>")
}

func rejected(err error) Outcome {
	return Outcome{Accepted: false, Error: err.Error()}
}
