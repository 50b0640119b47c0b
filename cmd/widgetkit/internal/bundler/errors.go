package bundler

import (
	"errors"
	"fmt"
	"strings"
)

// ErrESBuildNotFound is returned when the esbuild executable cannot be located.
var ErrESBuildNotFound = errors.New("esbuild binary not found")

// Message is one bundler diagnostic.
type Message struct {
	Text   string `json:"text"`
	File   string `json:"file,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

// String formats the message as file:line:col: text.
func (m Message) String() string {
	if m.File == "" {
		return m.Text
	}
	return fmt.Sprintf("%s:%d:%d: %s", m.File, m.Line, m.Column, m.Text)
}

// Error is a failed compilation with the bundler's diagnostics.
type Error struct {
	Entry    string
	Messages []Message
}

func (e *Error) Error() string {
	switch len(e.Messages) {
	case 0:
		return fmt.Sprintf("bundling %s failed", e.Entry)
	case 1:
		return e.Messages[0].String()
	default:
		lines := make([]string, len(e.Messages))
		for i, m := range e.Messages {
			lines[i] = m.String()
		}
		return fmt.Sprintf("%d errors:\n%s", len(e.Messages), strings.Join(lines, "\n"))
	}
}
