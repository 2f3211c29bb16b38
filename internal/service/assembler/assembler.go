// Package assembler turns a session's ordered history plus a new prompt
// into the single text context sent to the completion backend, and
// validates the inputs and outputs around that call. Everything here is
// pure; storage access belongs to the history package.
package assembler

import (
	"errors"
	"strings"

	"github.com/google/uuid"

	"chatrelay/internal/models"
)

var (
	// ErrInvalidPrompt rejects missing or empty prompts before any
	// session or storage access happens.
	ErrInvalidPrompt = errors.New("prompt must be non-empty text")
	// ErrEmptyCompletion marks a backend reply with no usable text.
	ErrEmptyCompletion = errors.New("completion backend returned no text")
)

// ValidatePrompt accepts the prompt verbatim when it carries any
// non-whitespace content.
func ValidatePrompt(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", ErrInvalidPrompt
	}
	return raw, nil
}

// ResolveSessionID passes a caller-provided id through unchanged; an
// unknown id simply starts a new, empty-history conversation. When no id
// is provided a fresh 128-bit random identifier is generated.
func ResolveSessionID(provided string) string {
	if strings.TrimSpace(provided) != "" {
		return provided
	}
	return uuid.NewString()
}

// BuildContext renders each prior turn as "<sender>: <message>" joined by
// newlines in chronological order, followed by the new prompt as a final
// "user:" line. The history is never truncated or reordered here, so very
// long sessions produce correspondingly large contexts.
func BuildContext(history []models.Turn, prompt string) string {
	var b strings.Builder
	for _, t := range history {
		b.WriteString(string(t.Sender))
		b.WriteString(": ")
		b.WriteString(t.Message)
		b.WriteByte('\n')
	}
	b.WriteString("user: ")
	b.WriteString(prompt)
	return b.String()
}

// ExtractReply returns the backend's text verbatim, refusing blank output
// so an empty completion is never persisted as a turn.
func ExtractReply(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", ErrEmptyCompletion
	}
	return raw, nil
}
