// Package oracle defines the text-completion collaborator used to enrich reply analysis and
// generation along with its OpenAI and Gemini backed implementations
package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Request holds everything a single completion needs
type Request struct {
	SystemPrompt    string
	UserPrompt      string
	Temperature     float32
	MaxOutputTokens int

	// JSON asks the backend for a JSON object response when it supports it
	JSON bool
}

// Completer is implemented by any value able to complete a prompt. Implementations return a
// *TransportError when the backend can't be reached or refuses the call and a *MalformedOutputError
// when it answered with something unusable
type Completer interface {
	Complete(ctx context.Context, req Request) (text string, err error)
}

// TransportError reports a failure to get any answer from the backend (network, timeout, non-2xx)
type TransportError struct {
	Backend string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport error: %v", e.Backend, e.Err)
}

// Unwrap returns the underlying error
func (e *TransportError) Unwrap() error {
	return e.Err
}

// MalformedOutputError reports an answer that couldn't be used (empty, not json, wrong shape)
type MalformedOutputError struct {
	Reason string
	Output string
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("malformed oracle output: %s", e.Reason)
}

// IsTransportError returns true if err is or wraps a *TransportError
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsMalformedOutputError returns true if err is or wraps a *MalformedOutputError
func IsMalformedOutputError(err error) bool {
	var me *MalformedOutputError
	return errors.As(err, &me)
}

// StripCodeFences removes a surrounding markdown code fence (```json ... ```) some models wrap
// json answers with
func StripCodeFences(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return t
	}

	t = strings.TrimPrefix(t, "```")
	if nl := strings.Index(t, "\n"); nl >= 0 {
		t = t[nl+1:]
	} else {
		t = strings.TrimPrefix(t, "json")
	}

	t = strings.TrimSuffix(strings.TrimSpace(t), "```")

	return strings.TrimSpace(t)
}
