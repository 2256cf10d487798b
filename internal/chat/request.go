// Package chat turns a visitor's prompt and optional image into one agent
// runtime turn and folds the streamed answer into a reply.
package chat

import (
	"errors"
	"strings"
)

// ErrEmptyRequest is returned when a request has neither prompt nor image.
var ErrEmptyRequest = errors.New("empty prompt")

// Image is an uploaded picture attached to a chat turn.
type Image struct {
	Data     []byte
	MIMEType string
	Filename string
}

// Request is one chat turn from the browser.
type Request struct {
	Prompt string
	Image  *Image
}

// HasImage reports whether a non-empty image is attached.
func (r Request) HasImage() bool {
	return r.Image != nil && len(r.Image.Data) > 0
}

// Validate trims the prompt and rejects requests carrying nothing.
func (r *Request) Validate() error {
	r.Prompt = strings.TrimSpace(r.Prompt)
	if r.Prompt == "" && !r.HasImage() {
		return ErrEmptyRequest
	}
	return nil
}
