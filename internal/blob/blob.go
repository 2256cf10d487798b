// Package blob stages uploaded images in object storage so the agent runtime
// can reference them by URI.
package blob

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// ErrEmptyObject is returned when asked to upload zero bytes.
var ErrEmptyObject = errors.New("blob: empty object")

// Ref points at an uploaded object.
type Ref struct {
	URI      string `json:"uri"`
	MIMEType string `json:"mime_type"`
}

// Uploader writes bytes to storage and returns a reference to them.
type Uploader interface {
	Upload(ctx context.Context, data []byte, mimeType string) (Ref, error)
}

var extensions = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/jpg":  "jpg",
	"image/webp": "webp",
}

// ExtensionFor maps a MIME type to an object-name extension, "bin" when unknown.
func ExtensionFor(mimeType string) string {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if ext, ok := extensions[mt]; ok {
		return ext
	}
	return "bin"
}

// ObjectName returns a fresh random object name under the uploads/ prefix.
func ObjectName(mimeType string) string {
	return "uploads/" + uuid.NewString() + "." + ExtensionFor(mimeType)
}
