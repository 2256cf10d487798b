package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// DirUploader writes objects under a local directory. It is meant for
// development against a runtime that can read the same filesystem.
type DirUploader struct {
	root string
}

// NewDirUploader creates root if needed.
func NewDirUploader(root string) (*DirUploader, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DirUploader{root: abs}, nil
}

// Upload writes data to a fresh file and returns its file:// URI.
func (u *DirUploader) Upload(ctx context.Context, data []byte, mimeType string) (Ref, error) {
	if len(data) == 0 {
		return Ref{}, ErrEmptyObject
	}
	if err := ctx.Err(); err != nil {
		return Ref{}, err
	}
	path := filepath.Join(u.root, filepath.FromSlash(ObjectName(mimeType)))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Ref{}, fmt.Errorf("create object dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Ref{}, fmt.Errorf("write object: %w", err)
	}
	return Ref{URI: "file://" + filepath.ToSlash(path), MIMEType: mimeType}, nil
}
