package input

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// File lazily opens a local audio file.
//
// Aux metadata is unsupported: a local file carries its tags in-stream,
// where they surface through [Input.Metadata] once parsed.
type File struct {
	// Path locates the file on disk.
	Path string
}

var _ Composer = (*File)(nil)

func (f *File) Create(ctx context.Context) (*AudioStream, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("input: open %q: %w", f.Path, err)
	}
	hint := strings.TrimPrefix(filepath.Ext(f.Path), ".")
	return &AudioStream{Body: fh, Hint: hint}, nil
}

func (f *File) AuxMetadata(ctx context.Context) (*AuxMetadata, error) {
	return nil, fmt.Errorf("input: file %q has no out-of-band metadata: %w", f.Path, ErrUnsupported)
}
