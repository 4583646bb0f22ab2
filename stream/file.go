package stream

import (
	"context"
	"io"
	"strings"

	"github.com/strelay-cli/strelay/filesystem"
)

// File reads a local media file through the file:// pseudo scheme.
type File struct {
	path string
}

func NewFile(path string) *File {
	path = strings.TrimPrefix(path, "file://")
	return &File{path: path}
}

func (s *File) Shortname() string { return "file" }

func (s *File) Open(_ context.Context) (io.ReadCloser, error) {
	f, err := filesystem.API().Open(s.path)
	if err != nil {
		return nil, &Error{Err: err}
	}
	return f, nil
}
