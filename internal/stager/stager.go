package stager

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Stager owns the transient copy of an uploaded audio asset between upload
// and the end of its pipeline run. Handles are opaque to callers.
type Stager interface {
	Stage(ctx context.Context, r io.Reader, filename string) (handle string, size int64, err error)
	Open(ctx context.Context, handle string) (io.ReadCloser, error)
	Remove(ctx context.Context, handle string) error
}

// Local stages assets on the local filesystem under a single upload
// directory.
type Local struct {
	dir string
}

func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", dir, err)
	}
	return &Local{dir: dir}, nil
}

func (l *Local) Stage(_ context.Context, r io.Reader, filename string) (string, int64, error) {
	path := filepath.Join(l.dir, stagedName(filename))

	out, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("create staged file: %w", err)
	}

	size, err := io.Copy(out, r)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("write staged file: %w", err)
	}

	return path, size, nil
}

func (l *Local) Open(_ context.Context, handle string) (io.ReadCloser, error) {
	f, err := os.Open(handle)
	if err != nil {
		return nil, fmt.Errorf("open staged file: %w", err)
	}
	return f, nil
}

func (l *Local) Remove(_ context.Context, handle string) error {
	if err := os.Remove(handle); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// stagedName keeps the original extension but replaces the name with a
// fresh uuid so uploads can never collide or escape the upload dir.
func stagedName(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	return uuid.NewString() + ext
}
