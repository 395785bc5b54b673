// Package storage keeps uploaded evidence files (prescriptions, payment proofs) on local disk.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pharmaops/pharmaops/internal/shared"
)

// ErrTooLarge indicates the upload exceeded the configured limit.
var ErrTooLarge = fmt.Errorf("storage: file too large: %w", shared.ErrValidation)

// ErrUnsupportedType indicates an extension outside the allow list.
var ErrUnsupportedType = fmt.Errorf("storage: unsupported file type: %w", shared.ErrValidation)

var allowedExt = map[string]struct{}{
	".pdf": {}, ".png": {}, ".jpg": {}, ".jpeg": {}, ".webp": {},
}

// Saver persists an uploaded file and returns its stored reference.
type Saver interface {
	Save(ctx context.Context, category, originalName string, r io.Reader) (string, error)
}

// Local stores files below Root/<category>/.
type Local struct {
	Root     string
	MaxBytes int64
	now      func() time.Time
}

// NewLocal constructs a Local store rooted at dir.
func NewLocal(dir string, maxBytes int64) *Local {
	return &Local{Root: dir, MaxBytes: maxBytes, now: time.Now}
}

// Save writes r to a name built from the current timestamp and a random suffix. The
// returned reference is relative to Root.
func (l *Local) Save(ctx context.Context, category, originalName string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ext := strings.ToLower(filepath.Ext(originalName))
	if _, ok := allowedExt[ext]; !ok {
		return "", ErrUnsupportedType
	}
	category = filepath.Base(filepath.Clean(category))
	dir := filepath.Join(l.Root, category)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("storage: mkdir: %w", err)
	}

	name := fmt.Sprintf("%d-%06d%s", l.now().UnixMilli(), rand.IntN(1_000_000), ext)
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("storage: create: %w", err)
	}

	src := r
	if l.MaxBytes > 0 {
		src = io.LimitReader(r, l.MaxBytes+1)
	}
	n, copyErr := io.Copy(f, src)
	closeErr := f.Close()
	switch {
	case copyErr != nil:
		_ = os.Remove(path)
		return "", fmt.Errorf("storage: write: %w", copyErr)
	case closeErr != nil:
		_ = os.Remove(path)
		return "", fmt.Errorf("storage: close: %w", closeErr)
	case l.MaxBytes > 0 && n > l.MaxBytes:
		_ = os.Remove(path)
		return "", ErrTooLarge
	}
	return filepath.ToSlash(filepath.Join(category, name)), nil
}

// Remove deletes a stored reference. Missing files are ignored.
func (l *Local) Remove(ref string) error {
	if ref == "" {
		return nil
	}
	clean := filepath.Clean(filepath.FromSlash(ref))
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return fmt.Errorf("storage: invalid reference %q", ref)
	}
	err := os.Remove(filepath.Join(l.Root, clean))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
