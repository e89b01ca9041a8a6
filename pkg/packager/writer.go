package packager

import (
	"bytes"
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/thanos-io/objstore"
	"github.com/thanos-io/objstore/providers/filesystem"
)

// Extension is appended to the module name to form the object name.
const Extension = ".ko"

// ErrInvalidObjectName is returned for module names that would not be stored
// directly in the output directory.
var ErrInvalidObjectName = errors.New("module name is not a plain file name")

// ObjectName returns the name a module is stored under.
func ObjectName(module string) string {
	return module + Extension
}

// ValidateObjectName rejects module names containing path separators or "..".
func ValidateObjectName(module string) error {
	if strings.ContainsAny(module, `/\`) || strings.Contains(module, "..") {
		return errors.Wrapf(ErrInvalidObjectName, "%q", module)
	}
	return nil
}

// Writer stores finished modules in a bucket.
type Writer struct {
	bucket objstore.Bucket
}

func NewWriter(bucket objstore.Bucket) *Writer {
	return &Writer{bucket: bucket}
}

// NewFilesystemWriter stores modules as files under dir.
func NewFilesystemWriter(dir string) (*Writer, error) {
	b, err := filesystem.NewBucket(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "open output directory %s", dir)
	}
	return NewWriter(b), nil
}

// Write uploads data as <module>.ko and returns the object name.
func (w *Writer) Write(ctx context.Context, module string, data []byte) (string, error) {
	if err := ValidateObjectName(module); err != nil {
		return "", err
	}
	name := ObjectName(module)
	if err := w.bucket.Upload(ctx, name, bytes.NewReader(data)); err != nil {
		return "", errors.Wrapf(err, "upload %s", name)
	}
	return name, nil
}

func (w *Writer) Close() error {
	return w.bucket.Close()
}
