package codec

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"frame-worker/internal/domain/ports/adapter"
)

var _ adapter.Packager = (*ZipPackager)(nil)

// ZipPackager writes frames into a deflated zip archive, flat, in the given order.
type ZipPackager struct{}

func NewZipPackager() *ZipPackager { return &ZipPackager{} }

func (ZipPackager) Package(ctx context.Context, dir string, names []string, archivePath string) (int64, int, error) {
	out, err := os.Create(archivePath)
	if err != nil {
		return 0, 0, fmt.Errorf("create archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			_ = zw.Close()
			return 0, 0, err
		}
		if err := addFile(zw, filepath.Join(dir, name), name); err != nil {
			_ = zw.Close()
			return 0, 0, err
		}
	}
	if err := zw.Close(); err != nil {
		return 0, 0, fmt.Errorf("finish archive: %w", err)
	}
	if err := out.Sync(); err != nil {
		return 0, 0, fmt.Errorf("sync archive: %w", err)
	}

	info, err := out.Stat()
	if err != nil {
		return 0, 0, fmt.Errorf("stat archive: %w", err)
	}
	return info.Size(), len(names), nil
}

func addFile(zw *zip.Writer, path, name string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open frame %s: %w", name, err)
	}
	defer src.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return fmt.Errorf("zip header %s: %w", name, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("zip write %s: %w", name, err)
	}
	return nil
}
