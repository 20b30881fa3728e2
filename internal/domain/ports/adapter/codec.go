package adapter

import "context"

// Codec extracts a frame sequence from a video.
type Codec interface {
	// Extract writes frames of input into outDir and returns their file names in order.
	Extract(ctx context.Context, input, outDir string) ([]string, error)
}

// Packager bundles extracted frames into one archive file.
type Packager interface {
	Package(ctx context.Context, dir string, names []string, archivePath string) (size int64, count int, err error)
}
