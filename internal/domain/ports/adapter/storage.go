package adapter

import "context"

// Storage is the object store holding job inputs and output archives.
type Storage interface {
	// Fetch downloads ref into dir and returns the local file path.
	Fetch(ctx context.Context, ref, dir string) (string, error)
	// Store uploads localPath under key and returns the output reference.
	Store(ctx context.Context, localPath, key string) (string, error)
	// Remove deletes a stored object. A missing object is not an error.
	Remove(ctx context.Context, ref string) error
}
