package storage

import "io"

// Backend is the object storage collaborator: it holds the actual bytes
// behind a node's storage ref. The hierarchy store only keeps the refs.
type Backend interface {
	Save(ref string, data io.Reader) error
	Get(ref string) (io.ReadCloser, error)
	Delete(ref string) error
}
