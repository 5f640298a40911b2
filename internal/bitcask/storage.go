package bitcask

import "github.com/nikosl/smoldb/internal/storage"

// Engine satisfies storage.Storage directly: its method set already
// matches the interface the server is parameterized over.
var (
	_ storage.Storage        = (*Engine)(nil)
	_ storage.Cloneable      = (*Engine)(nil)
	_ storage.HandleReleaser = (*Engine)(nil)
)

// CloneHandle returns a new Engine handle sharing this one's directory,
// key directory, and writer, with an independent reader cache. The server
// calls this once per accepted connection (see spec.md §5 "Sharing and
// ownership").
func (e *Engine) CloneHandle() storage.Storage {
	return e.Clone()
}

// ReleaseHandle closes this handle's own cached file descriptors. It is
// safe to call on any handle — root or clone — any number of times, and,
// unlike Close, never touches the shared writer or directory lock. The
// server calls this once the connection holding a cloned handle ends, so
// a long-lived process doesn't accumulate one open *os.File per distinct
// data file a connection ever read from (see spec.md §5's per-handle reader
// cache).
func (e *Engine) ReleaseHandle() {
	e.readers.closeAll()
}
