package bitcask

import "os"

// readerCache is the per-handle map of open read-only file descriptors,
// keyed by file_id. It is never shared across goroutines: every clone of
// an Engine owns its own readerCache, re-opening files on demand, trading a
// small amount of duplicated memory for lock-free reads (see spec.md §5).
type readerCache struct {
	dir   string
	files map[uint64]*os.File
	gen   uint64 // last core generation this cache was validated against
}

func newReaderCache(dir string) *readerCache {
	return &readerCache{dir: dir, files: make(map[uint64]*os.File)}
}

// get returns a read-only *os.File for fileID, opening and caching it on
// first use.
func (c *readerCache) get(fileID uint64) (*os.File, error) {
	if f, ok := c.files[fileID]; ok {
		return f, nil
	}
	f, err := openForRead(logPath(c.dir, fileID))
	if err != nil {
		return nil, err
	}
	c.files[fileID] = f
	return f, nil
}

// invalidate drops and closes every cached reader. Called when the
// handle's cache generation falls behind the shared core generation, which
// happens exactly once per compaction.
func (c *readerCache) invalidate() {
	for id, f := range c.files {
		f.Close()
		delete(c.files, id)
	}
}

func (c *readerCache) closeAll() {
	c.invalidate()
}
