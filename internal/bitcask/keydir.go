package bitcask

import "sync"

// keyEntry is the in-memory key directory record: the location of a key's
// latest value on disk. valueLen == 0 signals a tombstone.
type keyEntry struct {
	fileID    uint64
	valueLen  uint32
	valuePos  uint64
	timestamp uint64
}

// isTombstone reports whether this entry represents a deleted key.
func (e keyEntry) isTombstone() bool {
	return e.valueLen == 0
}

// keyDir is the concurrent in-memory index from key to keyEntry. It wraps
// sync.Map rather than a mutex-guarded map, the same choice
// jassi-singh/aether-kv's engine.NewKeyDir makes, so point lookups and
// point updates never block each other or a concurrent range over
// listKeys.
type keyDir struct {
	m sync.Map // string -> keyEntry
}

func newKeyDir() *keyDir {
	return &keyDir{}
}

func (d *keyDir) get(key string) (keyEntry, bool) {
	v, ok := d.m.Load(key)
	if !ok {
		return keyEntry{}, false
	}
	return v.(keyEntry), true
}

func (d *keyDir) set(key string, e keyEntry) {
	d.m.Store(key, e)
}

// snapshotKeys returns the keys present in the directory at the moment of
// the call whose entries are not tombstones. Per spec, concurrent
// insertions/removals during the scan may or may not be reflected.
func (d *keyDir) snapshotKeys() []string {
	keys := make([]string, 0)
	d.m.Range(func(k, v any) bool {
		if !v.(keyEntry).isTombstone() {
			keys = append(keys, k.(string))
		}
		return true
	})
	return keys
}

// snapshotLive returns a copy of every (key, entry) pair whose entry is not
// a tombstone, for compact() to iterate without holding the writer lock any
// longer than necessary.
func (d *keyDir) snapshotLive() map[string]keyEntry {
	out := make(map[string]keyEntry)
	d.m.Range(func(k, v any) bool {
		e := v.(keyEntry)
		if !e.isTombstone() {
			out[k.(string)] = e
		}
		return true
	})
	return out
}
