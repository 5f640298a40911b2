// Package bitcask implements the Bitcask log-structured storage engine:
// append-only log files, hint files, an in-memory key directory, crash
// recovery, and online compaction. It is grounded in
// nikosl/gkvd's internal/bitcask package (the buffer-pool-and-mutex
// shape), generalized to the multi-file, hint-file, CRC-checked format the
// specification requires, the way original_source/src/storage/bitcask.rs
// implements the same design in Rust.
package bitcask

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"github.com/nikosl/smoldb/internal/storeerr"
)

// DefaultLogSizeThreshold is the soft per-file size limit (§6): the active
// file rotates once a write takes it past this size, so a log file can end
// up larger than the limit by at most one record.
const DefaultLogSizeThreshold = 1 << 20 // 1 MiB

// core holds the state shared by every clone of an Engine: the key
// directory, the single writer (mutex-guarded), the directory path, the
// advisory file lock, and a generation counter bumped once per compaction
// so per-handle reader caches know when to drop stale file descriptors.
type core struct {
	dir              string
	logSizeThreshold uint64
	keyDir           *keyDir
	flock            *flock.Flock

	writerMu sync.Mutex
	writer   *writerState

	generation atomic.Uint64

	closed atomic.Bool
}

// Engine is a cheap, cloneable handle onto a Bitcask datastore. Clones
// share the directory, the key directory, and the writer; each clone keeps
// its own reader cache. The zero value is not usable; construct with Open
// or Clone.
type Engine struct {
	core    *core
	readers *readerCache
}

// Open creates dir if it does not exist, reconstructs the key directory
// from any existing log/hint files, and selects the active file for
// append. See spec.md §4.2 "Recovery (open)" for the algorithm.
func Open(dir string) (*Engine, error) {
	return OpenWithThreshold(dir, DefaultLogSizeThreshold)
}

// OpenWithThreshold is Open with an explicit rotation threshold, mainly
// useful for tests that want to force rotation/compaction without writing
// a full megabyte.
func OpenWithThreshold(dir string, logSizeThreshold uint64) (*Engine, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := ensureDir(absDir); err != nil {
		return nil, err
	}

	fl := flock.New(filepath.Join(absDir, ".lock"))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring directory lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("directory %s is already open by another process", absDir)
	}

	kd := newKeyDir()
	activeFileID, err := recoverKeyDir(absDir, kd)
	if err != nil {
		fl.Unlock()
		return nil, err
	}

	writer, err := openWriter(absDir, activeFileID)
	if err != nil {
		fl.Unlock()
		return nil, err
	}

	c := &core{
		dir:              absDir,
		logSizeThreshold: logSizeThreshold,
		keyDir:           kd,
		flock:            fl,
		writer:           writer,
	}

	slog.Info("bitcask: opened", "dir", absDir, "active_file_id", activeFileID)

	return &Engine{core: c, readers: newReaderCache(absDir)}, nil
}

// ensureDir creates dir (and parents) if it does not already exist.
func ensureDir(dir string) error {
	return mkdirAll(dir)
}

// recoverKeyDir scans dir for .log/.hint files, replays them in the order the
// spec mandates (hint first, then logs with file_id > hint_id, ascending),
// and returns the file_id that should become the active writer target.
func recoverKeyDir(dir string, kd *keyDir) (uint64, error) {
	logIDs, err := scanDirFileIDs(dir, logExt)
	if err != nil {
		return 0, err
	}
	hintIDs, err := scanDirFileIDs(dir, hintExt)
	if err != nil {
		return 0, err
	}

	var hintID *uint64
	for _, id := range hintIDs {
		if hintID == nil || id > *hintID {
			v := id
			hintID = &v
		}
	}

	var newerLogs []uint64
	for _, id := range logIDs {
		if hintID == nil || id > *hintID {
			newerLogs = append(newerLogs, id)
		}
	}
	sort.Slice(newerLogs, func(i, j int) bool { return newerLogs[i] < newerLogs[j] })

	if hintID != nil {
		if err := replayHintFile(dir, *hintID, kd); err != nil {
			return 0, err
		}
	}

	for _, id := range newerLogs {
		if err := replayLogFile(dir, id, kd); err != nil {
			return 0, err
		}
	}

	switch {
	case len(newerLogs) > 0:
		return newerLogs[len(newerLogs)-1], nil
	case hintID != nil:
		return *hintID + 1, nil
	default:
		return 0, nil
	}
}

func replayHintFile(dir string, fileID uint64, kd *keyDir) error {
	f, err := openForRead(hintPath(dir, fileID))
	if err != nil {
		return err
	}
	defer f.Close()

	for {
		rec, err := readHint(f)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("replaying hint file %d: %w", fileID, err)
		}
		kd.set(rec.key, keyEntry{
			fileID:    fileID,
			valueLen:  rec.valueLen,
			valuePos:  rec.valuePos,
			timestamp: rec.timestamp,
		})
	}
	return nil
}

func replayLogFile(dir string, fileID uint64, kd *keyDir) error {
	f, err := openForRead(logPath(dir, fileID))
	if err != nil {
		return err
	}
	defer f.Close()

	var offset uint64
	for {
		entry, n, err := readRecord(f)
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			// A truncated tail record: per spec.md §4.2/§9 this is fatal by
			// default, matching the source this module is grounded on.
			return fmt.Errorf("truncated record in %d.log at offset %d", fileID, offset)
		}
		if err != nil {
			return fmt.Errorf("replaying log file %d: %w", fileID, err)
		}

		valuePos := offset + uint64(n) - uint64(entry.valueLen)
		kd.set(entry.key, keyEntry{
			fileID:    fileID,
			valueLen:  entry.valueLen,
			valuePos:  valuePos,
			timestamp: entry.timestamp,
		})
		offset += uint64(n)
	}
	return nil
}

// Clone returns a new handle sharing this Engine's directory, key
// directory, and writer, with its own independent reader cache.
func (e *Engine) Clone() *Engine {
	return &Engine{core: e.core, readers: newReaderCache(e.core.dir)}
}

// refreshReaders drops this handle's cached file descriptors if a
// compaction has run since they were last validated.
func (e *Engine) refreshReaders() {
	gen := e.core.generation.Load()
	if e.readers.gen != gen {
		e.readers.invalidate()
		e.readers.gen = gen
	}
}

// Get returns the current value for key, or ("", false) if the key is
// absent or has been removed.
func (e *Engine) Get(key string) (string, bool, error) {
	entry, ok := e.core.keyDir.get(key)
	if !ok || entry.isTombstone() {
		return "", false, nil
	}

	e.refreshReaders()
	f, err := e.readers.get(entry.fileID)
	if err != nil {
		return "", false, fmt.Errorf("opening data file %d: %w", entry.fileID, err)
	}

	buf := make([]byte, entry.valueLen)
	if _, err := f.ReadAt(buf, int64(entry.valuePos)); err != nil {
		return "", false, fmt.Errorf("reading value for key %q: %w", key, err)
	}
	return string(buf), true, nil
}

// HasKey reports whether key is present and not tombstoned. It is a cheap
// existence check on top of the required Storage contract, grounded in
// nikosl/gkvd's Bitcask.HasKey.
func (e *Engine) HasKey(key string) bool {
	entry, ok := e.core.keyDir.get(key)
	return ok && !entry.isTombstone()
}

// Set durably appends a record for key/value, updates the key directory,
// and rotates the active file once this write has taken it past the size
// threshold.
func (e *Engine) Set(key, value string) error {
	e.core.writerMu.Lock()
	defer e.core.writerMu.Unlock()

	ts := nowUnix()
	record := encodeRecord(ts, key, value)
	w := e.core.writer

	if err := w.append(record); err != nil {
		return fmt.Errorf("appending record: %w", err)
	}

	valueLen := uint32(len(value))
	valuePos := w.offset - uint64(valueLen)
	entry := keyEntry{
		fileID:    w.activeFileID,
		valueLen:  valueLen,
		valuePos:  valuePos,
		timestamp: ts,
	}

	if valuePos+uint64(valueLen) > e.core.logSizeThreshold {
		if err := w.rotate(w.activeFileID + 1); err != nil {
			return fmt.Errorf("rotating active file: %w", err)
		}
	}

	e.core.keyDir.set(key, entry)
	return nil
}

// Remove appends a tombstone record for key. It returns
// storeerr.ErrKeyNotFound without writing anything if the key is absent or
// already removed.
func (e *Engine) Remove(key string) error {
	if entry, ok := e.core.keyDir.get(key); !ok || entry.isTombstone() {
		return storeerr.ErrKeyNotFound
	}

	e.core.writerMu.Lock()
	defer e.core.writerMu.Unlock()

	ts := nowUnix()
	record := encodeRecord(ts, key, "")
	w := e.core.writer
	if err := w.append(record); err != nil {
		return fmt.Errorf("appending tombstone: %w", err)
	}

	entry := keyEntry{
		fileID:    w.activeFileID,
		valueLen:  0,
		valuePos:  w.offset,
		timestamp: ts,
	}
	e.core.keyDir.set(key, entry)
	return nil
}

// ListKeys returns every live key. It is a point-in-time snapshot of the
// key directory; concurrent writes during the scan may or may not be
// reflected.
func (e *Engine) ListKeys() ([]string, error) {
	return e.core.keyDir.snapshotKeys(), nil
}

// Compact merges every live entry into a new <id>.log/<id>.hint pair, then
// deletes every file with a lower id. See spec.md §4.2 "Compaction
// protocol" for the full sequence this follows.
func (e *Engine) Compact() error {
	e.core.writerMu.Lock()
	defer e.core.writerMu.Unlock()

	dir := e.core.dir
	targetID := e.core.writer.activeFileID + 1

	mergeWriter, err := openWriter(dir, targetID)
	if err != nil {
		return fmt.Errorf("creating merge file: %w", err)
	}
	hintFile, err := openForAppend(hintPath(dir, targetID))
	if err != nil {
		mergeWriter.close()
		return fmt.Errorf("creating hint file: %w", err)
	}
	mergeClosed := false
	defer func() {
		if !mergeClosed {
			mergeWriter.close()
		}
	}()
	defer hintFile.Close()

	live := e.core.keyDir.snapshotLive()

	for key, entry := range live {
		value, err := e.readValueLocked(entry)
		if err != nil {
			return fmt.Errorf("reading value for %q during compaction: %w", key, err)
		}

		record := encodeRecord(entry.timestamp, key, value)
		if err := mergeWriter.append(record); err != nil {
			return fmt.Errorf("writing merge record for %q: %w", key, err)
		}
		newValuePos := mergeWriter.offset - uint64(len(value))

		if _, err := hintFile.Write(encodeHint(entry.timestamp, key, uint32(len(value)), newValuePos)); err != nil {
			return fmt.Errorf("writing hint record for %q: %w", key, err)
		}

		e.core.keyDir.set(key, keyEntry{
			fileID:    targetID,
			valueLen:  uint32(len(value)),
			valuePos:  newValuePos,
			timestamp: entry.timestamp,
		})
	}

	if err := mergeWriter.sync(); err != nil {
		return fmt.Errorf("flushing merge file: %w", err)
	}
	if err := mergeWriter.close(); err != nil {
		return fmt.Errorf("closing merge file: %w", err)
	}
	mergeClosed = true
	if err := hintFile.Sync(); err != nil {
		return fmt.Errorf("flushing hint file: %w", err)
	}

	if err := e.core.writer.rotate(targetID + 1); err != nil {
		return fmt.Errorf("rotating to fresh active file after compaction: %w", err)
	}

	e.core.generation.Add(1)

	if err := deleteFilesBelow(dir, targetID); err != nil {
		return fmt.Errorf("cleaning up obsolete files: %w", err)
	}

	slog.Info("bitcask: compacted", "dir", dir, "target_file_id", targetID, "live_keys", len(live))
	return nil
}

// readValueLocked reads a value for entry using a throwaway reader,
// independent of any handle's cache, since compact() runs under the writer
// lock and may be invoked from any clone.
func (e *Engine) readValueLocked(entry keyEntry) (string, error) {
	f, err := openForRead(logPath(e.core.dir, entry.fileID))
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, entry.valueLen)
	if _, err := f.ReadAt(buf, int64(entry.valuePos)); err != nil {
		return "", err
	}
	return string(buf), nil
}

// Sync flushes the active writer to disk. It is additive to the required
// contract (present as Bitcask.Sync in nikosl/gkvd), useful for tests that
// want a deterministic on-disk checkpoint without closing the engine.
func (e *Engine) Sync() error {
	e.core.writerMu.Lock()
	defer e.core.writerMu.Unlock()
	return e.core.writer.sync()
}

// Close flushes and closes the shared active writer, this handle's own
// cached readers, and releases the directory lock. It tears down state
// shared by every clone of this Engine, so it must be called exactly once,
// by the handle Open returned, at process shutdown. Per-connection clones
// must never call Close — whichever handle happens to call it first would
// release the directory lock and close the writer out from under every
// other live clone — they should call ReleaseHandle instead to free just
// their own reader cache.
func (e *Engine) Close() error {
	if !e.core.closed.CompareAndSwap(false, true) {
		e.readers.closeAll()
		return nil
	}

	e.core.writerMu.Lock()
	err := e.core.writer.close()
	e.core.writerMu.Unlock()

	e.readers.closeAll()

	if unlockErr := e.core.flock.Unlock(); unlockErr != nil && err == nil {
		err = unlockErr
	}
	return err
}

func nowUnix() uint64 {
	return uint64(time.Now().Unix())
}
