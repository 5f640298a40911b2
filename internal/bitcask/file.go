package bitcask

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	logExt  = "log"
	hintExt = "hint"
)

func logPath(dir string, fileID uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%d.%s", fileID, logExt))
}

func hintPath(dir string, fileID uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%d.%s", fileID, hintExt))
}

// openForAppend opens (creating if necessary) the log or hint file named
// by path in append mode.
func openForAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

func openForRead(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_RDONLY, 0)
}

// scanDirFileIDs lists every file in dir with the given extension whose
// stem parses as a base-10 uint64, returning their IDs unsorted.
func scanDirFileIDs(dir, ext string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var ids []uint64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if filepath.Ext(name) != "."+ext {
			continue
		}
		stem := strings.TrimSuffix(name, "."+ext)
		id, err := strconv.ParseUint(stem, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("unparseable %s file name %q: %w", ext, name, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func mkdirAll(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// deleteFilesBelow removes every .log/.hint file in dir whose id is less
// than targetID. Called after a compaction has rotated the active writer
// past targetID and published every live key directory entry onto the new
// merge file, so nothing references these files any longer.
func deleteFilesBelow(dir string, targetID uint64) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := filepath.Ext(name)
		if ext != "."+logExt && ext != "."+hintExt {
			continue
		}
		stem := strings.TrimSuffix(name, ext)
		id, err := strconv.ParseUint(stem, 10, 64)
		if err != nil {
			continue
		}
		if id < targetID {
			if err := os.Remove(filepath.Join(dir, name)); err != nil {
				return err
			}
		}
	}
	return nil
}
