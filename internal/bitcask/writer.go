package bitcask

import (
	"bufio"
	"os"
)

// writerState is the single active-file writer, guarded by core.writerMu.
// It is held for the duration of a synchronous append sequence only
// (serialize -> write -> flush -> directory update -> optional rotation),
// never across a blocking network operation.
type writerState struct {
	dir          string
	activeFileID uint64
	file         *os.File
	bw           *bufio.Writer
	offset       uint64 // number of bytes written to the active file so far
}

// openWriter opens (or reopens) fileID for append and reports the writer
// positioned at the file's current end, so value_pos math stays correct
// across a process restart that resumes writing into an existing file.
func openWriter(dir string, fileID uint64) (*writerState, error) {
	path := logPath(dir, fileID)
	f, err := openForAppend(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &writerState{
		dir:          dir,
		activeFileID: fileID,
		file:         f,
		bw:           bufio.NewWriter(f),
		offset:       uint64(info.Size()),
	}, nil
}

// append writes record to the active file, flushing it to the OS before
// returning, and advances the writer's offset.
func (w *writerState) append(record []byte) error {
	if _, err := w.bw.Write(record); err != nil {
		return err
	}
	if err := w.bw.Flush(); err != nil {
		return err
	}
	w.offset += uint64(len(record))
	return nil
}

// rotate closes the current active file and opens fileID as the new active
// file for append.
func (w *writerState) rotate(fileID uint64) error {
	if err := w.bw.Flush(); err != nil {
		return err
	}
	if err := w.file.Close(); err != nil {
		return err
	}
	next, err := openWriter(w.dir, fileID)
	if err != nil {
		return err
	}
	*w = *next
	return nil
}

func (w *writerState) sync() error {
	if err := w.bw.Flush(); err != nil {
		return err
	}
	return w.file.Sync()
}

func (w *writerState) close() error {
	if err := w.bw.Flush(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}
