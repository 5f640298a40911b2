package bitcask

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/nikosl/smoldb/internal/storeerr"
)

// recordHeaderSize is the fixed-width portion of a log record that
// precedes the key and value bytes: checksum(2) + timestamp(8) + keyLen(4)
// + valLen(4).
const recordHeaderSize = 2 + 8 + 4 + 4

// hintHeaderSize is the fixed-width portion of a hint record that precedes
// the key bytes: timestamp(8) + keyLen(4) + valLen(4) + valPos(8).
const hintHeaderSize = 8 + 4 + 4 + 8

// loggedEntry is a decoded log record. readRecord leaves valuePos at 0,
// since it does not know where in the file the record started.
type loggedEntry struct {
	timestamp uint64
	valueLen  uint32
	valuePos  uint64
	key       string
	value     []byte
}

// encodeRecord serializes a key/value pair (valueLen == 0 encodes a
// tombstone) into the bitcask log format and returns the bytes to append,
// ready to write in one call.
//
//	checksum : u16 BE  CRC-16/IBM-SDLC over the remaining fields
//	timestamp: u64 BE
//	key_len  : u32 BE
//	val_len  : u32 BE
//	key      : key_len bytes
//	value    : val_len bytes
func encodeRecord(timestamp uint64, key, value string) []byte {
	keyLen := len(key)
	valLen := len(value)

	body := make([]byte, 8+4+4+keyLen+valLen)
	binary.BigEndian.PutUint64(body[0:8], timestamp)
	binary.BigEndian.PutUint32(body[8:12], uint32(keyLen))
	binary.BigEndian.PutUint32(body[12:16], uint32(valLen))
	copy(body[16:16+keyLen], key)
	copy(body[16+keyLen:], value)

	checksum := crc16IBMSDLC(body)

	out := make([]byte, 2+len(body))
	binary.BigEndian.PutUint16(out[0:2], checksum)
	copy(out[2:], body)
	return out
}

// readRecord reads one record from r, verifies its checksum, and returns
// the decoded entry along with the number of bytes consumed. It returns
// io.EOF if r has no more bytes before the next record begins.
func readRecord(r io.Reader) (loggedEntry, int, error) {
	header := make([]byte, recordHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.ErrUnexpectedEOF {
			return loggedEntry{}, 0, io.ErrUnexpectedEOF
		}
		return loggedEntry{}, 0, err
	}

	storedChecksum := binary.BigEndian.Uint16(header[0:2])
	timestamp := binary.BigEndian.Uint64(header[2:10])
	keyLen := binary.BigEndian.Uint32(header[10:14])
	valLen := binary.BigEndian.Uint32(header[14:18])

	body := make([]byte, 8+4+4+int(keyLen)+int(valLen))
	copy(body, header[2:])
	if _, err := io.ReadFull(r, body[16:]); err != nil {
		return loggedEntry{}, 0, fmt.Errorf("reading record body: %w", err)
	}

	computed := crc16IBMSDLC(body)
	if computed != storedChecksum {
		return loggedEntry{}, 0, storeerr.NewCorruption(storedChecksum, computed)
	}

	key := string(body[16 : 16+keyLen])
	value := body[16+keyLen:]

	total := recordHeaderSize + int(keyLen) + int(valLen)
	return loggedEntry{
		timestamp: timestamp,
		valueLen:  valLen,
		valuePos:  0, // replayLogFile computes the position from its own file offset
		key:       key,
		value:     value,
	}, total, nil
}

// encodeHint serializes a hint record describing where key's latest value
// lives in the companion merge file.
//
//	timestamp: u64 BE
//	key_len  : u32 BE
//	val_len  : u32 BE
//	val_pos  : u64 BE
//	key      : key_len bytes
func encodeHint(timestamp uint64, key string, valueLen uint32, valuePos uint64) []byte {
	keyLen := len(key)
	out := make([]byte, hintHeaderSize+keyLen)
	binary.BigEndian.PutUint64(out[0:8], timestamp)
	binary.BigEndian.PutUint32(out[8:12], uint32(keyLen))
	binary.BigEndian.PutUint32(out[12:16], valueLen)
	binary.BigEndian.PutUint64(out[16:24], valuePos)
	copy(out[24:], key)
	return out
}

// hintRecord is one decoded entry from a hint file.
type hintRecord struct {
	timestamp uint64
	key       string
	valueLen  uint32
	valuePos  uint64
}

// readHint reads one record from a hint file. It returns io.EOF when there
// is nothing left to read.
func readHint(r io.Reader) (hintRecord, error) {
	header := make([]byte, hintHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return hintRecord{}, err
	}

	timestamp := binary.BigEndian.Uint64(header[0:8])
	keyLen := binary.BigEndian.Uint32(header[8:12])
	valLen := binary.BigEndian.Uint32(header[12:16])
	valPos := binary.BigEndian.Uint64(header[16:24])

	keyBuf := make([]byte, keyLen)
	if _, err := io.ReadFull(r, keyBuf); err != nil {
		return hintRecord{}, fmt.Errorf("reading hint key: %w", err)
	}

	return hintRecord{
		timestamp: timestamp,
		key:       string(keyBuf),
		valueLen:  valLen,
		valuePos:  valPos,
	}, nil
}
