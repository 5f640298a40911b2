// Package wire implements the length-delimited framing and the
// request/response codec described in spec.md §4.1: every message is a
// 4-byte big-endian length prefix followed by that many payload bytes, and
// the payload is a compact, stable binary encoding of a tagged request or
// response variant. Framing is fixed by the spec; the inner encoding here
// uses fixed-width big-endian integers and length-prefixed strings, the
// same primitives the bitcask package's own on-disk format uses, so the
// module has one binary-encoding idiom end to end instead of two.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/nikosl/smoldb/internal/storeerr"
)

// maxFrameLen bounds a single frame's payload size, guarding the server
// against a malformed or hostile length prefix forcing an enormous
// allocation.
const maxFrameLen = 64 << 20 // 64 MiB

// RequestTag identifies which Request variant a frame carries.
type RequestTag byte

const (
	TagGet RequestTag = iota
	TagSet
	TagRemove
	TagList
)

// Request is the tagged sum of client operations (spec.md §4.1).
type Request struct {
	Tag   RequestTag
	Key   string
	Value string
}

// ResponseTag identifies which payload shape a response frame carries.
type ResponseTag byte

const (
	RespOk ResponseTag = iota
	RespErr
)

// okShape tags which payload shape follows an Ok response tag, so the
// decoder never has to guess from the bytes alone.
type okShape byte

const (
	shapeUnit okShape = iota
	shapeOptionalValue
	shapeList
)

// Response is the two-case Ok(payload) | Err(message) sum for every
// request kind. Which of Value/Values is meaningful depends on the
// request that produced it: Get responses use HasValue/Value, List
// responses use Values, Set/Remove responses use neither.
type Response struct {
	Tag      ResponseTag
	shape    okShape
	HasValue bool
	Value    string
	Values   []string
	Err      string
}

// OkGet builds a successful Get response. present is false when the key
// was absent or tombstoned, matching GetResponse::Ok(None) in spec.md.
func OkGet(value string, present bool) Response {
	return Response{Tag: RespOk, shape: shapeOptionalValue, HasValue: present, Value: value}
}

// OkUnit builds a successful Set/Remove response.
func OkUnit() Response {
	return Response{Tag: RespOk, shape: shapeUnit}
}

// OkList builds a successful List response.
func OkList(keys []string) Response {
	return Response{Tag: RespOk, shape: shapeList, Values: keys}
}

// ErrResponse builds an error-variant response carrying a human-readable
// message, per spec.md's "Err(message: string)" case.
func ErrResponse(msg string) Response {
	return Response{Tag: RespErr, Err: msg}
}

// WriteRequest frames and writes req to w.
func WriteRequest(w io.Writer, req Request) error {
	payload := encodeRequest(req)
	return writeFrame(w, payload)
}

// ReadRequest reads one framed Request from r.
func ReadRequest(r io.Reader) (Request, error) {
	payload, err := readFrame(r)
	if err != nil {
		return Request{}, err
	}
	return decodeRequest(payload)
}

// WriteResponse frames and writes resp to w.
func WriteResponse(w io.Writer, resp Response) error {
	payload := encodeResponse(resp)
	return writeFrame(w, payload)
}

// ReadResponse reads one framed Response from r.
func ReadResponse(r io.Reader) (Response, error) {
	payload, err := readFrame(r)
	if err != nil {
		return Response{}, err
	}
	return decodeResponse(payload)
}

// writeFrame writes the 4-byte big-endian length prefix followed by
// payload in a single Write where possible.
func writeFrame(w io.Writer, payload []byte) error {
	frame := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(frame[0:4], uint32(len(payload)))
	copy(frame[4:], payload)
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("%w: writing frame: %v", storeerr.ErrCodec, err)
	}
	return nil
}

// readFrame reads the 4-byte length prefix and exactly that many payload
// bytes. io.EOF propagates unwrapped so callers can detect a clean
// disconnect between frames (spec.md §4.4 "exits cleanly on EOF").
func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: reading frame length: %v", storeerr.ErrCodec, err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameLen {
		return nil, fmt.Errorf("%w: frame length %d exceeds maximum %d", storeerr.ErrCodec, n, maxFrameLen)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("%w: reading frame payload: %v", storeerr.ErrCodec, err)
	}
	return payload, nil
}

func putString(buf []byte, s string) []byte {
	var lenBytes [4]byte
	binary.BigEndian.PutUint32(lenBytes[:], uint32(len(s)))
	buf = append(buf, lenBytes[:]...)
	buf = append(buf, s...)
	return buf
}

func takeString(buf []byte) (string, []byte, error) {
	if len(buf) < 4 {
		return "", nil, fmt.Errorf("%w: truncated string length", storeerr.ErrCodec)
	}
	n := binary.BigEndian.Uint32(buf[0:4])
	buf = buf[4:]
	if uint32(len(buf)) < n {
		return "", nil, fmt.Errorf("%w: truncated string body", storeerr.ErrCodec)
	}
	return string(buf[:n]), buf[n:], nil
}

func encodeRequest(req Request) []byte {
	buf := []byte{byte(req.Tag)}
	switch req.Tag {
	case TagGet:
		buf = putString(buf, req.Key)
	case TagSet:
		buf = putString(buf, req.Key)
		buf = putString(buf, req.Value)
	case TagRemove:
		buf = putString(buf, req.Key)
	case TagList:
		// no payload
	}
	return buf
}

func decodeRequest(payload []byte) (Request, error) {
	if len(payload) < 1 {
		return Request{}, fmt.Errorf("%w: empty request payload", storeerr.ErrCodec)
	}
	tag := RequestTag(payload[0])
	rest := payload[1:]

	switch tag {
	case TagGet:
		key, _, err := takeString(rest)
		if err != nil {
			return Request{}, err
		}
		return Request{Tag: TagGet, Key: key}, nil
	case TagSet:
		key, rest, err := takeString(rest)
		if err != nil {
			return Request{}, err
		}
		value, _, err := takeString(rest)
		if err != nil {
			return Request{}, err
		}
		return Request{Tag: TagSet, Key: key, Value: value}, nil
	case TagRemove:
		key, _, err := takeString(rest)
		if err != nil {
			return Request{}, err
		}
		return Request{Tag: TagRemove, Key: key}, nil
	case TagList:
		return Request{Tag: TagList}, nil
	default:
		return Request{}, fmt.Errorf("%w: unknown request tag %d", storeerr.ErrCodec, tag)
	}
}

func encodeResponse(resp Response) []byte {
	buf := []byte{byte(resp.Tag)}
	if resp.Tag == RespErr {
		return putString(buf, resp.Err)
	}

	buf = append(buf, byte(resp.shape))
	switch resp.shape {
	case shapeList:
		var countBytes [4]byte
		binary.BigEndian.PutUint32(countBytes[:], uint32(len(resp.Values)))
		buf = append(buf, countBytes[:]...)
		for _, v := range resp.Values {
			buf = putString(buf, v)
		}
	case shapeOptionalValue:
		if resp.HasValue {
			buf = append(buf, 1)
			buf = putString(buf, resp.Value)
		} else {
			buf = append(buf, 0)
		}
	case shapeUnit:
		// no payload
	}
	return buf
}

func decodeResponse(payload []byte) (Response, error) {
	if len(payload) < 1 {
		return Response{}, fmt.Errorf("%w: empty response payload", storeerr.ErrCodec)
	}
	tag := ResponseTag(payload[0])
	rest := payload[1:]

	if tag == RespErr {
		msg, _, err := takeString(rest)
		if err != nil {
			return Response{}, err
		}
		return Response{Tag: RespErr, Err: msg}, nil
	}

	if len(rest) < 1 {
		return Response{}, fmt.Errorf("%w: missing response shape byte", storeerr.ErrCodec)
	}
	shape := okShape(rest[0])
	rest = rest[1:]

	switch shape {
	case shapeUnit:
		return Response{Tag: RespOk, shape: shapeUnit}, nil
	case shapeOptionalValue:
		if len(rest) < 1 {
			return Response{}, fmt.Errorf("%w: missing presence byte", storeerr.ErrCodec)
		}
		present := rest[0] == 1
		rest = rest[1:]
		if !present {
			return Response{Tag: RespOk, shape: shapeOptionalValue, HasValue: false}, nil
		}
		value, _, err := takeString(rest)
		if err != nil {
			return Response{}, err
		}
		return Response{Tag: RespOk, shape: shapeOptionalValue, HasValue: true, Value: value}, nil
	case shapeList:
		if len(rest) < 4 {
			return Response{}, fmt.Errorf("%w: truncated list count", storeerr.ErrCodec)
		}
		n := binary.BigEndian.Uint32(rest[0:4])
		rest = rest[4:]
		values := make([]string, 0, n)
		for i := uint32(0); i < n; i++ {
			var v string
			var err error
			v, rest, err = takeString(rest)
			if err != nil {
				return Response{}, err
			}
			values = append(values, v)
		}
		return Response{Tag: RespOk, shape: shapeList, Values: values}, nil
	default:
		return Response{}, fmt.Errorf("%w: unknown response shape %d", storeerr.ErrCodec, shape)
	}
}
