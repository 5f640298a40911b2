package wire

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestRoundTrip(t *testing.T) {
	cases := []Request{
		{Tag: TagGet, Key: "foo"},
		{Tag: TagSet, Key: "foo", Value: "bar"},
		{Tag: TagRemove, Key: "foo"},
		{Tag: TagList},
		{Tag: TagSet, Key: "", Value: ""},
	}
	for _, want := range cases {
		var buf bytes.Buffer
		require.NoError(t, WriteRequest(&buf, want))
		got, err := ReadRequest(&buf)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	cases := []Response{
		OkGet("bar", true),
		OkGet("", false),
		OkUnit(),
		OkList([]string{"a", "b", "c"}),
		OkList(nil),
		ErrResponse("key not found"),
	}
	for _, want := range cases {
		var buf bytes.Buffer
		require.NoError(t, WriteResponse(&buf, want))
		got, err := ReadResponse(&buf)
		require.NoError(t, err)
		assert.Equal(t, want.Tag, got.Tag)
		assert.Equal(t, want.HasValue, got.HasValue)
		assert.Equal(t, want.Value, got.Value)
		assert.Equal(t, want.Err, got.Err)
		if len(want.Values) == 0 {
			assert.Empty(t, got.Values)
		} else {
			assert.Equal(t, want.Values, got.Values)
		}
	}
}

func TestReadRequestEOFOnCleanDisconnect(t *testing.T) {
	_, err := ReadRequest(&bytes.Buffer{})
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	lenPrefix := make([]byte, 4)
	lenPrefix[0] = 0xFF
	buf.Write(lenPrefix)
	_, err := ReadRequest(&buf)
	assert.Error(t, err)
}

func TestReadRequestTruncatedFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRequest(&buf, Request{Tag: TagSet, Key: "foo", Value: "bar"}))
	full := buf.Bytes()
	_, err := ReadRequest(bytes.NewReader(full[:len(full)-3]))
	assert.Error(t, err)
}

func TestMultipleFramesOnOneStream(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRequest(&buf, Request{Tag: TagGet, Key: "a"}))
	require.NoError(t, WriteRequest(&buf, Request{Tag: TagGet, Key: "b"}))

	first, err := ReadRequest(&buf)
	require.NoError(t, err)
	assert.Equal(t, "a", first.Key)

	second, err := ReadRequest(&buf)
	require.NoError(t, err)
	assert.Equal(t, "b", second.Key)
}
