package server

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikosl/smoldb/internal/bitcask"
	"github.com/nikosl/smoldb/internal/wire"
)

func startTestServer(t *testing.T) (net.Listener, func()) {
	t.Helper()
	dir := t.TempDir()
	engine, err := bitcask.Open(dir)
	require.NoError(t, err)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	stop := make(chan struct{})
	srv := New(engine)
	done := make(chan struct{})
	go func() {
		_ = srv.Serve(lis, stop)
		close(done)
	}()

	cleanup := func() {
		close(stop)
		<-done
		_ = engine.Close()
	}
	return lis, cleanup
}

func TestServerSetGetRemoveList(t *testing.T) {
	lis, cleanup := startTestServer(t)
	defer cleanup()

	conn, err := net.DialTimeout("tcp", lis.Addr().String(), time.Second)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, wire.WriteRequest(conn, wire.Request{Tag: wire.TagSet, Key: "a", Value: "1"}))
	resp, err := wire.ReadResponse(conn)
	require.NoError(t, err)
	assert.Equal(t, wire.RespOk, resp.Tag)

	require.NoError(t, wire.WriteRequest(conn, wire.Request{Tag: wire.TagGet, Key: "a"}))
	resp, err = wire.ReadResponse(conn)
	require.NoError(t, err)
	assert.True(t, resp.HasValue)
	assert.Equal(t, "1", resp.Value)

	require.NoError(t, wire.WriteRequest(conn, wire.Request{Tag: wire.TagList}))
	resp, err = wire.ReadResponse(conn)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, resp.Values)

	require.NoError(t, wire.WriteRequest(conn, wire.Request{Tag: wire.TagRemove, Key: "a"}))
	resp, err = wire.ReadResponse(conn)
	require.NoError(t, err)
	assert.Equal(t, wire.RespOk, resp.Tag)

	require.NoError(t, wire.WriteRequest(conn, wire.Request{Tag: wire.TagGet, Key: "a"}))
	resp, err = wire.ReadResponse(conn)
	require.NoError(t, err)
	assert.False(t, resp.HasValue)
}

func TestServerRemoveMissingKeyReturnsErrVariant(t *testing.T) {
	lis, cleanup := startTestServer(t)
	defer cleanup()

	conn, err := net.DialTimeout("tcp", lis.Addr().String(), time.Second)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, wire.WriteRequest(conn, wire.Request{Tag: wire.TagRemove, Key: "missing"}))
	resp, err := wire.ReadResponse(conn)
	require.NoError(t, err)
	assert.Equal(t, wire.RespErr, resp.Tag)
	assert.NotEmpty(t, resp.Err)

	// the connection must stay usable after a storage-level error.
	require.NoError(t, wire.WriteRequest(conn, wire.Request{Tag: wire.TagSet, Key: "k", Value: "v"}))
	resp, err = wire.ReadResponse(conn)
	require.NoError(t, err)
	assert.Equal(t, wire.RespOk, resp.Tag)
}

func TestServerHandlesMultipleConcurrentConnections(t *testing.T) {
	lis, cleanup := startTestServer(t)
	defer cleanup()

	const n = 8
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			conn, err := net.DialTimeout("tcp", lis.Addr().String(), time.Second)
			if err != nil {
				errs <- err
				return
			}
			defer conn.Close()
			key := "k"
			if err := wire.WriteRequest(conn, wire.Request{Tag: wire.TagSet, Key: key, Value: "v"}); err != nil {
				errs <- err
				return
			}
			if _, err := wire.ReadResponse(conn); err != nil {
				errs <- err
				return
			}
			errs <- nil
		}(i)
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-errs)
	}
}

func TestServerStopClosesListener(t *testing.T) {
	dir := t.TempDir()
	engine, err := bitcask.Open(dir)
	require.NoError(t, err)
	defer engine.Close()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	stop := make(chan struct{})
	srv := New(engine)
	done := make(chan struct{})
	go func() {
		_ = srv.Serve(lis, stop)
		close(done)
	}()

	close(stop)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after stop was closed")
	}
}
