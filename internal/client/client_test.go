package client

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikosl/smoldb/internal/bitcask"
	"github.com/nikosl/smoldb/internal/server"
)

func startServer(t *testing.T) (addr string, cleanup func()) {
	t.Helper()
	dir := t.TempDir()
	engine, err := bitcask.Open(dir)
	require.NoError(t, err)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	stop := make(chan struct{})
	srv := server.New(engine)
	done := make(chan struct{})
	go func() {
		_ = srv.Serve(lis, stop)
		close(done)
	}()

	return lis.Addr().String(), func() {
		close(stop)
		<-done
		_ = engine.Close()
	}
}

func TestClientSetGetRemoveList(t *testing.T) {
	addr, cleanup := startServer(t)
	defer cleanup()

	c := Connect(addr, 2)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", "1"))

	value, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", value)

	keys, err := c.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, keys)

	require.NoError(t, c.Remove(ctx, "a"))

	_, ok, err = c.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClientRemoveMissingKeyReturnsServerError(t *testing.T) {
	addr, cleanup := startServer(t)
	defer cleanup()

	c := Connect(addr, 1)
	defer c.Close()

	err := c.Remove(context.Background(), "missing")
	require.Error(t, err)
	var serverErr *ServerError
	assert.True(t, errors.As(err, &serverErr))
}

func TestClientPoolOfTwoServesManyRequests(t *testing.T) {
	addr, cleanup := startServer(t)
	defer cleanup()

	c := Connect(addr, 2)
	defer c.Close()
	ctx := context.Background()

	done := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func(i int) {
			key := "k"
			done <- c.Set(ctx, key, "v")
		}(i)
	}
	for i := 0; i < 10; i++ {
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for concurrent Set calls")
		}
	}
}
