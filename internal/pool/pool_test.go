package pool

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikosl/smoldb/internal/storeerr"
)

func spawnEchoListener(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			conn, err := lis.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	t.Cleanup(func() { lis.Close() })
	return lis.Addr().String()
}

func TestPoolReusesReleasedConnections(t *testing.T) {
	addr := spawnEchoListener(t)
	p := New(addr, 2)
	ctx := context.Background()

	c1, err := p.Get(ctx)
	require.NoError(t, err)
	c2, err := p.Get(ctx)
	require.NoError(t, err)

	c1.Release()
	c3, err := p.Get(ctx)
	require.NoError(t, err)

	c2.Release()
	c3.Release()
	assert.Equal(t, 2, p.Len())

	c4, err := p.Get(ctx)
	require.NoError(t, err)
	c5, err := p.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Len())

	c4.Release()
	c5.Release()
	assert.Equal(t, 2, p.Len())
}

func TestPoolBlocksAtCapacity(t *testing.T) {
	addr := spawnEchoListener(t)
	p := New(addr, 1)
	ctx := context.Background()

	c1, err := p.Get(ctx)
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		c2, err := p.Get(ctx)
		require.NoError(t, err)
		close(acquired)
		c2.Release()
	}()

	select {
	case <-acquired:
		t.Fatal("second Get should block while pool is at capacity")
	case <-time.After(100 * time.Millisecond):
	}

	c1.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Get should unblock after release")
	}
}

func TestPoolDiscardFreesSlotWithoutCachingConn(t *testing.T) {
	addr := spawnEchoListener(t)
	p := New(addr, 2)
	ctx := context.Background()

	c1, err := p.Get(ctx)
	require.NoError(t, err)
	c1.Discard()
	c1.Release()

	assert.Equal(t, 0, p.Len())

	c2, err := p.Get(ctx)
	require.NoError(t, err)
	c2.Release()
	assert.Equal(t, 1, p.Len())
}

func TestPoolGetAfterCloseReturnsErrPoolClosed(t *testing.T) {
	addr := spawnEchoListener(t)
	p := New(addr, 1)
	ctx := context.Background()

	require.NoError(t, p.Close())

	_, err := p.Get(ctx)
	assert.ErrorIs(t, err, storeerr.ErrPoolClosed)
}

func TestPoolConcurrentGets(t *testing.T) {
	addr := spawnEchoListener(t)
	p := New(addr, 2)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := p.Get(ctx)
			if err != nil {
				return
			}
			time.Sleep(5 * time.Millisecond)
			conn.Release()
		}()
	}
	wg.Wait()
	assert.Equal(t, 2, p.Len())
}
