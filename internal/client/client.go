// Package client provides the user-facing smoldb API: Get, Set, Remove,
// and List, each borrowing a connection from a pool.Pool, writing a framed
// wire.Request, and translating the framed wire.Response back into a Go
// value or a *ServerError (spec.md §5).
package client

import (
	"context"
	"fmt"

	"github.com/nikosl/smoldb/internal/pool"
	"github.com/nikosl/smoldb/internal/wire"
)

// ServerError is returned when the server answered with an Err variant.
// It carries the message the server reported so a caller can distinguish
// e.g. "key not found" from a lower-level transport failure.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: %s", e.Message)
}

// Client is a connected handle to a smoldb server. It is safe for
// concurrent use from many goroutines; each call borrows its own
// connection from the underlying pool.
type Client struct {
	pool *pool.Pool
}

// Connect creates a Client that dials addr lazily through a pool of at
// most poolSize concurrent connections.
func Connect(addr string, poolSize int) *Client {
	return &Client{pool: pool.New(addr, poolSize)}
}

// Close releases pooled idle connections. In-flight requests are
// unaffected.
func (c *Client) Close() error {
	return c.pool.Close()
}

// Get returns the current value for key and true, or ("", false, nil) if
// the key is absent.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	resp, err := c.roundTrip(ctx, wire.Request{Tag: wire.TagGet, Key: key})
	if err != nil {
		return "", false, err
	}
	if resp.Tag == wire.RespErr {
		return "", false, &ServerError{Message: resp.Err}
	}
	return resp.Value, resp.HasValue, nil
}

// Set stores value under key, overwriting any existing value.
func (c *Client) Set(ctx context.Context, key, value string) error {
	resp, err := c.roundTrip(ctx, wire.Request{Tag: wire.TagSet, Key: key, Value: value})
	if err != nil {
		return err
	}
	if resp.Tag == wire.RespErr {
		return &ServerError{Message: resp.Err}
	}
	return nil
}

// Remove deletes key. It returns a *ServerError if the key does not exist.
func (c *Client) Remove(ctx context.Context, key string) error {
	resp, err := c.roundTrip(ctx, wire.Request{Tag: wire.TagRemove, Key: key})
	if err != nil {
		return err
	}
	if resp.Tag == wire.RespErr {
		return &ServerError{Message: resp.Err}
	}
	return nil
}

// List returns every live key known to the server.
func (c *Client) List(ctx context.Context) ([]string, error) {
	resp, err := c.roundTrip(ctx, wire.Request{Tag: wire.TagList})
	if err != nil {
		return nil, err
	}
	if resp.Tag == wire.RespErr {
		return nil, &ServerError{Message: resp.Err}
	}
	return resp.Values, nil
}

// roundTrip borrows a connection, writes req, and reads back the matching
// response. The connection is discarded instead of returned to the pool
// whenever a codec/IO error occurs, since a connection that failed
// mid-protocol can no longer be trusted to be frame-aligned.
func (c *Client) roundTrip(ctx context.Context, req wire.Request) (wire.Response, error) {
	conn, err := c.pool.Get(ctx)
	if err != nil {
		return wire.Response{}, fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Release()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := wire.WriteRequest(conn, req); err != nil {
		conn.Discard()
		return wire.Response{}, fmt.Errorf("writing request: %w", err)
	}

	resp, err := wire.ReadResponse(conn)
	if err != nil {
		conn.Discard()
		return wire.Response{}, fmt.Errorf("reading response: %w", err)
	}
	return resp, nil
}
