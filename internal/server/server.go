// Package server runs the smoldb TCP front end: an accept loop that spawns
// one goroutine per connection, each running the request/response loop
// described in spec.md §4.4, dispatching decoded wire.Request values against
// a storage.Storage backend and writing back a wire.Response.
package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/nikosl/smoldb/internal/storage"
	"github.com/nikosl/smoldb/internal/wire"
)

// Server accepts connections on a listener and serves them against a
// storage.Storage backend.
type Server struct {
	store storage.Storage
}

// New creates a Server backed by store. store is used directly for
// backends that are safe to share across goroutines; if store implements
// storage.Cloneable, Serve calls CloneHandle once per accepted connection
// instead (see spec.md §5 "Sharing and ownership").
func New(store storage.Storage) *Server {
	return &Server{store: store}
}

// Serve runs the accept loop on lis until stop is closed or lis is closed
// by other means, then waits for in-flight connections to end. It returns
// nil after a shutdown via stop, and the Accept error when lis was closed
// without stop. Other Accept errors are logged and the loop goes on.
func (s *Server) Serve(lis net.Listener, stop <-chan struct{}) error {
	var wg sync.WaitGroup
	done := make(chan struct{})

	go func() {
		select {
		case <-stop:
			lis.Close()
		case <-done:
		}
	}()
	defer close(done)

	for {
		conn, err := lis.Accept()
		if err != nil {
			select {
			case <-stop:
				wg.Wait()
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				wg.Wait()
				return err
			}
			slog.Error("error accepting connection", "error", err)
			continue
		}

		handle := s.store
		if cloneable, ok := s.store.(storage.Cloneable); ok {
			handle = cloneable.CloneHandle()
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.serveConn(conn, handle)
		}()
	}
}

// serveConn runs the request/response loop for a single connection until
// the client disconnects or a codec/IO error occurs. Storage errors (key
// not found, checksum mismatch, etc.) are translated into wire.Response
// error variants and do not terminate the loop: only a framing failure or
// peer disconnect does.
func (s *Server) serveConn(conn net.Conn, store storage.Storage) {
	peer := conn.RemoteAddr()
	defer conn.Close()
	defer releaseHandle(store)
	slog.Debug("connection established", "peer", peer)

	for {
		req, err := wire.ReadRequest(conn)
		if err != nil {
			if errors.Is(err, io.EOF) {
				slog.Debug("connection closed", "peer", peer)
				return
			}
			slog.Error("error serving connection", "peer", peer, "error", err)
			return
		}

		resp := dispatch(store, req)

		if err := wire.WriteResponse(conn, resp); err != nil {
			slog.Error("error writing response", "peer", peer, "error", err)
			return
		}
	}
}

// releaseHandle releases any per-connection resources a cloned storage
// handle holds, such as bitcask.Engine's per-handle reader cache, once the
// connection that owns it ends. A backend whose handle owns nothing
// per-connection (or that wasn't cloned at all) simply doesn't implement
// storage.HandleReleaser, and this is a no-op for it.
func releaseHandle(store storage.Storage) {
	if releaser, ok := store.(storage.HandleReleaser); ok {
		releaser.ReleaseHandle()
	}
}

func dispatch(store storage.Storage, req wire.Request) wire.Response {
	switch req.Tag {
	case wire.TagGet:
		value, ok, err := store.Get(req.Key)
		if err != nil {
			return wire.ErrResponse(err.Error())
		}
		return wire.OkGet(value, ok)

	case wire.TagSet:
		if err := store.Set(req.Key, req.Value); err != nil {
			return wire.ErrResponse(err.Error())
		}
		return wire.OkUnit()

	case wire.TagRemove:
		if err := store.Remove(req.Key); err != nil {
			return wire.ErrResponse(err.Error())
		}
		return wire.OkUnit()

	case wire.TagList:
		keys, err := store.ListKeys()
		if err != nil {
			return wire.ErrResponse(err.Error())
		}
		return wire.OkList(keys)

	default:
		return wire.ErrResponse(fmt.Sprintf("unknown request tag %d", req.Tag))
	}
}
