// Command kvd runs the smoldb server: a TCP listener in front of either
// the Bitcask log-structured engine or the Badger-backed alternate engine.
package main

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/nikosl/smoldb/internal/altstore"
	"github.com/nikosl/smoldb/internal/bitcask"
	"github.com/nikosl/smoldb/internal/config"
	"github.com/nikosl/smoldb/internal/server"
	"github.com/nikosl/smoldb/internal/storage"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	cfg, err := config.Load("config.yml")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	addr := flag.String("addr", cfg.Addr, "address to listen on (host:port)")
	storageKind := flag.String("storage", string(cfg.StorageKind), "storage backend: bitcask|alt")
	dir := flag.String("dir", cfg.DataDir, "data directory")
	flag.Parse()

	store, err := openStore(config.StorageKind(*storageKind), *dir, cfg.LogSizeThreshold)
	if err != nil {
		slog.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	lis, err := net.Listen("tcp", *addr)
	if err != nil {
		slog.Error("failed to listen", "addr", *addr, "error", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	stop := make(chan struct{})
	go func() {
		<-sigCh
		slog.Info("shutting down")
		close(stop)
	}()

	slog.Info("smoldb server starting", "addr", *addr, "storage", *storageKind, "dir", *dir)
	srv := server.New(store)
	if err := srv.Serve(lis, stop); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func openStore(kind config.StorageKind, dir string, logSizeThreshold uint64) (storage.Storage, error) {
	switch kind {
	case config.StorageAlt:
		return altstore.Open(dir)
	case config.StorageBitcask, "":
		return bitcask.OpenWithThreshold(dir, logSizeThreshold)
	default:
		return nil, fmt.Errorf("unknown storage kind %q", kind)
	}
}
