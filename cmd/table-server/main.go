package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"os/user"
	"path"
	"regexp"
	"syscall"
	"time"

	"wordcount/rpc/server"
	"wordcount/table"
	"wordcount/table/remote"
)

// StoragePathPrefix is the directory holding the stores of every server
// started on this machine.
var StoragePathPrefix string

func getUsername() string {
	u, err := user.Current()
	if err != nil {
		panic(err)
	}
	return u.Username
}

// generateStoragePath returns the store directory of the server listening
// on listenAddr, so that several servers can share a prefix.
func generateStoragePath(listenAddr string) string {
	addrReplacer := regexp.MustCompile(`[:\[\]]+`)
	folder := addrReplacer.ReplaceAllString(listenAddr, "_")
	folder = fmt.Sprintf("table-server-%s", folder)
	return path.Join(StoragePathPrefix, folder)
}

// syncPeriodically flushes the cell logs to disk until ctx is done.
func syncPeriodically(ctx context.Context, store *table.Store, interval time.Duration, logger *log.Logger) {
	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if err := store.Sync(); err != nil {
			logger.Printf("sync failed: %v", err)
		}
		timer.Reset(interval)
	}
}

func main() {
	listenAddr := flag.String("listenAddr", "localhost:9000", "Listen address")
	flag.StringVar(&StoragePathPrefix, "storePath", path.Join(os.TempDir(), getUsername()), "Storage path prefix")
	syncInterval := flag.Duration("syncInterval", 5*time.Second, "Interval between flushes of the cell logs")
	flag.Parse()

	logger := log.New(os.Stderr, "[table-server] ", log.LstdFlags|log.Lmsgprefix)
	storagePath := generateStoragePath(*listenAddr)
	store, err := table.Open(storagePath)
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}

	listener, err := net.Listen("tcp", *listenAddr)
	if err != nil {
		store.Close()
		logger.Fatalf("listen: %v", err)
	}

	s := server.NewServer()
	s.SetLogPrefix("[table-server rpc]")
	remote.Register(s, store, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go syncPeriodically(ctx, store, *syncInterval, logger)

	logger.Printf("start at %s, storage path: %s", *listenAddr, storagePath)
	served := make(chan error, 1)
	go func() { served <- s.Serve(listener) }()

	select {
	case <-ctx.Done():
		logger.Printf("shutting down")
		listener.Close()
	case err = <-served:
		logger.Printf("serve: %v", err)
	}
	s.CloseConns()
	if err := store.Close(); err != nil {
		logger.Printf("close store: %v", err)
	}
}
