package remote

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"testing"

	"wordcount/rpc/server"
	"wordcount/table"
)

func startTableServer(t *testing.T) (string, *table.Store) {
	t.Helper()
	store, err := table.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	quiet := log.New(io.Discard, "", 0)
	s := server.NewServer()
	s.SetLogger(quiet)
	Register(s, store, quiet)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go s.Serve(listener)
	t.Cleanup(func() {
		listener.Close()
		s.CloseConns()
		store.Close()
	})
	return listener.Addr().String(), store
}

func TestRemoteTable(t *testing.T) {
	ctx := context.Background()
	addr, store := startTableServer(t)
	tbl, err := Dial(ctx, addr)
	if err != nil {
		t.Fatal(err)
	}
	defer tbl.Close()

	if err := tbl.CreateTable(ctx, "words", []string{"cf"}); err != nil {
		t.Fatal(err)
	}
	err = tbl.CreateTable(ctx, "words", []string{"cf"})
	if !errors.Is(err, table.ErrTableExists) {
		t.Fatalf("second CreateTable err = %v, want ErrTableExists", err)
	}
	if err := tbl.Put(ctx, "nope", []byte("a"), "cf", "count", nil); !errors.Is(err, table.ErrTableNotFound) {
		t.Fatalf("Put on a missing table err = %v", err)
	}

	w := table.NewWriter(tbl, table.WriterConfig{Table: "words", Logger: log.New(io.Discard, "", 0)})
	if err := w.EnsureTable(ctx); err != nil {
		t.Fatal(err)
	}
	if err := tbl.Put(ctx, "words", []byte("hello"), "cf", "count", table.EncodeCount(7)); err != nil {
		t.Fatal(err)
	}

	// the write is visible in the store behind the server
	v, ok, err := store.Get(ctx, "words", []byte("hello"), "cf", "count")
	if n, _ := table.DecodeCount(v); err != nil || !ok || n != 7 {
		t.Fatalf("store Get = %d, %v, %v", n, ok, err)
	}
	v, ok, err = tbl.Get(ctx, "words", []byte("hello"), "cf", "count")
	if n, _ := table.DecodeCount(v); err != nil || !ok || n != 7 {
		t.Fatalf("remote Get = %d, %v, %v", n, ok, err)
	}
	if _, ok, err = tbl.Get(ctx, "words", []byte("absent"), "cf", "count"); err != nil || ok {
		t.Fatalf("remote Get of a missing row = %v, %v", ok, err)
	}

	cells, err := tbl.Scan(ctx, "words", nil, 0)
	if err != nil || len(cells) != 1 || string(cells[0].Row) != "hello" {
		t.Fatalf("Scan = %+v, %v", cells, err)
	}

	stats, err := tbl.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(stats.Tables) != 1 || stats.Tables[0].Rows != 1 || stats.StartedAt.IsZero() || stats.FreeSpace == 0 {
		t.Fatalf("Stats = %+v", stats)
	}
}

func TestRemoteRedials(t *testing.T) {
	ctx := context.Background()
	addr, _ := startTableServer(t)
	tbl, err := Dial(ctx, addr)
	if err != nil {
		t.Fatal(err)
	}
	defer tbl.Close()

	// break the current connection behind the client's back
	tbl.mu.Lock()
	tbl.cli.Close()
	tbl.mu.Unlock()

	if err := tbl.CreateTable(ctx, "words", []string{"cf"}); err == nil {
		t.Fatal("request over a closed connection succeeded")
	}
	if err := tbl.CreateTable(ctx, "words", []string{"cf"}); err != nil {
		t.Fatalf("request after redial: %v", err)
	}
}
