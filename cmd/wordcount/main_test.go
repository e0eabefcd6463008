package main

import (
	"bytes"
	"context"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"wordcount/rpc/server"
	"wordcount/table"
	"wordcount/table/remote"
)

func TestRunUsage(t *testing.T) {
	storeDir := filepath.Join(t.TempDir(), "tables")
	cases := [][]string{
		{"wordcount"},
		{"wordcount", "-store", storeDir, "only-one-arg"},
		{"wordcount", "-store", storeDir, "-shards", "0", "in.txt", "out"},
		{"wordcount", "-store", storeDir, "in.txt", "bad/name"},
		{"wordcount", "-no-such-flag"},
	}
	for _, args := range cases {
		var stderr bytes.Buffer
		if code := run(context.Background(), args, &stderr); code != 2 {
			t.Fatalf("run(%q) = %d, want 2\n%s", args, code, stderr.String())
		}
		if !strings.Contains(stderr.String(), "Usage of wordcount") {
			t.Fatalf("run(%q) printed no usage:\n%s", args, stderr.String())
		}
	}
	if _, err := os.Stat(storeDir); !os.IsNotExist(err) {
		t.Fatalf("a usage error touched the store: %v", err)
	}
}

func TestRunLocalStore(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.txt")
	if err := os.WriteFile(input, []byte("a a b\nb c\n"), 0644); err != nil {
		t.Fatal(err)
	}
	storeDir := filepath.Join(dir, "tables")
	var stderr bytes.Buffer
	if code := run(context.Background(), []string{"wordcount", "-store", storeDir, "-shards", "3", input, "counts"}, &stderr); code != 0 {
		t.Fatalf("run = %d\n%s", code, stderr.String())
	}

	store, err := table.Open(storeDir)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	for word, want := range map[string]int64{"a": 2, "b": 2, "c": 1} {
		v, ok, err := store.Get(context.Background(), "counts", []byte(word), table.CountFamily, table.CountColumn)
		n, _ := table.DecodeCount(v)
		if err != nil || !ok || n != want {
			t.Fatalf("count of %q = %d, %v, %v, want %d", word, n, ok, err, want)
		}
	}
}

func TestRunFailure(t *testing.T) {
	dir := t.TempDir()
	var stderr bytes.Buffer
	args := []string{"wordcount", "-store", filepath.Join(dir, "tables"), filepath.Join(dir, "missing"), "counts"}
	if code := run(context.Background(), args, &stderr); code != 1 {
		t.Fatalf("run = %d, want 1\n%s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "input stage failed") {
		t.Fatalf("diagnostic does not name the failing stage:\n%s", stderr.String())
	}
}

func TestRunRemoteStore(t *testing.T) {
	dir := t.TempDir()
	store, err := table.Open(filepath.Join(dir, "server"))
	if err != nil {
		t.Fatal(err)
	}
	quiet := log.New(io.Discard, "", 0)
	s := server.NewServer()
	s.SetLogger(quiet)
	remote.Register(s, store, quiet)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go s.Serve(listener)
	defer func() {
		listener.Close()
		s.CloseConns()
		store.Close()
	}()

	input := filepath.Join(dir, "in.txt")
	if err := os.WriteFile(input, []byte("x y\ny z\n"), 0644); err != nil {
		t.Fatal(err)
	}
	var stderr bytes.Buffer
	if code := run(context.Background(), []string{"wordcount", "-tsa", listener.Addr().String(), input, "counts"}, &stderr); code != 0 {
		t.Fatalf("run = %d\n%s", code, stderr.String())
	}
	cells, err := store.Scan(context.Background(), "counts", nil, 0)
	if err != nil || len(cells) != 3 {
		t.Fatalf("Scan = %d cells, %v", len(cells), err)
	}
}
