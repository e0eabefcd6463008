package main

import (
	"bytes"
	"context"
	"io"
	"log"
	"net"
	"strings"
	"testing"

	"wordcount/rpc/server"
	"wordcount/table"
	"wordcount/table/remote"
)

func startServer(t *testing.T) (string, *table.Store) {
	t.Helper()
	store, err := table.Open(t.TempDir())
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
	t.Cleanup(func() {
		listener.Close()
		s.CloseConns()
		store.Close()
	})
	return listener.Addr().String(), store
}

func TestCheckCommand(t *testing.T) {
	valid := [][]string{
		{"create", "t", "cf"},
		{"create", "t", "cf", "meta"},
		{"get", "t", "row"},
		{"get", "t", "row", "cf", "count"},
		{"scan", "t"},
		{"scan", "t", "pre"},
		{"stats"},
	}
	for _, c := range valid {
		if err := checkCommand(c); err != nil {
			t.Errorf("checkCommand(%q) = %v", c, err)
		}
	}
	invalid := [][]string{
		nil,
		{"create", "t"},
		{"get", "t"},
		{"get", "t", "row", "cf"},
		{"scan"},
		{"stats", "x"},
		{"drop", "t"},
	}
	for _, c := range invalid {
		if err := checkCommand(c); err == nil {
			t.Errorf("checkCommand(%q) accepted", c)
		}
	}
}

func TestCommands(t *testing.T) {
	addr, store := startServer(t)
	ctx := context.Background()
	exec := func(args ...string) (int, string, string) {
		var stdout, stderr bytes.Buffer
		code := run(append([]string{"tablectl", "-tsa", addr}, args...), &stdout, &stderr)
		return code, stdout.String(), stderr.String()
	}

	if code, out, errOut := exec("create", "counts", "cf"); code != 0 || !strings.Contains(out, "Table counts created") {
		t.Fatalf("create = %d %q %q", code, out, errOut)
	}
	if code, _, errOut := exec("create", "counts", "cf"); code != 1 || !strings.Contains(errOut, "already exists") {
		t.Fatalf("second create = %d %q", code, errOut)
	}
	for word, n := range map[string]int64{"apple": 3, "apricot": 1, "banana": 2} {
		if err := store.Put(ctx, "counts", []byte(word), table.CountFamily, table.CountColumn, table.EncodeCount(n)); err != nil {
			t.Fatal(err)
		}
	}

	if code, out, _ := exec("get", "counts", "apple"); code != 0 || out != "apple\tcf:count\t3\n" {
		t.Fatalf("get = %d %q", code, out)
	}
	if code, _, errOut := exec("get", "counts", "cherry"); code != 1 || !strings.Contains(errOut, "no value") {
		t.Fatalf("get of a missing row = %d %q", code, errOut)
	}
	code, out, _ := exec("scan", "counts", "ap")
	if code != 0 || !strings.HasPrefix(out, "Total cells: 2\n") || !strings.Contains(out, "apricot\tcf:count\t1") {
		t.Fatalf("scan = %d %q", code, out)
	}
	if code, out, _ := exec("-limit", "1", "scan", "counts"); code != 0 || !strings.HasPrefix(out, "Total cells: 1\n") {
		t.Fatalf("limited scan = %d %q", code, out)
	}
	if code, out, _ := exec("stats"); code != 0 || !strings.Contains(out, "Total tables: 1") || !strings.Contains(out, "counts") {
		t.Fatalf("stats = %d %q", code, out)
	}
}

func TestUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"tablectl", "drop"}, &stdout, &stderr); code != 2 {
		t.Fatalf("run = %d, want 2", code)
	}
	if !strings.Contains(stderr.String(), "Usage of tablectl") {
		t.Fatalf("no usage printed: %q", stderr.String())
	}
}
