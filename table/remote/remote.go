// Package remote serves a table.Store over rpc and implements table.Table
// on top of a connection to such a server.
package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"wordcount/message"
	"wordcount/rpc/client"
	"wordcount/table"
)

// Table is a table.Table backed by a table server.
type Table struct {
	addr string
	mu   sync.Mutex
	cli  *client.Client
}

var (
	_ table.Table   = (*Table)(nil)
	_ table.Scanner = (*Table)(nil)
)

// Dial connects to the table server at addr.
func Dial(ctx context.Context, addr string) (*Table, error) {
	t := &Table{addr: addr}
	if _, err := t.client(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// client returns the current connection, dialing a new one if the last
// one was dropped.
func (t *Table) client(ctx context.Context) (*client.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cli != nil {
		return t.cli, nil
	}
	cli, err := client.Dial(ctx, t.addr)
	if err != nil {
		return nil, fmt.Errorf("dial table server %s: %w", t.addr, err)
	}
	t.cli = cli
	return cli, nil
}

// drop closes cli unless it has already been replaced.
func (t *Table) drop(cli *client.Client) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cli == cli {
		t.cli.Close()
		t.cli = nil
	}
}

func (t *Table) call(ctx context.Context, req message.Message) (message.Message, error) {
	cli, err := t.client(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := cli.SendRequestContext(ctx, req)
	if err == nil {
		return resp, nil
	}
	var wireErr *message.Error
	if errors.As(err, &wireErr) {
		if sentinel := table.FromCode(wireErr.Code, wireErr.Message); sentinel != nil {
			return nil, sentinel
		}
		return nil, err
	}
	// the stream may be out of sync after a transport error
	t.drop(cli)
	return nil, err
}

// CreateTable implements table.Table.
func (t *Table) CreateTable(ctx context.Context, name string, families []string) error {
	_, err := t.call(ctx, &message.CreateTableRequest{Table: name, Families: families})
	return err
}

// Put implements table.Table.
func (t *Table) Put(ctx context.Context, name string, row []byte, family, column string, value []byte) error {
	_, err := t.call(ctx, &message.PutRequest{
		Table: name,
		Cell:  message.Cell{Row: row, Family: family, Column: column, Value: value},
	})
	return err
}

// Get implements table.Table.
func (t *Table) Get(ctx context.Context, name string, row []byte, family, column string) ([]byte, bool, error) {
	resp, err := t.call(ctx, &message.GetRequest{Table: name, Row: row, Family: family, Column: column})
	if err != nil {
		return nil, false, err
	}
	get, ok := resp.(*message.GetResponse)
	if !ok {
		return nil, false, fmt.Errorf("unexpected response type %T", resp)
	}
	return get.Value, get.Found, nil
}

// Scan implements table.Scanner.
func (t *Table) Scan(ctx context.Context, name string, prefix []byte, limit int) ([]table.Cell, error) {
	resp, err := t.call(ctx, &message.ScanRequest{Table: name, Prefix: prefix, Limit: uint32(max(limit, 0))})
	if err != nil {
		return nil, err
	}
	scan, ok := resp.(*message.ScanResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type %T", resp)
	}
	cells := make([]table.Cell, 0, len(scan.Cells))
	for _, c := range scan.Cells {
		cells = append(cells, table.Cell{Row: c.Row, Family: c.Family, Column: c.Column, Value: c.Value})
	}
	return cells, nil
}

// Stats returns the description of the server and its tables.
func (t *Table) Stats(ctx context.Context) (*message.StatsResponse, error) {
	resp, err := t.call(ctx, &message.StatsRequest{})
	if err != nil {
		return nil, err
	}
	stats, ok := resp.(*message.StatsResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type %T", resp)
	}
	return stats, nil
}

// Close closes the connection to the server.
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cli == nil {
		return nil
	}
	err := t.cli.Close()
	t.cli = nil
	return err
}
