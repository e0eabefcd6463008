package client

import (
	"context"
	"net"
	"sync"
	"time"

	"wordcount/message"
	"wordcount/rpc/helper"
)

// Client is a client for rpc
type Client struct {
	conn net.Conn
	m    sync.Mutex
}

// NewClient creates a new client
func NewClient(conn net.Conn) *Client {
	return &Client{
		conn: conn,
	}
}

// Dial connects to address and returns a client for it.
func Dial(ctx context.Context, address string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return NewClient(conn), nil
}

// SendRequest sends a request and receives a response.
// A *message.Error reply is returned as the error.
func (c *Client) SendRequest(req message.Message) (resp message.Message, err error) {
	return c.SendRequestContext(context.Background(), req)
}

// SendRequestContext is SendRequest bounded by the deadline of ctx.
func (c *Client) SendRequestContext(ctx context.Context, req message.Message) (resp message.Message, err error) {
	c.m.Lock()
	defer c.m.Unlock()
	if err = ctx.Err(); err != nil {
		return
	}
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetDeadline(deadline)
	}
	defer c.conn.SetDeadline(time.Time{})
	// unblock the exchange when ctx is cancelled without a deadline
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if err = helper.SendMessage(c.conn, req); err != nil {
		return nil, ctxErr(ctx, err)
	}
	resp, err = helper.ReceiveMessage(c.conn)
	if err != nil {
		return nil, ctxErr(ctx, err)
	}
	if e, ok := resp.(*message.Error); ok {
		return nil, e
	}
	return
}

func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	// the conn deadline can fire just before the context notices
	if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
		return context.DeadlineExceeded
	}
	return err
}

// Close closes the connection
func (c *Client) Close() error {
	return c.conn.Close()
}
