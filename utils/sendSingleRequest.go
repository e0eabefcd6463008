package utils

import (
	"context"

	"wordcount/message"
	"wordcount/rpc/client"
)

// SendSingleRequest send a single request to a server and receive a response
func SendSingleRequest(ctx context.Context, address string, req message.Message) (resp message.Message, err error) {
	c, err := client.Dial(ctx, address)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return c.SendRequestContext(ctx, req)
}
