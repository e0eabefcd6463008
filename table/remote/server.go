package remote

import (
	"context"
	"log"

	"wordcount/message"
	"wordcount/rpc/server"
	"wordcount/table"
)

type mux struct {
	store  *table.Store
	logger *log.Logger
}

// Register registers the table handlers for store on s.
func Register(s *server.Server, store *table.Store, logger *log.Logger) {
	if logger == nil {
		logger = log.Default()
	}
	m := &mux{store: store, logger: logger}
	s.RegisterByMessage(&message.CreateTableRequest{}, m.createTableRequest)
	s.RegisterByMessage(&message.PutRequest{}, m.putRequest)
	s.RegisterByMessage(&message.GetRequest{}, m.getRequest)
	s.RegisterByMessage(&message.ScanRequest{}, m.scanRequest)
	s.RegisterByMessage(&message.StatsRequest{}, m.statsRequest)
}

// createTableRequest handles the CreateTableRequest from a client
func (m *mux) createTableRequest(ctx server.Context, req message.Message) (message.Message, error) {
	createReq := req.(*message.CreateTableRequest)
	if err := m.store.CreateTable(context.Background(), createReq.Table, createReq.Families); err != nil {
		return nil, err
	}
	m.logger.Printf("table %s created by %s, families %v", createReq.Table, ctx.Address, createReq.Families)
	return &message.Empty{}, nil
}

// putRequest handles the PutRequest from a client
func (m *mux) putRequest(ctx server.Context, req message.Message) (message.Message, error) {
	putReq := req.(*message.PutRequest)
	c := putReq.Cell
	if err := m.store.Put(context.Background(), putReq.Table, c.Row, c.Family, c.Column, c.Value); err != nil {
		return nil, err
	}
	return &message.Empty{}, nil
}

// getRequest handles the GetRequest from a client
func (m *mux) getRequest(ctx server.Context, req message.Message) (message.Message, error) {
	getReq := req.(*message.GetRequest)
	value, found, err := m.store.Get(context.Background(), getReq.Table, getReq.Row, getReq.Family, getReq.Column)
	if err != nil {
		return nil, err
	}
	return &message.GetResponse{Found: found, Value: value}, nil
}

// scanRequest handles the ScanRequest from a client
func (m *mux) scanRequest(ctx server.Context, req message.Message) (message.Message, error) {
	scanReq := req.(*message.ScanRequest)
	cells, err := m.store.Scan(context.Background(), scanReq.Table, scanReq.Prefix, int(scanReq.Limit))
	if err != nil {
		return nil, err
	}
	resp := &message.ScanResponse{Cells: make([]message.Cell, 0, len(cells))}
	for _, c := range cells {
		resp.Cells = append(resp.Cells, message.Cell{Row: c.Row, Family: c.Family, Column: c.Column, Value: c.Value})
	}
	return resp, nil
}

// statsRequest handles the StatsRequest from a client
func (m *mux) statsRequest(ctx server.Context, req message.Message) (message.Message, error) {
	tables, err := m.store.Stats(context.Background())
	if err != nil {
		return nil, err
	}
	freespace, err := m.store.FreeSpace()
	if err != nil {
		m.logger.Printf("get free space error: %v", err)
	}
	return &message.StatsResponse{
		StartedAt: m.store.StartedAt(),
		FreeSpace: freespace,
		Tables:    tables,
	}, nil
}
