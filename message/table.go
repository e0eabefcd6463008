package message

import (
	"time"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// CreateTableRequest asks for a table with the given column families.
// The table store also persists it as the table schema.
type CreateTableRequest struct {
	Table    string
	Families []string
}

func (*CreateTableRequest) Name() string { return "wordcount.table.CreateTableRequest" }

func (m *CreateTableRequest) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.Table)
	b = appendRepeatedString(b, 2, m.Families)
	return b
}

func (m *CreateTableRequest) Unmarshal(b []byte) error {
	*m = CreateTableRequest{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
		switch num {
		case 1:
			m.Table, n, err = consumeString(typ, b)
		case 2:
			var family string
			family, n, err = consumeString(typ, b)
			m.Families = append(m.Families, family)
		}
		return
	})
}

// Cell is a single value addressed by row, family and column. It is the
// unit of a put request, of a scan response and of the cell log.
type Cell struct {
	Row    []byte
	Family string
	Column string
	Value  []byte
}

func (*Cell) Name() string { return "wordcount.table.Cell" }

func (m *Cell) Marshal() []byte {
	var b []byte
	b = appendBytes(b, 1, m.Row)
	b = appendString(b, 2, m.Family)
	b = appendString(b, 3, m.Column)
	b = appendBytes(b, 4, m.Value)
	return b
}

func (m *Cell) Unmarshal(b []byte) error {
	*m = Cell{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
		switch num {
		case 1:
			m.Row, n, err = consumeBytes(typ, b)
		case 2:
			m.Family, n, err = consumeString(typ, b)
		case 3:
			m.Column, n, err = consumeString(typ, b)
		case 4:
			m.Value, n, err = consumeBytes(typ, b)
		}
		return
	})
}

// PutRequest writes one cell of a table.
type PutRequest struct {
	Table string
	Cell  Cell
}

func (*PutRequest) Name() string { return "wordcount.table.PutRequest" }

func (m *PutRequest) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.Table)
	b = appendMessage(b, 2, &m.Cell)
	return b
}

func (m *PutRequest) Unmarshal(b []byte) error {
	*m = PutRequest{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
		switch num {
		case 1:
			m.Table, n, err = consumeString(typ, b)
		case 2:
			var raw []byte
			if raw, n, err = consumeBytes(typ, b); err == nil {
				err = m.Cell.Unmarshal(raw)
			}
		}
		return
	})
}

// GetRequest reads one cell of a table.
type GetRequest struct {
	Table  string
	Row    []byte
	Family string
	Column string
}

func (*GetRequest) Name() string { return "wordcount.table.GetRequest" }

func (m *GetRequest) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.Table)
	b = appendBytes(b, 2, m.Row)
	b = appendString(b, 3, m.Family)
	b = appendString(b, 4, m.Column)
	return b
}

func (m *GetRequest) Unmarshal(b []byte) error {
	*m = GetRequest{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
		switch num {
		case 1:
			m.Table, n, err = consumeString(typ, b)
		case 2:
			m.Row, n, err = consumeBytes(typ, b)
		case 3:
			m.Family, n, err = consumeString(typ, b)
		case 4:
			m.Column, n, err = consumeString(typ, b)
		}
		return
	})
}

// GetResponse carries the value of a cell, if it exists.
type GetResponse struct {
	Found bool
	Value []byte
}

func (*GetResponse) Name() string { return "wordcount.table.GetResponse" }

func (m *GetResponse) Marshal() []byte {
	var b []byte
	b = appendBool(b, 1, m.Found)
	b = appendBytes(b, 2, m.Value)
	return b
}

func (m *GetResponse) Unmarshal(b []byte) error {
	*m = GetResponse{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
		switch num {
		case 1:
			var v uint64
			v, n, err = consumeVarint(typ, b)
			m.Found = protowire.DecodeBool(v)
		case 2:
			m.Value, n, err = consumeBytes(typ, b)
		}
		return
	})
}

// ScanRequest lists the cells of the rows starting with Prefix, in row
// order. A zero Limit means no limit on the number of cells.
type ScanRequest struct {
	Table  string
	Prefix []byte
	Limit  uint32
}

func (*ScanRequest) Name() string { return "wordcount.table.ScanRequest" }

func (m *ScanRequest) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.Table)
	b = appendBytes(b, 2, m.Prefix)
	b = appendVarint(b, 3, uint64(m.Limit))
	return b
}

func (m *ScanRequest) Unmarshal(b []byte) error {
	*m = ScanRequest{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
		switch num {
		case 1:
			m.Table, n, err = consumeString(typ, b)
		case 2:
			m.Prefix, n, err = consumeBytes(typ, b)
		case 3:
			var v uint64
			v, n, err = consumeVarint(typ, b)
			m.Limit = uint32(v)
		}
		return
	})
}

// ScanResponse is the result of a ScanRequest.
type ScanResponse struct {
	Cells []Cell
}

func (*ScanResponse) Name() string { return "wordcount.table.ScanResponse" }

func (m *ScanResponse) Marshal() []byte {
	var b []byte
	for i := range m.Cells {
		b = appendMessage(b, 1, &m.Cells[i])
	}
	return b
}

func (m *ScanResponse) Unmarshal(b []byte) error {
	*m = ScanResponse{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
		if num != 1 {
			return 0, nil
		}
		var raw []byte
		if raw, n, err = consumeBytes(typ, b); err != nil {
			return
		}
		var c Cell
		if err = c.Unmarshal(raw); err == nil {
			m.Cells = append(m.Cells, c)
		}
		return
	})
}

// StatsRequest asks a table server to describe itself.
type StatsRequest struct{}

func (*StatsRequest) Name() string             { return "wordcount.table.StatsRequest" }
func (*StatsRequest) Marshal() []byte          { return nil }
func (*StatsRequest) Unmarshal(b []byte) error { return decodeFields(b, skipAll) }

// TableStats describes one table.
type TableStats struct {
	Table    string
	Families []string
	Rows     uint64
	// Digest is a hex MD5 over every cell of the table in row order.
	Digest string
}

func (*TableStats) Name() string { return "wordcount.table.TableStats" }

func (m *TableStats) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.Table)
	b = appendRepeatedString(b, 2, m.Families)
	b = appendVarint(b, 3, m.Rows)
	b = appendString(b, 4, m.Digest)
	return b
}

func (m *TableStats) Unmarshal(b []byte) error {
	*m = TableStats{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
		switch num {
		case 1:
			m.Table, n, err = consumeString(typ, b)
		case 2:
			var family string
			family, n, err = consumeString(typ, b)
			m.Families = append(m.Families, family)
		case 3:
			m.Rows, n, err = consumeVarint(typ, b)
		case 4:
			m.Digest, n, err = consumeString(typ, b)
		}
		return
	})
}

// StatsResponse is the result of a StatsRequest.
type StatsResponse struct {
	StartedAt time.Time
	FreeSpace uint64
	Tables    []TableStats
}

func (*StatsResponse) Name() string { return "wordcount.table.StatsResponse" }

func (m *StatsResponse) Marshal() []byte {
	var b []byte
	if !m.StartedAt.IsZero() {
		// a Timestamp built from a valid time.Time always marshals
		ts, _ := proto.Marshal(timestamppb.New(m.StartedAt))
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, ts)
	}
	b = appendVarint(b, 2, m.FreeSpace)
	for i := range m.Tables {
		b = appendMessage(b, 3, &m.Tables[i])
	}
	return b
}

func (m *StatsResponse) Unmarshal(b []byte) error {
	*m = StatsResponse{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
		var raw []byte
		switch num {
		case 1:
			if raw, n, err = consumeBytes(typ, b); err != nil {
				return
			}
			ts := &timestamppb.Timestamp{}
			if err = proto.Unmarshal(raw, ts); err == nil {
				m.StartedAt = ts.AsTime()
			}
		case 2:
			m.FreeSpace, n, err = consumeVarint(typ, b)
		case 3:
			if raw, n, err = consumeBytes(typ, b); err != nil {
				return
			}
			var ts TableStats
			if err = ts.Unmarshal(raw); err == nil {
				m.Tables = append(m.Tables, ts)
			}
		}
		return
	})
}

func init() {
	Register(func() Message { return &CreateTableRequest{} })
	Register(func() Message { return &Cell{} })
	Register(func() Message { return &PutRequest{} })
	Register(func() Message { return &GetRequest{} })
	Register(func() Message { return &GetResponse{} })
	Register(func() Message { return &ScanRequest{} })
	Register(func() Message { return &ScanResponse{} })
	Register(func() Message { return &StatsRequest{} })
	Register(func() Message { return &TableStats{} })
	Register(func() Message { return &StatsResponse{} })
}
