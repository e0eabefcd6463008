package message

import (
	"bytes"
	"slices"
	"testing"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"

	"wordcount/mapreduce/types"
)

func TestWrapUnwrap(t *testing.T) {
	req := &PutRequest{
		Table: "words",
		Cell:  Cell{Row: []byte("a"), Family: "cf", Column: "count", Value: []byte{0, 0, 0, 2}},
	}
	// go through proto.Marshal as the rpc framing does
	raw, err := proto.Marshal(Wrap(req))
	if err != nil {
		t.Fatal(err)
	}
	var a anypb.Any
	if err := proto.Unmarshal(raw, &a); err != nil {
		t.Fatal(err)
	}
	if a.GetTypeUrl() != "type.googleapis.com/wordcount.table.PutRequest" {
		t.Fatalf("type url = %q", a.GetTypeUrl())
	}
	msg, err := Unwrap(&a)
	if err != nil {
		t.Fatal(err)
	}
	got, ok := msg.(*PutRequest)
	if !ok {
		t.Fatalf("Unwrap returned %T", msg)
	}
	if got.Table != req.Table || !bytes.Equal(got.Cell.Row, req.Cell.Row) ||
		got.Cell.Family != "cf" || got.Cell.Column != "count" || !bytes.Equal(got.Cell.Value, req.Cell.Value) {
		t.Fatalf("Unwrap = %+v, want %+v", got, req)
	}
}

func TestUnwrapUnknownType(t *testing.T) {
	_, err := Unwrap(&anypb.Any{TypeUrl: "type.googleapis.com/nope.Nope"})
	if err == nil {
		t.Fatal("expected an error for an unregistered type")
	}
}

func TestCountBatchSkipsUnknownFields(t *testing.T) {
	batch := &CountBatch{
		Producer: 3,
		Shard:    1,
		Records:  []types.CountRecord{{Word: "x", Count: 1}, {Word: "y", Count: 40}},
	}
	b := batch.Marshal()
	// a field added by a newer writer
	b = protowire.AppendTag(b, 99, protowire.BytesType)
	b = protowire.AppendString(b, "future")

	var got CountBatch
	if err := got.Unmarshal(b); err != nil {
		t.Fatal(err)
	}
	if got.Producer != 3 || got.Shard != 1 || !slices.Equal(got.Records, batch.Records) {
		t.Fatalf("Unmarshal = %+v, want %+v", got, batch)
	}
}

func TestCountBatchRejectsZeroCount(t *testing.T) {
	b := (&CountBatch{Records: []types.CountRecord{{Word: "x", Count: 0}}}).Marshal()
	var got CountBatch
	if err := got.Unmarshal(b); err == nil {
		t.Fatal("expected an error for a zero count")
	}
}

func TestWrongWireType(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, 7)
	var req CreateTableRequest
	if err := req.Unmarshal(b); err == nil {
		t.Fatal("expected an error for a varint table name")
	}
}

func TestStatsResponseTimestamp(t *testing.T) {
	started := time.Date(2024, 5, 1, 12, 30, 0, 1500, time.UTC)
	resp := &StatsResponse{
		StartedAt: started,
		FreeSpace: 1 << 40,
		Tables: []TableStats{
			{Table: "t1", Families: []string{"cf"}, Rows: 3, Digest: "abc"},
			{Table: "t2"},
		},
	}
	var got StatsResponse
	if err := got.Unmarshal(resp.Marshal()); err != nil {
		t.Fatal(err)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if got.FreeSpace != resp.FreeSpace || len(got.Tables) != 2 || got.Tables[0].Rows != 3 ||
		got.Tables[1].Table != "t2" || !slices.Equal(got.Tables[0].Families, []string{"cf"}) {
		t.Errorf("Unmarshal = %+v, want %+v", got, resp)
	}
}

func TestErrorIsError(t *testing.T) {
	var err error = &Error{Code: "TABLE_EXISTS", Message: "table exists"}
	if err.Error() != "table exists" {
		t.Fatalf("Error() = %q", err.Error())
	}
}
