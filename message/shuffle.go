package message

import (
	"errors"

	"google.golang.org/protobuf/encoding/protowire"

	"wordcount/mapreduce/types"
)

var errNonPositiveCount = errors.New("count must be positive")

// CountBatch is one flush of a map worker's combiner, restricted to the
// words of a single shard.
type CountBatch struct {
	Producer uint32
	Shard    uint32
	Records  []types.CountRecord
}

func (*CountBatch) Name() string { return "wordcount.shuffle.CountBatch" }

func (m *CountBatch) Marshal() []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(m.Producer))
	b = appendVarint(b, 2, uint64(m.Shard))
	for _, rec := range m.Records {
		var r []byte
		r = appendString(r, 1, rec.Word)
		r = appendVarint(r, 2, uint64(rec.Count))
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, r)
	}
	return b
}

func (m *CountBatch) Unmarshal(b []byte) error {
	*m = CountBatch{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
		var v uint64
		switch num {
		case 1:
			v, n, err = consumeVarint(typ, b)
			m.Producer = uint32(v)
		case 2:
			v, n, err = consumeVarint(typ, b)
			m.Shard = uint32(v)
		case 3:
			var raw []byte
			if raw, n, err = consumeBytes(typ, b); err != nil {
				return
			}
			var rec types.CountRecord
			if rec, err = unmarshalCountRecord(raw); err == nil {
				m.Records = append(m.Records, rec)
			}
		}
		return
	})
}

func unmarshalCountRecord(b []byte) (types.CountRecord, error) {
	var rec types.CountRecord
	err := decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
		switch num {
		case 1:
			rec.Word, n, err = consumeString(typ, b)
		case 2:
			var v uint64
			v, n, err = consumeVarint(typ, b)
			rec.Count = int64(v)
		}
		return
	})
	if err == nil && rec.Count <= 0 {
		err = errNonPositiveCount
	}
	return rec, err
}

func init() {
	Register(func() Message { return &CountBatch{} })
}
