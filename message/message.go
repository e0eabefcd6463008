// Package message defines the messages exchanged between the job, the
// shuffle and the table server, and their protobuf wire encoding.
//
// Messages are encoded field by field with protowire and travel inside an
// anypb.Any whose type URL names the message, so that a receiver can pick
// the right decoder from the registry.
package message

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/types/known/anypb"
)

const typeURLPrefix = "type.googleapis.com/"

// Message is a value that can be sent over the wire.
type Message interface {
	// Name returns the fully qualified message name.
	Name() string
	// Marshal returns the protobuf wire encoding of the message.
	Marshal() []byte
	// Unmarshal replaces the message contents with the decoded b.
	Unmarshal(b []byte) error
}

var (
	errWireType    = errors.New("unexpected wire type")
	errUnknownType = errors.New("unknown message type")
	registryMu     sync.RWMutex
	registry       = make(map[string]func() Message)
)

// Register makes the message returned by newFunc known to Unwrap.
func Register(newFunc func() Message) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[TypeURL(newFunc())] = newFunc
}

// TypeURL returns the type URL of m as used in anypb.Any.
func TypeURL(m Message) string {
	return typeURLPrefix + m.Name()
}

// FindByURL returns a constructor for the message registered under typeURL.
func FindByURL(typeURL string) (func() Message, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	newFunc, ok := registry[typeURL]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownType, strings.TrimPrefix(typeURL, typeURLPrefix))
	}
	return newFunc, nil
}

// Wrap wraps m into an anypb.Any.
func Wrap(m Message) *anypb.Any {
	return &anypb.Any{
		TypeUrl: TypeURL(m),
		Value:   m.Marshal(),
	}
}

// Unwrap decodes the message carried by a.
func Unwrap(a *anypb.Any) (Message, error) {
	newFunc, err := FindByURL(a.GetTypeUrl())
	if err != nil {
		return nil, err
	}
	m := newFunc()
	if err := m.Unmarshal(a.GetValue()); err != nil {
		return nil, fmt.Errorf("decode %s: %w", m.Name(), err)
	}
	return m, nil
}

// fieldDecoder decodes the value of one field from the front of b and
// returns the number of bytes it consumed, or 0 for an unknown field.
type fieldDecoder func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

func decodeFields(b []byte, decode fieldDecoder) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		n, err := decode(num, typ, b)
		if err != nil {
			return fmt.Errorf("field %d: %w", num, err)
		}
		if n == 0 {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
		}
		b = b[n:]
	}
	return nil
}

func consumeBytes(typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, errWireType
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return bytes.Clone(v), n, nil
}

func consumeString(typ protowire.Type, b []byte) (string, int, error) {
	if typ != protowire.BytesType {
		return "", 0, errWireType
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return "", 0, protowire.ParseError(n)
	}
	return string(v), n, nil
}

func consumeVarint(typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, errWireType
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// appendRepeatedString always emits every element, empty ones included.
func appendRepeatedString(b []byte, num protowire.Number, vs []string) []byte {
	for _, v := range vs {
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendString(b, v)
	}
	return b
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

// appendMessage emits an embedded message even when it is empty, so that
// repeated elements keep their position.
func appendMessage(b []byte, num protowire.Number, m Message) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m.Marshal())
}

// Error is sent back by a server when a request failed.
type Error struct {
	// Code classifies the failure so that clients can map it back to a
	// sentinel error. Empty means unclassified.
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Name() string { return "wordcount.rpc.Error" }

func (e *Error) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, e.Code)
	b = appendString(b, 2, e.Message)
	return b
}

func (e *Error) Unmarshal(b []byte) error {
	*e = Error{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
		switch num {
		case 1:
			e.Code, n, err = consumeString(typ, b)
		case 2:
			e.Message, n, err = consumeString(typ, b)
		}
		return
	})
}

// Empty is the response of requests that return nothing.
type Empty struct{}

func (*Empty) Name() string             { return "wordcount.rpc.Empty" }
func (*Empty) Marshal() []byte          { return nil }
func (*Empty) Unmarshal(b []byte) error { return decodeFields(b, skipAll) }

func skipAll(protowire.Number, protowire.Type, []byte) (int, error) { return 0, nil }

func init() {
	Register(func() Message { return &Error{} })
	Register(func() Message { return &Empty{} })
}
