package helper

import (
	"encoding/binary"
	"fmt"
	"io"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"

	"wordcount/message"
)

// MaxFrameSize bounds the length prefix accepted by Receive.
const MaxFrameSize = 64 << 20

// Send writes a wrapped message to w.
// format is:
//
//	| length (8 bytes) | anypb.Any (length bytes) |
func Send(w io.Writer, payload *anypb.Any) error {
	bytes, err := proto.Marshal(payload)
	if err != nil {
		return err
	}
	length := uint64(len(bytes))
	if err := binary.Write(w, binary.BigEndian, length); err != nil {
		return err
	}
	if _, err := w.Write(bytes); err != nil {
		return err
	}
	return nil
}

// Receive reads a wrapped message from r.
func Receive(r io.Reader) (*anypb.Any, error) {
	var length uint64
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}
	if length > MaxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit of %d", length, MaxFrameSize)
	}
	bytes := make([]byte, length)
	if _, err := io.ReadFull(r, bytes); err != nil {
		return nil, err
	}
	payload := &anypb.Any{}
	if err := proto.Unmarshal(bytes, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// SendMessage wraps msg and sends it.
func SendMessage(w io.Writer, msg message.Message) error {
	return Send(w, message.Wrap(msg))
}

// ReceiveMessage receives and unwraps a message.
func ReceiveMessage(r io.Reader) (message.Message, error) {
	payload, err := Receive(r)
	if err != nil {
		return nil, err
	}
	return message.Unwrap(payload)
}
