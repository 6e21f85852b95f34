package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrMalformedMessage is returned by Decode for frames that are not
// well-formed structured data, carry an unknown type, or whose data does not
// fit the type.
var ErrMalformedMessage = errors.New("malformed message")

// Codec turns Messages into frames and back.
type Codec interface {
	Encode(m Message) ([]byte, error)
	Decode(b []byte) (Message, error)
	// Binary reports whether frames must be sent as binary websocket messages.
	Binary() bool
	Name() string
}

var (
	// JSON is the default text codec.
	JSON Codec = jsonCodec{}
	// Msgpack is the compact binary codec.
	Msgpack Codec = msgpackCodec{}
)

// CodecByName returns the codec registered under name ("json" or "msgpack").
// An empty name selects JSON.
func CodecByName(name string) (Codec, bool) {
	switch name {
	case "", "json":
		return JSON, true
	case "msgpack":
		return Msgpack, true
	}
	return nil, false
}

// Encode serializes m with the JSON codec.
func Encode(m Message) ([]byte, error) { return JSON.Encode(m) }

// Decode parses a JSON frame.
func Decode(b []byte) (Message, error) { return JSON.Decode(b) }

// outEnvelope is the encoded shape of every frame
type outEnvelope struct {
	Type MessageType `json:"type"`
	Data any         `json:"data,omitempty"`
}

// inEnvelope defers decoding data until the type is known
type inEnvelope struct {
	Type MessageType    `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func checkOutgoing(m Message) error {
	if !m.Type.Known() {
		return fmt.Errorf("encode: unknown message type %q", m.Type)
	}
	return nil
}

// newData returns a pointer to the zero payload for t, or nil when t carries
// no data.
func newData(t MessageType) any {
	switch t {
	case MsgJoin:
		return &JoinData{}
	case MsgMove:
		return &MoveData{}
	case MsgStateUpdate:
		return &StateUpdateData{}
	case MsgError:
		return &ErrorData{}
	}
	return nil
}

// deref turns the decoded pointer back into the value stored in Message.Data.
func deref(p any) any {
	switch v := p.(type) {
	case *JoinData:
		return *v
	case *MoveData:
		return *v
	case *StateUpdateData:
		return *v
	case *ErrorData:
		return *v
	}
	return nil
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }
func (jsonCodec) Binary() bool { return false }

func (jsonCodec) Encode(m Message) ([]byte, error) {
	if err := checkOutgoing(m); err != nil {
		return nil, err
	}
	return json.Marshal(outEnvelope{Type: m.Type, Data: m.Data})
}

func (jsonCodec) Decode(b []byte) (Message, error) {
	var env inEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if !env.Type.Known() {
		return Message{}, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, env.Type)
	}
	data := newData(env.Type)
	if data == nil {
		return Message{Type: env.Type}, nil
	}
	if len(env.Data) == 0 || bytes.Equal(bytes.TrimSpace(env.Data), []byte("null")) {
		return Message{}, fmt.Errorf("%w: %s without data", ErrMalformedMessage, env.Type)
	}
	if err := json.Unmarshal(env.Data, data); err != nil {
		return Message{}, fmt.Errorf("%w: %s data: %v", ErrMalformedMessage, env.Type, err)
	}
	return Message{Type: env.Type, Data: deref(data)}, nil
}

// msgpack frames reuse the json struct tags so both codecs share one schema
const msgpackTag = "json"

type msgpackEnvelope struct {
	Type MessageType        `json:"type"`
	Data msgpack.RawMessage `json:"data,omitempty"`
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string { return "msgpack" }
func (msgpackCodec) Binary() bool { return true }

func (msgpackCodec) Encode(m Message) ([]byte, error) {
	if err := checkOutgoing(m); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag(msgpackTag)
	if err := enc.Encode(outEnvelope{Type: m.Type, Data: m.Data}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (msgpackCodec) Decode(b []byte) (Message, error) {
	var env msgpackEnvelope
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.SetCustomStructTag(msgpackTag)
	if err := dec.Decode(&env); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if !env.Type.Known() {
		return Message{}, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, env.Type)
	}
	data := newData(env.Type)
	if data == nil {
		return Message{Type: env.Type}, nil
	}
	// 0xc0 is msgpack nil
	if len(env.Data) == 0 || (len(env.Data) == 1 && env.Data[0] == 0xc0) {
		return Message{}, fmt.Errorf("%w: %s without data", ErrMalformedMessage, env.Type)
	}
	dd := msgpack.NewDecoder(bytes.NewReader(env.Data))
	dd.SetCustomStructTag(msgpackTag)
	if err := dd.Decode(data); err != nil {
		return Message{}, fmt.Errorf("%w: %s data: %v", ErrMalformedMessage, env.Type, err)
	}
	return Message{Type: env.Type, Data: deref(data)}, nil
}
