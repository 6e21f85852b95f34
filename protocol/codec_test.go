package protocol

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func sampleMessages() []Message {
	return []Message{
		Join("alice"),
		Leave(),
		Move(Left),
		StateUpdate(StateUpdateData{
			Players: []PlayerData{
				{ID: "k3j9x0a1b", Username: "alice", State: Alive, Snake: []Cell{{X: 3, Y: 4}, {X: 2, Y: 4}}, Score: 2},
				{ID: "z81mq2p0c", State: Dead, Snake: []Cell{{X: 0, Y: 0}}, Score: 0},
			},
			Food: Cell{X: 10, Y: 11},
		}),
		StateUpdate(StateUpdateData{Players: []PlayerData{}, Food: Cell{}}),
		Error(CodeUsernameTaken, "username already taken"),
	}
}

func TestRoundTrip(t *testing.T) {
	for _, codec := range []Codec{JSON, Msgpack} {
		for _, m := range sampleMessages() {
			b, err := codec.Encode(m)
			if err != nil {
				t.Fatalf("%s: Encode(%s) error: %v", codec.Name(), m.Type, err)
			}
			got, err := codec.Decode(b)
			if err != nil {
				t.Fatalf("%s: Decode(%s) error: %v", codec.Name(), m.Type, err)
			}
			if diff := cmp.Diff(m, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("%s: round trip of %s mismatch (-want +got):\n%s", codec.Name(), m.Type, diff)
			}
		}
	}
}

func TestEncodeWireShape(t *testing.T) {
	b, err := Encode(Move(Up))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"type":"move","data":{"direction":"up"}}`
	if string(b) != want {
		t.Errorf("Encode(move) = %s, want %s", b, want)
	}

	b, err = Encode(Leave())
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"type":"leave"}` {
		t.Errorf("Encode(leave) = %s", b)
	}
}

func TestEncodeUnknownType(t *testing.T) {
	if _, err := Encode(Message{Type: "teleport"}); err == nil {
		t.Error("expected error encoding unknown type")
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":        `{{{`,
		"unknown type":    `{"type":"teleport","data":{}}`,
		"numeric type":    `{"type":7}`,
		"missing data":    `{"type":"join"}`,
		"null data":       `{"type":"move","data":null}`,
		"wrong data type": `{"type":"join","data":{"username":42}}`,
		"array":           `[1,2,3]`,
	}
	for name, raw := range cases {
		_, err := Decode([]byte(raw))
		if !errors.Is(err, ErrMalformedMessage) {
			t.Errorf("%s: expected ErrMalformedMessage, got %v", name, err)
		}
	}
}

func TestDecodeIgnoresUnknownFields(t *testing.T) {
	m, err := Decode([]byte(`{"type":"join","data":{"username":"bob","color":"red"},"seq":9}`))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if diff := cmp.Diff(Join("bob"), m); diff != "" {
		t.Errorf("unexpected message (-want +got):\n%s", diff)
	}
}

func TestDecodeLeaveIgnoresData(t *testing.T) {
	m, err := Decode([]byte(`{"type":"leave","data":{"why":"bored"}}`))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if m.Type != MsgLeave || m.Data != nil {
		t.Errorf("got %+v, want bare leave", m)
	}
}

func TestDecodeInvalidDirectionIsNotMalformed(t *testing.T) {
	m, err := Decode([]byte(`{"type":"move","data":{"direction":"sideways"}}`))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if m.Data.(MoveData).Direction.Valid() {
		t.Error("sideways should not be a valid direction")
	}
}

func TestMsgpackMalformed(t *testing.T) {
	if _, err := Msgpack.Decode([]byte{0xff, 0x00, 0x13}); !errors.Is(err, ErrMalformedMessage) {
		t.Errorf("expected ErrMalformedMessage, got %v", err)
	}
}

func TestCodecByName(t *testing.T) {
	for name, want := range map[string]Codec{"": JSON, "json": JSON, "msgpack": Msgpack} {
		got, ok := CodecByName(name)
		if !ok || got != want {
			t.Errorf("CodecByName(%q) = %v, %v", name, got, ok)
		}
	}
	if _, ok := CodecByName("xml"); ok {
		t.Error("xml should not be a codec")
	}
}

func TestDirection(t *testing.T) {
	for _, d := range []Direction{Up, Down, Left, Right} {
		if d.Opposite().Opposite() != d {
			t.Errorf("%s: opposite is not an involution", d)
		}
		c := Cell{X: 5, Y: 5}.Add(d).Add(d.Opposite())
		if c != (Cell{X: 5, Y: 5}) {
			t.Errorf("%s: step and back landed on %v", d, c)
		}
	}
	if Direction("north").Valid() {
		t.Error("north should be invalid")
	}
}

func TestCellIn(t *testing.T) {
	if !(Cell{X: 0, Y: 19}).In(20) {
		t.Error("(0,19) should be inside a 20 grid")
	}
	if (Cell{X: 20, Y: 0}).In(20) || (Cell{X: -1, Y: 3}).In(20) {
		t.Error("out of range cells reported inside")
	}
}
