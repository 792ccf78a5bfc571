package protocol

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// MsgType tags the payload of an Envelope.
type MsgType uint8

// Server -> Client
const (
	MsgWelcome MsgType = iota + 1
	MsgSnapshot
	MsgSpawn
	MsgDespawn
	MsgResource
	MsgError
)

// Both directions: clients send their inputs, the server rebroadcasts them.
const MsgInput MsgType = 16

func (t MsgType) String() string {
	switch t {
	case MsgWelcome:
		return "welcome"
	case MsgSnapshot:
		return "snapshot"
	case MsgSpawn:
		return "spawn"
	case MsgDespawn:
		return "despawn"
	case MsgResource:
		return "resource"
	case MsgError:
		return "error"
	case MsgInput:
		return "input"
	}
	return fmt.Sprintf("msg(%d)", uint8(t))
}

// Reliable reports whether the message must never be dropped. Snapshots are
// the only unreliable-sequenced traffic.
func (t MsgType) Reliable() bool { return t != MsgSnapshot }

// ErrMalformed is returned for frames that do not decode.
var ErrMalformed = errors.New("malformed message")

// Envelope wraps every frame. D is decoded lazily by type.
type Envelope struct {
	T MsgType            `msgpack:"t"`
	D msgpack.RawMessage `msgpack:"d"`
}

// Welcome is sent once the connection is accepted.
type Welcome struct {
	ClientID   uint64 `msgpack:"cid"`
	Tick       int32  `msgpack:"tick"` // server tick when sent
	ProtocolID uint64 `msgpack:"pid"`
}

// InputFrame is one tick's packed action state.
type InputFrame struct {
	Tick int32  `msgpack:"t"`
	Bits uint16 `msgpack:"b"`
}

// InputMessage carries a window of recent ticks for one client.
type InputMessage struct {
	ClientID uint64       `msgpack:"cid"`
	Inputs   []InputFrame `msgpack:"in"`
}

// ComponentData is one serialized component.
type ComponentData struct {
	Tag   ComponentTag `msgpack:"t"`
	Bytes []byte       `msgpack:"b"`
}

// EntityUpdate is the replicated components of one entity.
type EntityUpdate struct {
	ID         uint64          `msgpack:"id"`
	Components []ComponentData `msgpack:"c"`
}

// Snapshot carries the full and simple components of a replication group at
// one server tick.
type Snapshot struct {
	Group    uint8          `msgpack:"g"`
	Tick     int32          `msgpack:"tick"`
	Entities []EntityUpdate `msgpack:"e"`
}

// Spawn announces an entity with its once components and initial state.
type Spawn struct {
	EntityID   uint64          `msgpack:"id"`
	Kind       uint8           `msgpack:"k"`
	Tick       int32           `msgpack:"tick"`
	Components []ComponentData `msgpack:"c"`
}

// Despawn removes an entity.
type Despawn struct {
	EntityID uint64 `msgpack:"id"`
}

// Resource replicates a process-wide singleton.
type Resource struct {
	Tag   ResourceTag `msgpack:"t"`
	Bytes []byte      `msgpack:"b"`
}

// ErrorMsg tells the peer why it is being dropped.
type ErrorMsg struct {
	Msg string `msgpack:"msg"`
}

// Encode marshals payload and wraps it in an envelope.
func Encode(t MsgType, payload any) ([]byte, error) {
	d, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", t, err)
	}
	return msgpack.Marshal(Envelope{T: t, D: d})
}

// MustEncode is Encode for payloads that cannot fail to marshal.
func MustEncode(t MsgType, payload any) []byte {
	b, err := Encode(t, payload)
	if err != nil {
		panic(err)
	}
	return b
}

// DecodeEnvelope parses the outer frame.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.T == 0 {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return env, nil
}

// DecodePayload unmarshals the envelope body into T.
func DecodePayload[T any](env Envelope) (T, error) {
	var out T
	if err := msgpack.Unmarshal(env.D, &out); err != nil {
		return out, fmt.Errorf("%w: %s payload: %v", ErrMalformed, env.T, err)
	}
	return out, nil
}
