package protocol

import (
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/RJ/bevygap-spaceships/internal/sim"
)

// SyncMode is how a replicated component is reconciled on the client.
type SyncMode uint8

const (
	// SyncOnce components are sent on spawn and never resynced.
	SyncOnce SyncMode = iota + 1
	// SyncSimple components overwrite the local value, no rollback.
	SyncSimple
	// SyncFull components are authoritative for rollback comparison.
	SyncFull
)

func (m SyncMode) String() string {
	switch m {
	case SyncOnce:
		return "once"
	case SyncSimple:
		return "simple"
	case SyncFull:
		return "full"
	}
	return fmt.Sprintf("sync(%d)", uint8(m))
}

// ComponentTag identifies a component on the wire.
type ComponentTag uint8

const (
	TagPosition ComponentTag = iota + 1
	TagRotation
	TagLinearVelocity
	TagAngularVelocity
	TagWeapon
	TagScore
	TagPlayerStats
	TagPlayerID
	TagColor
	TagName
	TagBallMarker
	TagBulletMarker
	TagLifetime
)

// ErrUnknownComponent is returned for tags missing from the registry.
var ErrUnknownComponent = errors.New("unknown component tag")

type componentDef struct {
	name string
	mode SyncMode
	// encode returns ok=false when the entity lacks the component.
	encode func(e *sim.Entity) (any, bool)
	decode func(e *sim.Entity, raw []byte) error
}

type vec2Wire struct {
	_msgpack struct{} `msgpack:",as_array"`
	X, Y     float64
}

type weaponWire struct {
	_msgpack     struct{} `msgpack:",as_array"`
	LastFireTick int32
	Cooldown     int32
	BulletSpeed  float64
}

type statsWire struct {
	_msgpack struct{} `msgpack:",as_array"`
	RTT      time.Duration
	Jitter   time.Duration
}

type playerIDWire struct {
	_msgpack struct{} `msgpack:",as_array"`
	ClientID uint64
	Nickname string
}

type lifetimeWire struct {
	_msgpack   struct{} `msgpack:",as_array"`
	OriginTick int32
	Lifetime   int32
}

func ensureBody(e *sim.Entity) *sim.Body {
	if e.Body == nil {
		e.Body = &sim.Body{}
	}
	return e.Body
}

func ensurePlayer(e *sim.Entity) *sim.PlayerInfo {
	if e.Player == nil {
		e.Player = &sim.PlayerInfo{}
	}
	return e.Player
}

func decodeAs[T any](raw []byte, apply func(T)) error {
	var v T
	if err := msgpack.Unmarshal(raw, &v); err != nil {
		return err
	}
	apply(v)
	return nil
}

var registry = map[ComponentTag]componentDef{
	TagPosition: {
		name: "Position", mode: SyncFull,
		encode: func(e *sim.Entity) (any, bool) {
			if e.Body == nil {
				return nil, false
			}
			return vec2Wire{X: e.Body.Position.X, Y: e.Body.Position.Y}, true
		},
		decode: func(e *sim.Entity, raw []byte) error {
			return decodeAs(raw, func(v vec2Wire) { ensureBody(e).Position = sim.Vec2{X: v.X, Y: v.Y} })
		},
	},
	TagRotation: {
		name: "Rotation", mode: SyncFull,
		encode: func(e *sim.Entity) (any, bool) {
			if e.Body == nil {
				return nil, false
			}
			return e.Body.Rotation, true
		},
		decode: func(e *sim.Entity, raw []byte) error {
			return decodeAs(raw, func(v float64) { ensureBody(e).Rotation = v })
		},
	},
	TagLinearVelocity: {
		name: "LinearVelocity", mode: SyncFull,
		encode: func(e *sim.Entity) (any, bool) {
			if e.Body == nil {
				return nil, false
			}
			return vec2Wire{X: e.Body.LinearVelocity.X, Y: e.Body.LinearVelocity.Y}, true
		},
		decode: func(e *sim.Entity, raw []byte) error {
			return decodeAs(raw, func(v vec2Wire) { ensureBody(e).LinearVelocity = sim.Vec2{X: v.X, Y: v.Y} })
		},
	},
	TagAngularVelocity: {
		name: "AngularVelocity", mode: SyncFull,
		encode: func(e *sim.Entity) (any, bool) {
			if e.Body == nil {
				return nil, false
			}
			return e.Body.AngularVelocity, true
		},
		decode: func(e *sim.Entity, raw []byte) error {
			return decodeAs(raw, func(v float64) { ensureBody(e).AngularVelocity = v })
		},
	},
	TagWeapon: {
		name: "Weapon", mode: SyncFull,
		encode: func(e *sim.Entity) (any, bool) {
			if e.Weapon == nil {
				return nil, false
			}
			w := e.Weapon
			return weaponWire{LastFireTick: int32(w.LastFireTick), Cooldown: w.Cooldown, BulletSpeed: w.BulletSpeed}, true
		},
		decode: func(e *sim.Entity, raw []byte) error {
			return decodeAs(raw, func(v weaponWire) {
				e.Weapon = &sim.Weapon{LastFireTick: sim.Tick(v.LastFireTick), Cooldown: v.Cooldown, BulletSpeed: v.BulletSpeed}
			})
		},
	},
	TagScore: {
		name: "Score", mode: SyncSimple,
		encode: func(e *sim.Entity) (any, bool) {
			if e.Kind != sim.KindPlayer {
				return nil, false
			}
			return e.Score, true
		},
		decode: func(e *sim.Entity, raw []byte) error {
			return decodeAs(raw, func(v int32) { e.Score = v })
		},
	},
	TagPlayerStats: {
		name: "PlayerStats", mode: SyncSimple,
		encode: func(e *sim.Entity) (any, bool) {
			if e.Player == nil {
				return nil, false
			}
			return statsWire{RTT: e.Player.RTT, Jitter: e.Player.Jitter}, true
		},
		decode: func(e *sim.Entity, raw []byte) error {
			return decodeAs(raw, func(v statsWire) {
				p := ensurePlayer(e)
				p.RTT, p.Jitter = v.RTT, v.Jitter
			})
		},
	},
	TagPlayerID: {
		name: "PlayerID", mode: SyncOnce,
		encode: func(e *sim.Entity) (any, bool) {
			if e.Player == nil {
				return nil, false
			}
			return playerIDWire{ClientID: uint64(e.Player.ClientID), Nickname: e.Player.Nickname}, true
		},
		decode: func(e *sim.Entity, raw []byte) error {
			return decodeAs(raw, func(v playerIDWire) {
				p := ensurePlayer(e)
				p.ClientID, p.Nickname = sim.ClientID(v.ClientID), v.Nickname
			})
		},
	},
	TagColor: {
		name: "Color", mode: SyncOnce,
		encode: func(e *sim.Entity) (any, bool) {
			c := e.Color
			return [4]float32{c.R, c.G, c.B, c.A}, true
		},
		decode: func(e *sim.Entity, raw []byte) error {
			return decodeAs(raw, func(v [4]float32) { e.Color = sim.Color{R: v[0], G: v[1], B: v[2], A: v[3]} })
		},
	},
	TagName: {
		name: "Name", mode: SyncOnce,
		encode: func(e *sim.Entity) (any, bool) { return e.Name, e.Name != "" },
		decode: func(e *sim.Entity, raw []byte) error {
			return decodeAs(raw, func(v string) { e.Name = v })
		},
	},
	TagBallMarker: {
		name: "BallMarker", mode: SyncOnce,
		encode: func(e *sim.Entity) (any, bool) {
			if e.Ball == nil {
				return nil, false
			}
			return e.Ball.Radius, true
		},
		decode: func(e *sim.Entity, raw []byte) error {
			return decodeAs(raw, func(v float64) { e.Ball = &sim.BallMarker{Radius: v} })
		},
	},
	TagBulletMarker: {
		name: "BulletMarker", mode: SyncOnce,
		encode: func(e *sim.Entity) (any, bool) {
			if e.Bullet == nil {
				return nil, false
			}
			return uint64(e.Bullet.Owner), true
		},
		decode: func(e *sim.Entity, raw []byte) error {
			return decodeAs(raw, func(v uint64) { e.Bullet = &sim.BulletMarker{Owner: sim.ClientID(v)} })
		},
	},
	TagLifetime: {
		name: "Lifetime", mode: SyncOnce,
		encode: func(e *sim.Entity) (any, bool) {
			if e.Lifetime == nil {
				return nil, false
			}
			return lifetimeWire{OriginTick: int32(e.Lifetime.OriginTick), Lifetime: e.Lifetime.Lifetime}, true
		},
		decode: func(e *sim.Entity, raw []byte) error {
			return decodeAs(raw, func(v lifetimeWire) {
				e.Lifetime = &sim.Lifetime{OriginTick: sim.Tick(v.OriginTick), Lifetime: v.Lifetime}
			})
		},
	},
}

// tagOrder fixes the encoding order so identical entities serialize
// identically.
var tagOrder = []ComponentTag{
	TagPosition, TagRotation, TagLinearVelocity, TagAngularVelocity, TagWeapon,
	TagScore, TagPlayerStats,
	TagPlayerID, TagColor, TagName, TagBallMarker, TagBulletMarker, TagLifetime,
}

// ModeOf returns the sync mode registered for tag.
func ModeOf(tag ComponentTag) (SyncMode, bool) {
	def, ok := registry[tag]
	return def.mode, ok
}

func (t ComponentTag) String() string {
	if def, ok := registry[t]; ok {
		return def.name
	}
	return fmt.Sprintf("component(%d)", uint8(t))
}

// EncodeComponents serializes the components of e whose mode is in modes.
func EncodeComponents(e *sim.Entity, modes ...SyncMode) ([]ComponentData, error) {
	var out []ComponentData
	for _, tag := range tagOrder {
		def := registry[tag]
		if !hasMode(modes, def.mode) {
			continue
		}
		v, ok := def.encode(e)
		if !ok {
			continue
		}
		b, err := msgpack.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s of entity %d: %w", tag, e.ID, err)
		}
		out = append(out, ComponentData{Tag: tag, Bytes: b})
	}
	return out, nil
}

// DecodeComponents applies the components whose mode is in modes to e. With
// no modes every component is applied.
func DecodeComponents(e *sim.Entity, comps []ComponentData, modes ...SyncMode) error {
	for _, c := range comps {
		def, ok := registry[c.Tag]
		if !ok {
			return fmt.Errorf("entity %d: %w %d", e.ID, ErrUnknownComponent, c.Tag)
		}
		if len(modes) > 0 && !hasMode(modes, def.mode) {
			continue
		}
		if err := def.decode(e, c.Bytes); err != nil {
			return fmt.Errorf("%w: %s of entity %d: %v", ErrMalformed, c.Tag, e.ID, err)
		}
	}
	return nil
}

func hasMode(modes []SyncMode, m SyncMode) bool {
	for _, x := range modes {
		if x == m {
			return true
		}
	}
	return false
}
