package sim

// Action is a bit flag for one player action.
type Action uint8

const (
	ActionUp Action = 1 << iota
	ActionDown
	ActionLeft
	ActionRight
	ActionFire

	actionMask = ActionUp | ActionDown | ActionLeft | ActionRight | ActionFire
)

var actionNames = [...]string{"Up", "Down", "Left", "Right", "Fire"}

func (a Action) String() string {
	if a == 0 {
		return "none"
	}
	out := ""
	for i, name := range actionNames {
		if a&(1<<i) != 0 {
			if out != "" {
				out += "|"
			}
			out += name
		}
	}
	return out
}

// ActionState is the per-tick input of one player, with press/release edges
// relative to the previous tick.
type ActionState struct {
	Pressed      Action
	JustPressed  Action
	JustReleased Action
}

// Next derives the state for the following tick given what is held now.
func (s ActionState) Next(pressed Action) ActionState {
	pressed &= actionMask
	return ActionState{
		Pressed:      pressed,
		JustPressed:  pressed &^ s.Pressed,
		JustReleased: s.Pressed &^ pressed,
	}
}

// Has reports whether a is currently held.
func (s ActionState) Has(a Action) bool { return s.Pressed&a != 0 }

// Bits packs the state as pressed (bits 0-4), just pressed (5-9) and just
// released (10-14).
func (s ActionState) Bits() uint16 {
	return uint16(s.Pressed&actionMask) |
		uint16(s.JustPressed&actionMask)<<5 |
		uint16(s.JustReleased&actionMask)<<10
}

// ActionStateFromBits is the inverse of Bits.
func ActionStateFromBits(b uint16) ActionState {
	return ActionState{
		Pressed:      Action(b) & actionMask,
		JustPressed:  Action(b>>5) & actionMask,
		JustReleased: Action(b>>10) & actionMask,
	}
}

// Thrust returns the normalised thrust direction for the held directions.
func (s ActionState) Thrust() Vec2 {
	var v Vec2
	if s.Has(ActionUp) {
		v.Y++
	}
	if s.Has(ActionDown) {
		v.Y--
	}
	if s.Has(ActionRight) {
		v.X++
	}
	if s.Has(ActionLeft) {
		v.X--
	}
	return v.Normalize()
}
