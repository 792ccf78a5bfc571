package sim

import "math"

// Gold is the ball color.
var Gold = Color{R: 1, G: 0.843, B: 0, A: 1}

// PlayerColors is the palette handed out by player count at join time.
var PlayerColors = [12]Color{
	{R: 0.196, G: 0.804, B: 0.196, A: 1}, // lime green
	{R: 1, G: 0.753, B: 0.796, A: 1},     // pink
	{R: 1, G: 1, B: 0, A: 1},             // yellow
	{R: 0, G: 1, B: 1, A: 1},             // aqua
	{R: 0.863, G: 0.078, B: 0.235, A: 1}, // crimson
	Gold,
	{R: 1, G: 0.271, B: 0, A: 1},         // orange red
	{R: 0.753, G: 0.753, B: 0.753, A: 1}, // silver
	{R: 0.980, G: 0.502, B: 0.447, A: 1}, // salmon
	{R: 0.604, G: 0.804, B: 0.196, A: 1}, // yellow green
	{R: 1, G: 1, B: 1, A: 1},             // white
	{R: 1, G: 0, B: 0, A: 1},             // red
}

// Names is the nickname list indexed by client id.
var Names = [...]string{
	"Ellen Ripley", "Sarah Connor", "Neo", "Trinity", "Morpheus",
	"John Connor", "T-1000", "Rick Deckard", "Princess Leia", "Han Solo",
	"Spock", "James T. Kirk", "Hikaru Sulu", "Nyota Uhura", "Jean-Luc Picard",
	"Data", "Beverly Crusher", "Seven of Nine", "Doctor Who", "Rose Tyler",
	"Marty McFly", "Doc Brown", "Dana Scully", "Fox Mulder", "Riddick",
	"Barbarella", "HAL 9000", "Megatron", "Furiosa", "Lois Lane",
	"Clark Kent", "Tony Stark", "Natasha Romanoff", "Bruce Banner", "Mr. T",
}

// PickPlayerName chooses a deterministic nickname for a client.
func PickPlayerName(client ClientID) string {
	return Names[uint64(client)%uint64(len(Names))]
}

// BallSpawn is the initial placement of one ball.
type BallSpawn struct {
	Radius   float64
	Position Vec2
}

// BallSpawns returns the ring of balls placed at session start.
func BallSpawns() []BallSpawn {
	out := make([]BallSpawn, NumBalls)
	for i := range out {
		angle := float64(i) * Tau / NumBalls
		out[i] = BallSpawn{
			Radius:   10 + 4*float64(i),
			Position: Vec2{BallRingRadius * math.Cos(angle), BallRingRadius * math.Sin(angle)},
		}
	}
	return out
}

// SpawnBalls adds the session's balls to w and returns them.
func SpawnBalls(w *World) ([]*Entity, error) {
	var out []*Entity
	for _, s := range BallSpawns() {
		e := NewBall(w.AllocID(), s.Radius, Gold, s.Position)
		if err := w.Spawn(e); err != nil {
			return out, err
		}
		out = append(out, e)
	}
	return out, nil
}

// PlayerSpawn returns the color and position for a player joining while
// count players are already in the world.
func PlayerSpawn(count int) (Color, Vec2) {
	color := PlayerColors[count%len(PlayerColors)]
	angle := float64(count) * PlayerSpawnStep
	return color, Vec2{PlayerRingRadius * math.Cos(angle), PlayerRingRadius * math.Sin(angle)}
}
