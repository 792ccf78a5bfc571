package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/RJ/bevygap-spaceships/internal/protocol"
	"github.com/RJ/bevygap-spaceships/internal/replay"
	"github.com/RJ/bevygap-spaceships/internal/sim"
)

const (
	// FrameInterval is how often the loop wakes; fixed steps run as due.
	FrameInterval = 5 * time.Millisecond
	inboxSize     = 1024
	statsInterval = time.Second
)

// Sender delivers encoded messages to one connected client.
type Sender interface {
	// Send returns false once the client is gone.
	Send(t protocol.MsgType, data []byte) bool
	Stats() (rtt, jitter time.Duration)
	Close()
}

type eventKind uint8

const (
	evConnect eventKind = iota + 1
	evDisconnect
	evInput
)

type event struct {
	kind   eventKind
	client sim.ClientID
	sender Sender
	input  protocol.InputMessage
}

// GameOptions wires the optional collaborators of a Game.
type GameOptions struct {
	Metadata     protocol.ServerMetadata
	DB           *DB
	Analytics    *Analytics
	Replay       *replay.Writer
	SendInterval time.Duration
}

// connection is the game loop's view of one client.
type connection struct {
	sender      Sender
	entity      sim.EntityID
	known       map[sim.EntityID]bool
	dbRow       int64
	connectedAt time.Time
}

// LiveScore is a connected player's current score.
type LiveScore struct {
	ClientID uint64 `json:"client_id"`
	Nickname string `json:"nickname"`
	Score    int32  `json:"score"`
}

// Game is the authoritative simulation. A single goroutine (Run) owns the
// world; other goroutines talk to it through the inbox.
type Game struct {
	opts       GameOptions
	instanceID string

	world  *sim.World
	clock  *sim.TickClock
	inputs sim.InputBuffers
	conns  map[sim.ClientID]*connection

	inbox   chan event
	done    chan struct{}
	stopMu  sync.RWMutex
	stopped bool

	lastSend  time.Time
	lastStats time.Time
	now       time.Time

	tick    atomic.Int32
	players atomic.Int32
	scores  atomic.Pointer[[]LiveScore]
}

// NewGame creates a session with its balls spawned at tick 0.
func NewGame(opts GameOptions) (*Game, error) {
	if opts.SendInterval <= 0 {
		opts.SendInterval = protocol.SendInterval
	}
	g := &Game{
		opts:       opts,
		instanceID: uuid.NewString(),
		world:      sim.NewWorld(),
		clock:      sim.NewTickClock(0),
		inputs:     make(sim.InputBuffers),
		conns:      make(map[sim.ClientID]*connection),
		inbox:      make(chan event, inboxSize),
		done:       make(chan struct{}),
	}
	if _, err := sim.SpawnBalls(g.world); err != nil {
		return nil, fmt.Errorf("spawn balls: %w", err)
	}
	empty := []LiveScore{}
	g.scores.Store(&empty)
	return g, nil
}

func (g *Game) InstanceID() string { return g.instanceID }
func (g *Game) Tick() sim.Tick     { return sim.Tick(g.tick.Load()) }
func (g *Game) PlayerCount() int   { return int(g.players.Load()) }

// Scores returns the live scores as of the last stats update.
func (g *Game) Scores() []LiveScore { return *g.scores.Load() }

// Done is closed when Run returns.
func (g *Game) Done() <-chan struct{} { return g.done }

// Connect queues a new client. It fails when the game has stopped.
func (g *Game) Connect(cid sim.ClientID, s Sender) bool {
	g.stopMu.RLock()
	defer g.stopMu.RUnlock()
	if g.stopped {
		return false
	}
	select {
	case g.inbox <- event{kind: evConnect, client: cid, sender: s}:
		return true
	case <-g.done:
		return false
	}
}

// Disconnect queues removal of a client.
func (g *Game) Disconnect(cid sim.ClientID, s Sender) {
	select {
	case g.inbox <- event{kind: evDisconnect, client: cid, sender: s}:
	case <-g.done:
	}
}

// Input queues an input message. It never blocks; a full inbox drops it and
// redundancy in later messages covers the gap.
func (g *Game) Input(cid sim.ClientID, msg protocol.InputMessage) {
	select {
	case g.inbox <- event{kind: evInput, client: cid, input: msg}:
	default:
		log.Printf("inbox full, dropping input from client %d", cid)
	}
}

// Run drives the loop until ctx is cancelled or the simulation breaks. On
// return every client is disconnected.
func (g *Game) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var simErr error
	err := sim.RunLoop(ctx, FrameInterval, func(now time.Time, steps int) {
		if err := g.Frame(now, steps); err != nil {
			simErr = err
			cancel()
		}
	})
	g.shutdown(simErr)
	if simErr != nil {
		return simErr
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Frame runs one frame: Receive, PreUpdate, FixedUpdate (steps times),
// Update and Send.
func (g *Game) Frame(now time.Time, steps int) error {
	g.now = now
	inputs := g.receive(now)
	g.ingest(inputs)

	for i := 0; i < steps; i++ {
		if err := g.step(); err != nil {
			return err
		}
	}

	if now.Sub(g.lastStats) >= statsInterval {
		g.lastStats = now
		g.updateStats()
	}
	if now.Sub(g.lastSend) >= g.opts.SendInterval {
		g.lastSend = now
		if err := g.send(); err != nil {
			return err
		}
	}
	return nil
}

// receive drains the inbox, applying connects and disconnects in order and
// returning the input messages for PreUpdate.
func (g *Game) receive(now time.Time) []protocol.InputMessage {
	var inputs []protocol.InputMessage
	for {
		select {
		case ev := <-g.inbox:
			switch ev.kind {
			case evConnect:
				g.onConnect(ev.client, ev.sender, now)
			case evDisconnect:
				g.onDisconnect(ev.client, ev.sender, now)
			case evInput:
				inputs = append(inputs, ev.input)
			}
		default:
			return inputs
		}
	}
}

func (g *Game) onConnect(cid sim.ClientID, s Sender, now time.Time) {
	if old, ok := g.conns[cid]; ok {
		old.sender.Close()
		g.onDisconnect(cid, old.sender, now)
	}

	color, pos := sim.PlayerSpawn(len(g.world.Players()))
	name := sim.PickPlayerName(cid)
	player := sim.NewPlayer(g.world.AllocID(), cid, name, color, pos)
	if err := g.world.Spawn(player); err != nil {
		log.Printf("client %d: spawn player: %v", cid, err)
		s.Close()
		return
	}
	g.inputs[cid] = sim.NewInputBuffer(sim.InputHistoryTicks)
	c := &connection{
		sender:      s,
		entity:      player.ID,
		known:       make(map[sim.EntityID]bool),
		connectedAt: now,
	}
	g.conns[cid] = c
	g.players.Store(int32(len(g.conns)))

	if g.opts.DB != nil {
		row, err := g.opts.DB.RecordConnect(uint64(cid), name, now)
		if err != nil {
			log.Printf("client %d: record connect: %v", cid, err)
		}
		c.dbRow = row
	}

	g.sendTo(c, protocol.MsgWelcome, protocol.Welcome{
		ClientID:   uint64(cid),
		Tick:       int32(g.clock.Tick()),
		ProtocolID: protocol.ProtocolID,
	})
	if res, err := protocol.NewMetadataResource(g.opts.Metadata); err != nil {
		log.Printf("encode metadata: %v", err)
	} else {
		g.sendTo(c, protocol.MsgResource, res)
	}
	log.Printf("client %d connected as %s (entity %d) at tick %d", cid, name, player.ID, g.clock.Tick())
}

func (g *Game) onDisconnect(cid sim.ClientID, s Sender, now time.Time) {
	c, ok := g.conns[cid]
	if !ok || c.sender != s {
		return
	}
	var score int32
	if e, ok := g.world.Get(c.entity); ok {
		score = e.Score
	}
	g.world.Despawn(c.entity)
	delete(g.inputs, cid)
	delete(g.conns, cid)
	g.players.Store(int32(len(g.conns)))

	if g.opts.DB != nil && c.dbRow != 0 {
		if err := g.opts.DB.RecordDisconnect(c.dbRow, now, score); err != nil {
			log.Printf("client %d: record disconnect: %v", cid, err)
		}
	}
	log.Printf("client %d disconnected with score %d", cid, score)
}

// ingest stores inputs and forwards each message to every other client so
// they can predict remote players.
func (g *Game) ingest(msgs []protocol.InputMessage) {
	for _, msg := range msgs {
		cid := sim.ClientID(msg.ClientID)
		buf, ok := g.inputs[cid]
		if !ok {
			continue
		}
		_, errs := protocol.IngestInputs(buf, msg)
		for _, err := range errs {
			if errors.Is(err, sim.ErrWriteConflict) {
				log.Printf("client %d: %v", cid, err)
			}
		}

		data, err := protocol.Encode(protocol.MsgInput, msg)
		if err != nil {
			log.Printf("client %d: encode input: %v", cid, err)
			continue
		}
		for _, other := range g.clientIDs() {
			if other == cid {
				continue
			}
			g.conns[other].sender.Send(protocol.MsgInput, data)
		}
	}
}

func (g *Game) step() error {
	t := g.clock.Tick() + 1
	ctx := sim.SimContext{Tick: t, Role: sim.RoleServer, OnHit: g.onHit}
	if _, err := sim.Step(g.world, ctx, g.inputs); err != nil {
		log.Printf("simulation broke at tick %d, tearing down session: %v", t, err)
		return err
	}
	g.clock.Advance()
	g.tick.Store(int32(t))
	return nil
}

func (g *Game) onHit(ev sim.BulletHitEvent) {
	sim.ApplyHitScore(g.world, ev)
	if g.opts.Analytics != nil {
		g.opts.Analytics.TrackHit(ev, g.now)
	}
	if g.opts.Replay != nil {
		if err := g.opts.Replay.WriteHit(ev); err != nil {
			log.Printf("replay: %v", err)
		}
	}
}

// updateStats copies connection quality into the replicated player stats
// and refreshes the live score table.
func (g *Game) updateStats() {
	scores := make([]LiveScore, 0, len(g.conns))
	for _, cid := range g.clientIDs() {
		c := g.conns[cid]
		e, ok := g.world.Get(c.entity)
		if !ok || e.Player == nil {
			continue
		}
		e.Player.RTT, e.Player.Jitter = c.sender.Stats()
		scores = append(scores, LiveScore{ClientID: uint64(cid), Nickname: e.Player.Nickname, Score: e.Score})
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	g.scores.Store(&scores)
}

// send replicates spawns and despawns per client, then the snapshot.
func (g *Game) send() error {
	tick := g.clock.Tick()
	snap, err := protocol.BuildSnapshot(g.world, tick)
	if err != nil {
		return fmt.Errorf("build snapshot: %w", err)
	}
	data, err := protocol.Encode(protocol.MsgSnapshot, snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	spawns := make(map[sim.EntityID][]byte)
	for _, cid := range g.clientIDs() {
		c := g.conns[cid]
		if !g.replicate(c, tick, spawns) {
			continue
		}
		c.sender.Send(protocol.MsgSnapshot, data)
	}

	if g.opts.Replay != nil {
		if err := g.opts.Replay.WriteSnapshot(snap); err != nil {
			log.Printf("replay: %v", err)
		}
	}
	return nil
}

// replicate brings a client's entity set up to date. Encoded spawns are
// shared across clients through cache.
func (g *Game) replicate(c *connection, tick sim.Tick, cache map[sim.EntityID][]byte) bool {
	var gone []sim.EntityID
	for id := range c.known {
		if _, ok := g.world.Get(id); !ok {
			gone = append(gone, id)
		}
	}
	sort.Slice(gone, func(i, j int) bool { return gone[i] < gone[j] })
	for _, id := range gone {
		delete(c.known, id)
		if !g.sendTo(c, protocol.MsgDespawn, protocol.Despawn{EntityID: uint64(id)}) {
			return false
		}
	}

	for _, e := range g.world.Entities() {
		if c.known[e.ID] {
			continue
		}
		data, ok := cache[e.ID]
		if !ok {
			sp, err := protocol.NewSpawn(e, tick)
			if err != nil {
				log.Printf("entity %d: %v", e.ID, err)
				continue
			}
			if data, err = protocol.Encode(protocol.MsgSpawn, sp); err != nil {
				log.Printf("entity %d: %v", e.ID, err)
				continue
			}
			cache[e.ID] = data
		}
		if !c.sender.Send(protocol.MsgSpawn, data) {
			return false
		}
		c.known[e.ID] = true
	}
	return true
}

func (g *Game) sendTo(c *connection, t protocol.MsgType, payload any) bool {
	data, err := protocol.Encode(t, payload)
	if err != nil {
		log.Printf("encode %s: %v", t, err)
		return false
	}
	return c.sender.Send(t, data)
}

func (g *Game) clientIDs() []sim.ClientID {
	ids := make([]sim.ClientID, 0, len(g.conns))
	for cid := range g.conns {
		ids = append(ids, cid)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// shutdown disconnects everyone, including connects still queued. A
// simulation error is reported to clients first.
func (g *Game) shutdown(cause error) {
	now := time.Now()
	for _, cid := range g.clientIDs() {
		c := g.conns[cid]
		if cause != nil {
			g.sendTo(c, protocol.MsgError, protocol.ErrorMsg{Msg: "session ended: " + cause.Error()})
		}
		g.onDisconnect(cid, c.sender, now)
		c.sender.Close()
	}

	close(g.done)
	g.stopMu.Lock()
	g.stopped = true
	g.stopMu.Unlock()
	for {
		select {
		case ev := <-g.inbox:
			if ev.kind == evConnect {
				ev.sender.Close()
			}
		default:
			return
		}
	}
}
