package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/RJ/bevygap-spaceships/internal/config"
	"github.com/RJ/bevygap-spaceships/internal/prediction"
	"github.com/RJ/bevygap-spaceships/internal/protocol"
	"github.com/RJ/bevygap-spaceships/internal/sim"
)

const (
	// FrameInterval is how often the client loop wakes up.
	FrameInterval  = 5 * time.Millisecond
	statusInterval = 5 * time.Second
	matchTimeout   = 10 * time.Second
)

var (
	ErrSnapshotTimeout = errors.New("no snapshot from server")
	ErrServer          = errors.New("server error")
	ErrConnectionLost  = errors.New("connection lost")
)

// Config is what a client needs to find and join a server.
type Config struct {
	ClientID        sim.ClientID
	ServerAddr      string
	MatchmakerURL   string
	CertDigest      string
	PrivateKey      protocol.PrivateKey
	ProtocolID      uint64
	SnapshotTimeout time.Duration
	HTTPClient      *http.Client
}

// ConfigFrom builds a client config from the process config. The client id
// is the wall clock in milliseconds.
func ConfigFrom(c *config.Config, now time.Time) Config {
	return Config{
		ClientID:        sim.ClientID(now.UnixMilli()),
		ServerAddr:      c.ServerAddr,
		MatchmakerURL:   c.MatchmakerURL,
		CertDigest:      c.CertificateDigest,
		PrivateKey:      c.PrivateKey,
		ProtocolID:      c.ProtocolID,
		SnapshotTimeout: c.SnapshotTimeout,
	}
}

// Status is a copy of the client's observable state.
type Status struct {
	State      State
	Err        error
	ClientID   sim.ClientID
	Tick       sim.Tick
	Players    int
	Entities   int
	Controlled bool
	InputDelay int32
	Explosions int
	Telemetry  prediction.Telemetry
	Metadata   protocol.ServerMetadata
}

// Client runs the predicted game for one local player. Run owns all game
// state; Status may be called from any goroutine.
type Client struct {
	cfg   Config
	pilot Pilot

	tr         Transport
	engine     *prediction.Engine
	explosions *Explosions
	metadata   protocol.ServerMetadata
	rtt        time.Duration
	lead       int // ticks predicted ahead of the last resync target

	now          time.Time
	lastSnapshot time.Time
	lastStatus   time.Time

	mu     sync.Mutex
	status Status
}

func New(cfg Config, pilot Pilot) *Client {
	if cfg.SnapshotTimeout <= 0 {
		cfg.SnapshotTimeout = config.DefaultSnapshotTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: matchTimeout}
	}
	if cfg.ProtocolID == 0 {
		cfg.ProtocolID = protocol.ProtocolID
	}
	if pilot == nil {
		pilot = IdlePilot{}
	}
	return &Client{
		cfg:        cfg,
		pilot:      pilot,
		explosions: NewExplosions(),
		status:     Status{State: StateIdle, ClientID: cfg.ClientID},
	}
}

// Status returns a snapshot of the client state.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Client) setState(s State, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status.State != s {
		log.Printf("client %d: %s -> %s", c.cfg.ClientID, c.status.State, s)
	}
	c.status.State = s
	c.status.Err = err
}

// Run matchmakes, connects and plays until ctx is cancelled or the session
// ends. Cancellation is a clean disconnect and returns nil.
func (c *Client) Run(ctx context.Context) error {
	addr, token, digest, err := c.ticket(ctx)
	if err != nil {
		return c.finish(ctx, err)
	}

	c.setState(StateConnecting, nil)
	tr, err := Dial(ctx, addr, token, digest)
	if err != nil {
		return c.finish(ctx, err)
	}
	return c.finish(ctx, c.play(ctx, tr))
}

// ticket returns where to connect and the connect token, from the
// matchmaker when one is configured, otherwise self-issued.
func (c *Client) ticket(ctx context.Context) (addr, token, digest string, err error) {
	if c.cfg.MatchmakerURL == "" {
		token, err = protocol.IssueToken(c.cfg.PrivateKey, c.cfg.ProtocolID, uint64(c.cfg.ClientID), time.Now())
		return c.cfg.ServerAddr, token, c.cfg.CertDigest, err
	}
	c.setState(StateMatchmaking, nil)
	t, err := RequestMatch(ctx, c.cfg.HTTPClient, c.cfg.MatchmakerURL, c.cfg.ClientID)
	if err != nil {
		return "", "", "", err
	}
	digest = t.CertDigest
	if digest == "" {
		digest = c.cfg.CertDigest
	}
	return t.ServerAddr, t.Token, digest, nil
}

func (c *Client) play(ctx context.Context, tr Transport) error {
	c.attach(tr, time.Now())
	defer tr.Close()

	loopCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	err := sim.RunLoop(loopCtx, FrameInterval, func(now time.Time, steps int) {
		if err := c.Frame(now, steps); err != nil {
			cancel(err)
		}
	})
	if cause := context.Cause(loopCtx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return err
}

func (c *Client) finish(ctx context.Context, err error) error {
	switch {
	case err == nil, ctx.Err() != nil && errors.Is(err, context.Canceled):
		c.setState(StateDisconnected, nil)
		return nil
	case errors.Is(err, ErrSnapshotTimeout), errors.Is(err, ErrConnectionLost):
		c.setState(StateDisconnected, err)
	default:
		c.setState(StateFailed, err)
	}
	c.engine = nil
	return err
}

func (c *Client) attach(tr Transport, now time.Time) {
	c.tr = tr
	c.now = now
	c.lastSnapshot = now
	c.lastStatus = now
	c.setState(StateConnected, nil)
}

// Frame runs one client frame: receive, fixed steps, update, send.
func (c *Client) Frame(now time.Time, steps int) error {
	c.now = now

	if err := c.receive(); err != nil {
		return err
	}
	if now.Sub(c.lastSnapshot) > c.cfg.SnapshotTimeout {
		return fmt.Errorf("%w for %v", ErrSnapshotTimeout, now.Sub(c.lastSnapshot).Round(time.Millisecond))
	}

	if c.engine != nil {
		if p, ok := c.engine.Controlled(); ok && p.Player != nil && p.Player.RTT > 0 {
			c.rtt = p.Player.RTT
			c.engine.SetRTT(c.rtt)
		}
		steps = c.relead(steps)
		if err := c.step(steps); err != nil {
			return err
		}
	}

	c.explosions.Expire(now)
	if now.Sub(c.lastStatus) >= statusInterval {
		c.lastStatus = now
		c.logStatus()
	}

	if c.engine != nil && steps > 0 {
		if err := c.tr.Send(protocol.MsgInput, c.engine.OutgoingInput()); err != nil {
			log.Printf("send input: %v", err)
		}
	}
	c.publish()
	return nil
}

// receive drains the inbox without blocking.
func (c *Client) receive() error {
	for {
		select {
		case env := <-c.tr.Inbox():
			if err := c.handle(env); err != nil {
				return err
			}
		default:
			select {
			case <-c.tr.Done():
				if err := c.tr.Err(); err != nil {
					return fmt.Errorf("%w: %v", ErrConnectionLost, err)
				}
				return ErrConnectionLost
			default:
			}
			return nil
		}
	}
}

func (c *Client) handle(env protocol.Envelope) error {
	switch env.T {
	case protocol.MsgWelcome:
		w, err := protocol.DecodePayload[protocol.Welcome](env)
		if err != nil {
			return err
		}
		return c.onWelcome(w)

	case protocol.MsgResource:
		r, err := protocol.DecodePayload[protocol.Resource](env)
		if err != nil {
			return err
		}
		md, err := protocol.DecodeMetadata(r)
		if err != nil {
			log.Printf("resource: %v", err)
			return nil
		}
		c.metadata = md
		log.Printf("server %s (%s) build %s", md.FQDN, md.Location, md.BuildInfo)

	case protocol.MsgError:
		m, err := protocol.DecodePayload[protocol.ErrorMsg](env)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", ErrServer, m.Msg)
	}

	if c.engine == nil {
		if env.T != protocol.MsgResource {
			log.Printf("%s before welcome dropped", env.T)
		}
		return nil
	}

	switch env.T {
	case protocol.MsgSpawn:
		sp, err := protocol.DecodePayload[protocol.Spawn](env)
		if err != nil {
			return err
		}
		ent, err := c.engine.OnSpawn(sp)
		if err != nil {
			log.Printf("spawn %d: %v", sp.EntityID, err)
			return nil
		}
		if ent != nil && ent.Controlled {
			log.Printf("own player replicated: entity %d", ent.ID)
		}

	case protocol.MsgDespawn:
		d, err := protocol.DecodePayload[protocol.Despawn](env)
		if err != nil {
			return err
		}
		c.engine.OnDespawn(sim.EntityID(d.EntityID))

	case protocol.MsgInput:
		m, err := protocol.DecodePayload[protocol.InputMessage](env)
		if err != nil {
			return err
		}
		c.engine.IngestRemoteInput(m)

	case protocol.MsgSnapshot:
		snap, err := protocol.DecodePayload[protocol.Snapshot](env)
		if err != nil {
			return err
		}
		return c.onSnapshot(snap)
	}
	return nil
}

func (c *Client) onWelcome(w protocol.Welcome) error {
	if w.ProtocolID != c.cfg.ProtocolID {
		return fmt.Errorf("%w: server %d, client %d", protocol.ErrProtocolMismatch, w.ProtocolID, c.cfg.ProtocolID)
	}
	if sim.ClientID(w.ClientID) != c.cfg.ClientID {
		log.Printf("server assigned client id %d", w.ClientID)
	}
	start := sim.Tick(w.Tick).Add(sim.MaxInputDelay)
	c.engine = prediction.NewEngine(prediction.DefaultConfig(), sim.ClientID(w.ClientID), start)
	c.engine.OnHit = func(ev sim.BulletHitEvent) { c.explosions.Add(ev, c.now) }
	c.lastSnapshot = c.now
	log.Printf("welcome: client %d at server tick %d", w.ClientID, w.Tick)
	return nil
}

func (c *Client) onSnapshot(snap protocol.Snapshot) error {
	c.lastSnapshot = c.now
	outcome, err := c.engine.OnSnapshot(snap)
	if err != nil {
		if errors.Is(err, sim.ErrNonFinite) {
			return err
		}
		log.Printf("snapshot %d: %v", snap.Tick, err)
		return nil
	}
	if outcome == prediction.OutcomeResync {
		// the resynced clock sits at the server's past; predict ahead of it again
		c.lead = c.leadTicks()
		return c.step(c.lead)
	}
	return nil
}

// relead adjusts this frame's step count when the measured rtt moved the
// wanted lead by more than a tick. A longer lead is predicted at once; a
// shorter one is reached by skipping steps.
func (c *Client) relead(steps int) int {
	if c.lead == 0 {
		return steps
	}
	want := c.leadTicks()
	switch {
	case want > c.lead+1:
		steps += want - c.lead
		c.lead = want
	case want < c.lead-1:
		skip := min(c.lead-want, steps)
		steps -= skip
		c.lead -= skip
	}
	return steps
}

// leadTicks is how far ahead of a snapshot the predicted clock should run:
// the snapshot's age plus the time our input needs to reach the server.
func (c *Client) leadTicks() int {
	return int(math.Ceil(float64(c.rtt)/float64(sim.TickDuration))) + sim.MinInputDelay
}

// step samples the pilot and predicts n ticks.
func (c *Client) step(n int) error {
	for i := 0; i < n; i++ {
		self, _ := c.engine.Controlled()
		c.engine.SampleLocal(c.pilot.Actions(c.engine.Now(), self))
		if _, err := c.engine.AdvanceTick(); err != nil {
			return fmt.Errorf("predict tick %d: %w", c.engine.Now()+1, err)
		}
	}
	return nil
}

func (c *Client) logStatus() {
	if c.engine == nil {
		log.Printf("waiting for welcome")
		return
	}
	tel := c.engine.Telemetry()
	log.Printf("tick %d players %d rtt %v delay %d snapshots %d rollbacks %d (max depth %d) resyncs %d",
		c.engine.Now(), len(c.engine.World().Players()), c.rtt, c.engine.InputDelay(),
		tel.Snapshots, tel.Rollbacks, tel.MaxRollbackDepth, tel.Resyncs)
}

func (c *Client) publish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := &c.status
	st.Explosions = c.explosions.Len()
	st.Metadata = c.metadata
	if c.engine == nil {
		return
	}
	_, controlled := c.engine.Controlled()
	st.ClientID = c.engine.LocalClient()
	st.Tick = c.engine.Now()
	st.Players = len(c.engine.World().Players())
	st.Entities = c.engine.World().Len()
	st.Controlled = controlled
	st.InputDelay = c.engine.InputDelay()
	st.Telemetry = c.engine.Telemetry()
}
