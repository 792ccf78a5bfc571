package protocol

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/RJ/bevygap-spaceships/internal/sim"
)

func testPlayer() *sim.Entity {
	p := sim.NewPlayer(30, 42, "Nova", sim.PlayerColors[2], sim.Vec2{X: 12.5, Y: -3.25})
	p.Body.Rotation = 1.2345678
	p.Body.LinearVelocity = sim.Vec2{X: 101.01, Y: -0.000001}
	p.Body.AngularVelocity = -3.9
	p.Weapon.LastFireTick = 777
	p.Score = -4
	p.Player.RTT = 48 * time.Millisecond
	p.Player.Jitter = 3 * time.Millisecond
	return p
}

func TestFullComponentsRoundTrip(t *testing.T) {
	src := testPlayer()
	comps, err := EncodeComponents(src, SyncFull)
	if err != nil {
		t.Fatal(err)
	}
	if len(comps) != 5 {
		t.Fatalf("expected 5 full components, got %d", len(comps))
	}
	for _, c := range comps {
		if m, _ := ModeOf(c.Tag); m != SyncFull {
			t.Errorf("%s encoded as full but registered %s", c.Tag, m)
		}
	}

	dst := &sim.Entity{ID: src.ID, Kind: sim.KindPlayer}
	if err := DecodeComponents(dst, comps); err != nil {
		t.Fatal(err)
	}
	if dst.Body.Position != src.Body.Position || dst.Body.Rotation != src.Body.Rotation ||
		dst.Body.LinearVelocity != src.Body.LinearVelocity || dst.Body.AngularVelocity != src.Body.AngularVelocity {
		t.Errorf("body mismatch: %+v vs %+v", dst.Body, src.Body)
	}
	if *dst.Weapon != *src.Weapon {
		t.Errorf("weapon mismatch: %+v vs %+v", dst.Weapon, src.Weapon)
	}
	if dst.Score != 0 {
		t.Error("score is simple and must not travel with full components")
	}
}

func TestSyncModes(t *testing.T) {
	cases := map[ComponentTag]SyncMode{
		TagPosition:     SyncFull,
		TagWeapon:       SyncFull,
		TagScore:        SyncSimple,
		TagPlayerStats:  SyncSimple,
		TagColor:        SyncOnce,
		TagLifetime:     SyncOnce,
		TagBulletMarker: SyncOnce,
	}
	for tag, want := range cases {
		if got, ok := ModeOf(tag); !ok || got != want {
			t.Errorf("%s: expected %s, got %s", tag, want, got)
		}
	}
}

func TestSpawnBuildsEntity(t *testing.T) {
	src := testPlayer()
	sp, err := NewSpawn(src, 900)
	if err != nil {
		t.Fatal(err)
	}
	raw := MustEncode(MsgSpawn, sp)
	env, err := DecodeEnvelope(raw)
	if err != nil || env.T != MsgSpawn {
		t.Fatalf("envelope: %v %v", env.T, err)
	}
	got, err := DecodePayload[Spawn](env)
	if err != nil {
		t.Fatal(err)
	}
	e, err := EntityFromSpawn(got)
	if err != nil {
		t.Fatal(err)
	}
	if e.Kind != sim.KindPlayer || e.Player.ClientID != 42 || e.Player.Nickname != "Nova" {
		t.Errorf("identity lost: %+v %+v", e, e.Player)
	}
	if e.Color != src.Color || e.Score != -4 || e.Player.RTT != src.Player.RTT {
		t.Errorf("once/simple components lost: %+v", e)
	}
	if e.Body.Collider.Kind != sim.ShapePolygon || e.Body.Density != sim.ShipDensity {
		t.Error("physics facet should be synthesised from the kind")
	}
}

func TestBulletSpawnKeepsLifetime(t *testing.T) {
	b := sim.NewBullet(9, sim.Gold, 321, sim.Vec2{}, sim.Vec2{X: 500})
	sp, err := NewSpawn(b, 321)
	if err != nil {
		t.Fatal(err)
	}
	e, err := EntityFromSpawn(sp)
	if err != nil {
		t.Fatal(err)
	}
	if e.ID != sim.BulletID(9, 321) || e.Lifetime.DespawnTick() != b.Lifetime.DespawnTick() || e.Bullet.Owner != 9 {
		t.Errorf("bullet spawn mismatch: %+v", e)
	}
}

func TestSnapshotEnvelope(t *testing.T) {
	w := sim.NewWorld()
	sim.SpawnBalls(w)
	w.Spawn(testPlayer())
	snap, err := BuildSnapshot(w, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Group != PredictedGroup || len(snap.Entities) != w.Len() {
		t.Fatalf("unexpected snapshot: group %d, %d entities", snap.Group, len(snap.Entities))
	}
	env, err := DecodeEnvelope(MustEncode(MsgSnapshot, snap))
	if err != nil {
		t.Fatal(err)
	}
	if env.T.Reliable() {
		t.Error("snapshots travel unreliable")
	}
	got, err := DecodePayload[Snapshot](env)
	if err != nil || got.Tick != 1000 || len(got.Entities) != len(snap.Entities) {
		t.Fatalf("decoded snapshot mismatch: %v", err)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := DecodeEnvelope([]byte{0xc1, 0x00}); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
	e := &sim.Entity{}
	err := DecodeComponents(e, []ComponentData{{Tag: 200, Bytes: []byte{0}}})
	if !errors.Is(err, ErrUnknownComponent) {
		t.Errorf("expected ErrUnknownComponent, got %v", err)
	}
}

func TestInputMessageIngest(t *testing.T) {
	src := sim.NewInputBuffer(0)
	prev := sim.ActionState{}
	for tick := sim.Tick(10); tick <= 20; tick++ {
		prev = prev.Next(sim.ActionUp)
		src.Insert(tick, prev)
	}
	msg := InputMessageFrom(7, src, 12, 20)
	if len(msg.Inputs) != 9 || msg.Inputs[0].Tick != 12 {
		t.Fatalf("unexpected window: %+v", msg.Inputs)
	}

	dst := sim.NewInputBuffer(0)
	dst.Insert(15, sim.ActionState{}.Next(sim.ActionDown))
	n, errs := IngestInputs(dst, msg)
	if n != 8 || len(errs) != 1 || !errors.Is(errs[0], sim.ErrWriteConflict) {
		t.Errorf("expected 8 writes and one conflict, got %d %v", n, errs)
	}
	if st, _ := dst.Get(15); !st.Has(sim.ActionDown) {
		t.Error("conflicting write must not replace the first input")
	}
}

func TestConnectToken(t *testing.T) {
	key, err := ParsePrivateKey(strings.Repeat("7,", 31) + "7")
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	tok, err := IssueToken(key, ProtocolID, 1234, now)
	if err != nil {
		t.Fatal(err)
	}
	cid, err := ValidateToken(key, ProtocolID, tok)
	if err != nil || cid != 1234 {
		t.Fatalf("expected client 1234, got %d %v", cid, err)
	}

	if _, err := ValidateToken(DummyPrivateKey, ProtocolID, tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong key: expected ErrInvalidToken, got %v", err)
	}

	other, _ := IssueToken(key, ProtocolID+1, 1234, now)
	if _, err := ValidateToken(key, ProtocolID, other); !errors.Is(err, ErrProtocolMismatch) {
		t.Errorf("expected ErrProtocolMismatch, got %v", err)
	}

	expired, _ := IssueToken(key, ProtocolID, 1234, now.Add(-time.Hour))
	if _, err := ValidateToken(key, ProtocolID, expired); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired token: expected ErrInvalidToken, got %v", err)
	}
}

func TestParsePrivateKeyErrors(t *testing.T) {
	if _, err := ParsePrivateKey("1,2,3"); err == nil {
		t.Error("short key should fail")
	}
	if _, err := ParsePrivateKey(strings.Repeat("0,", 31) + "256"); err == nil {
		t.Error("byte out of range should fail")
	}
	key, err := ParsePrivateKey("[" + strings.Repeat("0, ", 31) + "0]")
	if err != nil || key != DummyPrivateKey {
		t.Errorf("bracketed zero key should parse: %v", err)
	}
}

func TestCertificateDigest(t *testing.T) {
	d := CertificateDigest([]byte("not really a certificate"))
	if len(d) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(d))
	}
	var colon []string
	for i := 0; i < len(d); i += 2 {
		colon = append(colon, strings.ToUpper(d[i:i+2]))
	}
	got, err := ParseCertificateDigest(strings.Join(colon, ":"))
	if err != nil || got != d {
		t.Errorf("colon form should normalise: %q %v", got, err)
	}
	verify := VerifyPinnedDigest(d)
	if err := verify([][]byte{[]byte("not really a certificate")}, nil); err != nil {
		t.Errorf("pinned digest should match: %v", err)
	}
	if err := verify([][]byte{[]byte("other")}, nil); err == nil {
		t.Error("different certificate should be rejected")
	}
}

func TestMetadataResource(t *testing.T) {
	md := ServerMetadata{Location: "eu-west", FQDN: "play.example.org", BuildInfo: "v1"}
	r, err := NewMetadataResource(md)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeMetadata(r)
	if err != nil || got != md {
		t.Errorf("metadata mismatch: %+v %v", got, err)
	}
}
