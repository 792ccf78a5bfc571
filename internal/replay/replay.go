// Package replay records server snapshots and hit events to disk and reads
// them back.
//
// A recording is a directory named by its id holding manifest.json,
// frames.bin.zst (length-prefixed msgpack snapshots, zstd compressed) and
// events.jsonl.sz (one JSON hit record per line, snappy framed).
package replay

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/RJ/bevygap-spaceships/internal/protocol"
	"github.com/RJ/bevygap-spaceships/internal/sim"
)

const (
	ManifestFile = "manifest.json"
	FramesFile   = "frames.bin.zst"
	EventsFile   = "events.jsonl.sz"

	maxFrameSize = 16 << 20
)

var ErrClosed = errors.New("replay: writer closed")

// Manifest describes one recording.
type Manifest struct {
	ID         string     `json:"id"`
	ProtocolID uint64     `json:"protocol_id"`
	TickRate   int        `json:"tick_rate"`
	StartedAt  time.Time  `json:"started_at"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
	Frames     int        `json:"frames"`
	Events     int        `json:"events"`
	FirstTick  int32      `json:"first_tick"`
	LastTick   int32      `json:"last_tick"`
}

// HitRecord is the on-disk form of a bullet hit.
type HitRecord struct {
	Tick   int32   `json:"tick"`
	Bullet uint64  `json:"bullet"`
	Owner  uint64  `json:"owner"`
	Victim *uint64 `json:"victim,omitempty"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// NewHitRecord converts a simulation hit event.
func NewHitRecord(ev sim.BulletHitEvent) HitRecord {
	r := HitRecord{
		Tick:   int32(ev.Tick),
		Bullet: uint64(ev.BulletID),
		Owner:  uint64(ev.BulletOwner),
		X:      ev.Position.X,
		Y:      ev.Position.Y,
	}
	if ev.Victim != nil {
		v := uint64(*ev.Victim)
		r.Victim = &v
	}
	return r
}

// Writer appends to a recording. It is not safe for concurrent use; the
// server game loop owns it.
type Writer struct {
	dir      string
	manifest Manifest

	framesFile *os.File
	frames     *zstd.Encoder
	eventsFile *os.File
	events     *snappy.Writer
	closed     bool
}

// Create starts a new recording in a fresh directory under root.
func Create(root string, protocolID uint64, now time.Time) (*Writer, error) {
	id := uuid.NewString()
	dir := filepath.Join(root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	ff, err := os.Create(filepath.Join(dir, FramesFile))
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	enc, err := zstd.NewWriter(ff)
	if err != nil {
		ff.Close()
		return nil, fmt.Errorf("replay: zstd: %w", err)
	}
	ef, err := os.Create(filepath.Join(dir, EventsFile))
	if err != nil {
		enc.Close()
		ff.Close()
		return nil, fmt.Errorf("replay: %w", err)
	}
	w := &Writer{
		dir: dir,
		manifest: Manifest{
			ID:         id,
			ProtocolID: protocolID,
			TickRate:   sim.TickRate,
			StartedAt:  now.UTC(),
		},
		framesFile: ff,
		frames:     enc,
		eventsFile: ef,
		events:     snappy.NewBufferedWriter(ef),
	}
	if err := w.writeManifest(); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) ID() string  { return w.manifest.ID }
func (w *Writer) Dir() string { return w.dir }

// WriteSnapshot appends one snapshot frame.
func (w *Writer) WriteSnapshot(snap protocol.Snapshot) error {
	if w.closed {
		return ErrClosed
	}
	b, err := msgpack.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("replay: encode frame: %w", err)
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(b)))
	if _, err := w.frames.Write(hdr[:]); err != nil {
		return fmt.Errorf("replay: write frame: %w", err)
	}
	if _, err := w.frames.Write(b); err != nil {
		return fmt.Errorf("replay: write frame: %w", err)
	}
	if w.manifest.Frames == 0 {
		w.manifest.FirstTick = snap.Tick
	}
	w.manifest.LastTick = snap.Tick
	w.manifest.Frames++
	return nil
}

// WriteHit appends one hit event.
func (w *Writer) WriteHit(ev sim.BulletHitEvent) error {
	if w.closed {
		return ErrClosed
	}
	b, err := json.Marshal(NewHitRecord(ev))
	if err != nil {
		return fmt.Errorf("replay: encode event: %w", err)
	}
	b = append(b, '\n')
	if _, err := w.events.Write(b); err != nil {
		return fmt.Errorf("replay: write event: %w", err)
	}
	w.manifest.Events++
	return nil
}

// Close flushes both streams and finalises the manifest.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	now := time.Now().UTC()
	w.manifest.ClosedAt = &now
	errs := []error{
		w.frames.Close(),
		w.framesFile.Close(),
		w.events.Close(),
		w.eventsFile.Close(),
		w.writeManifest(),
	}
	return errors.Join(errs...)
}

func (w *Writer) writeManifest() error {
	b, err := json.MarshalIndent(w.manifest, "", "  ")
	if err != nil {
		return err
	}
	tmp := filepath.Join(w.dir, ManifestFile+".tmp")
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("replay: manifest: %w", err)
	}
	return os.Rename(tmp, filepath.Join(w.dir, ManifestFile))
}

// Reader reads a finished or in-progress recording.
type Reader struct {
	dir      string
	manifest Manifest
}

// Open reads the manifest of the recording in dir.
func Open(dir string) (*Reader, error) {
	b, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	r := &Reader{dir: dir}
	if err := json.Unmarshal(b, &r.manifest); err != nil {
		return nil, fmt.Errorf("replay: manifest: %w", err)
	}
	return r, nil
}

func (r *Reader) Manifest() Manifest { return r.manifest }

// Frames calls fn for every snapshot in recording order. A truncated final
// frame ends iteration without error.
func (r *Reader) Frames(fn func(protocol.Snapshot) error) error {
	f, err := os.Open(filepath.Join(r.dir, FramesFile))
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return fmt.Errorf("replay: zstd: %w", err)
	}
	defer dec.Close()

	br := bufio.NewReader(dec)
	var hdr [4]byte
	for {
		if _, err := io.ReadFull(br, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return fmt.Errorf("replay: read frame: %w", err)
		}
		n := binary.BigEndian.Uint32(hdr[:])
		if n > maxFrameSize {
			return fmt.Errorf("replay: frame of %d bytes", n)
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(br, buf); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return fmt.Errorf("replay: read frame: %w", err)
		}
		var snap protocol.Snapshot
		if err := msgpack.Unmarshal(buf, &snap); err != nil {
			return fmt.Errorf("replay: decode frame: %w", err)
		}
		if err := fn(snap); err != nil {
			return err
		}
	}
}

// Events calls fn for every hit record in recording order.
func (r *Reader) Events(fn func(HitRecord) error) error {
	f, err := os.Open(filepath.Join(r.dir, EventsFile))
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(snappy.NewReader(f))
	for sc.Scan() {
		var rec HitRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return fmt.Errorf("replay: decode event: %w", err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return sc.Err()
}
