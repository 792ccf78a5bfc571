package protocol

import (
	"time"

	"github.com/RJ/bevygap-spaceships/internal/sim"
)

const (
	ProtocolID   uint64 = 80085
	ServerPort          = 6420
	SendInterval        = 20 * time.Millisecond // server replication interval
	PhysicsScale        = sim.PhysicsScale

	// PredictedGroup is the replication group carrying every predicted entity.
	PredictedGroup uint8 = 1

	// InputRedundancy is how many already-sent ticks each input message repeats.
	InputRedundancy = 8

	// PrivateKeyBytes is the length of the connect token private key.
	PrivateKeyBytes = 32
)
