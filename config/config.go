// Package config holds the immutable, launch-time configuration named
// in spec §6: id, count, port, timeout, plus the ambient knobs every
// process in this repo's domain stack needs (log level, proposal
// window). Configuration is read once at process start and never
// mutated afterward.
package config

import (
	"fmt"
	"time"

	logging "github.com/op/go-logging"

	"github.com/nwtnni/paxos/ballot"
)

// DefaultWindow bounds how far slot_in may run ahead of slot_out
// (spec §4.1, §9 "Bounded windows").
const DefaultWindow = 10

// Config is the per-process configuration, immutable for the process
// lifetime.
type Config struct {
	// ID is this replica's index in [0, Count).
	ID ballot.ReplicaID
	// Count is the total, fixed replica count (spec §1 Non-goals:
	// dynamic membership is out of scope, Count never changes).
	Count int
	// Port is the client- and peer-listening port.
	Port int
	// Peers lists every replica's "host:port" peer address, in id
	// order; Peers[ID] is this process's own peer address.
	Peers []string
	// Timeout bounds how long a Scout or Commander waits for a
	// majority before re-sending outstanding phase messages.
	Timeout time.Duration
	// WindowSize is the WINDOW constant from spec §4.1.
	WindowSize int
	// LogLevel is the single verbosity knob the core exposes; the
	// out-of-scope collaborator is any richer per-subsystem log
	// configuration format layered on top of it.
	LogLevel logging.Level
}

// Quorum is floor(n/2)+1, the majority size for this configuration.
func (c Config) Quorum() int {
	return c.Count/2 + 1
}

// Validate checks internal consistency: id in range, a peer address per
// replica, and a majority-capable cluster size. It does not check
// on-disk fingerprints — see fingerprint.go for the log-compatibility
// refusal this spec requires.
func (c Config) Validate() error {
	if c.Count <= 0 {
		return fmt.Errorf("config: count must be positive, got %d", c.Count)
	}
	if c.ID < 0 || int(c.ID) >= c.Count {
		return fmt.Errorf("config: id %d out of range [0, %d)", c.ID, c.Count)
	}
	if len(c.Peers) != c.Count {
		return fmt.Errorf("config: expected %d peer addresses, got %d", c.Count, len(c.Peers))
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("config: timeout must be positive, got %v", c.Timeout)
	}
	if c.WindowSize <= 0 {
		return fmt.Errorf("config: window size must be positive, got %d", c.WindowSize)
	}
	return nil
}
