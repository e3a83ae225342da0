// Package metrics threads a statsd.Statter through the consensus roles
// the way the teacher repo's mockNode.SendMessage did for its
// serialize/process/deserialize timings (consensus/testing_mocks.go).
// Here the same Statter tracks phase latencies and counters for the
// Scout/Commander quorum rounds, acceptor durability writes, and
// replica apply loop.
package metrics

// Statter is the subset of github.com/cactus/go-statsd-client/statsd's
// Statter interface the core actually calls. A *statsd.Client built by
// Dial satisfies it structurally, as does the in-memory Mock used by
// tests and the NoOp default used when no metrics sink is configured.
type Statter interface {
	Inc(stat string, value int64, rate float32) error
	Dec(stat string, value int64, rate float32) error
	Gauge(stat string, value int64, rate float32) error
	GaugeDelta(stat string, value int64, rate float32) error
	Timing(stat string, delta int64, rate float32) error
	SetPrefix(prefix string)
	Close() error
}

type noopStatter struct{}

// NoOp returns a Statter that discards everything. It is the default
// when a process is launched without a metrics sink configured.
func NoOp() Statter { return noopStatter{} }

func (noopStatter) Inc(string, int64, float32) error        { return nil }
func (noopStatter) Dec(string, int64, float32) error        { return nil }
func (noopStatter) Gauge(string, int64, float32) error      { return nil }
func (noopStatter) GaugeDelta(string, int64, float32) error { return nil }
func (noopStatter) Timing(string, int64, float32) error     { return nil }
func (noopStatter) SetPrefix(string)                        {}
func (noopStatter) Close() error                             { return nil }
