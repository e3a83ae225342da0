package config

import (
	"fmt"
	"hash/fnv"
)

// Fingerprint identifies a cluster configuration: a change in replica
// count or any peer address yields a different fingerprint. The
// acceptor and replica logs stamp their first record with the
// fingerprint of the configuration that created them; on restart the
// process refuses to open a log stamped with a different fingerprint
// (spec §4.4, §9 Open Question 2 — "the safe policy is to refuse").
type Fingerprint uint64

// Fingerprint computes the configuration's fingerprint.
func (c Config) Fingerprint() Fingerprint {
	h := fnv.New64a()
	fmt.Fprintf(h, "count=%d", c.Count)
	for i, peer := range c.Peers {
		fmt.Fprintf(h, ";peer[%d]=%s", i, peer)
	}
	return Fingerprint(h.Sum64())
}
