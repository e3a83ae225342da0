package transport

import (
	"fmt"

	logging "github.com/op/go-logging"

	"github.com/nwtnni/paxos/ballot"
)

var logger = logging.MustGetLogger("transport")

// Transport is the network collaborator the core consumes: fire-and-
// forget delivery of Envelopes between replicas, demultiplexed on the
// receiving side into a single inbound channel per process (spec §5,
// "inbound network messages are demultiplexed by kind to the
// corresponding role's channel" — the role-level demultiplexing
// happens above Transport, in the engine that owns the Inbox).
//
// Implementations need not guarantee delivery or ordering across
// processes, only FIFO order on a given connection (spec §5) — the
// Paxos layer above already tolerates drops and reorderings via
// timeout-driven re-send.
type Transport interface {
	// Send delivers env to the replica identified by to. A returned
	// error means the send definitely failed (e.g. connection refused);
	// it is treated as a transient error by callers and simply retried
	// on the next timeout, never surfaced as a protocol fault.
	Send(to ballot.ReplicaID, env Envelope) error

	// Broadcast delivers env to every replica in the cluster except
	// self, best-effort; per-peer failures are swallowed (mirroring
	// Send's transient-error policy) since a scout/commander already
	// proceeds on whatever quorum of responses arrives.
	Broadcast(self ballot.ReplicaID, peers []ballot.ReplicaID, env Envelope)

	// Inbox returns the channel on which every Envelope addressed to
	// this process arrives, regardless of peer.
	Inbox() <-chan Envelope

	Close() error
}

// ErrUnknownPeer is returned by Send when asked to deliver to a replica
// id the transport has no address for.
type ErrUnknownPeer ballot.ReplicaID

func (e ErrUnknownPeer) Error() string {
	return fmt.Sprintf("transport: no known address for replica %d", ballot.ReplicaID(e))
}
