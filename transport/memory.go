package transport

import (
	"sync"

	"github.com/nwtnni/paxos/ballot"
)

// Memory is an in-process Transport backed by Go channels: every
// process sharing one *Network registers an inbox and Send/Broadcast
// simply push onto the recipient's channel. It exists for tests and
// single-binary deployments that want every replica in one process
// without sockets.
type Memory struct {
	id      ballot.ReplicaID
	network *Network
	inbox   chan Envelope
}

// Network is the shared switchboard a set of Memory transports
// register against.
type Network struct {
	mu     sync.Mutex
	inboxes map[ballot.ReplicaID]chan Envelope
}

// NewNetwork creates an empty switchboard.
func NewNetwork() *Network {
	return &Network{inboxes: make(map[ballot.ReplicaID]chan Envelope)}
}

// Register creates and returns a Memory transport for replica id,
// wired into n. The channel buffer (256) is generous enough that a
// Scout/Commander fan-out to a handful of peers never blocks the
// sender on a slow receiver; callers that need backpressure should use
// a real transport instead.
func (n *Network) Register(id ballot.ReplicaID) *Memory {
	n.mu.Lock()
	defer n.mu.Unlock()
	inbox := make(chan Envelope, 256)
	n.inboxes[id] = inbox
	return &Memory{id: id, network: n, inbox: inbox}
}

func (n *Network) lookup(id ballot.ReplicaID) (chan Envelope, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch, ok := n.inboxes[id]
	return ch, ok
}

func (m *Memory) Send(to ballot.ReplicaID, env Envelope) error {
	ch, ok := m.network.lookup(to)
	if !ok {
		return ErrUnknownPeer(to)
	}
	select {
	case ch <- env:
		return nil
	default:
		logger.Warningf("dropping %v to replica %d: inbox full", env.Kind, to)
		return nil
	}
}

func (m *Memory) Broadcast(self ballot.ReplicaID, peers []ballot.ReplicaID, env Envelope) {
	for _, p := range peers {
		if p == self {
			continue
		}
		_ = m.Send(p, env)
	}
}

func (m *Memory) Inbox() <-chan Envelope { return m.inbox }

func (m *Memory) Close() error {
	m.network.mu.Lock()
	defer m.network.mu.Unlock()
	delete(m.network.inboxes, m.id)
	close(m.inbox)
	return nil
}
