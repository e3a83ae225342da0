package transport

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"github.com/nwtnni/paxos/ballot"
)

// TCP is the production Transport: one persistent listener accepting
// connections from peers, and one ConnectionPool per peer for
// outbound sends. Every connection, inbound or outbound, begins with a
// one-time handshake exchanging the dialer's replica id — grounded on
// RemoteNode.getConnection's ConnectionRequest/ConnectionAcceptedResponse
// exchange in the teacher, reduced here to the one field the core
// actually needs to attribute a connection to a peer.
type TCP struct {
	id       ballot.ReplicaID
	listener net.Listener
	inbox    chan Envelope

	mu    sync.Mutex
	pools map[ballot.ReplicaID]*ConnectionPool
	addrs map[ballot.ReplicaID]string
}

// NewTCP binds listenAddr and begins accepting peer connections. addrs
// maps every replica's id — including self's own — to its listen
// address. Self is deliberately not special-cased: a scout/commander
// broadcasts P1a/P2a to every acceptor in the cluster, and the local
// one is reached by dialing back into this same listener, so its vote
// is collected through the identical code path as any peer's.
func NewTCP(id ballot.ReplicaID, listenAddr string, addrs map[ballot.ReplicaID]string) (*TCP, error) {
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", listenAddr, err)
	}

	t := &TCP{
		id:       id,
		listener: listener,
		inbox:    make(chan Envelope, 256),
		pools:    make(map[ballot.ReplicaID]*ConnectionPool),
		addrs:    make(map[ballot.ReplicaID]string),
	}
	for peer, addr := range addrs {
		t.addrs[peer] = addr
		t.pools[peer] = NewConnectionPool(addr, 4, 2000)
	}

	go t.acceptLoop()
	return t, nil
}

func (t *TCP) acceptLoop() {
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			logger.Infof("replica %d: listener closed: %v", t.id, err)
			return
		}
		go t.serve(conn)
	}
}

// serve reads the one-time handshake off a freshly accepted connection
// and then continuously decodes Envelopes from it until it errors or
// the peer disconnects.
func (t *TCP) serve(conn net.Conn) {
	defer conn.Close()

	peer, err := readHandshake(conn)
	if err != nil {
		logger.Warningf("replica %d: handshake from %s failed: %v", t.id, conn.RemoteAddr(), err)
		return
	}

	r := bufio.NewReader(conn)
	for {
		env, err := ReadMessage(r)
		if err != nil {
			logger.Debugf("replica %d: connection from %d closed: %v", t.id, peer, err)
			return
		}
		select {
		case t.inbox <- env:
		default:
			logger.Warningf("replica %d: dropping %v from %d: inbox full", t.id, env.Kind, peer)
		}
	}
}

func writeHandshake(conn net.Conn, self ballot.ReplicaID) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(self))
	_, err := conn.Write(buf[:])
	return err
}

func readHandshake(conn net.Conn) (ballot.ReplicaID, error) {
	var buf [8]byte
	if _, err := readFull(conn, buf[:]); err != nil {
		return 0, err
	}
	return ballot.ReplicaID(binary.LittleEndian.Uint64(buf[:])), nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Send dials (or reuses a pooled connection to) the peer and writes
// env. A fresh connection performs the handshake before the first
// message.
func (t *TCP) Send(to ballot.ReplicaID, env Envelope) error {
	t.mu.Lock()
	pool, ok := t.pools[to]
	t.mu.Unlock()
	if !ok {
		return ErrUnknownPeer(to)
	}

	conn, err := pool.Get(t.id)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(conn)
	if err := WriteMessage(w, env); err != nil {
		pool.Discard(conn)
		return fmt.Errorf("transport: send to %d: %w", to, err)
	}
	if err := w.Flush(); err != nil {
		pool.Discard(conn)
		return fmt.Errorf("transport: flush to %d: %w", to, err)
	}

	pool.Put(conn)
	return nil
}

func (t *TCP) Broadcast(self ballot.ReplicaID, peers []ballot.ReplicaID, env Envelope) {
	for _, p := range peers {
		if p == self {
			continue
		}
		if err := t.Send(p, env); err != nil {
			logger.Debugf("replica %d: broadcast %v to %d failed: %v", self, env.Kind, p, err)
		}
	}
}

func (t *TCP) Inbox() <-chan Envelope { return t.inbox }

func (t *TCP) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, pool := range t.pools {
		pool.Close()
	}
	return t.listener.Close()
}
