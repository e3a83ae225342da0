package transport

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/nwtnni/paxos/ballot"
)

// ConnectionPool hands out dialed TCP connections to a single remote
// address, recycling idle ones. It mirrors the way the teacher's
// RemoteNode leans on a pool of size/timeout rather than dialing fresh
// on every message: NewConnectionPool(addr, size, timeoutMs).
type ConnectionPool struct {
	mu      sync.Mutex
	addr    string
	size    int
	timeout time.Duration
	idle    []net.Conn
}

// NewConnectionPool creates a pool that dials addr on demand, keeping
// up to size idle connections and failing a dial attempt after
// timeoutMillis milliseconds.
func NewConnectionPool(addr string, size int, timeoutMillis int) *ConnectionPool {
	return &ConnectionPool{
		addr:    addr,
		size:    size,
		timeout: time.Duration(timeoutMillis) * time.Millisecond,
	}
}

// Get returns an idle, already-handshaken connection if one exists.
// Otherwise it dials a new one and performs the one-time handshake
// identifying self to the peer, so that every connection handed back
// by Get — idle or freshly dialed — is ready for a caller to write a
// message on directly.
func (p *ConnectionPool) Get(self ballot.ReplicaID) (net.Conn, error) {
	p.mu.Lock()
	if n := len(p.idle); n > 0 {
		conn := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return conn, nil
	}
	p.mu.Unlock()

	conn, err := net.DialTimeout("tcp", p.addr, p.timeout)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", p.addr, err)
	}
	if err := writeHandshake(conn, self); err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: handshake to %s: %w", p.addr, err)
	}
	return conn, nil
}

// Put returns conn to the idle pool, or closes it if the pool is full.
func (p *ConnectionPool) Put(conn net.Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.idle) >= p.size {
		conn.Close()
		return
	}
	p.idle = append(p.idle, conn)
}

// Discard closes conn without returning it to the pool; callers use
// this after a write/read error since the connection's framing state
// is no longer trustworthy.
func (p *ConnectionPool) Discard(conn net.Conn) {
	conn.Close()
}

// Close closes every idle connection held by the pool.
func (p *ConnectionPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, conn := range p.idle {
		conn.Close()
	}
	p.idle = nil
}
