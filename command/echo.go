package command

import "sync"

// EchoMachine is a minimal deterministic state machine used by the core's
// own tests and by demos: it appends every applied command's payload to
// an ordered log and echoes the payload back as the response. Grounded
// on the teacher's mockCluster.ApplyQuery test double (consensus package)
// which played the same role for its EPaxos instance tests.
type EchoMachine struct {
	mu  sync.Mutex
	log [][]byte
}

func NewEchoMachine() *EchoMachine {
	return &EchoMachine{log: make([][]byte, 0, 16)}
}

func (m *EchoMachine) Execute(slot Slot, cmd Command) (Response, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := cmd.(Generic)
	if !ok {
		if gp, ok2 := cmd.(*Generic); ok2 {
			g = *gp
		}
	}

	for uint64(len(m.log)) <= uint64(slot) {
		m.log = append(m.log, nil)
	}
	m.log[slot] = g.Payload

	return g.Payload, true
}

// Applied returns a copy of the state machine's applied-command log, in
// slot order. Used by tests to assert Invariant 2 (contiguity) and
// Testable Property 5 (idempotence after replay).
func (m *EchoMachine) Applied() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.log))
	copy(out, m.log)
	return out
}
