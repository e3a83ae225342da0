package command

import "github.com/nwtnni/paxos/ballot"

// Command is a serializable, application-opaque value carrying the two
// fields the core cares about. Two commands are equal iff their
// (client_id, local_id) pair is equal, regardless of payload — the
// library never introspects payload (spec §3).
type Command interface {
	ClientID() Identifier
	LocalID() Identifier
}

// Generic is the Command implementation the core's transport codec and
// test doubles use when the caller has no richer application type:
// identity fields plus an opaque payload.
type Generic struct {
	Client  Identifier
	Local   Identifier
	Payload []byte
}

func (g Generic) ClientID() Identifier { return g.Client }
func (g Generic) LocalID() Identifier  { return g.Local }

// Key is the map key used to test command identity; two Generic (or
// any Command) values with the same Key are the same request.
type Key struct {
	ClientID string
	LocalID  string
}

// KeyOf extracts the identity key from a command.
func KeyOf(c Command) Key {
	return Key{ClientID: c.ClientID().String(), LocalID: c.LocalID().String()}
}

// Equal reports whether a and b carry the same (client_id, local_id)
// identity, independent of payload.
func Equal(a, b Command) bool {
	return KeyOf(a) == KeyOf(b)
}

// Slot is a natural-number index into the replicated log. Slot 0 is the
// first command position.
type Slot uint64

// Decision is a (slot, command) pair indicating consensus has been
// reached. Once recorded for a slot it is permanent and identical at
// every replica (Invariant 1, Agreement).
type Decision struct {
	Slot    Slot
	Command Command
}

// Proposal is a (slot, command) pair a replica wishes to get decided.
type Proposal struct {
	Slot    Slot
	Command Command
}

// Pvalue is the acceptor record (ballot, slot, command): "this acceptor
// accepted command for slot under ballot".
type Pvalue struct {
	Ballot  ballot.Ballot
	Slot    Slot
	Command Command
}
