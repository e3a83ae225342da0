// Package ballot defines the totally ordered leader epoch used to
// sequence Multi-Paxos proposals across the cluster.
package ballot

import "fmt"

// ReplicaID identifies a replica within the fixed cluster configuration.
// It doubles as the leader-id component of a Ballot, breaking ties
// between replicas that reach the same round concurrently.
type ReplicaID int

// Ballot is the pair (round, leader_id) from "Paxos Made Moderately
// Complex". Ordering is lexicographic: round first, then leader id.
type Ballot struct {
	Round    uint64
	LeaderID ReplicaID
}

// Zero is the distinguished ballot at or below every ballot a leader can
// ever hold (it equals New(0)); it is never sent on the wire, only used
// as an acceptor's initial ballot_num before any P1a has been promised.
var Zero = Ballot{}

// New builds the starting ballot a leader pushes on creation: round 0
// under its own id.
func New(id ReplicaID) Ballot {
	return Ballot{Round: 0, LeaderID: id}
}

// Next returns the ballot one round past b that belongs to id — always
// strictly greater than b, whatever id is. Used by a preempted leader
// to pick its next round.
func (b Ballot) Next(id ReplicaID) Ballot {
	return Ballot{Round: b.Round + 1, LeaderID: id}
}

// Less reports whether b sorts strictly before other.
func (b Ballot) Less(other Ballot) bool {
	if b.Round != other.Round {
		return b.Round < other.Round
	}
	return b.LeaderID < other.LeaderID
}

// Compare returns -1, 0, or 1 as b is less than, equal to, or greater
// than other.
func (b Ballot) Compare(other Ballot) int {
	switch {
	case b == other:
		return 0
	case b.Less(other):
		return -1
	default:
		return 1
	}
}

func (b Ballot) String() string {
	return fmt.Sprintf("ballot(round=%d, leader=%d)", b.Round, b.LeaderID)
}
