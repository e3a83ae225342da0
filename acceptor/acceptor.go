// Package acceptor implements the vote-keeping role from "Paxos Made
// Moderately Complex": it durably tracks the highest ballot it has
// promised and every pvalue it has accepted, and answers exactly two
// message kinds, P1a and P2a, never acknowledging either until the
// corresponding update is safe on disk.
package acceptor

import (
	logging "github.com/op/go-logging"

	"github.com/nwtnni/paxos/ballot"
	"github.com/nwtnni/paxos/command"
	"github.com/nwtnni/paxos/metrics"
	"github.com/nwtnni/paxos/wal"
)

var logger = logging.MustGetLogger("acceptor")

// Acceptor is a single replica's acceptor role. It owns its log
// exclusively (spec §5, "Shared resources") — no other task in the
// process touches it.
type Acceptor struct {
	id        ballot.ReplicaID
	log       *wal.AcceptorLog
	stats     metrics.Statter
	ballotNum ballot.Ballot
	accepted  map[command.Slot]command.Pvalue
}

// New constructs an Acceptor from an already-open log and the state
// replayed from it (promised and accepted, as returned by
// wal.OpenAcceptorLog). The acceptor owns log for its lifetime.
func New(id ballot.ReplicaID, log *wal.AcceptorLog, promised ballot.Ballot, accepted []command.Pvalue, stats metrics.Statter) *Acceptor {
	if stats == nil {
		stats = metrics.NoOp()
	}
	bySlot := make(map[command.Slot]command.Pvalue, len(accepted))
	for _, p := range accepted {
		bySlot[p.Slot] = p
	}
	return &Acceptor{
		id:        id,
		log:       log,
		stats:     stats,
		ballotNum: promised,
		accepted:  bySlot,
	}
}

// Accepted returns a snapshot of every pvalue currently held, for a
// scout's pick-max computation or for tests.
func (a *Acceptor) Accepted() []command.Pvalue {
	out := make([]command.Pvalue, 0, len(a.accepted))
	for _, p := range a.accepted {
		out = append(out, p)
	}
	return out
}

// BallotNum returns the highest ballot currently promised.
func (a *Acceptor) BallotNum() ballot.Ballot {
	return a.ballotNum
}

// HandleP1a implements spec §4.2's P1a rule: if ballot is strictly
// greater than the current promise, durably advance to it. Always
// returns the (possibly unchanged) current ballotNum and the full
// accepted set, per the protocol — the caller replies P1b with these
// unconditionally, win or lose.
func (a *Acceptor) HandleP1a(b ballot.Ballot) (ballot.Ballot, []command.Pvalue, error) {
	if b.Compare(a.ballotNum) > 0 {
		if err := a.log.AppendPromise(b); err != nil {
			// Durability failure is fatal (spec §7): there is no safe
			// way to send P1b for a promise that isn't actually on
			// disk, so the process must not continue.
			logger.Fatalf("replica %d: durability failure recording promise %v: %v", a.id, b, err)
		}
		a.ballotNum = b
		a.stats.Inc("acceptor.promise", 1, 1.0)
	}
	return a.ballotNum, a.Accepted(), nil
}

// HandleP2a implements spec §4.2's P2a rule: if the pvalue's ballot is
// at least the current promise, durably advance to it and record the
// pvalue. Always returns the (possibly unchanged) current ballotNum.
func (a *Acceptor) HandleP2a(p command.Pvalue) (ballot.Ballot, error) {
	if p.Ballot.Compare(a.ballotNum) >= 0 {
		if err := a.log.AppendAccept(p); err != nil {
			// Durability failure is fatal (spec §7): there is no safe
			// way to send P2b for an accept that isn't actually on
			// disk, so the process must not continue.
			logger.Fatalf("replica %d: durability failure recording accept %v: %v", a.id, p, err)
		}
		a.ballotNum = p.Ballot
		a.accepted[p.Slot] = p
		a.stats.Inc("acceptor.accept", 1, 1.0)
	}
	return a.ballotNum, nil
}

// Close releases the underlying durable log.
func (a *Acceptor) Close() error {
	return a.log.Close()
}
