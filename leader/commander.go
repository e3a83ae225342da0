package leader

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nwtnni/paxos/ballot"
	"github.com/nwtnni/paxos/command"
	"github.com/nwtnni/paxos/metrics"
	"github.com/nwtnni/paxos/transport"
)

// commander drives phase 2 for a single pvalue (spec §4.3). On success
// it broadcasts the decision to every replica itself, since a decision
// is not leader-private state — every replica must apply it.
type commander struct {
	pvalue  command.Pvalue
	self    ballot.ReplicaID
	peers   []ballot.ReplicaID
	quorum  int
	tr      transport.Transport
	timeout time.Duration
	stats   metrics.Statter
}

// run sends P2a to every acceptor and collects P2b replies from
// replies until either a quorum at this pvalue's ballot is reached
// (decided=true, decision already broadcast) or a reply carrying a
// strictly greater ballot arrives (decided=false, preempted set). ok is
// false only if ctx was cancelled first.
func (cm *commander) run(ctx context.Context, replies <-chan transport.P2b) (decided bool, preempted ballot.Ballot, ok bool) {
	start := time.Now()
	cm.broadcastP2a(ctx)

	seen := make(map[ballot.ReplicaID]bool)

	ticker := time.NewTicker(cm.timeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, ballot.Ballot{}, false

		case r := <-replies:
			switch r.BallotNum.Compare(cm.pvalue.Ballot) {
			case 0:
				if !seen[r.From] {
					seen[r.From] = true
				}
				if len(seen) >= cm.quorum {
					cm.stats.Timing("leader.commander.decided", time.Since(start).Milliseconds(), 1.0)
					cm.broadcastDecision(ctx)
					return true, ballot.Ballot{}, true
				}
			case 1:
				cm.stats.Inc("leader.commander.preempted", 1, 1.0)
				return false, r.BallotNum, true
			default:
				// Stale reply from a ballot we've already passed; ignore.
			}

		case <-ticker.C:
			cm.broadcastP2a(ctx)
		}
	}
}

func (cm *commander) broadcastP2a(ctx context.Context) {
	env := transport.Envelope{Kind: transport.KindP2a, P2a: &transport.P2a{From: cm.self, Pvalue: cm.pvalue}}

	g, _ := errgroup.WithContext(ctx)
	for _, peer := range cm.peers {
		peer := peer
		g.Go(func() error {
			return cm.tr.Send(peer, env)
		})
	}
	if err := g.Wait(); err != nil {
		logger.Debugf("replica %d: commander %v: p2a send error: %v", cm.self, cm.pvalue, err)
	}
}

// broadcastDecision delivers the decision to every replica, including
// this process's own co-located replica role — a decision is not
// leader-private, so self is deliberately not skipped here the way
// Transport.Broadcast's convenience skip would (that helper exists for
// callers that only ever want peers; a commander wants everyone).
func (cm *commander) broadcastDecision(ctx context.Context) {
	env := transport.Envelope{
		Kind: transport.KindDecision,
		Decision: &transport.Decision{
			From:    cm.self,
			Decided: command.Decision{Slot: cm.pvalue.Slot, Command: cm.pvalue.Command},
		},
	}
	g, _ := errgroup.WithContext(ctx)
	for _, peer := range cm.peers {
		peer := peer
		g.Go(func() error {
			return cm.tr.Send(peer, env)
		})
	}
	if err := g.Wait(); err != nil {
		logger.Debugf("replica %d: commander %v: decision send error: %v", cm.self, cm.pvalue, err)
	}
}
