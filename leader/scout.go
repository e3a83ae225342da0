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

// scout drives phase 1 for a single ballot (spec §4.3). It is a
// short-lived task: one scout exists per ballot a leader pushes, and it
// terminates on adoption or preemption.
type scout struct {
	ballot  ballot.Ballot
	self    ballot.ReplicaID
	peers   []ballot.ReplicaID
	quorum  int
	tr      transport.Transport
	timeout time.Duration
	stats   metrics.Statter
}

// run sends P1a to every acceptor and collects P1b replies from
// replies until either a quorum at this scout's ballot is reached
// (adopted=true, with the union of every accepted pvalue observed) or
// a reply carrying a strictly greater ballot arrives (adopted=false,
// preempted set to that ballot). ok is false only if ctx was cancelled
// before either outcome — callers should not act on pvalues/preempted
// in that case.
func (s *scout) run(ctx context.Context, replies <-chan transport.P1b) (adopted bool, pvalues []command.Pvalue, preempted ballot.Ballot, ok bool) {
	start := time.Now()
	s.broadcastP1a(ctx)

	seen := make(map[ballot.ReplicaID]bool)
	var collected []command.Pvalue

	ticker := time.NewTicker(s.timeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, nil, ballot.Ballot{}, false

		case r := <-replies:
			switch r.BallotNum.Compare(s.ballot) {
			case 0:
				if !seen[r.From] {
					seen[r.From] = true
					collected = append(collected, r.Accepted...)
				}
				if len(seen) >= s.quorum {
					s.stats.Timing("leader.scout.adopted", time.Since(start).Milliseconds(), 1.0)
					return true, collected, ballot.Ballot{}, true
				}
			case 1:
				s.stats.Inc("leader.scout.preempted", 1, 1.0)
				return false, nil, r.BallotNum, true
			default:
				// Stale reply from a ballot we've already passed; ignore.
			}

		case <-ticker.C:
			s.broadcastP1a(ctx)
		}
	}
}

func (s *scout) broadcastP1a(ctx context.Context) {
	env := transport.Envelope{Kind: transport.KindP1a, P1a: &transport.P1a{From: s.self, Ballot: s.ballot}}

	g, _ := errgroup.WithContext(ctx)
	for _, peer := range s.peers {
		peer := peer
		g.Go(func() error {
			return s.tr.Send(peer, env)
		})
	}
	if err := g.Wait(); err != nil {
		logger.Debugf("replica %d: scout %v: p1a send error: %v", s.self, s.ballot, err)
	}
}
