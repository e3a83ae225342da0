// Package leader implements the per-replica leader role from "Paxos
// Made Moderately Complex": a long-lived task owning a ballot and an
// active flag, spawning short-lived Scout (phase 1) and Commander
// (phase 2) subtasks as described in spec §4.3.
package leader

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	logging "github.com/op/go-logging"

	"github.com/nwtnni/paxos/ballot"
	"github.com/nwtnni/paxos/command"
	"github.com/nwtnni/paxos/metrics"
	"github.com/nwtnni/paxos/transport"
)

var logger = logging.MustGetLogger("leader")

type adoptedMsg struct {
	ballot  ballot.Ballot
	pvalues []command.Pvalue
}

type preemptedMsg struct {
	ballot ballot.Ballot
}

// commanderDoneMsg lets the Run loop retire a slot's "driven" marker
// without the commander's goroutine touching leader-owned maps
// directly.
type commanderDoneMsg struct {
	slot command.Slot
}

// Leader is one replica's leader task. Its mutable state (ballotNum,
// active, proposals) is touched only from the Run goroutine; every
// other method communicates with it over a channel, matching the
// task-local-state discipline of spec §9.
type Leader struct {
	id      ballot.ReplicaID
	peers   []ballot.ReplicaID
	quorum  int
	tr      transport.Transport
	timeout time.Duration
	stats   metrics.Statter

	ballotNum ballot.Ballot
	active    atomic.Bool
	proposals map[command.Slot]command.Command
	driven    map[command.Slot]bool

	regMu            sync.Mutex
	scoutReplies     chan transport.P1b
	commanderReplies map[command.Slot]chan transport.P2b

	proposeCh chan command.Proposal
	internal  chan interface{}
	wg        sync.WaitGroup
}

// New constructs a Leader for replica id among peers (which must
// include id itself), requiring quorum distinct acceptor responses to
// complete a phase, retrying outstanding sends every timeout.
func New(id ballot.ReplicaID, peers []ballot.ReplicaID, quorum int, tr transport.Transport, timeout time.Duration, stats metrics.Statter) *Leader {
	if stats == nil {
		stats = metrics.NoOp()
	}
	return &Leader{
		id:               id,
		peers:            peers,
		quorum:           quorum,
		tr:               tr,
		timeout:          timeout,
		stats:            stats,
		ballotNum:        ballot.New(id),
		proposals:        make(map[command.Slot]command.Command),
		driven:           make(map[command.Slot]bool),
		commanderReplies: make(map[command.Slot]chan transport.P2b),
		proposeCh:        make(chan command.Proposal, 64),
		internal:         make(chan interface{}, 16),
	}
}

// Propose delivers a Propose(slot, command) event from the replica
// role. Never blocks the caller for long: the channel is generously
// buffered and the Run loop drains it promptly.
func (l *Leader) Propose(p command.Proposal) {
	l.proposeCh <- p
}

// Active reports whether this leader currently believes itself elected
// at its current ballot. Safe to call from any goroutine.
func (l *Leader) Active() bool {
	return l.active.Load()
}

// DeliverP1b routes a P1b reply to whichever scout is currently
// awaiting phase-1 responses, if any. Replies that arrive after the
// scout has already finished (or none is running) are dropped — the
// protocol tolerates this as a straggler per spec §5.
func (l *Leader) DeliverP1b(p1b transport.P1b) {
	l.regMu.Lock()
	ch := l.scoutReplies
	l.regMu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- p1b:
	default:
		logger.Debugf("replica %d: dropping P1b from %d, scout reply buffer full", l.id, p1b.From)
	}
}

// DeliverP2b routes a P2b reply to the commander currently driving its
// slot, if any.
func (l *Leader) DeliverP2b(p2b transport.P2b) {
	l.regMu.Lock()
	ch, ok := l.commanderReplies[p2b.Slot]
	l.regMu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- p2b:
	default:
		logger.Debugf("replica %d: dropping P2b from %d for slot %d, commander reply buffer full", l.id, p2b.From, p2b.Slot)
	}
}

// Run is the leader's event loop. It blocks until ctx is cancelled,
// spawning and retiring scouts and commanders as Propose/Adopted/
// Preempted events arrive (spec §4.3).
func (l *Leader) Run(ctx context.Context) {
	l.spawnScout(ctx, l.ballotNum)

	for {
		select {
		case <-ctx.Done():
			l.wg.Wait()
			return

		case p := <-l.proposeCh:
			l.onPropose(ctx, p)

		case msg := <-l.internal:
			switch m := msg.(type) {
			case adoptedMsg:
				l.onAdopted(ctx, m)
			case preemptedMsg:
				l.onPreempted(ctx, m)
			case commanderDoneMsg:
				delete(l.driven, m.slot)
			}
		}
	}
}

func (l *Leader) onPropose(ctx context.Context, p command.Proposal) {
	if _, exists := l.proposals[p.Slot]; exists {
		return
	}
	if l.driven[p.Slot] {
		return
	}
	l.proposals[p.Slot] = p.Command
	if l.active.Load() {
		l.spawnCommander(ctx, l.ballotNum, p.Slot, p.Command)
	}
}

// onAdopted applies the pick-max rule: for every slot present among the
// returned pvalues, the command from the greatest-ballot pvalue at that
// slot overwrites any proposal this leader already held (spec §4.3,
// Invariant 4).
func (l *Leader) onAdopted(ctx context.Context, m adoptedMsg) {
	if m.ballot.Compare(l.ballotNum) != 0 {
		return
	}
	best := make(map[command.Slot]command.Pvalue)
	for _, p := range m.pvalues {
		cur, ok := best[p.Slot]
		if !ok || p.Ballot.Compare(cur.Ballot) > 0 {
			best[p.Slot] = p
		}
	}
	for slot, p := range best {
		l.proposals[slot] = p.Command
	}
	l.active.Store(true)
	l.stats.Gauge("leader.active", 1, 1.0)
	for slot, cmd := range l.proposals {
		l.spawnCommander(ctx, l.ballotNum, slot, cmd)
	}
}

func (l *Leader) onPreempted(ctx context.Context, m preemptedMsg) {
	if m.ballot.Compare(l.ballotNum) <= 0 {
		return
	}
	l.active.Store(false)
	l.stats.Gauge("leader.active", 0, 1.0)
	l.ballotNum = m.ballot.Next(l.id)
	l.stats.Inc("leader.preempted", 1, 1.0)
	l.spawnScout(ctx, l.ballotNum)
}

func (l *Leader) spawnScout(ctx context.Context, b ballot.Ballot) {
	replies := make(chan transport.P1b, len(l.peers))
	l.regMu.Lock()
	l.scoutReplies = replies
	l.regMu.Unlock()

	s := &scout{
		ballot:  b,
		self:    l.id,
		peers:   l.peers,
		quorum:  l.quorum,
		tr:      l.tr,
		timeout: l.timeout,
		stats:   l.stats,
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		adopted, pvalues, preempted, ok := s.run(ctx, replies)
		l.regMu.Lock()
		if l.scoutReplies == replies {
			l.scoutReplies = nil
		}
		l.regMu.Unlock()
		if !ok {
			return
		}
		var out interface{}
		if adopted {
			out = adoptedMsg{ballot: b, pvalues: pvalues}
		} else {
			out = preemptedMsg{ballot: preempted}
		}
		select {
		case l.internal <- out:
		case <-ctx.Done():
		}
	}()
}

func (l *Leader) spawnCommander(ctx context.Context, b ballot.Ballot, slot command.Slot, cmd command.Command) {
	if l.driven[slot] {
		return
	}
	l.driven[slot] = true

	replies := make(chan transport.P2b, len(l.peers))
	l.regMu.Lock()
	l.commanderReplies[slot] = replies
	l.regMu.Unlock()

	cm := &commander{
		pvalue:  command.Pvalue{Ballot: b, Slot: slot, Command: cmd},
		self:    l.id,
		peers:   l.peers,
		quorum:  l.quorum,
		tr:      l.tr,
		timeout: l.timeout,
		stats:   l.stats,
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		decided, preempted, ok := cm.run(ctx, replies)
		l.regMu.Lock()
		delete(l.commanderReplies, slot)
		l.regMu.Unlock()
		select {
		case l.internal <- commanderDoneMsg{slot: slot}:
		case <-ctx.Done():
			return
		}
		if !ok {
			return
		}
		if !decided {
			select {
			case l.internal <- preemptedMsg{ballot: preempted}:
			case <-ctx.Done():
			}
		}
	}()
}
