// Package replica implements the client-facing proposer and
// state-machine driver from "Paxos Made Moderately Complex": the only
// role that touches application state, and the only role a client
// request or a Decision message ever reaches (spec §4.1).
package replica

import (
	"context"

	logging "github.com/op/go-logging"

	"github.com/nwtnni/paxos/ballot"
	"github.com/nwtnni/paxos/command"
	"github.com/nwtnni/paxos/metrics"
	"github.com/nwtnni/paxos/wal"
)

var logger = logging.MustGetLogger("replica")

// Responder delivers a state-machine response to whatever owns the
// client connection that submitted cmd. The replica calls it exactly
// once per command that actually applies and produces a response; it
// never calls it for a command replayed from the durable log at
// startup, since no client is waiting for those.
type Responder func(cmd command.Command, resp command.Response)

// Proposer forwards a (slot, command) proposal to this replica's
// local leader task. Matches (*leader.Leader).Propose's signature so
// a caller can pass that method value directly; kept as a plain
// function value — not an imported *leader.Leader — so this package
// never needs to import leader.
type Proposer func(command.Proposal)

// Replica is one process's replica role. Its mutable state (slotIn,
// slotOut, requests, proposals, decisions) is touched only from the
// Run goroutine; Submit and OnDecision communicate with it over
// channels, matching the task-local-state discipline of spec §5 and
// §9 ("Cooperative single-goroutine-per-role concurrency model").
type Replica struct {
	id      ballot.ReplicaID
	window  int
	log     *wal.ReplicaLog
	machine command.Machine
	propose Proposer
	respond Responder
	stats   metrics.Statter

	slotIn    command.Slot
	slotOut   command.Slot
	requests  []command.Command
	proposals map[command.Slot]command.Command
	decisions map[command.Slot]command.Command

	submitCh   chan command.Command
	decisionCh chan command.Decision
}

// New constructs a Replica, bootstrapping slotOut, slotIn and the state
// machine by re-applying initial (the decisions read back from the
// durable replica log by wal.OpenReplicaLog, in append order) in slot
// order from slot 0 without contacting any peer or invoking respond —
// no client is waiting for decisions that predate this process's
// current run (spec §4.4, Testable Property 5). Decisions past the
// first missing slot are kept in decisions until the gap is filled.
func New(id ballot.ReplicaID, window int, log *wal.ReplicaLog, machine command.Machine, initial []command.Decision, propose Proposer, respond Responder, stats metrics.Statter) *Replica {
	if stats == nil {
		stats = metrics.NoOp()
	}
	r := &Replica{
		id:         id,
		window:     window,
		log:        log,
		machine:    machine,
		propose:    propose,
		respond:    respond,
		stats:      stats,
		proposals:  make(map[command.Slot]command.Command),
		decisions:  make(map[command.Slot]command.Command),
		submitCh:   make(chan command.Command, 256),
		decisionCh: make(chan command.Decision, 256),
	}
	for _, d := range initial {
		r.decisions[d.Slot] = d.Command
	}
	for {
		cmd, ok := r.decisions[r.slotOut]
		if !ok {
			break
		}
		r.machine.Execute(r.slotOut, cmd)
		delete(r.decisions, r.slotOut)
		r.slotOut++
	}
	r.slotIn = r.slotOut
	return r
}

// Submit enqueues cmd to be proposed into some future slot. Never
// blocks the caller (spec §4.1): the channel is generously buffered
// and the Run loop drains it promptly.
func (r *Replica) Submit(cmd command.Command) {
	r.submitCh <- cmd
}

// OnDecision delivers a Decision message observed on the network.
func (r *Replica) OnDecision(d command.Decision) {
	r.decisionCh <- d
}

// Run is the replica's event loop. It blocks until ctx is cancelled.
func (r *Replica) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-r.submitCh:
			r.requests = append(r.requests, cmd)
			r.proposeWindow()
		case d := <-r.decisionCh:
			r.onDecision(d)
		}
	}
}

// proposeWindow implements spec §4.1's Propose algorithm: while
// requests is non-empty and slotIn is within WINDOW of slotOut, pop a
// command and send it to the local leader, skipping any slot already
// spoken for by a decision this replica hasn't applied yet (someone
// else's command already claimed it).
func (r *Replica) proposeWindow() {
	for len(r.requests) > 0 && r.slotIn < r.slotOut+command.Slot(r.window) {
		if _, decided := r.decisions[r.slotIn]; decided {
			r.slotIn++
			continue
		}
		cmd := r.requests[0]
		r.requests = r.requests[1:]
		r.proposals[r.slotIn] = cmd
		r.propose(command.Proposal{Slot: r.slotIn, Command: cmd})
		r.slotIn++
	}
}

// onDecision implements spec §4.1's on_decision: record the decision,
// then apply every contiguous decided slot starting at slotOut,
// requeueing any displaced proposal so it is never lost (Testable
// Property 6).
func (r *Replica) onDecision(d command.Decision) {
	if d.Slot < r.slotOut {
		return
	}
	if _, exists := r.decisions[d.Slot]; exists {
		return
	}
	r.decisions[d.Slot] = d.Command
	if err := r.log.AppendDecision(d); err != nil {
		// Durability failure is fatal (spec §7): applying the decision
		// without it durably logged risks losing it across a restart,
		// so the process must not continue.
		logger.Fatalf("replica %d: durability failure recording decision at slot %d: %v", r.id, d.Slot, err)
	}
	r.stats.Inc("replica.decision", 1, 1.0)

	for {
		cmd, ok := r.decisions[r.slotOut]
		if !ok {
			break
		}
		if proposed, ok := r.proposals[r.slotOut]; ok {
			delete(r.proposals, r.slotOut)
			if !command.Equal(proposed, cmd) {
				r.requests = append(r.requests, proposed)
				r.stats.Inc("replica.displaced", 1, 1.0)
			}
		}
		r.apply(r.slotOut, cmd)
		delete(r.decisions, r.slotOut)
		r.slotOut++
	}

	r.proposeWindow()
}

// apply invokes the application state machine and, if it produced a
// response, hands it to Responder — the only point at which a client
// ever hears back (spec §4.1).
func (r *Replica) apply(slot command.Slot, cmd command.Command) {
	resp, ok := r.machine.Execute(slot, cmd)
	r.stats.Inc("replica.applied", 1, 1.0)
	if ok && r.respond != nil {
		r.respond(cmd, resp)
	}
}
