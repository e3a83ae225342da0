// Package paxos wires the Replica, Leader, and Acceptor roles together
// behind a single process-facing API: one Engine per replica, backed
// by durable logs and a Transport, dispatching inbound network
// messages to whichever role owns them. This is the "glue" spec.md's
// Implementation budget sets aside ≈10% for.
package paxos

import (
	"context"
	"fmt"
	"path/filepath"

	logging "github.com/op/go-logging"

	"github.com/nwtnni/paxos/acceptor"
	"github.com/nwtnni/paxos/ballot"
	"github.com/nwtnni/paxos/command"
	"github.com/nwtnni/paxos/config"
	"github.com/nwtnni/paxos/leader"
	"github.com/nwtnni/paxos/metrics"
	"github.com/nwtnni/paxos/replica"
	"github.com/nwtnni/paxos/transport"
	"github.com/nwtnni/paxos/wal"
)

var logger = logging.MustGetLogger("paxos")

// Engine is one replica process's complete Multi-Paxos stack: its
// local Acceptor, Leader, and Replica roles, a Transport connecting it
// to its peers, and the dispatch loop demultiplexing inbound messages
// to the role that owns each kind (spec §5, "Inter-task
// communication").
type Engine struct {
	id      ballot.ReplicaID
	cfg     config.Config
	tr      transport.Transport
	acc     *acceptor.Acceptor
	ld      *leader.Leader
	rep     *replica.Replica
	accLog  *wal.AcceptorLog
	repLog  *wal.ReplicaLog
	cancel  context.CancelFunc
	done    chan struct{}
}

// Open constructs an Engine for cfg, opening (and replaying) the
// durable acceptor and replica logs under dir, and wiring tr as the
// replica's peer transport. machine is the deterministic application
// state machine the replica drives; respond is called once per
// client-visible response the state machine produces. stats is the
// metrics sink shared by every role; pass nil for metrics.NoOp().
//
// Logs are named acceptor-<id>.paxos and replica-<id>.paxos under dir,
// each stamped with cfg.Fingerprint() and refused on a mismatch
// (spec §4.4, §9 Open Question 2).
func Open(cfg config.Config, dir string, tr transport.Transport, machine command.Machine, respond replica.Responder, stats metrics.Statter) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("paxos: invalid config: %w", err)
	}
	if stats == nil {
		stats = metrics.NoOp()
	}
	fp := cfg.Fingerprint()

	accLog, promised, accepted, err := wal.OpenAcceptorLog(filepath.Join(dir, fmt.Sprintf("acceptor-%d.paxos", cfg.ID)), fp)
	if err != nil {
		return nil, fmt.Errorf("paxos: open acceptor log: %w", err)
	}
	acc := acceptor.New(cfg.ID, accLog, promised, accepted, stats)

	repLog, decisions, err := wal.OpenReplicaLog(filepath.Join(dir, fmt.Sprintf("replica-%d.paxos", cfg.ID)), fp)
	if err != nil {
		accLog.Close()
		return nil, fmt.Errorf("paxos: open replica log: %w", err)
	}

	peers := make([]ballot.ReplicaID, cfg.Count)
	for i := range peers {
		peers[i] = ballot.ReplicaID(i)
	}

	ld := leader.New(cfg.ID, peers, cfg.Quorum(), tr, cfg.Timeout, stats)
	rep := replica.New(cfg.ID, cfg.WindowSize, repLog, machine, decisions, ld.Propose, respond, stats)

	e := &Engine{
		id:     cfg.ID,
		cfg:    cfg,
		tr:     tr,
		acc:    acc,
		ld:     ld,
		rep:    rep,
		accLog: accLog,
		repLog: repLog,
		done:   make(chan struct{}),
	}
	return e, nil
}

// Run starts the leader event loop, the replica event loop, and the
// dispatch loop reading tr.Inbox(), blocking until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	defer close(e.done)

	go e.ld.Run(ctx)
	go e.rep.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case env := <-e.tr.Inbox():
			e.dispatch(env)
		}
	}
}

// Stop cancels the Engine's context and waits for Run to return.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	<-e.done
}

// Submit enqueues a client command with this replica's Replica role.
func (e *Engine) Submit(cmd command.Command) {
	e.rep.Submit(cmd)
}

// Active reports whether this replica's Leader currently believes
// itself elected.
func (e *Engine) Active() bool {
	return e.ld.Active()
}

// Close releases the Engine's durable logs. Call after Stop.
func (e *Engine) Close() error {
	accErr := e.accLog.Close()
	repErr := e.repLog.Close()
	if accErr != nil {
		return accErr
	}
	return repErr
}

// dispatch routes one inbound Envelope to the role that owns its
// kind: P1a/P2a go to the local Acceptor (which replies directly over
// tr), P1b/P2b go to the Leader's currently-running Scout/Commander,
// and Decision goes to the Replica.
func (e *Engine) dispatch(env transport.Envelope) {
	switch env.Kind {
	case transport.KindP1a:
		ballotNum, accepted, err := e.acc.HandleP1a(env.P1a.Ballot)
		if err != nil {
			// HandleP1a only ever fails durably (spec §7); it already
			// aborts the process itself, but dispatch must not send a
			// P1b off an error return if it somehow gets here.
			logger.Fatalf("replica %d: P1a handling failed: %v", e.id, err)
		}
		reply := transport.Envelope{Kind: transport.KindP1b, P1b: &transport.P1b{From: e.id, BallotNum: ballotNum, Accepted: accepted}}
		if err := e.tr.Send(env.P1a.From, reply); err != nil {
			logger.Debugf("replica %d: P1b reply to %d failed: %v", e.id, env.P1a.From, err)
		}

	case transport.KindP2a:
		ballotNum, err := e.acc.HandleP2a(env.P2a.Pvalue)
		if err != nil {
			// HandleP2a only ever fails durably (spec §7); it already
			// aborts the process itself, but dispatch must not send a
			// P2b off an error return if it somehow gets here.
			logger.Fatalf("replica %d: P2a handling failed: %v", e.id, err)
		}
		reply := transport.Envelope{Kind: transport.KindP2b, P2b: &transport.P2b{From: e.id, BallotNum: ballotNum, Slot: env.P2a.Pvalue.Slot}}
		if err := e.tr.Send(env.P2a.From, reply); err != nil {
			logger.Debugf("replica %d: P2b reply to %d failed: %v", e.id, env.P2a.From, err)
		}

	case transport.KindP1b:
		e.ld.DeliverP1b(*env.P1b)

	case transport.KindP2b:
		e.ld.DeliverP2b(*env.P2b)

	case transport.KindDecision:
		e.rep.OnDecision(env.Decision.Decided)

	case transport.KindClientRequest:
		e.rep.Submit(env.ClientRequest.Command)

	default:
		logger.Warningf("replica %d: unexpected message kind %v", e.id, env.Kind)
	}
}
