package paxos

import (
	"context"
	"testing"
	"time"

	gocheck "gopkg.in/check.v1"

	"github.com/nwtnni/paxos/ballot"
	"github.com/nwtnni/paxos/command"
	"github.com/nwtnni/paxos/config"
	"github.com/nwtnni/paxos/metrics"
	"github.com/nwtnni/paxos/transport"
)

func Test(t *testing.T) { gocheck.TestingT(t) }

type EngineTest struct{}

var _ = gocheck.Suite(&EngineTest{})

func testConfig(count int) config.Config {
	peers := make([]string, count)
	for i := range peers {
		peers[i] = string(rune('a' + i))
	}
	return config.Config{
		Count:      count,
		Port:       0,
		Peers:      peers,
		Timeout:    30 * time.Millisecond,
		WindowSize: config.DefaultWindow,
	}
}

type cluster struct {
	net      *transport.Network
	engines  []*Engine
	trs      []*transport.Memory
	machines []*command.EchoMachine
	cancel   context.CancelFunc
	dead     map[int]bool
}

func newCluster(c *gocheck.C, count int) *cluster {
	net := transport.NewNetwork()
	cfg := testConfig(count)
	cl := &cluster{net: net, dead: make(map[int]bool)}

	ctx, cancel := context.WithCancel(context.Background())
	cl.cancel = cancel

	for i := 0; i < count; i++ {
		cfg := cfg
		cfg.ID = ballot.ReplicaID(i)
		tr := net.Register(cfg.ID)
		machine := command.NewEchoMachine()
		e, err := Open(cfg, c.MkDir(), tr, machine, nil, metrics.NoOp())
		c.Assert(err, gocheck.IsNil)
		cl.engines = append(cl.engines, e)
		cl.trs = append(cl.trs, tr)
		cl.machines = append(cl.machines, machine)
		go e.Run(ctx)
	}
	return cl
}

func (cl *cluster) stop() {
	cl.cancel()
	for i := range cl.engines {
		if cl.dead[i] {
			continue
		}
		cl.engines[i].Stop()
		cl.engines[i].Close()
		cl.trs[i].Close()
	}
}

// kill tears down replica i's Engine and transport as if the process
// crashed, without touching the others.
func (cl *cluster) kill(i int) {
	cl.engines[i].Stop()
	cl.engines[i].Close()
	cl.trs[i].Close()
	cl.dead[i] = true
}

// TestHappyPath exercises S1: three healthy replicas, a handful of
// client submissions, and agreement on the applied sequence.
func (s *EngineTest) TestHappyPath(c *gocheck.C) {
	cl := newCluster(c, 3)
	defer cl.stop()

	cl.engines[0].Submit(cmdOf("x"))
	cl.engines[0].Submit(cmdOf("y"))
	cl.engines[0].Submit(cmdOf("z"))

	c.Assert(waitFor(func() bool {
		for _, m := range cl.machines {
			if len(m.Applied()) < 3 {
				return false
			}
		}
		return true
	}), gocheck.Equals, true)

	want := cl.machines[0].Applied()
	for i, m := range cl.machines {
		c.Check(m.Applied(), gocheck.DeepEquals, want, gocheck.Commentf("replica %d diverged", i))
	}
}

// TestLeaderCrashMidRun exercises S2: once replica 0 has applied one
// decision, killing it must not stop progress — the surviving
// replicas still decide and apply later submissions.
func (s *EngineTest) TestLeaderCrashMidRun(c *gocheck.C) {
	cl := newCluster(c, 3)
	defer cl.stop()

	cl.engines[0].Submit(cmdOf("x"))
	c.Assert(waitFor(func() bool { return len(cl.machines[0].Applied()) >= 1 }), gocheck.Equals, true)

	cl.kill(0)

	cl.engines[1].Submit(cmdOf("y"))
	cl.engines[2].Submit(cmdOf("z"))

	c.Assert(waitFor(func() bool {
		return len(cl.machines[1].Applied()) >= 3 && len(cl.machines[2].Applied()) >= 3
	}), gocheck.Equals, true)

	c.Check(cl.machines[1].Applied(), gocheck.DeepEquals, cl.machines[2].Applied())
}

func cmdOf(payload string) command.Command {
	return command.Generic{Client: command.StringID("client"), Local: command.StringID(payload), Payload: []byte(payload)}
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}
