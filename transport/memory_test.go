package transport

import (
	gocheck "gopkg.in/check.v1"

	"github.com/nwtnni/paxos/ballot"
)

type MemoryTest struct{}

var _ = gocheck.Suite(&MemoryTest{})

func (s *MemoryTest) TestSendDeliversToRecipientOnly(c *gocheck.C) {
	net := NewNetwork()
	a := net.Register(0)
	b := net.Register(1)
	defer a.Close()
	defer b.Close()

	env := Envelope{Kind: KindP1a, P1a: &P1a{From: 0, Ballot: ballot.New(0)}}
	c.Assert(a.Send(1, env), gocheck.IsNil)

	select {
	case got := <-b.Inbox():
		c.Check(got.Kind, gocheck.Equals, KindP1a)
	default:
		c.Fatal("expected message to be delivered to b's inbox")
	}

	select {
	case <-a.Inbox():
		c.Fatal("a should not receive its own send")
	default:
	}
}

func (s *MemoryTest) TestSendToUnknownPeerFails(c *gocheck.C) {
	net := NewNetwork()
	a := net.Register(0)
	defer a.Close()

	err := a.Send(99, Envelope{Kind: KindP1a, P1a: &P1a{}})
	c.Check(err, gocheck.NotNil)
}

func (s *MemoryTest) TestBroadcastSkipsSelf(c *gocheck.C) {
	net := NewNetwork()
	a := net.Register(0)
	b := net.Register(1)
	cNode := net.Register(2)
	defer a.Close()
	defer b.Close()
	defer cNode.Close()

	env := Envelope{Kind: KindP2b, P2b: &P2b{From: 0, BallotNum: ballot.New(0)}}
	a.Broadcast(0, []ballot.ReplicaID{0, 1, 2}, env)

	for _, inbox := range []*Memory{b, cNode} {
		select {
		case got := <-inbox.Inbox():
			c.Check(got.Kind, gocheck.Equals, KindP2b)
		default:
			c.Fatal("expected broadcast to reach peer")
		}
	}

	select {
	case <-a.Inbox():
		c.Fatal("broadcast should not reach self")
	default:
	}
}
