package acceptor

import (
	"path/filepath"
	"testing"

	gocheck "gopkg.in/check.v1"

	"github.com/nwtnni/paxos/ballot"
	"github.com/nwtnni/paxos/command"
	"github.com/nwtnni/paxos/config"
	"github.com/nwtnni/paxos/metrics"
	"github.com/nwtnni/paxos/wal"
)

func Test(t *testing.T) { gocheck.TestingT(t) }

type AcceptorTest struct {
	dir string
}

var _ = gocheck.Suite(&AcceptorTest{})

func (s *AcceptorTest) SetUpTest(c *gocheck.C) {
	s.dir = c.MkDir()
}

func (s *AcceptorTest) open(c *gocheck.C) *Acceptor {
	log, promised, accepted, err := wal.OpenAcceptorLog(filepath.Join(s.dir, "acceptor.paxos"), config.Fingerprint(1))
	c.Assert(err, gocheck.IsNil)
	return New(0, log, promised, accepted, metrics.NewMock())
}

func (s *AcceptorTest) TestP1aAdvancesBallot(c *gocheck.C) {
	a := s.open(c)
	defer a.Close()

	b := ballot.New(1)
	got, accepted, err := a.HandleP1a(b)
	c.Assert(err, gocheck.IsNil)
	c.Check(got, gocheck.Equals, b)
	c.Check(len(accepted), gocheck.Equals, 0)
	c.Check(a.BallotNum(), gocheck.Equals, b)
}

func (s *AcceptorTest) TestP1aIgnoresLowerBallot(c *gocheck.C) {
	a := s.open(c)
	defer a.Close()

	high := ballot.Ballot{Round: 5, LeaderID: 0}
	_, _, err := a.HandleP1a(high)
	c.Assert(err, gocheck.IsNil)

	low := ballot.Ballot{Round: 1, LeaderID: 0}
	got, _, err := a.HandleP1a(low)
	c.Assert(err, gocheck.IsNil)
	c.Check(got, gocheck.Equals, high)
}

func (s *AcceptorTest) TestP2aAcceptsAtOrAboveBallot(c *gocheck.C) {
	a := s.open(c)
	defer a.Close()

	b := ballot.New(0)
	p := command.Pvalue{
		Ballot:  b,
		Slot:    3,
		Command: command.Generic{Client: command.StringID("c"), Local: command.StringID("l"), Payload: []byte("v")},
	}
	got, err := a.HandleP2a(p)
	c.Assert(err, gocheck.IsNil)
	c.Check(got, gocheck.Equals, b)

	accepted := a.Accepted()
	c.Assert(len(accepted), gocheck.Equals, 1)
	c.Check(accepted[0].Slot, gocheck.Equals, command.Slot(3))
}

func (s *AcceptorTest) TestP2aRejectsBelowPromisedBallot(c *gocheck.C) {
	a := s.open(c)
	defer a.Close()

	_, _, err := a.HandleP1a(ballot.Ballot{Round: 3, LeaderID: 0})
	c.Assert(err, gocheck.IsNil)

	stale := command.Pvalue{
		Ballot:  ballot.Ballot{Round: 1, LeaderID: 0},
		Slot:    0,
		Command: command.Generic{Client: command.StringID("c"), Local: command.StringID("l"), Payload: nil},
	}
	_, err = a.HandleP2a(stale)
	c.Assert(err, gocheck.IsNil)
	c.Check(len(a.Accepted()), gocheck.Equals, 0)
}

func (s *AcceptorTest) TestStateSurvivesReopen(c *gocheck.C) {
	path := filepath.Join(s.dir, "acceptor.paxos")
	fp := config.Fingerprint(9)

	log, _, _, err := wal.OpenAcceptorLog(path, fp)
	c.Assert(err, gocheck.IsNil)
	a := New(0, log, ballot.Zero, nil, metrics.NewMock())

	b := ballot.New(2)
	_, _, err = a.HandleP1a(b)
	c.Assert(err, gocheck.IsNil)
	c.Assert(a.Close(), gocheck.IsNil)

	log2, promised, accepted, err := wal.OpenAcceptorLog(path, fp)
	c.Assert(err, gocheck.IsNil)
	reopened := New(0, log2, promised, accepted, metrics.NewMock())
	defer reopened.Close()
	c.Check(reopened.BallotNum(), gocheck.Equals, b)
}
