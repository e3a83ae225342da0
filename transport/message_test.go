package transport

import (
	"bufio"
	"bytes"
	"testing"

	gocheck "gopkg.in/check.v1"

	"github.com/nwtnni/paxos/ballot"
	"github.com/nwtnni/paxos/command"
)

func Test(t *testing.T) { gocheck.TestingT(t) }

type MessageTest struct{}

var _ = gocheck.Suite(&MessageTest{})

func roundTrip(c *gocheck.C, env Envelope) Envelope {
	buf := &bytes.Buffer{}
	w := bufio.NewWriter(buf)
	c.Assert(WriteMessage(w, env), gocheck.IsNil)
	c.Assert(w.Flush(), gocheck.IsNil)

	got, err := ReadMessage(bufio.NewReader(buf))
	c.Assert(err, gocheck.IsNil)
	c.Check(got.Kind, gocheck.Equals, env.Kind)
	return got
}

func (s *MessageTest) TestP1aRoundTrip(c *gocheck.C) {
	env := Envelope{Kind: KindP1a, P1a: &P1a{From: 1, Ballot: ballot.New(1)}}
	got := roundTrip(c, env)
	c.Check(*got.P1a, gocheck.Equals, *env.P1a)
}

func (s *MessageTest) TestP1bRoundTripWithAccepted(c *gocheck.C) {
	p := command.Pvalue{
		Ballot:  ballot.New(2),
		Slot:    5,
		Command: command.Generic{Client: command.StringID("c"), Local: command.StringID("l"), Payload: []byte("x")},
	}
	env := Envelope{Kind: KindP1b, P1b: &P1b{From: 2, BallotNum: ballot.New(2), Accepted: []command.Pvalue{p}}}
	got := roundTrip(c, env)
	c.Check(got.P1b.From, gocheck.Equals, env.P1b.From)
	c.Check(got.P1b.BallotNum, gocheck.Equals, env.P1b.BallotNum)
	c.Assert(len(got.P1b.Accepted), gocheck.Equals, 1)
	c.Check(got.P1b.Accepted[0].Slot, gocheck.Equals, p.Slot)
	c.Check(command.Equal(got.P1b.Accepted[0].Command, p.Command), gocheck.Equals, true)
}

func (s *MessageTest) TestDecisionRoundTrip(c *gocheck.C) {
	cmd := command.Generic{Client: command.StringID("c1"), Local: command.StringID("l1"), Payload: []byte("hi")}
	env := Envelope{Kind: KindDecision, Decision: &Decision{From: 0, Decided: command.Decision{Slot: 9, Command: cmd}}}
	got := roundTrip(c, env)
	c.Check(got.Decision.Decided.Slot, gocheck.Equals, command.Slot(9))
	c.Check(command.Equal(got.Decision.Decided.Command, cmd), gocheck.Equals, true)
}

func (s *MessageTest) TestClientRequestResponseRoundTrip(c *gocheck.C) {
	req := Envelope{Kind: KindClientRequest, ClientRequest: &ClientRequest{
		Command: command.Generic{Client: command.StringID("c"), Local: command.StringID("1"), Payload: []byte("set x 1")},
	}}
	got := roundTrip(c, req)
	c.Check(got.ClientRequest.Command.Payload, gocheck.DeepEquals, []byte("set x 1"))

	resp := Envelope{Kind: KindClientResponse, ClientReply: &ClientResponse{LocalID: "1", Payload: []byte("ok"), Applied: true}}
	gotResp := roundTrip(c, resp)
	c.Check(gotResp.ClientReply.LocalID, gocheck.Equals, "1")
	c.Check(gotResp.ClientReply.Applied, gocheck.Equals, true)
}

func (s *MessageTest) TestMultipleMessagesSequentialOnOneStream(c *gocheck.C) {
	buf := &bytes.Buffer{}
	w := bufio.NewWriter(buf)
	first := Envelope{Kind: KindP2a, P2a: &P2a{From: 0, Pvalue: command.Pvalue{
		Ballot:  ballot.New(0),
		Slot:    1,
		Command: command.Generic{Client: command.StringID("c"), Local: command.StringID("l"), Payload: nil},
	}}}
	second := Envelope{Kind: KindP2b, P2b: &P2b{From: 1, BallotNum: ballot.New(0)}}
	c.Assert(WriteMessage(w, first), gocheck.IsNil)
	c.Assert(WriteMessage(w, second), gocheck.IsNil)
	c.Assert(w.Flush(), gocheck.IsNil)

	r := bufio.NewReader(buf)
	gotFirst, err := ReadMessage(r)
	c.Assert(err, gocheck.IsNil)
	c.Check(gotFirst.Kind, gocheck.Equals, KindP2a)

	gotSecond, err := ReadMessage(r)
	c.Assert(err, gocheck.IsNil)
	c.Check(gotSecond.Kind, gocheck.Equals, KindP2b)
	c.Check(gotSecond.P2b.From, gocheck.Equals, ballot.ReplicaID(1))
}
