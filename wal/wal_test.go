package wal

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	gocheck "gopkg.in/check.v1"

	"github.com/nwtnni/paxos/ballot"
	"github.com/nwtnni/paxos/command"
	"github.com/nwtnni/paxos/config"
)

func Test(t *testing.T) { gocheck.TestingT(t) }

type WalTest struct {
	dir string
}

var _ = gocheck.Suite(&WalTest{})

func (s *WalTest) SetUpTest(c *gocheck.C) {
	s.dir = c.MkDir()
}

func (s *WalTest) path(name string) string {
	return filepath.Join(s.dir, name)
}

func (s *WalTest) TestRecordRoundTrip(c *gocheck.C) {
	buf := &bytes.Buffer{}
	w := bufio.NewWriter(buf)
	c.Assert(writeRecord(w, kindAccept, []byte("payload")), gocheck.IsNil)

	r := bufio.NewReader(buf)
	k, payload, err := readRecord(r)
	c.Assert(err, gocheck.IsNil)
	c.Check(k, gocheck.Equals, kindAccept)
	c.Check(string(payload), gocheck.Equals, "payload")
}

func (s *WalTest) TestRecordDetectsTornWrite(c *gocheck.C) {
	buf := &bytes.Buffer{}
	w := bufio.NewWriter(buf)
	c.Assert(writeRecord(w, kindAccept, []byte("payload")), gocheck.IsNil)

	truncated := buf.Bytes()[:buf.Len()-2]
	r := bufio.NewReader(bytes.NewReader(truncated))
	_, _, err := readRecord(r)
	c.Check(err, gocheck.NotNil)
}

func (s *WalTest) TestPvalueRoundTrip(c *gocheck.C) {
	p := command.Pvalue{
		Ballot: ballot.New(2),
		Slot:   7,
		Command: command.Generic{
			Client:  command.StringID("client-1"),
			Local:   command.StringID("local-1"),
			Payload: []byte("set x 1"),
		},
	}
	payload, err := encodePvalue(p)
	c.Assert(err, gocheck.IsNil)

	got, err := decodePvalue(payload)
	c.Assert(err, gocheck.IsNil)
	c.Check(got.Ballot, gocheck.Equals, p.Ballot)
	c.Check(got.Slot, gocheck.Equals, p.Slot)
	c.Check(command.Equal(got.Command, p.Command), gocheck.Equals, true)
}

func (s *WalTest) TestAcceptorLogReplaysAcrossReopen(c *gocheck.C) {
	path := s.path("acceptor.paxos")
	fp := config.Fingerprint(42)

	log, promised, accepted, err := OpenAcceptorLog(path, fp)
	c.Assert(err, gocheck.IsNil)
	c.Check(promised, gocheck.Equals, ballot.Zero)
	c.Check(len(accepted), gocheck.Equals, 0)

	b := ballot.New(1)
	c.Assert(log.AppendPromise(b), gocheck.IsNil)

	p := command.Pvalue{
		Ballot:  b,
		Slot:    3,
		Command: command.Generic{Client: command.StringID("c"), Local: command.StringID("l"), Payload: []byte("v")},
	}
	c.Assert(log.AppendAccept(p), gocheck.IsNil)
	c.Assert(log.Close(), gocheck.IsNil)

	reopened, gotPromised, gotAccepted, err := OpenAcceptorLog(path, fp)
	c.Assert(err, gocheck.IsNil)
	c.Check(gotPromised, gocheck.Equals, b)
	c.Assert(len(gotAccepted), gocheck.Equals, 1)
	c.Check(gotAccepted[0].Slot, gocheck.Equals, p.Slot)
	c.Assert(reopened.Close(), gocheck.IsNil)
}

func (s *WalTest) TestAcceptorLogRejectsFingerprintMismatch(c *gocheck.C) {
	path := s.path("acceptor.paxos")
	log, _, _, err := OpenAcceptorLog(path, config.Fingerprint(1))
	c.Assert(err, gocheck.IsNil)
	c.Assert(log.Close(), gocheck.IsNil)

	_, _, _, err = OpenAcceptorLog(path, config.Fingerprint(2))
	c.Check(err, gocheck.Equals, ErrFingerprintMismatch)
}

func (s *WalTest) TestReplicaLogReplaysDecisionsInOrder(c *gocheck.C) {
	path := s.path("replica.paxos")
	fp := config.Fingerprint(7)

	log, decisions, err := OpenReplicaLog(path, fp)
	c.Assert(err, gocheck.IsNil)
	c.Check(len(decisions), gocheck.Equals, 0)

	for slot := command.Slot(0); slot < 3; slot++ {
		d := command.Decision{
			Slot: slot,
			Command: command.Generic{
				Client:  command.StringID("c"),
				Local:   command.StringID("l"),
				Payload: []byte{byte(slot)},
			},
		}
		c.Assert(log.AppendDecision(d), gocheck.IsNil)
	}
	c.Assert(log.Close(), gocheck.IsNil)

	_, got, err := OpenReplicaLog(path, fp)
	c.Assert(err, gocheck.IsNil)
	c.Assert(len(got), gocheck.Equals, 3)
	for i, d := range got {
		c.Check(d.Slot, gocheck.Equals, command.Slot(i))
	}
}

func (s *WalTest) TestOpenCreatesParentlessFileFresh(c *gocheck.C) {
	path := s.path("fresh.paxos")
	_, err := os.Stat(path)
	c.Assert(os.IsNotExist(err), gocheck.Equals, true)

	log, _, _, err := OpenAcceptorLog(path, config.Fingerprint(1))
	c.Assert(err, gocheck.IsNil)
	c.Assert(log.Close(), gocheck.IsNil)

	info, err := os.Stat(path)
	c.Assert(err, gocheck.IsNil)
	c.Check(info.Size() > 0, gocheck.Equals, true)
}
