package command

import (
	"testing"

	gocheck "gopkg.in/check.v1"
)

func Test(t *testing.T) { gocheck.TestingT(t) }

type CommandTest struct{}

var _ = gocheck.Suite(&CommandTest{})

func (s *CommandTest) TestEqualityIgnoresPayload(c *gocheck.C) {
	a := Generic{Client: StringID("c1"), Local: StringID("1"), Payload: []byte("a")}
	b := Generic{Client: StringID("c1"), Local: StringID("1"), Payload: []byte("different")}
	c.Check(Equal(a, b), gocheck.Equals, true)
}

func (s *CommandTest) TestEqualityConsidersIdentity(c *gocheck.C) {
	a := Generic{Client: StringID("c1"), Local: StringID("1"), Payload: []byte("a")}
	b := Generic{Client: StringID("c1"), Local: StringID("2"), Payload: []byte("a")}
	c.Check(Equal(a, b), gocheck.Equals, false)
}

func (s *CommandTest) TestNewClientIDUnique(c *gocheck.C) {
	a := NewClientID()
	b := NewClientID()
	c.Check(a.String() == b.String(), gocheck.Equals, false)
}

type EchoMachineTest struct{}

var _ = gocheck.Suite(&EchoMachineTest{})

func (s *EchoMachineTest) TestExecuteAppendsInSlotOrder(c *gocheck.C) {
	m := NewEchoMachine()
	m.Execute(0, Generic{Client: StringID("c"), Local: StringID("1"), Payload: []byte("a")})
	m.Execute(1, Generic{Client: StringID("c"), Local: StringID("2"), Payload: []byte("b")})
	applied := m.Applied()
	c.Assert(len(applied), gocheck.Equals, 2)
	c.Check(string(applied[0]), gocheck.Equals, "a")
	c.Check(string(applied[1]), gocheck.Equals, "b")
}
