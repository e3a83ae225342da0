// Package transport carries the wire messages between replicas: the
// four Paxos phase messages (P1a/P1b/P2a/P2b), decision broadcasts, and
// client request/response pairs. Framing follows the teacher's
// message.Serialize/Deserialize idiom — a one-byte kind tag followed by
// a fixed sequence of fields: fixed-width little-endian integers for
// replica ids, ballots, slots and counts, and length-prefixed fields
// from the serializer package for command ids and payloads — so any
// Transport implementation (in-memory or TCP) can share one codec.
package transport

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/nwtnni/paxos/ballot"
	"github.com/nwtnni/paxos/command"
	"github.com/nwtnni/paxos/serializer"
)

// Kind tags the concrete message type carried by an Envelope.
type Kind byte

const (
	KindP1a Kind = iota
	KindP1b
	KindP2a
	KindP2b
	KindDecision
	KindClientRequest
	KindClientResponse
)

func (k Kind) String() string {
	switch k {
	case KindP1a:
		return "P1a"
	case KindP1b:
		return "P1b"
	case KindP2a:
		return "P2a"
	case KindP2b:
		return "P2b"
	case KindDecision:
		return "Decision"
	case KindClientRequest:
		return "ClientRequest"
	case KindClientResponse:
		return "ClientResponse"
	default:
		return "Unknown"
	}
}

// P1a is a scout's phase-1 prepare request.
type P1a struct {
	From   ballot.ReplicaID
	Ballot ballot.Ballot
}

// P1b is an acceptor's reply to P1a: its current promise and its full
// accepted set, so the scout can apply the pick-max rule.
type P1b struct {
	From      ballot.ReplicaID
	BallotNum ballot.Ballot
	Accepted  []command.Pvalue
}

// P2a is a commander's phase-2 accept request.
type P2a struct {
	From   ballot.ReplicaID
	Pvalue command.Pvalue
}

// P2b is an acceptor's reply to P2a. Slot identifies which P2a this
// answers — the logical schema of spec §6 names only (from_acceptor,
// ballot_num), but a leader running several commanders concurrently
// needs the slot to route the reply to the right one, so it travels
// alongside ballot_num here.
type P2b struct {
	From      ballot.ReplicaID
	BallotNum ballot.Ballot
	Slot      command.Slot
}

// Decision is broadcast by a commander to every replica once a slot is
// chosen.
type Decision struct {
	From    ballot.ReplicaID
	Decided command.Decision
}

// ClientRequest carries a command submitted by a client to a replica.
type ClientRequest struct {
	Command command.Generic
}

// ClientResponse carries the application's response back to whichever
// connection submitted the originating ClientRequest.
type ClientResponse struct {
	LocalID string
	Payload []byte
	Applied bool
}

// Envelope is the single value that crosses the wire; exactly one of
// its message fields is populated, selected by Kind.
type Envelope struct {
	Kind Kind

	P1a           *P1a
	P1b           *P1b
	P2a           *P2a
	P2b           *P2b
	Decision      *Decision
	ClientRequest *ClientRequest
	ClientReply   *ClientResponse
}

// WriteMessage serializes env as a self-describing record: a one-byte
// kind tag, then the kind's own fields.
func WriteMessage(w *bufio.Writer, env Envelope) error {
	if err := w.WriteByte(byte(env.Kind)); err != nil {
		return err
	}
	switch env.Kind {
	case KindP1a:
		return writeP1a(w, env.P1a)
	case KindP1b:
		return writeP1b(w, env.P1b)
	case KindP2a:
		return writeP2a(w, env.P2a)
	case KindP2b:
		return writeP2b(w, env.P2b)
	case KindDecision:
		return writeDecision(w, env.Decision)
	case KindClientRequest:
		return writeClientRequest(w, env.ClientRequest)
	case KindClientResponse:
		return writeClientResponse(w, env.ClientReply)
	default:
		return fmt.Errorf("transport: unknown message kind %v", env.Kind)
	}
}

// ReadMessage deserializes one Envelope written by WriteMessage.
func ReadMessage(r *bufio.Reader) (Envelope, error) {
	kindByte, err := r.ReadByte()
	if err != nil {
		return Envelope{}, err
	}
	kind := Kind(kindByte)
	switch kind {
	case KindP1a:
		m, err := readP1a(r)
		return Envelope{Kind: kind, P1a: m}, err
	case KindP1b:
		m, err := readP1b(r)
		return Envelope{Kind: kind, P1b: m}, err
	case KindP2a:
		m, err := readP2a(r)
		return Envelope{Kind: kind, P2a: m}, err
	case KindP2b:
		m, err := readP2b(r)
		return Envelope{Kind: kind, P2b: m}, err
	case KindDecision:
		m, err := readDecision(r)
		return Envelope{Kind: kind, Decision: m}, err
	case KindClientRequest:
		m, err := readClientRequest(r)
		return Envelope{Kind: kind, ClientRequest: m}, err
	case KindClientResponse:
		m, err := readClientResponse(r)
		return Envelope{Kind: kind, ClientReply: m}, err
	default:
		return Envelope{}, fmt.Errorf("transport: unknown message kind %d", kindByte)
	}
}

func writeReplicaID(w *bufio.Writer, id ballot.ReplicaID) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(id))
	_, err := w.Write(buf[:])
	return err
}

func readReplicaID(r *bufio.Reader) (ballot.ReplicaID, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return ballot.ReplicaID(binary.LittleEndian.Uint64(buf[:])), nil
}

func writeBallot(w *bufio.Writer, b ballot.Ballot) error {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], b.Round)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(b.LeaderID))
	_, err := w.Write(buf[:])
	return err
}

func readBallot(r *bufio.Reader) (ballot.Ballot, error) {
	var buf [16]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return ballot.Ballot{}, err
	}
	return ballot.Ballot{
		Round:    binary.LittleEndian.Uint64(buf[0:8]),
		LeaderID: ballot.ReplicaID(binary.LittleEndian.Uint64(buf[8:16])),
	}, nil
}

func writeSlot(w *bufio.Writer, s command.Slot) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(s))
	_, err := w.Write(buf[:])
	return err
}

func readSlot(r *bufio.Reader) (command.Slot, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return command.Slot(binary.LittleEndian.Uint64(buf[:])), nil
}

func writeCommand(w *bufio.Writer, cmd command.Generic) error {
	if err := serializer.WriteFieldString(w, cmd.Client.String()); err != nil {
		return err
	}
	if err := serializer.WriteFieldString(w, cmd.Local.String()); err != nil {
		return err
	}
	return serializer.WriteFieldBytes(w, cmd.Payload)
}

func readCommand(r *bufio.Reader) (command.Generic, error) {
	clientID, err := serializer.ReadFieldString(r)
	if err != nil {
		return command.Generic{}, err
	}
	localID, err := serializer.ReadFieldString(r)
	if err != nil {
		return command.Generic{}, err
	}
	payload, err := serializer.ReadFieldBytes(r)
	if err != nil {
		return command.Generic{}, err
	}
	return command.Generic{
		Client:  command.StringID(clientID),
		Local:   command.StringID(localID),
		Payload: payload,
	}, nil
}

func writePvalue(w *bufio.Writer, p command.Pvalue) error {
	if err := writeBallot(w, p.Ballot); err != nil {
		return err
	}
	if err := writeSlot(w, p.Slot); err != nil {
		return err
	}
	g, ok := p.Command.(command.Generic)
	if !ok {
		return fmt.Errorf("transport: command must be command.Generic to serialize, got %T", p.Command)
	}
	return writeCommand(w, g)
}

func readPvalue(r *bufio.Reader) (command.Pvalue, error) {
	b, err := readBallot(r)
	if err != nil {
		return command.Pvalue{}, err
	}
	s, err := readSlot(r)
	if err != nil {
		return command.Pvalue{}, err
	}
	cmd, err := readCommand(r)
	if err != nil {
		return command.Pvalue{}, err
	}
	return command.Pvalue{Ballot: b, Slot: s, Command: cmd}, nil
}

func writeP1a(w *bufio.Writer, m *P1a) error {
	if err := writeReplicaID(w, m.From); err != nil {
		return err
	}
	return writeBallot(w, m.Ballot)
}

func readP1a(r *bufio.Reader) (*P1a, error) {
	from, err := readReplicaID(r)
	if err != nil {
		return nil, err
	}
	b, err := readBallot(r)
	if err != nil {
		return nil, err
	}
	return &P1a{From: from, Ballot: b}, nil
}

func writeP1b(w *bufio.Writer, m *P1b) error {
	if err := writeReplicaID(w, m.From); err != nil {
		return err
	}
	if err := writeBallot(w, m.BallotNum); err != nil {
		return err
	}
	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(m.Accepted)))
	if _, err := w.Write(countBuf[:]); err != nil {
		return err
	}
	for _, p := range m.Accepted {
		if err := writePvalue(w, p); err != nil {
			return err
		}
	}
	return nil
}

func readP1b(r *bufio.Reader) (*P1b, error) {
	from, err := readReplicaID(r)
	if err != nil {
		return nil, err
	}
	b, err := readBallot(r)
	if err != nil {
		return nil, err
	}
	var countBuf [4]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return nil, err
	}
	count := binary.LittleEndian.Uint32(countBuf[:])
	accepted := make([]command.Pvalue, 0, count)
	for i := uint32(0); i < count; i++ {
		p, err := readPvalue(r)
		if err != nil {
			return nil, err
		}
		accepted = append(accepted, p)
	}
	return &P1b{From: from, BallotNum: b, Accepted: accepted}, nil
}

func writeP2a(w *bufio.Writer, m *P2a) error {
	if err := writeReplicaID(w, m.From); err != nil {
		return err
	}
	return writePvalue(w, m.Pvalue)
}

func readP2a(r *bufio.Reader) (*P2a, error) {
	from, err := readReplicaID(r)
	if err != nil {
		return nil, err
	}
	p, err := readPvalue(r)
	if err != nil {
		return nil, err
	}
	return &P2a{From: from, Pvalue: p}, nil
}

func writeP2b(w *bufio.Writer, m *P2b) error {
	if err := writeReplicaID(w, m.From); err != nil {
		return err
	}
	if err := writeBallot(w, m.BallotNum); err != nil {
		return err
	}
	return writeSlot(w, m.Slot)
}

func readP2b(r *bufio.Reader) (*P2b, error) {
	from, err := readReplicaID(r)
	if err != nil {
		return nil, err
	}
	b, err := readBallot(r)
	if err != nil {
		return nil, err
	}
	slot, err := readSlot(r)
	if err != nil {
		return nil, err
	}
	return &P2b{From: from, BallotNum: b, Slot: slot}, nil
}

func writeDecision(w *bufio.Writer, m *Decision) error {
	if err := writeReplicaID(w, m.From); err != nil {
		return err
	}
	if err := writeSlot(w, m.Decided.Slot); err != nil {
		return err
	}
	g, ok := m.Decided.Command.(command.Generic)
	if !ok {
		return fmt.Errorf("transport: decision command must be command.Generic, got %T", m.Decided.Command)
	}
	return writeCommand(w, g)
}

func readDecision(r *bufio.Reader) (*Decision, error) {
	from, err := readReplicaID(r)
	if err != nil {
		return nil, err
	}
	slot, err := readSlot(r)
	if err != nil {
		return nil, err
	}
	cmd, err := readCommand(r)
	if err != nil {
		return nil, err
	}
	return &Decision{From: from, Decided: command.Decision{Slot: slot, Command: cmd}}, nil
}

func writeClientRequest(w *bufio.Writer, m *ClientRequest) error {
	return writeCommand(w, m.Command)
}

func readClientRequest(r *bufio.Reader) (*ClientRequest, error) {
	cmd, err := readCommand(r)
	if err != nil {
		return nil, err
	}
	return &ClientRequest{Command: cmd}, nil
}

func writeClientResponse(w *bufio.Writer, m *ClientResponse) error {
	if err := serializer.WriteFieldString(w, m.LocalID); err != nil {
		return err
	}
	if err := serializer.WriteFieldBytes(w, m.Payload); err != nil {
		return err
	}
	applied := byte(0)
	if m.Applied {
		applied = 1
	}
	return w.WriteByte(applied)
}

func readClientResponse(r *bufio.Reader) (*ClientResponse, error) {
	localID, err := serializer.ReadFieldString(r)
	if err != nil {
		return nil, err
	}
	payload, err := serializer.ReadFieldBytes(r)
	if err != nil {
		return nil, err
	}
	applied, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	return &ClientResponse{LocalID: localID, Payload: payload, Applied: applied != 0}, nil
}

