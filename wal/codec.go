package wal

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/nwtnni/paxos/ballot"
	"github.com/nwtnni/paxos/command"
	"github.com/nwtnni/paxos/serializer"
)

// encodeBallot writes a fixed 16-byte ballot: round then leader id.
func encodeBallot(w *bufio.Writer, b ballot.Ballot) error {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], b.Round)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(b.LeaderID))
	_, err := w.Write(buf[:])
	return err
}

// ballotPayload returns the 16-byte encoding of a ballot as a standalone
// payload, for use as a record body (e.g. a promise record).
func ballotPayload(b ballot.Ballot) []byte {
	buf := &bytes.Buffer{}
	w := bufio.NewWriter(buf)
	_ = encodeBallot(w, b)
	_ = w.Flush()
	return buf.Bytes()
}

func decodeBallot(buf []byte) (ballot.Ballot, error) {
	if len(buf) < 16 {
		return ballot.Ballot{}, fmt.Errorf("wal: short ballot encoding, got %d bytes", len(buf))
	}
	return ballot.Ballot{
		Round:    binary.LittleEndian.Uint64(buf[0:8]),
		LeaderID: ballot.ReplicaID(binary.LittleEndian.Uint64(buf[8:16])),
	}, nil
}

// encodeCommand writes a command.Generic as three length-prefixed
// fields: client id, local id, payload — the wire representation the
// rest of the core's durable state settles on (spec §9, "Polymorphism
// over application": payload is opaque, only identity is structured).
func encodeCommand(w *bufio.Writer, cmd command.Command) error {
	g, ok := cmd.(command.Generic)
	if !ok {
		return fmt.Errorf("wal: command must be command.Generic to persist, got %T", cmd)
	}
	if err := serializer.WriteFieldString(w, g.Client.String()); err != nil {
		return err
	}
	if err := serializer.WriteFieldString(w, g.Local.String()); err != nil {
		return err
	}
	return serializer.WriteFieldBytes(w, g.Payload)
}

func decodeCommand(r *bufio.Reader) (command.Command, error) {
	clientID, err := serializer.ReadFieldString(r)
	if err != nil {
		return nil, err
	}
	localID, err := serializer.ReadFieldString(r)
	if err != nil {
		return nil, err
	}
	payload, err := serializer.ReadFieldBytes(r)
	if err != nil {
		return nil, err
	}
	return command.Generic{
		Client:  command.StringID(clientID),
		Local:   command.StringID(localID),
		Payload: payload,
	}, nil
}

// encodePvalue serializes a pvalue (ballot, slot, command) into a
// self-contained byte payload suitable for writeRecord.
func encodePvalue(p command.Pvalue) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := bufio.NewWriter(buf)
	if err := encodeBallot(w, p.Ballot); err != nil {
		return nil, err
	}
	var slotBuf [8]byte
	binary.LittleEndian.PutUint64(slotBuf[:], uint64(p.Slot))
	if _, err := w.Write(slotBuf[:]); err != nil {
		return nil, err
	}
	if err := encodeCommand(w, p.Command); err != nil {
		return nil, err
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodePvalue(payload []byte) (command.Pvalue, error) {
	if len(payload) < 24 {
		return command.Pvalue{}, fmt.Errorf("wal: truncated pvalue record")
	}
	b, err := decodeBallot(payload[:16])
	if err != nil {
		return command.Pvalue{}, err
	}
	slot := command.Slot(binary.LittleEndian.Uint64(payload[16:24]))
	r := bufio.NewReader(bytes.NewReader(payload[24:]))
	cmd, err := decodeCommand(r)
	if err != nil {
		return command.Pvalue{}, err
	}
	return command.Pvalue{Ballot: b, Slot: slot, Command: cmd}, nil
}

// encodeDecision serializes a (slot, command) decision record.
func encodeDecision(d command.Decision) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := bufio.NewWriter(buf)
	var slotBuf [8]byte
	binary.LittleEndian.PutUint64(slotBuf[:], uint64(d.Slot))
	if _, err := w.Write(slotBuf[:]); err != nil {
		return nil, err
	}
	if err := encodeCommand(w, d.Command); err != nil {
		return nil, err
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeDecision(payload []byte) (command.Decision, error) {
	if len(payload) < 8 {
		return command.Decision{}, fmt.Errorf("wal: truncated decision record")
	}
	slot := command.Slot(binary.LittleEndian.Uint64(payload[0:8]))
	r := bufio.NewReader(bytes.NewReader(payload[8:]))
	cmd, err := decodeCommand(r)
	if err != nil {
		return command.Decision{}, err
	}
	return command.Decision{Slot: slot, Command: cmd}, nil
}
