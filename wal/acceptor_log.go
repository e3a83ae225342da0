package wal

import (
	"bufio"
	"fmt"
	"os"
	"sync"

	"github.com/nwtnni/paxos/ballot"
	"github.com/nwtnni/paxos/command"
	"github.com/nwtnni/paxos/config"
)

// AcceptorLog is the durable backing store for a single acceptor: its
// current promise (the highest ballot it has agreed to stop accepting
// proposals below) and the pvalues it has accepted, indexed by slot.
// Every mutation is appended to acceptor.paxos and fsynced before the
// call that triggered it returns, so a promise or accept is never
// acknowledged to a peer before it is safe on disk (spec §4.4).
type AcceptorLog struct {
	mu   sync.Mutex
	file *os.File
	w    *bufio.Writer
}

// OpenAcceptorLog opens (creating if necessary) the acceptor log at
// path, replays any existing records, and returns the log handle
// together with the replayed state: the last promised ballot and the
// set of accepted pvalues, most recent per slot.
func OpenAcceptorLog(path string, fp config.Fingerprint) (log *AcceptorLog, promised ballot.Ballot, accepted []command.Pvalue, err error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, ballot.Zero, nil, fmt.Errorf("wal: open acceptor log: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, ballot.Zero, nil, err
	}

	if info.Size() == 0 {
		if err := writeHeaderTo(file, fp); err != nil {
			file.Close()
			return nil, ballot.Zero, nil, err
		}
	} else {
		if err := verifyHeader(file, fp); err != nil {
			file.Close()
			return nil, ballot.Zero, nil, err
		}
	}

	promised, accepted, err = replayAcceptorLog(file)
	if err != nil {
		file.Close()
		return nil, ballot.Zero, nil, err
	}

	if _, err := file.Seek(0, os.SEEK_END); err != nil {
		file.Close()
		return nil, ballot.Zero, nil, err
	}

	return &AcceptorLog{file: file, w: bufio.NewWriter(file)}, promised, accepted, nil
}

func writeHeaderTo(file *os.File, fp config.Fingerprint) error {
	w := bufio.NewWriter(file)
	if err := writeRecord(w, kindHeader, encodeHeader(fp)); err != nil {
		return err
	}
	return file.Sync()
}

func verifyHeader(file *os.File, fp config.Fingerprint) error {
	r := bufio.NewReader(file)
	k, payload, err := readRecord(r)
	if err != nil {
		return fmt.Errorf("wal: read acceptor log header: %w", err)
	}
	if k != kindHeader {
		return fmt.Errorf("wal: acceptor log does not begin with a header record")
	}
	got, err := decodeHeader(payload)
	if err != nil {
		return err
	}
	if got != fp {
		return ErrFingerprintMismatch
	}
	return nil
}

func replayAcceptorLog(file *os.File) (ballot.Ballot, []command.Pvalue, error) {
	if _, err := file.Seek(0, os.SEEK_SET); err != nil {
		return ballot.Zero, nil, err
	}
	r := bufio.NewReader(file)

	// Skip the header record; verifyHeader/writeHeaderTo already dealt
	// with it above.
	if _, _, err := readRecord(r); err != nil {
		return ballot.Zero, nil, fmt.Errorf("wal: replay acceptor log header: %w", err)
	}

	promised := ballot.Zero
	bySlot := make(map[command.Slot]command.Pvalue)

	for {
		k, payload, err := readRecord(r)
		if err != nil {
			break
		}
		switch k {
		case kindPromise:
			b, err := decodeBallot(payload)
			if err != nil {
				break
			}
			promised = b
		case kindAccept:
			p, err := decodePvalue(payload)
			if err != nil {
				break
			}
			bySlot[p.Slot] = p
		}
	}

	accepted := make([]command.Pvalue, 0, len(bySlot))
	for _, p := range bySlot {
		accepted = append(accepted, p)
	}
	return promised, accepted, nil
}

// AppendPromise durably records a new promised ballot.
func (l *AcceptorLog) AppendPromise(b ballot.Ballot) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	payload := ballotPayload(b)
	if err := writeRecord(l.w, kindPromise, payload); err != nil {
		return ErrDurabilityFailure
	}
	if err := l.file.Sync(); err != nil {
		return ErrDurabilityFailure
	}
	return nil
}

// AppendAccept durably records a newly accepted pvalue.
func (l *AcceptorLog) AppendAccept(p command.Pvalue) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	payload, err := encodePvalue(p)
	if err != nil {
		return ErrDurabilityFailure
	}
	if err := writeRecord(l.w, kindAccept, payload); err != nil {
		return ErrDurabilityFailure
	}
	if err := l.file.Sync(); err != nil {
		return ErrDurabilityFailure
	}
	return nil
}

// Close flushes and closes the underlying file.
func (l *AcceptorLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.w.Flush(); err != nil {
		return err
	}
	return l.file.Close()
}
