package wal

import (
	"bufio"
	"fmt"
	"os"
	"sync"

	"github.com/nwtnni/paxos/command"
	"github.com/nwtnni/paxos/config"
)

// ReplicaLog is the durable backing store for a replica's decisions:
// the append-only record of which command was chosen at each slot.
// Replaying it on Open reconstructs exactly the state a replica needs
// to resume applying commands to its state machine in slot order
// without re-running consensus for slots that were already decided.
type ReplicaLog struct {
	mu   sync.Mutex
	file *os.File
	w    *bufio.Writer
}

// OpenReplicaLog opens (creating if necessary) the replica log at
// path, replays any existing decision records, and returns the log
// handle together with the decisions read back, in the order they
// were originally appended.
func OpenReplicaLog(path string, fp config.Fingerprint) (log *ReplicaLog, decisions []command.Decision, err error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("wal: open replica log: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, err
	}

	if info.Size() == 0 {
		if err := writeHeaderTo(file, fp); err != nil {
			file.Close()
			return nil, nil, err
		}
	} else {
		if err := verifyHeader(file, fp); err != nil {
			file.Close()
			return nil, nil, err
		}
	}

	decisions, err = replayReplicaLog(file)
	if err != nil {
		file.Close()
		return nil, nil, err
	}

	if _, err := file.Seek(0, os.SEEK_END); err != nil {
		file.Close()
		return nil, nil, err
	}

	return &ReplicaLog{file: file, w: bufio.NewWriter(file)}, decisions, nil
}

func replayReplicaLog(file *os.File) ([]command.Decision, error) {
	if _, err := file.Seek(0, os.SEEK_SET); err != nil {
		return nil, err
	}
	r := bufio.NewReader(file)

	if _, _, err := readRecord(r); err != nil {
		return nil, fmt.Errorf("wal: replay replica log header: %w", err)
	}

	var decisions []command.Decision
	for {
		k, payload, err := readRecord(r)
		if err != nil {
			break
		}
		if k != kindDecision {
			continue
		}
		d, err := decodeDecision(payload)
		if err != nil {
			continue
		}
		decisions = append(decisions, d)
	}
	return decisions, nil
}

// AppendDecision durably records a newly chosen decision.
func (l *ReplicaLog) AppendDecision(d command.Decision) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	payload, err := encodeDecision(d)
	if err != nil {
		return ErrDurabilityFailure
	}
	if err := writeRecord(l.w, kindDecision, payload); err != nil {
		return ErrDurabilityFailure
	}
	if err := l.file.Sync(); err != nil {
		return ErrDurabilityFailure
	}
	return nil
}

// Close flushes and closes the underlying file.
func (l *ReplicaLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.w.Flush(); err != nil {
		return err
	}
	return l.file.Close()
}
