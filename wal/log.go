package wal

import (
	"encoding/binary"
	"fmt"

	"github.com/nwtnni/paxos/config"
)

// encodeHeader/decodeHeader frame the configuration fingerprint that
// opens every log file. A mismatched fingerprint means the file on
// disk was written under a different cluster configuration (different
// peer set, different replica count) and must not be replayed as if it
// belonged to this one — see config.Fingerprint and spec §9 Open
// Question 2.
func encodeHeader(fp config.Fingerprint) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(fp))
	return buf[:]
}

func decodeHeader(payload []byte) (config.Fingerprint, error) {
	if len(payload) != 8 {
		return 0, fmt.Errorf("wal: malformed header record, got %d bytes", len(payload))
	}
	return config.Fingerprint(binary.LittleEndian.Uint64(payload)), nil
}
