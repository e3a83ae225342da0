package wal

import "errors"

// ErrDurabilityFailure is returned when a record cannot be appended or
// fsynced. Per spec §7 this is fatal to the role that owns the log —
// there is no safe way to acknowledge a P1b/P2b/decision once the
// write that was supposed to back it has failed, so the caller must
// crash rather than paper over the gap.
var ErrDurabilityFailure = errors.New("wal: durability failure, record not safely persisted")

// ErrFingerprintMismatch is returned by OpenAcceptorLog and
// OpenReplicaLog when an existing log file
// was written under a different cluster configuration than the one
// requested.
var ErrFingerprintMismatch = errors.New("wal: log file fingerprint does not match configuration")
