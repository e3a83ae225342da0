package command

import "github.com/google/uuid"

// NewClientID mints a fresh client_id. The core never generates these
// itself — client identity is an application concern — but tests and
// demos need a cheap way to get a globally unique one, the same role
// code.google.com/p/go-uuid played in the teacher repo before that
// package's hosting went dark; github.com/google/uuid is its actively
// maintained successor.
func NewClientID() Identifier {
	return StringID(uuid.NewString())
}
