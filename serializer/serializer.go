// Package serializer holds the length-prefixed byte-field primitives
// shared by the durable log (wal) and the wire codec (transport): write
// the field's length, then the field. Commands are encoded as a fixed
// sequence of these calls (client id, local id, payload); ballots,
// slots and replica ids are written by the callers as fixed-width
// integers alongside them.
package serializer

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// WriteFieldBytes writes the field length, then the field itself.
func WriteFieldBytes(buf *bufio.Writer, bytes []byte) error {
	size := uint32(len(bytes))
	if err := binary.Write(buf, binary.LittleEndian, &size); err != nil {
		return err
	}
	n, err := buf.Write(bytes)
	if err != nil {
		return err
	}
	if uint32(n) != size {
		return fmt.Errorf("serializer: short write, expected %d bytes, wrote %d", size, n)
	}
	return nil
}

// ReadFieldBytes reads a length-prefixed field written by
// WriteFieldBytes. It uses io.ReadFull rather than a single buf.Read so
// that a field spanning more than one underlying read still comes back
// whole.
func ReadFieldBytes(buf *bufio.Reader) ([]byte, error) {
	var size uint32
	if err := binary.Read(buf, binary.LittleEndian, &size); err != nil {
		return nil, err
	}

	bytes := make([]byte, size)
	if _, err := io.ReadFull(buf, bytes); err != nil {
		return nil, fmt.Errorf("serializer: short read, expected %d bytes: %w", size, err)
	}
	return bytes, nil
}

// WriteFieldString is WriteFieldBytes for a string field.
func WriteFieldString(buf *bufio.Writer, s string) error {
	return WriteFieldBytes(buf, []byte(s))
}

// ReadFieldString is ReadFieldBytes for a string field.
func ReadFieldString(buf *bufio.Reader) (string, error) {
	b, err := ReadFieldBytes(buf)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
