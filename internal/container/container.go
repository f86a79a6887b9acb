// Package container implements the tagged wrapper that binds an opaque
// byte payload to a format identifier. The envelope is
// MAGIC ‖ format id (u64 little-endian) ‖ payload.
package container

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Magic is the 8-byte literal every container file starts with.
const Magic = "FMTGALv1"

// HeaderSize is the fixed length of magic plus format id.
const HeaderSize = 16

// FormatID identifies a file format within a catalog.
type FormatID uint64

func (id FormatID) String() string {
	return fmt.Sprintf("format(%d)", uint64(id))
}

// MalformedContainerError indicates a truncated envelope or bad magic.
type MalformedContainerError struct {
	Reason string
}

func (e *MalformedContainerError) Error() string {
	return fmt.Sprintf("malformed container: %s", e.Reason)
}

// Encode wraps payload in the container envelope. Encoding is total.
func Encode(id FormatID, payload []byte) []byte {
	out := make([]byte, HeaderSize+len(payload))
	copy(out, Magic)
	binary.LittleEndian.PutUint64(out[8:16], uint64(id))
	copy(out[HeaderSize:], payload)
	return out
}

// Decode splits a container envelope into its format id and payload.
// The payload is copied; the caller owns the result.
func Decode(b []byte) (FormatID, []byte, error) {
	if len(b) < HeaderSize {
		return 0, nil, &MalformedContainerError{
			Reason: fmt.Sprintf("need at least %d bytes, got %d", HeaderSize, len(b)),
		}
	}
	if !bytes.Equal(b[:8], []byte(Magic)) {
		return 0, nil, &MalformedContainerError{Reason: "bad magic"}
	}
	id := FormatID(binary.LittleEndian.Uint64(b[8:16]))
	payload := make([]byte, len(b)-HeaderSize)
	copy(payload, b[HeaderSize:])
	return id, payload, nil
}

// HasMagic reports whether b starts with the container magic.
func HasMagic(b []byte) bool {
	return len(b) >= 8 && bytes.Equal(b[:8], []byte(Magic))
}
