package wasm

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"
)

// MaxInputLen bounds the input staged into guest memory. Pointers and
// lengths cross the ABI as u32, so anything past 2^31 is rejected before
// touching the guest.
const MaxInputLen = 1 << 31

// Call stages input into guest memory, invokes the given entry point and
// reads the result back out. On success == 1 it returns the payload; on
// success == 0 it returns a *GuestError carrying the guest's message.
//
// Exactly one Free is issued per completed call, whether the guest
// reported success or failure. On a trap or an out-of-bounds descriptor
// no Free is issued and the instance is closed. A payload that is read
// and then rejected (an error message that is not valid UTF-8) has
// already been freed; the instance is closed as well.
func Call(ctx context.Context, g Guest, entry Entry, input []byte) ([]byte, error) {
	if uint64(len(input)) > MaxInputLen {
		return nil, fmt.Errorf("input of %d bytes exceeds the %d byte limit", len(input), uint64(MaxInputLen))
	}

	ptr, err := g.Alloc(ctx, uint32(len(input)))
	if err != nil {
		return nil, discard(ctx, g, err)
	}

	// The staged region belongs to the guest from the entry call onward;
	// the guest releases it together with its own bookkeeping.
	if len(input) > 0 {
		if err := g.MemoryWrite(ptr, input); err != nil {
			return nil, discard(ctx, g, &BadOutputError{
				Reason: fmt.Sprintf("alloc returned unwritable region [%d, %d): %v", ptr, uint64(ptr)+uint64(len(input)), err),
			})
		}
	}

	var resPtr uint32
	switch entry {
	case EntryPresent:
		resPtr, err = g.Present(ctx, ptr, uint32(len(input)))
	case EntryStore:
		resPtr, err = g.Store(ctx, ptr, uint32(len(input)))
	default:
		return nil, fmt.Errorf("unknown entry point %q", entry)
	}
	if err != nil {
		return nil, discard(ctx, g, err)
	}

	payloadPtr, err := g.ResultPtr(ctx, resPtr)
	if err != nil {
		return nil, discard(ctx, g, err)
	}
	payloadLen, err := g.ResultLen(ctx, resPtr)
	if err != nil {
		return nil, discard(ctx, g, err)
	}
	success, err := g.ResultSuccess(ctx, resPtr)
	if err != nil {
		return nil, discard(ctx, g, err)
	}

	if end := uint64(payloadPtr) + uint64(payloadLen); end > uint64(g.MemorySize()) {
		return nil, discard(ctx, g, &BadOutputError{
			Reason: fmt.Sprintf("descriptor payload [%d, %d) exceeds memory of %d bytes", payloadPtr, end, g.MemorySize()),
		})
	}

	payload, err := g.MemoryRead(payloadPtr, payloadLen)
	if err != nil {
		return nil, discard(ctx, g, &BadOutputError{
			Reason: fmt.Sprintf("failed to read payload at %d: %v", payloadPtr, err),
		})
	}

	if err := g.Free(ctx, resPtr); err != nil {
		return nil, discard(ctx, g, err)
	}

	if success {
		return payload, nil
	}
	if !utf8.Valid(payload) {
		return nil, discard(ctx, g, &BadOutputError{Reason: "error message is not valid UTF-8"})
	}
	return nil, &GuestError{Message: string(payload)}
}

// Present runs the bytes-to-text direction and validates that the guest
// produced UTF-8 text.
func Present(ctx context.Context, g Guest, input []byte) (string, error) {
	payload, err := Call(ctx, g, EntryPresent, input)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(payload) {
		return "", discard(ctx, g, &BadOutputError{Reason: "presented text is not valid UTF-8"})
	}
	return string(payload), nil
}

// Store runs the text-to-bytes direction.
func Store(ctx context.Context, g Guest, text string) ([]byte, error) {
	return Call(ctx, g, EntryStore, []byte(text))
}

// discard invalidates the instance after a fault and passes the error
// through. GuestError never reaches here; traps and bad output always do.
func discard(ctx context.Context, g Guest, err error) error {
	slog.Debug("discarding plugin instance", "error", err)
	if closeErr := g.Close(ctx); closeErr != nil {
		slog.Warn("failed to close plugin instance", "error", closeErr)
	}
	return err
}
