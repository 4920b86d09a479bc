package sandbox

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
)

// readMemory copies a (ptr, len) region out of mod's linear memory. Guests
// pass pointers into their own memory for every call argument, so the host
// never needs to allocate on the guest's behalf to read a call's inputs.
func readMemory(mod api.Module, ptr, length uint32) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}

	buf, ok := mod.Memory().Read(ptr, length)
	if !ok {
		return nil, fmt.Errorf(
			"read out of bounds: ptr=%d len=%d memSize=%d",
			ptr, length, mod.Memory().Size(),
		)
	}

	// Memory() returns a view backed by the guest's own arena; copy it out
	// so the result outlives whatever the guest does with that region next.
	out := make([]byte, length)
	copy(out, buf)

	return out, nil
}

// writeMemory allocates length bytes in mod via its exported "alloc"
// function and copies data into the returned region, returning the pointer
// and length a host function can hand back to the guest as call results.
func writeMemory(ctx context.Context, mod api.Module, data []byte) (uint32, uint32, error) {
	length := uint32(len(data))
	if length == 0 {
		return 0, 0, nil
	}

	allocFn := mod.ExportedFunction("alloc")
	if allocFn == nil {
		return 0, 0, fmt.Errorf("guest module does not export \"alloc\"")
	}

	results, err := allocFn.Call(ctx, uint64(length))
	if err != nil {
		return 0, 0, fmt.Errorf("calling guest alloc: %w", err)
	}
	if len(results) != 1 {
		return 0, 0, fmt.Errorf("guest alloc returned %d results, want 1", len(results))
	}

	ptr := uint32(results[0])
	if !mod.Memory().Write(ptr, data) {
		return 0, 0, fmt.Errorf(
			"write out of bounds: ptr=%d len=%d memSize=%d",
			ptr, length, mod.Memory().Size(),
		)
	}

	return ptr, length, nil
}

// readString is readMemory followed by a string conversion, for the many
// capability arguments that are UTF-8 text rather than opaque payload bytes.
func readString(mod api.Module, ptr, length uint32) (string, error) {
	b, err := readMemory(mod, ptr, length)
	if err != nil {
		return "", err
	}

	return string(b), nil
}
