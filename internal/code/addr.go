// Package code owns the runtime's generated-code space: a portable
// trampoline instruction set, an assembler with labels and fixups, and the
// append-only cache that assigns every installed blob a synthetic address
// range. Addresses are allocation-order offsets, one unit per instruction,
// so a return address inside a blob is base + next instruction index.
package code

import "fmt"

// Addr is a synthetic code address. The zero value is the nil address and
// never falls inside any blob.
type Addr uint64

// NilAddr marks "no address": unresolved entries, entry-frame return slots.
const NilAddr Addr = 0

// cacheBase keeps the nil address and a guard band out of the blob space.
const cacheBase Addr = 0x10000

// blobAlign rounds blob bases so low bits stay free for tagging by callers.
const blobAlign = 16

func (a Addr) String() string {
	return fmt.Sprintf("0x%06x", uint64(a))
}

func alignAddr(a Addr) Addr {
	return (a + blobAlign - 1) &^ (blobAlign - 1)
}
