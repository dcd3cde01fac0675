// Package memory provides a bounds-checked, address-offset view over a
// backing byte slice. It is the safe-language substitute for the raw
// pointer arithmetic inherent in writing an interrupt frame at computed
// byte offsets on another task's stack. Every offset computation in this
// module funnels through the methods here, the way tinygo confines its
// own genuinely unsafe pointer work to narrowly scoped helpers
// (src/runtime/gc_blocks.go, src/internal/task/task_stack_*.go).
package memory

import "fmt"

// Region is a window onto a byte arena, addressed by absolute addresses
// starting at Base rather than slice indices. It stands in for a span of
// physical memory (the kernel heap's backing bytes, or one task's stack)
// without requiring unsafe.Pointer anywhere in the kernel packages.
type Region struct {
	Base uintptr
	buf  []byte
}

// NewRegion allocates a zeroed Region of size bytes starting at base.
func NewRegion(base uintptr, size uintptr) *Region {
	return &Region{Base: base, buf: make([]byte, size)}
}

// Len returns the region's size in bytes.
func (r *Region) Len() uintptr {
	return uintptr(len(r.buf))
}

// End returns the address one past the last byte in the region.
func (r *Region) End() uintptr {
	return r.Base + r.Len()
}

// Contains reports whether [addr, addr+size) lies entirely within the region.
func (r *Region) Contains(addr uintptr, size uintptr) bool {
	if addr < r.Base || addr > r.End() {
		return false
	}
	return addr+size <= r.End()
}

func (r *Region) offset(addr uintptr, size uintptr) int {
	if !r.Contains(addr, size) {
		panic(fmt.Sprintf("memory: address %#x (+%d) out of bounds [%#x, %#x)", addr, size, r.Base, r.End()))
	}
	return int(addr - r.Base)
}

// Uint16 reads a little-endian uint16 at addr.
func (r *Region) Uint16(addr uintptr) uint16 {
	o := r.offset(addr, 2)
	return uint16(r.buf[o]) | uint16(r.buf[o+1])<<8
}

// PutUint16 writes a little-endian uint16 at addr.
func (r *Region) PutUint16(addr uintptr, v uint16) {
	o := r.offset(addr, 2)
	r.buf[o] = byte(v)
	r.buf[o+1] = byte(v >> 8)
}

// Uint32 reads a little-endian uint32 at addr.
func (r *Region) Uint32(addr uintptr) uint32 {
	o := r.offset(addr, 4)
	return uint32(r.buf[o]) | uint32(r.buf[o+1])<<8 | uint32(r.buf[o+2])<<16 | uint32(r.buf[o+3])<<24
}

// PutUint32 writes a little-endian uint32 at addr.
func (r *Region) PutUint32(addr uintptr, v uint32) {
	o := r.offset(addr, 4)
	r.buf[o] = byte(v)
	r.buf[o+1] = byte(v >> 8)
	r.buf[o+2] = byte(v >> 16)
	r.buf[o+3] = byte(v >> 24)
}

// Bytes returns the raw backing slice for addr..addr+size, for callers that
// want a span's bytes as-is rather than decoded.
func (r *Region) Bytes(addr uintptr, size uintptr) []byte {
	o := r.offset(addr, size)
	return r.buf[o : o+int(size)]
}
