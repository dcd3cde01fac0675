// Package kerrors defines the fatal-error taxonomy shared by the heap
// allocator and the scheduler. Every kind here is unrecoverable inside the
// kernel packages themselves: the only place that may recover a Fault is
// host-side tooling standing in for the panic reporter and serial console,
// both out of scope for the kernel itself.
package kerrors

import "fmt"

// Kind identifies one of the fatal error classes a kernel subsystem can
// raise. There is no successful recovery path for any of them within the
// kernel packages; they exist to let a host (or a test) tell the faults
// apart.
type Kind int

const (
	// HeapExceed: alloc would grow the heap past HEAP_LIMIT.
	HeapExceed Kind = iota
	// HeapTableExceed: no free descriptor slot remains.
	HeapTableExceed
	// HeapCorrupt: the validator found a violated invariant.
	HeapCorrupt
	// FreeUnknown: free was called with an address that names no busy block.
	FreeUnknown
	// NoTasks: the scheduler's task-selection policy returned no runnable task.
	NoTasks
)

func (k Kind) String() string {
	switch k {
	case HeapExceed:
		return "HEAP_EXCEED"
	case HeapTableExceed:
		return "HEAP_TABLE_EXCEED"
	case HeapCorrupt:
		return "HEAP_CORRUPT"
	case FreeUnknown:
		return "FREE_UNKNOWN"
	case NoTasks:
		return "NO_TASKS"
	default:
		return "UNKNOWN_FAULT"
	}
}

// Fault is the panic value raised by a fatal kernel condition. It is always
// passed to panic(), never returned as an error: there is no local
// recovery for these conditions.
type Fault struct {
	Kind Kind
	Msg  string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Msg)
}

// Raise panics with a *Fault built from kind and a formatted message. It is
// the kernel-side equivalent of tinygo's runtimePanic(msg string): a single
// narrow choke point every fatal condition funnels through.
func Raise(kind Kind, format string, args ...any) {
	panic(&Fault{Kind: kind, Msg: fmt.Sprintf(format, args...)})
}
