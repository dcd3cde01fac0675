// Package task holds the data the scheduler reads and writes for each
// runnable task: the saved program counter/segment/stack pointer, the
// flags register, the general-purpose register block, and the per-task
// quota counter. It mirrors the shape of tinygo's own internal/task.Task
// (src/internal/task/task_threads.go), but carries the x86 register
// snapshot this scheduler needs instead of a goroutine-coroutine state
// machine: this kernel's tasks are preemptible only from the outside, by
// the timer trampoline, never by a cooperative Pause/Resume call.
package task

// TID identifies a task in the task table. -1 (NoTask) means "no task."
type TID int

// NoTask is the sentinel TID meaning "no task scheduled yet."
const NoTask TID = -1

// GPRegisters is the general-purpose register block, laid out in exactly
// the order the (external, out-of-scope) trampoline pushes registers to
// the stack on interrupt entry. The field order here is load-bearing: it
// must match the trampoline's push order byte-for-byte.
type GPRegisters struct {
	EAX uint32
	EBX uint32
	ECX uint32
	EDX uint32
	ESI uint32
	EDI uint32
	EBP uint32
}

// GPRegistersSize is the number of bytes GPRegisters occupies once pushed
// to a stack.
const GPRegistersSize = 7 * 4

// OpRegisters is the operational register snapshot: the program counter,
// code segment selector, and stack pointer, matching the interrupt frame
// layout the scheduler reconstructs on a context switch.
type OpRegisters struct {
	EIP uint32
	CS  uint16
	ESP uintptr
}

// Task is one entry of the external task table. The scheduler reads and
// writes OpRegisters, Flags, GPRegisters, and Time; all other per-task
// state (image, open files, exit status, ...) belongs to the task
// subsystem and is opaque here.
type Task struct {
	ID TID

	OpRegisters OpRegisters
	Flags       uint32
	GPRegisters GPRegisters

	// Time is ticks consumed since this task last started running; reset
	// to 0 whenever its quota expires.
	Time int
}

// Table is the external task table the scheduler is handed pointers into.
// It is owned by the task subsystem, which is otherwise out of scope here;
// the scheduler needs a concrete type to test against, so Table is a
// minimal slice-backed stand-in indexed by TID.
type Table struct {
	tasks []*Task
}

// NewTable builds an empty task table.
func NewTable() *Table {
	return &Table{}
}

// Add registers a new task and returns its TID.
func (t *Table) Add(task *Task) TID {
	task.ID = TID(len(t.tasks))
	t.tasks = append(t.tasks, task)
	return task.ID
}

// Get returns the task for tid, or nil if tid is out of range.
func (t *Table) Get(tid TID) *Task {
	if tid < 0 || int(tid) >= len(t.tasks) {
		return nil
	}
	return t.tasks[tid]
}

// Len returns the number of registered tasks.
func (t *Table) Len() int {
	return len(t.tasks)
}
