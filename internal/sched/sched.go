// Package sched implements the preemptive round-robin scheduler: invoked
// once per timer tick with pointers to the interrupted task's pushed
// register state, it either lets the current task continue or snapshots
// it, picks the next runnable task via an injected policy, and rebuilds
// that task's interrupt frame so a (conceptual, external) trampoline can
// resume it.
//
// It is grounded on tinygo's own scheduler split between task selection
// (src/internal/task.Queue, src/runtime/scheduler_cores.go's runqueue) and
// the narrowly-scoped stack-frame manipulation tinygo confines to
// task_stack_*.go, except here the "resume" step is frame reconstruction
// on a byte arena rather than a coroutine stack swap, because this
// scheduler's tasks are preempted by an external timer, not by a
// cooperative Pause() call.
package sched

import (
	"github.com/nagayev/kcore/internal/kerrors"
	"github.com/nagayev/kcore/internal/memory"
	"github.com/nagayev/kcore/internal/task"
)

type memRegion = memory.Region

const debugTrace = false

// kernPrint is the in-kernel debug trace hook. Real freestanding code has
// no logging library to reach for (it can import nothing hosted), so this
// mirrors the println-style trace gated behind a package constant that
// tinygo itself uses throughout src/internal/task (see the `verbose`
// constant in task_threads.go). It is unexported, so only code in this
// package (such as its tests) can redirect it.
var kernPrint = func(format string, args ...any) {}

// PickNextTID is the external task-selection policy ("pick_next_tid"),
// owned by the task subsystem and out of scope for this package. It
// returns the next runnable TID given the currently running one, or
// task.NoTask if nothing is runnable.
type PickNextTID func(current task.TID) task.TID

// Scheduler holds the single process-wide piece of scheduler state
// (current_tid) plus its collaborators. There is exactly one per kernel
// instance; callers construct their own for tests and for the host
// monitor rather than relying on package-level globals, since "one per
// kernel" is about there being a single instance per running kernel, not
// about Go package-level mutable state.
type Scheduler struct {
	table      *task.Table
	pick       PickNextTID
	quota      int
	currentTID task.TID
}

// New builds a Scheduler with current_tid == -1, reading tasks from table
// and picking the next task via pick. quota is TASK_QUOTA, the number of
// ticks a task runs before preemption.
func New(table *task.Table, quota int, pick PickNextTID) *Scheduler {
	return &Scheduler{
		table:      table,
		pick:       pick,
		quota:      quota,
		currentTID: task.NoTask,
	}
}

// CurrentTID returns the currently running task, or task.NoTask before the
// first tick.
func (s *Scheduler) CurrentTID() task.TID {
	return s.currentTID
}

// Schedule is the scheduler's single entry point, invoked by the (external)
// timer trampoline on every tick with the address of the pushed interrupt
// frame and the address of the pushed general-purpose register block,
// both within mem.
//
// It returns (false, 0) when the current task should simply continue: the
// trampoline resumes it unchanged, the normal "return" exit. It returns
// (true, newESP) when a context switch must happen: the trampoline (or,
// here, the caller) tail-invokes SwitchContext(newESP) and never returns
// through this call.
func (s *Scheduler) Schedule(mem *memRegion, framePtr uintptr, regsPtr uintptr) (tailSwitch bool, newESP uintptr) {
	next := s.pick(s.currentTID)
	if next == task.NoTask {
		kerrors.Raise(kerrors.NoTasks, "pick_next_tid returned no runnable task (current=%d)", s.currentTID)
	}

	var this *task.Task
	if s.currentTID != task.NoTask {
		this = s.table.Get(s.currentTID)

		this.Time++
		if this.Time < s.quota {
			// Quota not exhausted: continue the current task unchanged.
			return false, 0
		}
		this.Time = 0

		this.OpRegisters.EIP = mem.Uint32(framePtr)
		this.OpRegisters.CS = mem.Uint16(framePtr + 4)
		this.Flags = mem.Uint32(framePtr + 6)
		this.OpRegisters.ESP = framePtr + frameSize
		this.GPRegisters = readGPRegisters(mem, regsPtr)
	}

	s.currentTID = next
	nextTask := s.table.Get(next)
	if nextTask == nil {
		kerrors.Raise(kerrors.NoTasks, "pick_next_tid returned unknown task %d", next)
	}

	if debugTrace {
		oldPC := uint32(0)
		if this != nil {
			oldPC = this.OpRegisters.EIP
		}
		kernPrint("scheduled tid=%d sp=%#x pc=%#x->%#x\n", next, framePtr, oldPC, nextTask.OpRegisters.EIP)
	}

	frameBase := nextTask.OpRegisters.ESP - frameSize
	mem.PutUint32(frameBase+eipOff, nextTask.OpRegisters.EIP)
	mem.PutUint16(frameBase+csOff, nextTask.OpRegisters.CS)
	mem.PutUint32(frameBase+flagsOff, nextTask.Flags)

	gpBase := frameBase - task.GPRegistersSize
	writeGPRegisters(mem, gpBase, nextTask.GPRegisters)
	nextTask.OpRegisters.ESP = gpBase

	return true, gpBase
}
