package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nagayev/kcore/internal/memory"
	"github.com/nagayev/kcore/internal/task"
)

// newTwoTaskFixture builds a two-task table and a memory arena large enough
// to hold both tasks' stacks plus a scratch frame/register slot standing in
// for wherever the (external, out-of-scope) trampoline happens to push the
// currently-running task's interrupt state on a given tick. The register
// block sits directly below the frame, so a frame rebuilt below a saved
// ESP of scratchFrame+frameSize stays inside the arena.
func newTwoTaskFixture(t *testing.T) (*task.Table, *memory.Region, uintptr, uintptr) {
	t.Helper()

	table := task.NewTable()
	t0 := table.Add(&task.Task{OpRegisters: task.OpRegisters{EIP: 0x1000, CS: 0x08, ESP: 0x204000}})
	t1 := table.Add(&task.Task{OpRegisters: task.OpRegisters{EIP: 0x2000, CS: 0x08, ESP: 0x208000}})
	require.Equal(t, task.TID(0), t0)
	require.Equal(t, task.TID(1), t1)

	mem := memory.NewRegion(0x200000, 0x10000)

	const scratchRegs = 0x200000
	const scratchFrame = scratchRegs + task.GPRegistersSize

	return table, mem, scratchFrame, scratchRegs
}

// TestScheduleRoundRobinQuotaSequence checks the quota-driven round-robin
// sequence: with TASK_QUOTA = 3 and two tasks, the tid sequence over 12
// ticks must be 0,0,0,1,1,1,0,0,0,1,1,1.
func TestScheduleRoundRobinQuotaSequence(t *testing.T) {
	table, mem, framePtr, regsPtr := newTwoTaskFixture(t)
	pick := task.NewRoundRobin(0, 1)
	s := New(table, 3, pick.Next)

	want := []task.TID{0, 0, 0, 1, 1, 1, 0, 0, 0, 1, 1, 1}
	got := make([]task.TID, 0, 12)
	for i := 0; i < 12; i++ {
		s.Schedule(mem, framePtr, regsPtr)
		got = append(got, s.CurrentTID())
	}

	assert.Equal(t, want, got)
}

// TestScheduleFirstTickSkipsSnapshot covers the current_tid == -1 path:
// there is no prior task to save, so Schedule must not touch framePtr/
// regsPtr at all on the very first call.
func TestScheduleFirstTickSkipsSnapshot(t *testing.T) {
	table, mem, framePtr, regsPtr := newTwoTaskFixture(t)
	pick := task.NewRoundRobin(0, 1)
	s := New(table, 3, pick.Next)

	assert.Equal(t, task.NoTask, s.CurrentTID())

	tailSwitch, newESP := s.Schedule(mem, framePtr, regsPtr)

	assert.True(t, tailSwitch)
	assert.Equal(t, task.TID(0), s.CurrentTID())
	assert.NotZero(t, newESP)
}

// TestScheduleRebuildsFrameAndRegisters checks that after a switch, the
// next task's frame is rebuilt at ESP-10 with its saved eip/cs/flags, its
// GP registers are restored below that, and the returned ESP is
// GP-registers-base.
func TestScheduleRebuildsFrameAndRegisters(t *testing.T) {
	table := task.NewTable()
	table.Add(&task.Task{
		OpRegisters: task.OpRegisters{EIP: 0x1000, CS: 0x08, ESP: 0x204000},
		Flags:       0x202,
		GPRegisters: task.GPRegisters{EAX: 1, EBX: 2, ECX: 3, EDX: 4, ESI: 5, EDI: 6, EBP: 7},
	})
	table.Add(&task.Task{
		OpRegisters: task.OpRegisters{EIP: 0x9000, CS: 0x08, ESP: 0x208000},
		Flags:       0x202,
		GPRegisters: task.GPRegisters{EAX: 10, EBX: 20, ECX: 30, EDX: 40, ESI: 50, EDI: 60, EBP: 70},
	})

	mem := memory.NewRegion(0x200000, 0x10000)
	const framePtr = 0x200000
	const regsPtr = 0x200010

	pick := task.NewRoundRobin(0, 1)
	s := New(table, 1, pick.Next) // quota 1: every tick switches

	// Tick 1: first schedule, selects task 0; no snapshot (no prior task),
	// task 0's frame is rebuilt on its own stack.
	s.Schedule(mem, framePtr, regsPtr)
	require.Equal(t, task.TID(0), s.CurrentTID())

	// Tick 2: task 0's quota (1) is already exhausted, so this call snapshots
	// task 0 from framePtr/regsPtr and switches to task 1, rebuilding task
	// 1's frame at task1.ESP - frameSize.
	wantFrameBase := uintptr(0x208000) - frameSize
	wantGPBase := wantFrameBase - task.GPRegistersSize

	tailSwitch, newESP := s.Schedule(mem, framePtr, regsPtr)
	require.True(t, tailSwitch)
	assert.Equal(t, task.TID(1), s.CurrentTID())
	assert.Equal(t, wantGPBase, newESP)

	assert.Equal(t, uint32(0x9000), mem.Uint32(wantFrameBase+eipOff))
	assert.Equal(t, uint16(0x08), mem.Uint16(wantFrameBase+csOff))
	assert.Equal(t, uint32(0x202), mem.Uint32(wantFrameBase+flagsOff))

	gotGP := readGPRegisters(mem, wantGPBase)
	assert.Equal(t, task.GPRegisters{EAX: 10, EBX: 20, ECX: 30, EDX: 40, ESI: 50, EDI: 60, EBP: 70}, gotGP)
}

// TestScheduleNoRunnableTaskPanics checks that if pick_next_tid returns no
// runnable task, the scheduler must not silently continue.
func TestScheduleNoRunnableTaskPanics(t *testing.T) {
	table := task.NewTable()
	table.Add(&task.Task{OpRegisters: task.OpRegisters{ESP: 0x204000}})

	mem := memory.NewRegion(0x200000, 0x10000)
	alwaysNone := func(task.TID) task.TID { return task.NoTask }
	s := New(table, 3, alwaysNone)

	assert.Panics(t, func() {
		s.Schedule(mem, 0x200000, 0x200010)
	})
}
