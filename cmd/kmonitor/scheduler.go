package main

import (
	"github.com/nagayev/kcore/internal/config"
	"github.com/nagayev/kcore/internal/memory"
	"github.com/nagayev/kcore/internal/sched"
	"github.com/nagayev/kcore/internal/task"
)

// scheduler bundles the pieces kmonitor's `tick`/`tasks` commands need: the
// task table, a round-robin policy over demoTaskCount demo tasks, the
// sched.Scheduler itself, and the simulated memory arena their stacks and
// interrupt frames live in. It sits just past the heap's own address range
// so the two subsystems never overlap.
type scheduler struct {
	table *task.Table
	s     *sched.Scheduler
	mem   *memory.Region

	framePtr uintptr
	regsPtr  uintptr
}

func newScheduler(boot config.Boot) *scheduler {
	table := task.NewTable()

	arenaBase := boot.HeapLimit()
	mem := memory.NewRegion(arenaBase, schedArenaSize)
	stackSpan := schedArenaSize / uintptr(demoTaskCount+1)

	ids := make([]task.TID, demoTaskCount)
	for i := 0; i < demoTaskCount; i++ {
		esp := arenaBase + uintptr(i+1)*stackSpan
		ids[i] = table.Add(&task.Task{
			OpRegisters: task.OpRegisters{EIP: uint32(0x1000 * (i + 1)), CS: 0x08, ESP: esp},
			Flags:       0x202,
		})
	}

	pick := task.NewRoundRobin(ids...)
	// The register block sits directly below the frame, so a frame rebuilt
	// below a saved ESP of framePtr+10 stays inside the arena.
	return &scheduler{
		table:    table,
		s:        sched.New(table, boot.TaskQuota, pick.Next),
		mem:      mem,
		framePtr: arenaBase + task.GPRegistersSize,
		regsPtr:  arenaBase,
	}
}

// tick drives one simulated timer interrupt and reports whether it caused a
// context switch.
func (sc *scheduler) tick() bool {
	switched, _ := sc.s.Schedule(sc.mem, sc.framePtr, sc.regsPtr)
	return switched
}
