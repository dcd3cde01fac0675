package sched

import "github.com/nagayev/kcore/internal/task"

// Interrupt frame layout: EIP (4 bytes), CS (2 bytes), EFLAGS (4 bytes),
// low to high address, exactly as the hardware pushes it for a 32-bit
// protected-mode interrupt with no privilege change.
const (
	eipOff    = 0
	csOff     = 4
	flagsOff  = 6
	frameSize = 10
)

// readGPRegisters decodes a task.GPRegisters block from mem starting at
// addr, in the trampoline's push order (task.GPRegisters field order).
// This and writeGPRegisters are the sole functions that translate between
// raw stack bytes and the GPRegisters struct. The EIP/CS/EFLAGS frame
// itself is read and written by Schedule using the offsets above.
func readGPRegisters(mem *memRegion, addr uintptr) task.GPRegisters {
	return task.GPRegisters{
		EAX: mem.Uint32(addr + 0),
		EBX: mem.Uint32(addr + 4),
		ECX: mem.Uint32(addr + 8),
		EDX: mem.Uint32(addr + 12),
		ESI: mem.Uint32(addr + 16),
		EDI: mem.Uint32(addr + 20),
		EBP: mem.Uint32(addr + 24),
	}
}

// writeGPRegisters encodes regs into mem starting at addr.
func writeGPRegisters(mem *memRegion, addr uintptr, regs task.GPRegisters) {
	mem.PutUint32(addr+0, regs.EAX)
	mem.PutUint32(addr+4, regs.EBX)
	mem.PutUint32(addr+8, regs.ECX)
	mem.PutUint32(addr+12, regs.EDX)
	mem.PutUint32(addr+16, regs.ESI)
	mem.PutUint32(addr+20, regs.EDI)
	mem.PutUint32(addr+24, regs.EBP)
}
