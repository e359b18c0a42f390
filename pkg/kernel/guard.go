package kernel

import "fmt"

// RAMBase is the address the stack arena is mapped at.
const RAMBase uint32 = 0x2000_0000

var canary = [4]byte{0xef, 0xbe, 0xad, 0xde}

// stackArena is the statically reserved memory holding every task stack.
// Slot n owns [RAMBase+n*slotSize, RAMBase+(n+1)*slotSize).
type stackArena struct {
	mem       []byte
	slotSize  uint32
	guardSize uint32
}

func newStackArena(slots int, slotSize, guardSize uint32) stackArena {
	return stackArena{
		mem:       make([]byte, uint32(slots)*slotSize),
		slotSize:  slotSize,
		guardSize: guardSize,
	}
}

func (a *stackArena) slotTop(slot int) uint32 {
	return RAMBase + uint32(slot+1)*a.slotSize
}

func (a *stackArena) offset(addr uint32) uint32 {
	return addr - RAMBase
}

// bytes returns the memory in [from, to).
func (a *stackArena) bytes(from, to uint32) []byte {
	return a.mem[a.offset(from):a.offset(to):a.offset(to)]
}

// boundary is the lowest address a task may write to.
func (a *stackArena) boundary(t *Task) uint32 {
	return t.stackBase + a.guardSize
}

// reset zeroes the task's stack region, refills the guard canary and moves
// the stack pointer back to the top.
func (a *stackArena) reset(t *Task) {
	region := a.bytes(t.stackBase, t.stackTop)
	for n := range region {
		region[n] = 0
	}
	guard := a.bytes(t.stackBase, a.boundary(t))
	for n := range guard {
		guard[n] = canary[n%len(canary)]
	}
	t.sp = t.stackTop
	t.lowWater = t.stackTop
}

// check validates the stack pointer and the guard canary of a task.
func (a *stackArena) check(t *Task) *StackOverflowError {
	boundary := a.boundary(t)
	if t.sp < boundary || t.sp > t.stackTop {
		return &StackOverflowError{Task: t.id, SP: t.sp, Boundary: boundary}
	}
	guard := a.bytes(t.stackBase, boundary)
	for n, b := range guard {
		if b != canary[n%len(canary)] {
			return &StackOverflowError{Task: t.id, SP: t.sp, Boundary: boundary, Corrupted: true}
		}
	}
	return nil
}

// checkWrite flags a write of size bytes at addr before it happens.
func (a *stackArena) checkWrite(t *Task, addr, size uint32) *StackOverflowError {
	boundary := a.boundary(t)
	if addr < boundary || addr > t.stackTop || size > t.stackTop-addr {
		return &StackOverflowError{Task: t.id, SP: addr, Boundary: boundary}
	}
	return nil
}

// WriteMemory writes raw bytes into the stack arena, bypassing the stack
// guard, the way a debug probe would. It is meant for fault injection.
func (k *Kernel) WriteMemory(addr uint32, data []byte) error {
	k.mask.Lock()
	defer k.mask.Unlock()
	end := uint64(addr) + uint64(len(data))
	if addr < RAMBase || end > uint64(RAMBase)+uint64(len(k.arena.mem)) {
		return fmt.Errorf("address range 0x%08x-0x%08x outside stack arena", addr, end)
	}
	copy(k.arena.bytes(addr, uint32(end)), data)
	return nil
}

// CorruptGuard overwrites the first word of a task's guard region.
func (k *Kernel) CorruptGuard(id TaskID) error {
	info, ok := k.Task(id)
	if !ok {
		return fmt.Errorf("task %d not found", id)
	}
	return k.WriteMemory(info.StackBase, []byte{0, 0, 0, 0})
}
