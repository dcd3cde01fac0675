// Package kheap implements the kernel boundary-tag free-list allocator: a
// fixed-capacity table of block descriptors, scanned in slot order, that
// services alloc/free requests over a single contiguous address range,
// splitting and coalescing blocks as needed.
//
// The descriptor table is addressed by small integer indices rather than
// pointers: every descriptor is owned by the Heap's entries slice, and
// prev/next are pure relations between slots. This is the relation tinygo
// expresses with its task-queue links (src/internal/task/queue.go's
// Next *Task field), held here as an int index instead of a pointer.
package kheap

import (
	"github.com/nagayev/kcore/internal/kerrors"
)

// noEntry is the sentinel index meaning "no such descriptor."
const noEntry = -1

// entry is one slot of the descriptor table. A zero-value entry is an empty
// slot (isValid == false).
type entry struct {
	isValid bool
	isBusy  bool
	addr    uintptr
	size    uintptr
	prev    int
	next    int
}

// Heap is the kernel heap table plus the address range it manages. There is
// exactly one instance per kernel; callers that want isolated heaps (tests,
// the host monitor) construct their own *Heap rather than sharing
// package-level state.
type Heap struct {
	base    uintptr
	limit   uintptr
	entries []entry

	// checksum is the CRC-16 over the live chain, recomputed after every
	// mutating call. See validate.go.
	checksum uint16
}

// New creates a Heap managing [base, base+size) with capacity descriptor
// slots. The table starts zeroed (empty heap).
func New(base uintptr, size uintptr, capacity int) *Heap {
	h := &Heap{
		base:    base,
		limit:   base + size,
		entries: make([]entry, capacity),
	}
	h.checksum = h.computeChecksum()
	return h
}

// Init re-zeroes the descriptor table. It never runs a self-test in
// production; the allocator's smoke scenarios are reproduced as ordinary
// Go tests in selftest_test.go, driven entirely through Alloc/Free.
func (h *Heap) Init() {
	for i := range h.entries {
		h.entries[i] = entry{}
	}
	h.checksum = h.computeChecksum()
}

// Base returns the first address the heap may hand out.
func (h *Heap) Base() uintptr { return h.base }

// Limit returns one past the last usable address.
func (h *Heap) Limit() uintptr { return h.limit }

// Capacity returns the number of descriptor slots.
func (h *Heap) Capacity() int { return len(h.entries) }

// BlockInfo is a read-only view of one descriptor, for callers (such as the
// host monitor's `dump` command) that want to report heap state without
// reaching into the table's internal representation.
type BlockInfo struct {
	Addr uintptr
	Size uintptr
	Busy bool
}

// Snapshot returns every valid descriptor's BlockInfo, in table order.
func (h *Heap) Snapshot() []BlockInfo {
	var out []BlockInfo
	for i := range h.entries {
		if !h.entries[i].isValid {
			continue
		}
		out = append(out, BlockInfo{Addr: h.entries[i].addr, Size: h.entries[i].size, Busy: h.entries[i].isBusy})
	}
	return out
}

// FreeBytes returns the total size of every free block currently recorded,
// plus the unclaimed span between the highest block's end and Limit.
func (h *Heap) FreeBytes() uintptr {
	heapEnd := h.base
	var free uintptr
	for i := range h.entries {
		if !h.entries[i].isValid {
			continue
		}
		if !h.entries[i].isBusy {
			free += h.entries[i].size
		}
		if right := h.entries[i].addr + h.entries[i].size; right > heapEnd {
			heapEnd = right
		}
	}
	free += h.limit - heapEnd
	return free
}

// findFreeSlot returns the index of an is_valid == false slot, or noEntry.
func (h *Heap) findFreeSlot() int {
	for i := range h.entries {
		if !h.entries[i].isValid {
			return i
		}
	}
	return noEntry
}

// highestEntry returns the index of the valid entry with the highest right
// border (addr+size), or noEntry if the heap has no valid entries. Ties are
// broken with >=: adjacent valid blocks can't actually share a right
// border, but >= keeps a zeroed slot (addr=0, size=0) from ever winning
// against a real entry examined earlier in scan order.
func (h *Heap) highestEntry() int {
	highest := noEntry
	var maxRight uintptr
	for i := range h.entries {
		if !h.entries[i].isValid {
			continue
		}
		right := h.entries[i].addr + h.entries[i].size
		if right >= maxRight {
			maxRight = right
			highest = i
		}
	}
	return highest
}

// Alloc returns an address in [Base, Limit) at which at least size bytes of
// exclusively-owned memory begin. size == 0 is the caller's mistake to
// avoid; this implementation does not special-case it.
func (h *Heap) Alloc(size uintptr) uintptr {
	for i := range h.entries {
		if !h.entries[i].isValid || h.entries[i].isBusy {
			continue
		}
		cur := &h.entries[i]

		switch {
		case cur.size >= size:
			surplus := cur.size - size
			cur.isBusy = true
			cur.size = size
			h.contributeRightSurplus(i, surplus)
			h.recheck()
			return cur.addr

		default: // cur.size < size
			lack := size - cur.size
			if cur.prev != noEntry && !h.entries[cur.prev].isBusy {
				h.growFromLeftSibling(i, lack)
				h.recheck()
				return h.entries[i].addr
			}
			if cur.next == noEntry {
				heapEnd := cur.addr + cur.size
				if heapEnd+lack < h.limit {
					cur.size += lack
					cur.isBusy = true
					h.recheck()
					return cur.addr
				}
			}
			// Neither a left sibling nor trailing room is available;
			// keep scanning for another candidate block.
		}
	}

	return h.appendNew(size)
}

// contributeRightSurplus hands `surplus` bytes of address space immediately
// following entry index `i` to its right neighbor: extending it leftward if
// it is already free, or else carving a brand-new free descriptor between
// `i` and its former right neighbor. If no descriptor slot is available for
// a new sibling, the surplus is silently folded back into the allocated
// block; this is a known quirk of the original allocator, kept rather than
// papered over with a guessed fix.
func (h *Heap) contributeRightSurplus(i int, surplus uintptr) {
	if surplus == 0 {
		return
	}
	cur := &h.entries[i]
	nextIdx := cur.next
	if nextIdx != noEntry && !h.entries[nextIdx].isBusy {
		h.entries[nextIdx].addr -= surplus
		h.entries[nextIdx].size += surplus
		return
	}

	slot := h.findFreeSlot()
	if slot == noEntry {
		// No descriptor available to record the split: hand out the
		// larger-than-requested block as-is. The caller must still
		// free using the returned address.
		cur.size += surplus
		return
	}

	h.entries[slot] = entry{
		isValid: true,
		isBusy:  false,
		addr:    cur.addr + cur.size,
		size:    surplus,
		prev:    i,
		next:    nextIdx,
	}
	if nextIdx != noEntry {
		h.entries[nextIdx].prev = slot
	}
	h.entries[i].next = slot
}

// growFromLeftSibling extends entry i leftward by `lack` bytes borrowed from
// its free left neighbor, collapsing the neighbor if it is consumed
// entirely.
func (h *Heap) growFromLeftSibling(i int, lack uintptr) {
	siblingIdx := h.entries[i].prev
	sibling := &h.entries[siblingIdx]
	sibling.size -= lack
	h.entries[i].addr -= lack
	h.entries[i].size += lack
	h.entries[i].isBusy = true

	if sibling.size == 0 {
		prevIdx := sibling.prev
		if prevIdx != noEntry {
			h.entries[prevIdx].next = i
			h.entries[i].prev = prevIdx
		} else {
			h.entries[i].prev = noEntry
		}
		h.entries[siblingIdx] = entry{}
	}
}

// appendNew grows the heap by allocating a fresh block at the current
// heap_end, the fallback path when no existing block can be reused.
func (h *Heap) appendNew(size uintptr) uintptr {
	heapEnd := h.base
	highest := h.highestEntry()
	if highest != noEntry {
		heapEnd = h.entries[highest].addr + h.entries[highest].size
	}

	if heapEnd+size >= h.limit {
		kerrors.Raise(kerrors.HeapExceed, "alloc(%d) would grow heap past limit %#x (heap_end=%#x)", size, h.limit, heapEnd)
	}

	slot := h.findFreeSlot()
	if slot == noEntry {
		kerrors.Raise(kerrors.HeapTableExceed, "no free descriptor slot for alloc(%d)", size)
	}

	h.entries[slot] = entry{
		isValid: true,
		isBusy:  true,
		addr:    heapEnd,
		size:    size,
		prev:    highest,
		next:    noEntry,
	}
	if highest != noEntry {
		h.entries[highest].next = slot
	}
	h.recheck()
	return heapEnd
}

// Free releases the block whose addr field equals addr, coalescing with a
// free left and/or right neighbor.
func (h *Heap) Free(addr uintptr) {
	for i := range h.entries {
		e := &h.entries[i]
		if !e.isValid || !e.isBusy || e.addr != addr {
			continue
		}

		e.isBusy = false
		cur := i

		if h.entries[cur].prev != noEntry && !h.entries[h.entries[cur].prev].isBusy {
			leftIdx := h.entries[cur].prev
			h.entries[leftIdx].size += h.entries[cur].size
			h.entries[leftIdx].next = h.entries[cur].next
			if h.entries[cur].next != noEntry {
				h.entries[h.entries[cur].next].prev = leftIdx
			}
			h.entries[cur] = entry{}
			cur = leftIdx
		}

		if h.entries[cur].next != noEntry && !h.entries[h.entries[cur].next].isBusy {
			rightIdx := h.entries[cur].next
			h.entries[cur].size += h.entries[rightIdx].size
			h.entries[cur].next = h.entries[rightIdx].next
			if h.entries[cur].next != noEntry {
				h.entries[h.entries[cur].next].prev = cur
			}
			h.entries[rightIdx] = entry{}
		}

		h.recheck()
		return
	}

	kerrors.Raise(kerrors.FreeUnknown, "free called with unknown or non-busy address %#x", addr)
}

// recheck recomputes and stores the integrity checksum after a mutation.
// Structural validation (Validate) is left to callers that want it;
// HEAP_CORRUPT is raised by an explicit validator call, not implicitly on
// every operation.
func (h *Heap) recheck() {
	h.checksum = h.computeChecksum()
}
