// Package virtqueue implements the VirtIO legacy MMIO split-virtqueue
// driver from spec.md §4.M: device negotiation, descriptor chain
// allocation, the available/used ring protocol, and per-descriptor
// wakers for completion.
//
// The split virtqueue is backing-memory-real even in the hosted
// simulation: its three regions (descriptor table, available ring, used
// ring) are laid out in a single page-aligned mapping obtained through
// golang.org/x/sys/unix.Mmap, the same way tinyrange-cc's ccvm maps
// guest RAM, so pointer arithmetic over descriptor/ring offsets behaves
// identically to a real device driver walking guest-physical memory.
package virtqueue

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	pageSize = 4096

	descNext  = uint16(1 << 0)
	descWrite = uint16(1 << 1)
)

// Desc is one virtqueue descriptor: 16 bytes, little-endian, per the
// VirtIO legacy spec.
type Desc struct {
	Addr  uint64
	Len   uint32
	Flags uint16
	Next  uint16
}

const descSize = 16

// SplitVirtqueue is the three-region shared-memory ring from spec.md
// §4.M, backed by one mmap'd, page-aligned allocation.
type SplitVirtqueue struct {
	QueueSize uint16

	mem []byte

	descOff  int
	availOff int
	usedOff  int

	usedCursor uint16
	wakers     map[uint16]func() // descriptor head index -> completion waker
}

// layout mirrors the VirtIO legacy spec's fixed offsets within one
// queue's region: descriptor table, then avail ring (flags, idx, then
// qsz * ring entries, then used_event), then padding up to a page
// boundary, then used ring (flags, idx, then qsz * used elements, then
// avail_event).
func layout(qsz uint16) (descOff, availOff, usedOff, total int) {
	descOff = 0
	availBytes := 4 + 2*int(qsz) + 2
	availOff = descOff + int(qsz)*descSize
	usedRegionStart := availOff + availBytes
	usedOff = align(usedRegionStart, pageSize)
	usedBytes := 4 + 8*int(qsz) + 2
	total = align(usedOff+usedBytes, pageSize)
	return
}

func align(n, a int) int { return (n + a - 1) &^ (a - 1) }

// New allocates a page-aligned SplitVirtqueue of qsz descriptors using
// an anonymous mmap region, zero-initialised per spec.md §4.M's "queue
// configuration" step.
func New(qsz uint16) (*SplitVirtqueue, error) {
	descOff, availOff, usedOff, total := layout(qsz)
	mem, err := unix.Mmap(-1, 0, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("virtqueue: mmap %d bytes: %w", total, err)
	}
	return &SplitVirtqueue{
		QueueSize: qsz,
		mem:       mem,
		descOff:   descOff,
		availOff:  availOff,
		usedOff:   usedOff,
		wakers:    make(map[uint16]func()),
	}, nil
}

// Close unmaps the backing memory.
func (q *SplitVirtqueue) Close() error {
	return unix.Munmap(q.mem)
}

// PFN returns the "page frame number" the device's queue_pfn register
// expects: the base address of the mapping divided by the page size,
// per spec.md §4.M's queue-configuration step. There is no separate
// guest-physical address space underneath this hosted mapping, so the
// mmap'd slice's own address stands in for it, same as tinyrange-cc's
// ccvm treats a host mmap region as guest RAM directly.
func (q *SplitVirtqueue) PFN() uint64 {
	return uint64(uintptr(unsafe.Pointer(&q.mem[0]))) / pageSize
}

func (q *SplitVirtqueue) descAt(i uint16) Desc {
	off := q.descOff + int(i)*descSize
	b := q.mem[off : off+descSize]
	return Desc{
		Addr:  binary.LittleEndian.Uint64(b[0:8]),
		Len:   binary.LittleEndian.Uint32(b[8:12]),
		Flags: binary.LittleEndian.Uint16(b[12:14]),
		Next:  binary.LittleEndian.Uint16(b[14:16]),
	}
}

func (q *SplitVirtqueue) setDescAt(i uint16, d Desc) {
	off := q.descOff + int(i)*descSize
	b := q.mem[off : off+descSize]
	binary.LittleEndian.PutUint64(b[0:8], d.Addr)
	binary.LittleEndian.PutUint32(b[8:12], d.Len)
	binary.LittleEndian.PutUint16(b[12:14], d.Flags)
	binary.LittleEndian.PutUint16(b[14:16], d.Next)
}

// AllocDesc finds the first free descriptor slot (address == 0, per
// spec.md §4.M) and fills it, linking it to next if linked is true.
// Chains are built tail-first: callers allocate the tail before the
// descriptors that point to it.
func (q *SplitVirtqueue) AllocDesc(addr uint64, length uint32, write bool, next uint16, linked bool) (uint16, error) {
	for i := uint16(0); i < q.QueueSize; i++ {
		if q.descAt(i).Addr == 0 {
			flags := uint16(0)
			if write {
				flags |= descWrite
			}
			if linked {
				flags |= descNext
			}
			q.setDescAt(i, Desc{Addr: addr, Len: length, Flags: flags, Next: next})
			return i, nil
		}
	}
	return 0, fmt.Errorf("virtqueue: no free descriptor (queue size %d exhausted)", q.QueueSize)
}

// FreeChain walks a descriptor chain starting at head, zeroing each
// Addr to mark it free again, per spec.md §4.M's "reclaim" step.
func (q *SplitVirtqueue) FreeChain(head uint16) {
	i := head
	for {
		d := q.descAt(i)
		next := d.Next
		hasNext := d.Flags&descNext != 0
		d.Addr = 0
		q.setDescAt(i, d)
		if !hasNext {
			return
		}
		i = next
	}
}

func (q *SplitVirtqueue) availFlags() uint16 {
	return binary.LittleEndian.Uint16(q.mem[q.availOff : q.availOff+2])
}

func (q *SplitVirtqueue) availIdx() uint16 {
	return binary.LittleEndian.Uint16(q.mem[q.availOff+2 : q.availOff+4])
}

func (q *SplitVirtqueue) setAvailIdx(v uint16) {
	binary.LittleEndian.PutUint16(q.mem[q.availOff+2:q.availOff+4], v)
}

func (q *SplitVirtqueue) availRingSlot(i uint16) int {
	return q.availOff + 4 + int(i)*2
}

// MakeAvailable publishes head as a newly-submitted request: writes it
// into the next avail ring slot, advances avail_idx (wrapping modulo
// queue size), and registers waker to be called on completion,
// spec.md §4.M's "make available" step. A full fence is required around
// this on real hardware before the notify write; FenceRW is the
// caller's responsibility (trap/interrupt context already holds the
// device lock when this runs).
func (q *SplitVirtqueue) MakeAvailable(head uint16, waker func()) {
	idx := q.availIdx()
	slot := idx % q.QueueSize
	binary.LittleEndian.PutUint16(q.mem[q.availRingSlot(slot):q.availRingSlot(slot)+2], head)
	q.setAvailIdx((idx + 1) % q.QueueSize)
	if waker != nil {
		q.wakers[head] = waker
	}
}

func (q *SplitVirtqueue) usedIdx() uint16 {
	return binary.LittleEndian.Uint16(q.mem[q.usedOff+2 : q.usedOff+4])
}

func (q *SplitVirtqueue) setUsedIdx(v uint16) {
	binary.LittleEndian.PutUint16(q.mem[q.usedOff+2:q.usedOff+4], v)
}

func (q *SplitVirtqueue) usedElem(i uint16) (id uint32, length uint32) {
	off := q.usedOff + 4 + int(i)*8
	return binary.LittleEndian.Uint32(q.mem[off : off+4]), binary.LittleEndian.Uint32(q.mem[off+4 : off+8])
}

func (q *SplitVirtqueue) setUsedElem(i uint16, id uint32, length uint32) {
	off := q.usedOff + 4 + int(i)*8
	binary.LittleEndian.PutUint32(q.mem[off:off+4], id)
	binary.LittleEndian.PutUint32(q.mem[off+4:off+8], length)
}

// CompleteUsed publishes one used-ring entry for head and advances
// used_ring.idx, the host-memory side of a device reporting a
// completed request. Real hardware writes this itself; this method is
// the driver-side counterpart a fake or simulated device needs, since
// nothing outside this package can reach the unexported ring offsets
// PollCompletions reads from.
func (q *SplitVirtqueue) CompleteUsed(head uint16, length uint32) {
	idx := q.usedIdx()
	q.setUsedElem(idx%q.QueueSize, uint32(head), length)
	q.setUsedIdx(idx + 1)
}

// Completion is one reclaimed descriptor chain.
type Completion struct {
	Head   uint16
	Length uint32
}

// PollCompletions compares the device's used_ring.idx against the
// driver-side cursor, reclaims every newly-completed chain, and fires
// its registered waker, spec.md §4.M's "poll for completions" step.
func (q *SplitVirtqueue) PollCompletions() []Completion {
	var out []Completion
	newIdx := q.usedIdx()
	for q.usedCursor != newIdx {
		slot := q.usedCursor % q.QueueSize
		id, length := q.usedElem(slot)
		head := uint16(id)
		q.FreeChain(head)
		if w, ok := q.wakers[head]; ok {
			w()
			delete(q.wakers, head)
		}
		out = append(out, Completion{Head: head, Length: length})
		q.usedCursor++
	}
	return out
}
