// Package blockdev implements the VirtIO block driver and per-request
// future from spec.md §4.M/§4.N: a typed request header, a three
// descriptor chain per request, and a BlockRequestFuture that resolves
// once the device's used ring reports completion.
package blockdev

import (
	"encoding/binary"
	"fmt"

	"github.com/tinyrange/rvkernel/internal/async"
	"github.com/tinyrange/rvkernel/internal/virtqueue"
)

// Request types, per the VirtIO block device spec.
const (
	TypeIn  uint32 = 0 // read from device
	TypeOut uint32 = 1 // write to device
)

// Status byte values the device writes back.
const (
	StatusOK     byte = 0
	StatusIOErr  byte = 1
	StatusUnsupp byte = 2
)

// header is the 16-byte virtio_blk_req header.
type header struct {
	Type     uint32
	Reserved uint32
	Sector   uint64
}

func (h header) marshal() []byte {
	b := make([]byte, 16)
	binary.LittleEndian.PutUint32(b[0:4], h.Type)
	binary.LittleEndian.PutUint32(b[4:8], h.Reserved)
	binary.LittleEndian.PutUint64(b[8:16], h.Sector)
	return b
}

// phase is BlockRequestFuture's three-state lifecycle from spec.md §4.M.
type phase int

const (
	unsubmitted phase = iota
	submittedPending
	complete
)

// Request is one in-flight block I/O request plus the future tracking
// its completion.
type Request struct {
	Sector uint64
	Buffer []byte // caller-owned; device reads into it (TypeIn) or from it (TypeOut)
	Write  bool

	headerBytes []byte
	status      []byte
	head        uint16
	phase       phase
	queued      bool
	result      error
}

// BlockRequestFuture adapts *Request to async.Future.
type BlockRequestFuture struct {
	req *Request
}

// NewFuture wraps req.
func NewFuture(req *Request) *BlockRequestFuture { return &BlockRequestFuture{req: req} }

// Submit builds the three-descriptor chain (status, buffer, header;
// built tail-first per spec.md §4.M) and makes it available on q,
// registering waker as the per-descriptor completion waker.
func Submit(q *virtqueue.SplitVirtqueue, req *Request, waker async.Waker) error {
	reqType := TypeIn
	if req.Write {
		reqType = TypeOut
	}
	req.headerBytes = header{Type: reqType, Sector: req.Sector}.marshal()
	req.status = make([]byte, 1)

	statusIdx, err := q.AllocDesc(addrOf(req.status), 1, true, 0, false)
	if err != nil {
		return fmt.Errorf("blockdev: alloc status descriptor: %w", err)
	}
	bufWrite := !req.Write // device writes into the buffer on a read
	bufIdx, err := q.AllocDesc(addrOf(req.Buffer), uint32(len(req.Buffer)), bufWrite, statusIdx, true)
	if err != nil {
		return fmt.Errorf("blockdev: alloc buffer descriptor: %w", err)
	}
	headerIdx, err := q.AllocDesc(addrOf(req.headerBytes), uint32(len(req.headerBytes)), false, bufIdx, true)
	if err != nil {
		return fmt.Errorf("blockdev: alloc header descriptor: %w", err)
	}

	req.head = headerIdx
	req.phase = submittedPending
	q.MakeAvailable(headerIdx, func() {
		req.phase = complete
		waker.Wake()
	})
	req.queued = true
	return nil
}

// Poll implements async.Future: Pending until the device's completion
// waker has flipped the request to complete, then Ready(req.result):
// nil when the device wrote StatusOK into the status byte, otherwise an
// error carrying the status value.
func (f *BlockRequestFuture) Poll(w async.Waker) async.PollResult {
	switch f.req.phase {
	case unsubmitted:
		return async.Pending
	case submittedPending:
		return async.Pending
	default:
		if f.req.status[0] != StatusOK {
			f.req.result = fmt.Errorf("blockdev: device reported status %d", f.req.status[0])
		}
		return async.Ready(f.req.result)
	}
}

// addrOf returns a pseudo-address for b suitable for a descriptor's
// Addr field, standing in for a guest-physical address the way
// virtqueue.SplitVirtqueue.PFN does for the queue's own backing memory.
func addrOf(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	return uint64(ptrAddr(&b[0]))
}
