package virtqueue

import "fmt"

// MMIO register offsets, per spec.md §6's VirtIO legacy MMIO layout.
const (
	regMagic           = 0x00
	regVersion         = 0x04
	regDeviceID        = 0x08
	regVendorID        = 0x0C
	regHostFeatures    = 0x10
	regHostFeaturesSel = 0x14
	regGuestFeatures   = 0x20
	regGuestFeatureSel = 0x24
	regGuestPageSize   = 0x28
	regQueueSel        = 0x30
	regQueueNumMax     = 0x34
	regQueueNum        = 0x38
	regQueueAlign      = 0x3C
	regQueuePFN        = 0x40
	regQueueNotify     = 0x50
	regInterruptStatus = 0x60
	regInterruptAck    = 0x64
	regStatus          = 0x70
	regConfig          = 0x100
)

// Status bits, per the VirtIO spec.
const (
	StatusAcknowledge uint32 = 1 << 0
	StatusDriver      uint32 = 1 << 1
	StatusFeaturesOK  uint32 = 1 << 3
	StatusDriverOK    uint32 = 1 << 4
	StatusFailed      uint32 = 1 << 7
)

const interruptStatusUsedBuffer uint32 = 1 << 0

// Regs is the MMIO register surface spec.md §1 names as an external
// collaborator: the memory-mapped device registers themselves. A real
// implementation backs this with volatile loads/stores over the MMIO
// window; the hosted demo harness backs it with an in-memory fake.
type Regs interface {
	ReadReg(offset uint32) uint32
	WriteReg(offset uint32, value uint32)
}

// Device drives one VirtIO legacy MMIO device through Regs.
type Device struct {
	regs   Regs
	queues map[uint32]*SplitVirtqueue
}

// NewDevice wraps regs without touching it; call Init to run the
// negotiation sequence.
func NewDevice(regs Regs) *Device {
	return &Device{regs: regs, queues: make(map[uint32]*SplitVirtqueue)}
}

// Init runs spec.md §4.M's device init sequence: reset, ACKNOWLEDGE,
// DRIVER, feature negotiation, then returns leaving DRIVER_OK unset so
// the caller can configure queues first.
func (d *Device) Init(wantFeatures uint32) error {
	d.regs.WriteReg(regStatus, 0)
	d.regs.WriteReg(regStatus, StatusAcknowledge)
	d.regs.WriteReg(regStatus, StatusAcknowledge|StatusDriver)

	d.regs.WriteReg(regHostFeaturesSel, 0)
	hostFeatures := d.regs.ReadReg(regHostFeatures)
	driverFeatures := hostFeatures & wantFeatures

	d.regs.WriteReg(regGuestFeatureSel, 0)
	d.regs.WriteReg(regGuestFeatures, driverFeatures)
	d.regs.WriteReg(regStatus, StatusAcknowledge|StatusDriver|StatusFeaturesOK)

	if d.regs.ReadReg(regStatus)&StatusFeaturesOK == 0 {
		d.regs.WriteReg(regStatus, StatusFailed)
		return fmt.Errorf("virtqueue: device refused feature set 0x%x", driverFeatures)
	}
	return nil
}

// ConfigureQueue selects queue id, validates it is unconfigured and
// available (queue_num_max non-zero), clamps qsz to queue_num_max,
// allocates its backing SplitVirtqueue, and publishes its PFN, spec.md
// §4.M's "queue configuration" step.
func (d *Device) ConfigureQueue(id uint32, qsz uint16) (*SplitVirtqueue, error) {
	d.regs.WriteReg(regQueueSel, id)
	if d.regs.ReadReg(regQueuePFN) != 0 {
		return nil, fmt.Errorf("virtqueue: queue %d already configured", id)
	}
	maxSize := d.regs.ReadReg(regQueueNumMax)
	if maxSize == 0 {
		return nil, fmt.Errorf("virtqueue: queue %d not available", id)
	}
	if uint32(qsz) > maxSize {
		qsz = uint16(maxSize)
	}

	q, err := New(qsz)
	if err != nil {
		return nil, err
	}

	d.regs.WriteReg(regQueueNum, uint32(qsz))
	d.regs.WriteReg(regQueueAlign, pageSize)
	d.regs.WriteReg(regGuestPageSize, pageSize)
	d.regs.WriteReg(regQueuePFN, uint32(q.PFN()))

	d.queues[id] = q
	return q, nil
}

// DriverOK finalises negotiation by setting the DRIVER_OK status bit.
func (d *Device) DriverOK() {
	status := d.regs.ReadReg(regStatus)
	d.regs.WriteReg(regStatus, status|StatusDriverOK)
}

// Notify writes queue id to the notify register, per spec.md §4.M.
func (d *Device) Notify(queueID uint32) {
	d.regs.WriteReg(regQueueNotify, queueID)
}

// HandleInterrupt implements spec.md §4.M's interrupt handler: read
// interrupt_status, and for every queue with completions pending, poll
// and wake; finally acknowledge by writing the status mask back.
func (d *Device) HandleInterrupt() map[uint32][]Completion {
	status := d.regs.ReadReg(regInterruptStatus)
	results := make(map[uint32][]Completion)
	if status&interruptStatusUsedBuffer != 0 {
		for id, q := range d.queues {
			if c := q.PollCompletions(); len(c) > 0 {
				results[id] = c
			}
		}
	}
	d.regs.WriteReg(regInterruptAck, status)
	return results
}
