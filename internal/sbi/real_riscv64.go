//go:build riscv64

package sbi

import (
	"context"

	"github.com/tinyrange/rvkernel/internal/sbierr"
)

// Extension and function ids, per spec.md §6.
const (
	extTimer = 0x54494d45
	extHSM   = 0x48534d
	extSRST  = 0x53525354

	fnTimerSetTimer = 0

	fnHSMHartStart      = 0
	fnHSMHartGetStatus  = 2

	fnSRSTSystemReset = 0
)

// Real issues ecall instructions through ecall_riscv64.s, the sole place
// this module executes the SBI call ABI for real.
type Real struct{}

func (Real) SetTimer(_ context.Context, absoluteInstant uint64) error {
	errCode, _ := sbiCall(extTimer, fnTimerSetTimer, absoluteInstant, 0, 0)
	return sbierr.AsError(sbierr.FromRaw(errCode))
}

func (Real) HartStart(_ context.Context, hartID uint64, startAddr, opaque uint64) error {
	errCode, _ := sbiCall(extHSM, fnHSMHartStart, hartID, startAddr, opaque)
	return sbierr.AsError(sbierr.FromRaw(errCode))
}

func (Real) HartGetStatus(_ context.Context, hartID uint64) (HartStatus, error) {
	errCode, val := sbiCall(extHSM, fnHSMHartGetStatus, hartID, 0, 0)
	if err := sbierr.AsError(sbierr.FromRaw(errCode)); err != nil {
		return 0, err
	}
	return HartStatus(val), nil
}

func (Real) Shutdown(_ context.Context) error {
	errCode, _ := sbiCall(extSRST, fnSRSTSystemReset, 0, 0, 0)
	return sbierr.AsError(sbierr.FromRaw(errCode))
}

// sbiCall is implemented in ecall_riscv64.s: it loads ext/fn into a7/a6,
// the three arguments into a0..a2, executes ecall, and returns (a0, a1).
//
//go:noescape
func sbiCall(ext, fn uint64, a0, a1, a2 uint64) (errCode int64, value uint64)

var _ Caller = Real{}
