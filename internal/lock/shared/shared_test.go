package shared

import (
	"testing"

	"github.com/tinyrange/rvkernel/internal/csr"
)

func TestLockDisablesInterruptsOutsideIRQContext(t *testing.T) {
	var core csr.Core
	core.WriteSie(csr.DefaultSIEMask)

	var m Mutex
	m.Lock(&core)
	if core.ReadSie() != 0 {
		t.Fatalf("sie should be disabled while shared lock held outside interrupt context")
	}
	m.Unlock(&core)
	if core.ReadSie() != csr.DefaultSIEMask {
		t.Fatalf("sie should be restored to default mask after last shared lock releases")
	}
}

func TestNestedLocksRestoreOnlyAfterLast(t *testing.T) {
	var core csr.Core
	core.WriteSie(csr.DefaultSIEMask)

	var a, b Mutex
	a.Lock(&core)
	b.Lock(&core)
	if core.ReadSie() != 0 {
		t.Fatalf("sie should stay disabled while any shared lock is held")
	}
	b.Unlock(&core)
	if core.ReadSie() != 0 {
		t.Fatalf("sie should remain disabled: outer lock still held")
	}
	a.Unlock(&core)
	if core.ReadSie() != csr.DefaultSIEMask {
		t.Fatalf("sie should be restored once the outermost lock releases")
	}
}
