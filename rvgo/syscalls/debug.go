// Package syscalls has ready made syscall modules for a vmctx chain.
package syscalls

import (
	"fmt"
	"io"

	"github.com/ethereum-optimism/rvsandbox/rvgo/machine"
	"github.com/ethereum-optimism/rvsandbox/rvgo/riscv"
	"github.com/ethereum-optimism/rvsandbox/rvgo/vmctx"
)

// maxDebugLength bounds the string read by Debug when the guest forgets the terminator.
const maxDebugLength = 64 << 10

// Debug prints the NUL-terminated string at a0 when a7 is riscv.SysDebug.
type Debug struct {
	Out io.Writer
}

var _ vmctx.Syscalls = (*Debug)(nil)

func NewDebug(out io.Writer) *Debug {
	return &Debug{Out: out}
}

func (d *Debug) Initialize(machine.Machine) error { return nil }

func (d *Debug) Ecall(m machine.Machine) (bool, error) {
	if m.Register(riscv.A7) != riscv.SysDebug {
		return false, nil
	}
	addr := m.Register(riscv.A0)
	var buf []byte
	for {
		b, err := m.Memory().Load8(addr)
		if err != nil {
			return false, fmt.Errorf("failed to read debug string at %x: %w", addr, err)
		}
		if b == 0 {
			break
		}
		if len(buf) >= maxDebugLength {
			return false, fmt.Errorf("debug string at %x exceeds %d bytes", m.Register(riscv.A0), maxDebugLength)
		}
		buf = append(buf, byte(b))
		addr++
	}
	buf = append(buf, '\n')
	if _, err := d.Out.Write(buf); err != nil {
		return false, fmt.Errorf("failed to write debug output: %w", err)
	}
	return true, nil
}
