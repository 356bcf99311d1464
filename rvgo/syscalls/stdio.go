package syscalls

import (
	"fmt"
	"io"

	"github.com/ethereum-optimism/rvsandbox/rvgo/machine"
	"github.com/ethereum-optimism/rvsandbox/rvgo/riscv"
)

// Stdio serves write(2) on stdout and stderr. Any other fd is left to the
// next module.
type Stdio struct {
	Stdout io.Writer
	Stderr io.Writer
}

func NewStdio(stdout, stderr io.Writer) *Stdio {
	return &Stdio{Stdout: stdout, Stderr: stderr}
}

func (s *Stdio) Initialize(machine.Machine) error { return nil }

func (s *Stdio) Ecall(m machine.Machine) (bool, error) {
	if m.Register(riscv.A7) != riscv.SysWrite {
		return false, nil
	}
	var w io.Writer
	switch m.Register(riscv.A0) {
	case riscv.FdStdout:
		w = s.Stdout
	case riscv.FdStderr:
		w = s.Stderr
	default:
		return false, nil
	}
	addr, count := m.Register(riscv.A1), m.Register(riscv.A2)
	data, err := m.Memory().LoadBytes(addr, count)
	if err != nil {
		return false, fmt.Errorf("failed to read write(2) buffer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return false, fmt.Errorf("failed to write guest output: %w", err)
	}
	// write completes fully in a single call
	m.SetRegister(riscv.A0, count)
	m.SetRegister(riscv.A1, 0)
	return true, nil
}

// BadFd answers read(2) and write(2) on descriptors no earlier module
// claimed with -1 in a0 and EBADF in a1. It belongs at the end of a chain.
func BadFd(m machine.Machine) (bool, error) {
	switch m.Register(riscv.A7) {
	case riscv.SysRead, riscv.SysWrite:
	default:
		return false, nil
	}
	m.SetRegister(riscv.A0, ^uint64(0))
	m.SetRegister(riscv.A1, riscv.ErrnoBadFd)
	return true, nil
}
