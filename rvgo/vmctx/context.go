// Package vmctx holds the hooks a host plugs into a machine: syscall
// handlers reached through ecall, the ebreak debugger, and the per
// instruction cost function.
package vmctx

import (
	"github.com/ethereum-optimism/rvsandbox/rvgo/machine"
	"github.com/ethereum-optimism/rvsandbox/rvgo/riscv"
)

type ExecutionContext interface {
	Initialize(m machine.Machine) error
	// Ecall reports whether the syscall was handled. An unhandled ecall is
	// passed on to the next handler, if any.
	Ecall(m machine.Machine) (processed bool, err error)
	Ebreak(m machine.Machine) error
	InstructionCycles(inst riscv.Instruction) uint64
}

// Noop handles nothing and charges nothing.
type Noop struct{}

var _ ExecutionContext = Noop{}

func (Noop) Initialize(machine.Machine) error { return nil }

func (Noop) Ecall(machine.Machine) (bool, error) { return false, nil }

func (Noop) Ebreak(machine.Machine) error { return nil }

func (Noop) InstructionCycles(riscv.Instruction) uint64 { return 0 }

// Syscalls is a syscall module. Initialize runs once when the machine is
// initialized, Ecall on every ecall the modules before it left unprocessed.
type Syscalls interface {
	Initialize(m machine.Machine) error
	Ecall(m machine.Machine) (bool, error)
}

// SyscallFunc adapts a plain function into a Syscalls module.
type SyscallFunc func(m machine.Machine) (bool, error)

func (f SyscallFunc) Initialize(machine.Machine) error { return nil }

func (f SyscallFunc) Ecall(m machine.Machine) (bool, error) { return f(m) }

type DebugFunc func(m machine.Machine) error

type CyclesFunc func(inst riscv.Instruction) uint64

// FixedCycles charges n cycles for every instruction.
func FixedCycles(n uint64) CyclesFunc {
	return func(riscv.Instruction) uint64 { return n }
}
