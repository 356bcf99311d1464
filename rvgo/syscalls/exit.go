package syscalls

import (
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/rvsandbox/rvgo/machine"
	"github.com/ethereum-optimism/rvsandbox/rvgo/riscv"
)

// Exit stops the machine on exit and exit_group. The exit code stays in a0.
type Exit struct {
	log log.Logger

	Exited   bool
	ExitCode uint64
}

func NewExit(logger log.Logger) *Exit {
	return &Exit{log: logger}
}

func (e *Exit) Initialize(machine.Machine) error {
	e.Exited = false
	e.ExitCode = 0
	return nil
}

func (e *Exit) Ecall(m machine.Machine) (bool, error) {
	switch m.Register(riscv.A7) {
	case riscv.SysExit, riscv.SysExitGroup:
	default:
		return false, nil
	}
	e.Exited = true
	e.ExitCode = m.Register(riscv.A0)
	m.SetRunning(false)
	e.log.Info("Program exited", "code", e.ExitCode, "cycles", m.Cycles())
	return true, nil
}
