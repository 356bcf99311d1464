package cmd

import (
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/rvsandbox/rvgo/config"
	"github.com/ethereum-optimism/rvsandbox/rvgo/machine"
	"github.com/ethereum-optimism/rvsandbox/rvgo/memory"
	"github.com/ethereum-optimism/rvsandbox/rvgo/riscv"
	"github.com/ethereum-optimism/rvsandbox/rvgo/syscalls"
	"github.com/ethereum-optimism/rvsandbox/rvgo/vm"
	"github.com/ethereum-optimism/rvsandbox/rvgo/vmctx"
)

// Host is what a machine talks to outside of its memory.
type Host struct {
	Log    log.Logger
	Stdout io.Writer
	Stderr io.Writer
	// Oracle serves the preimage syscall module. It may be nil when the module is not enabled.
	Oracle syscalls.PreimageOracle
}

// BuildMachine assembles a machine over mem with the syscall modules and
// cost function named by cfg.
func BuildMachine(cfg *config.Config, mem memory.Memory, host Host) (*vm.DefaultMachine, error) {
	if host.Log == nil {
		host.Log = log.Root()
	}
	b := vm.NewBuilder(machine.NewCoreMachine(mem, cfg.MaxCycles)).
		Logger(host.Log).
		InstructionCycleFunc(vmctx.FixedCycles(cfg.CyclesPerInstruction)).
		Debugger(logRegisters(host.Log))
	for _, name := range cfg.Syscalls {
		switch name {
		case config.SyscallDebug:
			b.Syscall(syscalls.NewDebug(host.Stderr))
		case config.SyscallExit:
			b.Syscall(syscalls.NewExit(host.Log))
		case config.SyscallStdio:
			b.Syscall(syscalls.NewStdio(host.Stdout, host.Stderr))
		case config.SyscallPreimage:
			if host.Oracle == nil {
				return nil, fmt.Errorf("syscall module %q needs a pre-image oracle", name)
			}
			b.Syscall(syscalls.NewPreimage(host.Oracle, host.Log))
		case config.SyscallBadFd:
			b.SyscallFunc(syscalls.BadFd)
		default:
			return nil, fmt.Errorf("unknown syscall module %q", name)
		}
	}
	return b.Build(), nil
}

func logRegisters(l log.Logger) vmctx.DebugFunc {
	return func(m machine.Machine) error {
		ctx := []any{"pc", HexU64(m.PC()), "cycles", m.Cycles()}
		for i := 1; i < riscv.RegisterCount; i++ {
			ctx = append(ctx, fmt.Sprintf("x%d", i), HexU64(m.Register(i)))
		}
		l.Info("ebreak", ctx...)
		return nil
	}
}
