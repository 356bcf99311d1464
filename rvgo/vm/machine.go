package vm

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/rvsandbox/rvgo/machine"
	"github.com/ethereum-optimism/rvsandbox/rvgo/riscv"
	"github.com/ethereum-optimism/rvsandbox/rvgo/vmctx"
)

var (
	ErrCyclesExceeded = errors.New("vm: cycles exceeded")
	ErrCyclesOverflow = errors.New("vm: cycles overflow")
	ErrNoMemoryState  = errors.New("vm: state has no memory snapshot")
)

// InvalidEcallError is returned when no syscall handler processed an ecall.
type InvalidEcallError struct {
	Code uint64
}

func (e *InvalidEcallError) Error() string {
	return fmt.Sprintf("vm: invalid ecall %d", e.Code)
}

// DefaultMachine binds a CoreMachine to an execution context. The instruction
// dispatcher calls Ecall, Ebreak and AddCycles; the context decides what they do.
type DefaultMachine struct {
	*machine.CoreMachine

	ctx vmctx.ExecutionContext
	log log.Logger
}

func NewDefaultMachine(core *machine.CoreMachine, ctx vmctx.ExecutionContext, logger log.Logger) *DefaultMachine {
	if ctx == nil {
		ctx = vmctx.Noop{}
	}
	if logger == nil {
		logger = log.Root()
	}
	return &DefaultMachine{CoreMachine: core, ctx: ctx, log: logger}
}

func (m *DefaultMachine) Context() vmctx.ExecutionContext {
	return m.ctx
}

// Initialize runs the context setup hooks and marks the machine running.
func (m *DefaultMachine) Initialize() error {
	if err := m.ctx.Initialize(m); err != nil {
		return fmt.Errorf("failed to initialize execution context: %w", err)
	}
	m.SetRunning(true)
	return nil
}

func (m *DefaultMachine) Ecall() error {
	code := m.Register(riscv.A7)
	processed, err := m.ctx.Ecall(m)
	if err != nil {
		return err
	}
	if !processed {
		m.log.Debug("Unhandled ecall", "code", code, "pc", m.PC())
		return &InvalidEcallError{Code: code}
	}
	m.log.Trace("Handled ecall", "code", code)
	return nil
}

func (m *DefaultMachine) Ebreak() error {
	m.log.Trace("Ebreak", "pc", m.PC())
	return m.ctx.Ebreak(m)
}

// AddCycles charges the cost of inst. The counter is updated only when the
// new total fits the limit.
func (m *DefaultMachine) AddCycles(inst riscv.Instruction) error {
	total, carry := bits.Add64(m.Cycles(), m.ctx.InstructionCycles(inst), 0)
	if carry != 0 {
		return ErrCyclesOverflow
	}
	if total > m.MaxCycles() {
		return fmt.Errorf("%w: %d > %d", ErrCyclesExceeded, total, m.MaxCycles())
	}
	m.SetCycles(total)
	return nil
}
