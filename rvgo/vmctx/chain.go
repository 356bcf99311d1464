package vmctx

import (
	"github.com/ethereum-optimism/rvsandbox/rvgo/machine"
	"github.com/ethereum-optimism/rvsandbox/rvgo/riscv"
)

// Chain is a base context plus the hooks attached on top of it.
// Chains are values: attaching a hook returns a new Chain and leaves the
// one it was built from untouched.
type Chain struct {
	base     ExecutionContext
	syscalls []Syscalls
	debugger DebugFunc
	cycles   CyclesFunc
}

var _ ExecutionContext = Chain{}

// NewChain starts a chain on top of base. A nil base behaves like Noop.
func NewChain(base ExecutionContext) Chain {
	if base == nil {
		base = Noop{}
	}
	if c, ok := base.(Chain); ok {
		return c
	}
	return Chain{base: base}
}

// WithSyscall attaches fn after every syscall handler already in ctx.
// It panics if fn is nil.
func WithSyscall(ctx ExecutionContext, fn SyscallFunc) Chain {
	return WithSyscalls(ctx, fn)
}

// WithSyscalls attaches module after every syscall handler already in ctx.
// It panics if module is nil.
func WithSyscalls(ctx ExecutionContext, module Syscalls) Chain {
	if fn, ok := module.(SyscallFunc); module == nil || ok && fn == nil {
		panic("vmctx: nil syscall handler")
	}
	c := NewChain(ctx)
	syscalls := make([]Syscalls, len(c.syscalls), len(c.syscalls)+1)
	copy(syscalls, c.syscalls)
	c.syscalls = append(syscalls, module)
	return c
}

// WithDebugger installs fn as the ebreak handler, replacing any previous one.
// The slot cannot be cleared: fn must not be nil.
func WithDebugger(ctx ExecutionContext, fn DebugFunc) Chain {
	if fn == nil {
		panic("vmctx: nil debugger")
	}
	c := NewChain(ctx)
	c.debugger = fn
	return c
}

// WithCycles installs fn as the cost function, replacing any previous one.
// The slot cannot be cleared: fn must not be nil.
func WithCycles(ctx ExecutionContext, fn CyclesFunc) Chain {
	if fn == nil {
		panic("vmctx: nil cost function")
	}
	c := NewChain(ctx)
	c.cycles = fn
	return c
}

// WithBase returns a copy of c that runs its hooks on top of base instead.
func (c Chain) WithBase(base ExecutionContext) Chain {
	c.base = base
	return c
}

func (c Chain) baseContext() ExecutionContext {
	if c.base == nil {
		return Noop{}
	}
	return c.base
}

func (c Chain) Initialize(m machine.Machine) error {
	if err := c.baseContext().Initialize(m); err != nil {
		return err
	}
	for _, s := range c.syscalls {
		if err := s.Initialize(m); err != nil {
			return err
		}
	}
	return nil
}

func (c Chain) Ecall(m machine.Machine) (bool, error) {
	processed, err := c.baseContext().Ecall(m)
	if err != nil || processed {
		return processed, err
	}
	for _, s := range c.syscalls {
		processed, err := s.Ecall(m)
		if err != nil || processed {
			return processed, err
		}
	}
	return false, nil
}

func (c Chain) Ebreak(m machine.Machine) error {
	if c.debugger != nil {
		return c.debugger(m)
	}
	return c.baseContext().Ebreak(m)
}

func (c Chain) InstructionCycles(inst riscv.Instruction) uint64 {
	if c.cycles != nil {
		return c.cycles(inst)
	}
	return c.baseContext().InstructionCycles(inst)
}

func (c Chain) SyscallCount() int {
	return len(c.syscalls)
}

func (c Chain) HasDebugger() bool {
	return c.debugger != nil
}

func (c Chain) HasCycles() bool {
	return c.cycles != nil
}
