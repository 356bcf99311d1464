package vm

import (
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/rvsandbox/rvgo/machine"
	"github.com/ethereum-optimism/rvsandbox/rvgo/vmctx"
)

// Builder assembles a DefaultMachine. Syscall modules are consulted in the
// order they are added; Debugger and InstructionCycleFunc replace earlier calls.
type Builder struct {
	core   *machine.CoreMachine
	ctx    vmctx.Chain
	logger log.Logger
}

func NewBuilder(core *machine.CoreMachine) *Builder {
	return &Builder{core: core, ctx: vmctx.NewChain(vmctx.Noop{})}
}

// Context sets the base context. Hooks added before are kept.
func (b *Builder) Context(base vmctx.ExecutionContext) *Builder {
	b.ctx = b.ctx.WithBase(base)
	return b
}

func (b *Builder) Syscall(module vmctx.Syscalls) *Builder {
	b.ctx = vmctx.WithSyscalls(b.ctx, module)
	return b
}

func (b *Builder) SyscallFunc(fn vmctx.SyscallFunc) *Builder {
	b.ctx = vmctx.WithSyscall(b.ctx, fn)
	return b
}

func (b *Builder) Debugger(fn vmctx.DebugFunc) *Builder {
	b.ctx = vmctx.WithDebugger(b.ctx, fn)
	return b
}

func (b *Builder) InstructionCycleFunc(fn vmctx.CyclesFunc) *Builder {
	b.ctx = vmctx.WithCycles(b.ctx, fn)
	return b
}

func (b *Builder) Logger(l log.Logger) *Builder {
	b.logger = l
	return b
}

func (b *Builder) Build() *DefaultMachine {
	return NewDefaultMachine(b.core, b.ctx, b.logger)
}
