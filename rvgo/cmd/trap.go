package cmd

import (
	"errors"
	"fmt"
	"os"

	cannon "github.com/ethereum-optimism/optimism/cannon/cmd"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/profile"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/rvsandbox/rvgo/memory"
	"github.com/ethereum-optimism/rvsandbox/rvgo/riscv"
	"github.com/ethereum-optimism/rvsandbox/rvgo/vm"
)

var ErrNotTrap = errors.New("instruction at pc is not ecall or ebreak")

type TrapResult struct {
	Pre  common.Hash `json:"pre"`
	Post common.Hash `json:"post"`

	Kind   string `json:"kind"`
	Cycles uint64 `json:"cycles"`
}

// TrapFn dispatches the trap the machine is stopped at.
type TrapFn func() error

// Guard attributes trap failures to the pre-image server when it has died.
func Guard(po *ProcessPreimageOracle, fn TrapFn) TrapFn {
	return func() error {
		err := fn()
		if err != nil {
			if exited, code := po.Exited(); exited {
				return fmt.Errorf("pre-image server exited with code %d, resulting in err %w", code, err)
			}
			return err
		}
		return nil
	}
}

// Trap charges and dispatches the ecall or ebreak at the pc of a saved
// state, then moves past it.
func Trap(ctx *cli.Context) error {
	if ctx.Bool(cannon.RunPProfCPU.Name) {
		defer profile.Start(profile.NoShutdownHook, profile.ProfilePath("."), profile.CPUProfile).Stop()
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	state, err := cannon.LoadJSON[vm.State](ctx.Path(cannon.RunInputFlag.Name))
	if err != nil {
		return err
	}
	if state.Memory == nil {
		return vm.ErrNoMemoryState
	}
	// the memory is shaped by the state, the config only picks its kind
	cfg.Memory.Size = uint64(state.Memory.MemorySize)
	if err := cfg.Check(); err != nil {
		return err
	}

	l, err := ConfiguredLogger(os.Stderr, cfg.Log)
	if err != nil {
		return err
	}
	outLog := &LoggingWriter{Name: "program std-out", Log: l}
	errLog := &LoggingWriter{Name: "program std-err", Log: l}

	// split CLI args after first '--'
	args := ctx.Args().Slice()
	for i, arg := range args {
		if arg == "--" {
			args = args[i+1:]
			break
		}
	}
	if len(args) == 0 {
		args = []string{""}
	}

	po, err := NewProcessPreimageOracle(args[0], args[1:])
	if err != nil {
		return fmt.Errorf("failed to create pre-image oracle process: %w", err)
	}
	if err := po.Start(); err != nil {
		return fmt.Errorf("failed to start pre-image oracle server: %w", err)
	}
	defer func() {
		if err := po.Close(); err != nil {
			l.Error("failed to close pre-image server", "err", err)
		}
	}()

	meta := &Metadata{}
	if metaPath := ctx.Path(cannon.RunMetaFlag.Name); metaPath != "" {
		if meta, err = cannon.LoadJSON[Metadata](metaPath); err != nil {
			return fmt.Errorf("failed to load metadata: %w", err)
		}
	}

	m, err := BuildMachine(cfg, cfg.NewMemory(), Host{Log: l, Stdout: outLog, Stderr: errLog, Oracle: po})
	if err != nil {
		return err
	}
	if err := m.Initialize(); err != nil {
		return err
	}
	if err := m.Restore(state); err != nil {
		return fmt.Errorf("failed to restore state: %w", err)
	}
	if !m.Running() {
		return errors.New("machine is not running")
	}
	pre, err := state.Hash()
	if err != nil {
		return fmt.Errorf("failed to hash pre-state: %w", err)
	}

	pc := m.PC()
	inst, err := m.Memory().ExecuteLoad32(pc)
	if err != nil {
		return fmt.Errorf("failed to fetch instruction at %016x: %w", pc, err)
	}
	var kind string
	var trap TrapFn
	switch inst {
	case riscv.InstrEcall:
		kind, trap = "ecall", m.Ecall
	case riscv.InstrEbreak:
		kind, trap = "ebreak", m.Ebreak
	default:
		return fmt.Errorf("%w: %08x at %016x", ErrNotTrap, inst, pc)
	}
	l.Info("Dispatching trap", "kind", kind, "pc", HexU64(pc), "insn", HexU32(inst), "a7", m.Register(riscv.A7), "name", meta.LookupSymbol(pc))

	if err := m.AddCycles(riscv.Instruction(inst)); err != nil {
		return fmt.Errorf("failed to charge %s at %016x: %w", kind, pc, err)
	}
	if err := ctx.Context.Err(); err != nil {
		return err
	}
	if err := Guard(po, trap)(); err != nil {
		return fmt.Errorf("failed at %s (PC: %016x): %w", kind, pc, err)
	}
	m.SetPC(pc + 4)

	post, err := m.State()
	if err != nil {
		return err
	}
	postHash, err := post.Hash()
	if err != nil {
		return fmt.Errorf("failed to hash post-state: %w", err)
	}
	if err := cannon.WriteJSON(ctx.Path(cannon.RunOutputFlag.Name), post); err != nil {
		return fmt.Errorf("failed to write state output: %w", err)
	}
	if resultPath := ctx.Path(TrapResultFlag.Name); resultPath != "" {
		res := &TrapResult{Pre: pre, Post: postHash, Kind: kind, Cycles: m.Cycles()}
		if err := cannon.WriteJSON(resultPath, res); err != nil {
			return fmt.Errorf("failed to write trap result: %w", err)
		}
	}
	l.Info("Trap done", "pre", pre, "post", postHash, "cycles", m.Cycles(), "running", m.Running(), "mem", memoryUsage(m.Memory()))
	return nil
}

func memoryUsage(mem memory.Memory) string {
	if w, ok := mem.(*memory.WXorX); ok {
		mem = w.Inner()
	}
	if s, ok := mem.(*memory.Sparse); ok {
		return fmt.Sprintf("%s in %d pages", s.Usage(), s.PageCount())
	}
	return fmt.Sprintf("%d B flat", mem.MemorySize())
}

var TrapCommand = &cli.Command{
	Name:        "trap",
	Usage:       "Dispatch the ecall or ebreak at the pc of a state",
	Description: "Dispatch the ecall or ebreak at the pc of a state through the configured syscall modules and debugger, and write the post-state. Arguments after '--' start the pre-image server.",
	Action:      Trap,
	Flags: []cli.Flag{
		cannon.RunInputFlag,
		cannon.RunOutputFlag,
		cannon.RunMetaFlag,
		cannon.RunPProfCPU,
		ConfigFlag,
		TrapResultFlag,
	},
}
