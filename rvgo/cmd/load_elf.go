package cmd

import (
	"debug/elf"
	"fmt"
	"os"

	cannon "github.com/ethereum-optimism/optimism/cannon/cmd"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/rvsandbox/rvgo/program"
)

func LoadELF(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	elfPath := ctx.Path(cannon.LoadELFPathFlag.Name)
	elfProgram, err := elf.Open(elfPath)
	if err != nil {
		return fmt.Errorf("failed to open ELF file %q: %w", elfPath, err)
	}
	defer elfProgram.Close()

	l, err := ConfiguredLogger(os.Stderr, cfg.Log)
	if err != nil {
		return err
	}
	m, err := BuildMachine(cfg, cfg.NewMemory(), Host{Log: l, Stdout: os.Stdout, Stderr: os.Stderr, Oracle: &ProcessPreimageOracle{}})
	if err != nil {
		return err
	}
	entry, err := program.LoadELF(elfProgram, m.Memory())
	if err != nil {
		return fmt.Errorf("failed to load ELF data into memory: %w", err)
	}
	m.SetPC(entry)

	stackSize := ctx.Uint64(StackSizeFlag.Name)
	memSize := m.Memory().MemorySize()
	if stackSize > memSize {
		return fmt.Errorf("stack size %d exceeds memory size %d", stackSize, memSize)
	}
	args := append([]string{elfPath}, ctx.Args().Slice()...)
	argv := make([][]byte, len(args))
	for i, a := range args {
		argv[i] = []byte(a)
	}
	sp, err := program.InitStack(m, argv, memSize-stackSize, stackSize)
	if err != nil {
		return fmt.Errorf("failed to initialize stack: %w", err)
	}
	m.SetRunning(true)

	if metaPath := ctx.Path(MetaOutFlag.Name); metaPath != "" {
		meta, err := MakeMetadata(elfProgram)
		if err != nil {
			return fmt.Errorf("failed to compute program metadata: %w", err)
		}
		if err := cannon.WriteJSON(metaPath, meta); err != nil {
			return fmt.Errorf("failed to write metadata: %w", err)
		}
	}

	state, err := m.State()
	if err != nil {
		return err
	}
	l.Info("Loaded ELF", "entry", HexU64(entry), "sp", HexU64(sp), "args", len(args))
	return cannon.WriteJSON(ctx.Path(cannon.LoadELFOutFlag.Name), state)
}

var LoadELFCommand = &cli.Command{
	Name:        "load-elf",
	Usage:       "Load ELF file into a sandbox JSON state",
	Description: "Load ELF file into a sandbox JSON state. Arguments after the flags become the guest argv, following the ELF path as argv[0].",
	Action:      LoadELF,
	Flags: []cli.Flag{
		cannon.LoadELFPathFlag,
		cannon.LoadELFOutFlag,
		ConfigFlag,
		StackSizeFlag,
		MetaOutFlag,
	},
}
