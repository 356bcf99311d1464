package cmd

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/rvsandbox/rvgo/config"
	"github.com/ethereum-optimism/rvsandbox/rvgo/riscv"
)

var OutFilePerm = os.FileMode(0o755)

var (
	ConfigFlag = &cli.PathFlag{
		Name:      "config",
		Usage:     "path of the YAML machine configuration. Defaults apply when empty.",
		TakesFile: true,
	}
	StackSizeFlag = &cli.Uint64Flag{
		Name:  "stack-size",
		Usage: "size in bytes of the stack region at the top of memory",
		Value: 64 * riscv.RiscvPageSize,
	}
	MetaOutFlag = &cli.PathFlag{
		Name:      "meta",
		Usage:     "path to write the ELF symbol metadata JSON to. Skipped when empty.",
		TakesFile: true,
	}
	DigestInputFlag = &cli.PathFlag{
		Name:      "input",
		Usage:     "path of input JSON state",
		TakesFile: true,
		Required:  true,
	}
	DigestOutputFlag = &cli.PathFlag{
		Name:      "output",
		Usage:     "path to write the digest JSON to. Skipped when empty.",
		TakesFile: true,
	}
	DigestCBORFlag = &cli.PathFlag{
		Name:      "memory.cbor",
		Usage:     "path to write the memory snapshot as deterministic CBOR to. Skipped when empty.",
		TakesFile: true,
	}
)

func loadConfig(ctx *cli.Context) (*config.Config, error) {
	path := ctx.Path(ConfigFlag.Name)
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

var TrapResultFlag = &cli.PathFlag{
	Name:      "result",
	Usage:     "path to write the pre and post state hashes to. Skipped when empty.",
	TakesFile: true,
}
