package cmd

import (
	"fmt"

	cannon "github.com/ethereum-optimism/optimism/cannon/cmd"
	"github.com/ethereum-optimism/optimism/op-service/ioutil"
	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/rvsandbox/rvgo/vm"
)

type DigestOutput struct {
	StateHash    common.Hash `json:"stateHash"`
	MemoryDigest common.Hash `json:"memoryDigest"`
	Pages        int         `json:"pages"`
	Cycles       uint64      `json:"cycles"`
	Running      bool        `json:"running"`
}

func Digest(ctx *cli.Context) error {
	input := ctx.Path(DigestInputFlag.Name)
	state, err := cannon.LoadJSON[vm.State](input)
	if err != nil {
		return fmt.Errorf("invalid input state (%v): %w", input, err)
	}
	if state.Memory == nil {
		return vm.ErrNoMemoryState
	}
	stateHash, err := state.Hash()
	if err != nil {
		return fmt.Errorf("failed to compute state hash: %w", err)
	}
	memDigest, err := state.Memory.Digest()
	if err != nil {
		return fmt.Errorf("failed to compute memory digest: %w", err)
	}
	if output := ctx.Path(DigestOutputFlag.Name); output != "" {
		out := &DigestOutput{
			StateHash:    stateHash,
			MemoryDigest: memDigest,
			Pages:        len(state.Memory.Pages),
			Cycles:       state.Cycles,
			Running:      state.Running,
		}
		if err := cannon.WriteJSON(output, out); err != nil {
			return fmt.Errorf("failed to write digest output: %w", err)
		}
	}
	if cborPath := ctx.Path(DigestCBORFlag.Name); cborPath != "" {
		dat, err := state.Memory.EncodeCBOR()
		if err != nil {
			return fmt.Errorf("failed to encode memory snapshot: %w", err)
		}
		if err := writeFile(cborPath, dat); err != nil {
			return fmt.Errorf("failed to write memory snapshot: %w", err)
		}
	}
	fmt.Fprintln(ctx.App.Writer, stateHash.Hex())
	return nil
}

var DigestCommand = &cli.Command{
	Name:        "digest",
	Usage:       "Hash a sandbox JSON state",
	Description: "Hash a sandbox JSON state. The state hash is written to stdout",
	Action:      Digest,
	Flags: []cli.Flag{
		DigestInputFlag,
		DigestOutputFlag,
		DigestCBORFlag,
	},
}

// writeFile replaces path atomically, gzip compressed when path ends in .gz.
func writeFile(path string, dat []byte) error {
	f, err := ioutil.NewAtomicWriterCompressed(path, OutFilePerm)
	if err != nil {
		return err
	}
	if _, err := f.Write(dat); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
