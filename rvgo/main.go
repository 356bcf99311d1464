package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/rvsandbox/rvgo/cmd"
)

func main() {
	app := cli.NewApp()
	app.Name = "rvsandbox"
	app.Usage = "RISC-V script sandbox"
	app.Description = "Cycle-metered RISC-V sandbox: load programs into memory, dispatch traps through host syscall modules, hash machine states"
	app.Commands = []*cli.Command{
		cmd.LoadELFCommand,
		cmd.TrapCommand,
		cmd.DigestCommand,
	}
	ctx, cancel := context.WithCancel(context.Background())

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for {
			<-c
			cancel()
			fmt.Println("\r\nExiting...")
		}
	}()

	err := app.RunContext(ctx, os.Args)
	if err != nil {
		if errors.Is(err, ctx.Err()) {
			_, _ = fmt.Fprintf(os.Stderr, "command interrupted")
			os.Exit(130)
		} else {
			_, _ = fmt.Fprintf(os.Stderr, "error: %v", err)
			os.Exit(1)
		}
	}
}
