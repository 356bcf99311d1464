// Package config reads the machine configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"

	"github.com/ethereum-optimism/rvsandbox/rvgo/memory"
	"github.com/ethereum-optimism/rvsandbox/rvgo/riscv"
)

const (
	MemoryFlat   = "flat"
	MemorySparse = "sparse"

	LogFormatText   = string(oplog.FormatText)
	LogFormatLogfmt = string(oplog.FormatLogFmt)
	LogFormatJSON   = string(oplog.FormatJSON)

	SyscallDebug    = "debug"
	SyscallExit     = "exit"
	SyscallStdio    = "stdio"
	SyscallPreimage = "preimage"
	SyscallBadFd    = "badfd"
)

var ErrInvalidConfig = errors.New("config: invalid")

type MemoryConfig struct {
	Kind  string `yaml:"kind"`
	Size  uint64 `yaml:"size"`
	WXorX bool   `yaml:"wxorx"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	Memory               MemoryConfig `yaml:"memory"`
	MaxCycles            uint64       `yaml:"maxCycles"`
	CyclesPerInstruction uint64       `yaml:"cyclesPerInstruction"`
	// Syscalls lists the syscall modules to attach, in the order they are consulted.
	Syscalls []string  `yaml:"syscalls"`
	Log      LogConfig `yaml:"log"`
}

func Default() *Config {
	return &Config{
		Memory: MemoryConfig{
			Kind:  MemoryFlat,
			Size:  riscv.RiscvMaxMemory,
			WXorX: true,
		},
		MaxCycles:            1 << 32,
		CyclesPerInstruction: 1,
		Syscalls:             []string{SyscallExit, SyscallStdio, SyscallDebug, SyscallBadFd},
		Log: LogConfig{
			Level:  "info",
			Format: LogFormatText,
		},
	}
}

// Load reads a YAML file on top of the defaults and checks the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Check() error {
	switch c.Memory.Kind {
	case MemoryFlat, MemorySparse:
	default:
		return fmt.Errorf("%w: unknown memory kind %q", ErrInvalidConfig, c.Memory.Kind)
	}
	if c.Memory.Size == 0 || c.Memory.Size > riscv.RiscvMaxMemory {
		return fmt.Errorf("%w: memory size %d must be in (0, %d]", ErrInvalidConfig, c.Memory.Size, riscv.RiscvMaxMemory)
	}
	if c.Memory.Size%riscv.RiscvPageSize != 0 {
		return fmt.Errorf("%w: memory size %d is not a multiple of the page size", ErrInvalidConfig, c.Memory.Size)
	}
	if c.MaxCycles == 0 {
		return fmt.Errorf("%w: maxCycles must be positive", ErrInvalidConfig)
	}
	seen := make(map[string]bool)
	for _, s := range c.Syscalls {
		switch s {
		case SyscallDebug, SyscallExit, SyscallStdio, SyscallPreimage, SyscallBadFd:
		default:
			return fmt.Errorf("%w: unknown syscall module %q", ErrInvalidConfig, s)
		}
		if seen[s] {
			return fmt.Errorf("%w: syscall module %q listed twice", ErrInvalidConfig, s)
		}
		seen[s] = true
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if _, err := ParseFormat(c.Log.Format); err != nil {
		return err
	}
	return nil
}

// NewMemory creates the memory the config describes.
func (c *Config) NewMemory() memory.Memory {
	var mem memory.Memory
	if c.Memory.Kind == MemorySparse {
		mem = memory.NewSparse(c.Memory.Size)
	} else {
		mem = memory.NewFlat(c.Memory.Size)
	}
	if c.Memory.WXorX {
		mem = memory.NewWXorX(mem)
	}
	return mem
}

func ParseLevel(s string) (log.Lvl, error) {
	if s == "" {
		return log.LvlInfo, nil
	}
	lvl, err := log.LvlFromString(strings.ToLower(s))
	if err != nil {
		return 0, fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, s)
	}
	return lvl, nil
}

// ParseFormat accepts the op-service log formats: text, terminal, logfmt, json and json-pretty.
func ParseFormat(s string) (oplog.FormatType, error) {
	var v oplog.FormatFlagValue
	if err := v.Set(s); err != nil {
		return "", fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, s)
	}
	return v.FormatType(), nil
}
