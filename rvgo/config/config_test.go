package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/rvsandbox/rvgo/memory"
	"github.com/ethereum-optimism/rvsandbox/rvgo/riscv"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Check())
	mem := cfg.NewMemory()
	require.IsType(t, &memory.WXorX{}, mem)
	require.Equal(t, uint64(riscv.RiscvMaxMemory), mem.MemorySize())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "machine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
memory:
  kind: sparse
  size: 65536
  wxorx: false
maxCycles: 5000
syscalls: [preimage, exit]
log:
  level: debug
  format: json
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, MemoryConfig{Kind: MemorySparse, Size: 65536}, cfg.Memory)
	require.Equal(t, uint64(5000), cfg.MaxCycles)
	require.Equal(t, uint64(1), cfg.CyclesPerInstruction, "unset fields keep their default")
	require.Equal(t, []string{SyscallPreimage, SyscallExit}, cfg.Syscalls)
	require.Equal(t, LogFormatJSON, cfg.Log.Format)

	mem := cfg.NewMemory()
	require.IsType(t, &memory.Sparse{}, mem)
	require.Equal(t, uint64(65536), mem.MemorySize())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		msg  string
	}{
		{"memory kind", "memory: {kind: mmap}", "unknown memory kind"},
		{"zero size", "memory: {size: 0}", "memory size 0"},
		{"too large", "memory: {size: 8388608}", "memory size 8388608"},
		{"unaligned size", "memory: {size: 5000}", "not a multiple"},
		{"zero cycles", "maxCycles: 0", "maxCycles"},
		{"unknown syscall", "syscalls: [fork]", "unknown syscall module"},
		{"duplicate syscall", "syscalls: [exit, exit]", "listed twice"},
		{"log level", "log: {level: loud}", "unknown log level"},
		{"log format", "log: {format: xml}", "unknown log format"},
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			_, err := Parse([]byte(test.yaml))
			require.ErrorIs(t, err, ErrInvalidConfig)
			require.ErrorContains(t, err, test.msg)
		})
	}

	_, err := Parse([]byte("memory: ["))
	require.ErrorContains(t, err, "failed to unmarshal config")
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("WARN")
	require.NoError(t, err)
	require.Equal(t, log.LvlWarn, lvl)
	lvl, err = ParseLevel("")
	require.NoError(t, err)
	require.Equal(t, log.LvlInfo, lvl)
	_, err = ParseLevel("loud")
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestParseFormat(t *testing.T) {
	for _, f := range []string{LogFormatText, LogFormatLogfmt, LogFormatJSON, "terminal", "json-pretty"} {
		ft, err := ParseFormat(f)
		require.NoError(t, err)
		require.Equal(t, f, string(ft))
	}
	_, err := ParseFormat("xml")
	require.ErrorIs(t, err, ErrInvalidConfig)
}
