// Package program puts guest programs into memory: ELF and flat binaries,
// and the initial stack with the program arguments.
package program

import (
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/ethereum-optimism/rvsandbox/rvgo/memory"
	"github.com/ethereum-optimism/rvsandbox/rvgo/riscv"
)

var ErrNotRiscv = errors.New("program: ELF is not RISC-V")

// LoadELF initializes every PT_LOAD segment of f in mem and returns the entry point.
// Executable segments get riscv.FlagExecutable, everything else is writable.
func LoadELF(f *elf.File, mem memory.Memory) (uint64, error) {
	if f.Machine != elf.EM_RISCV {
		return 0, fmt.Errorf("%w: got %q", ErrNotRiscv, f.Machine.String())
	}
	for i, prog := range f.Progs {
		// skips .riscv.attributes (0x70000003) and the other non-loadable segments
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if prog.Filesz > prog.Memsz {
			return 0, fmt.Errorf("invalid PT_LOAD program segment %d, file size (%d) > mem size (%d)", i, prog.Filesz, prog.Memsz)
		}
		if prog.Memsz == 0 {
			continue
		}
		data := make([]byte, prog.Filesz)
		if _, err := io.ReadFull(prog.Open(), data); err != nil {
			return 0, &memory.IOError{Op: fmt.Sprintf("read segment %d", i), Err: err}
		}
		flags := riscv.FlagWritable
		if prog.Flags&elf.PF_X != 0 {
			flags = riscv.FlagExecutable
		}
		if err := loadSegment(mem, prog.Vaddr, prog.Memsz, flags, data); err != nil {
			return 0, fmt.Errorf("failed to load program segment %d: %w", i, err)
		}
	}
	return f.Entry, nil
}

// loadSegment maps [vaddr, vaddr+memsz) onto whole pages. The bytes between
// the page start and vaddr are zero padding.
func loadSegment(mem memory.Memory, vaddr, memsz uint64, flags uint8, data []byte) error {
	start := vaddr &^ uint64(riscv.RiscvPageMask)
	padding := vaddr - start
	end := vaddr + memsz
	if end < vaddr {
		return memory.ErrMemOutOfBound
	}
	size := roundUp(end) - start
	return mem.InitPages(start, size, flags, data, padding)
}

// LoadFlat places a raw binary at addr, on whole pages with the given flags.
// addr must be page aligned.
func LoadFlat(mem memory.Memory, addr uint64, code []byte, flags uint8) error {
	if addr&riscv.RiscvPageMask != 0 {
		return memory.ErrMemPageUnalignedAccess
	}
	if len(code) == 0 {
		return nil
	}
	return mem.InitPages(addr, roundUp(addr+uint64(len(code)))-addr, flags, code, 0)
}

func roundUp(v uint64) uint64 {
	return (v + riscv.RiscvPageMask) &^ uint64(riscv.RiscvPageMask)
}

// Symbols returns the symbol table of f sorted by address.
func Symbols(f *elf.File) ([]elf.Symbol, error) {
	symbols, err := f.Symbols()
	if err != nil {
		return nil, fmt.Errorf("failed to read symbols data: %w", err)
	}
	// not every ELF has sorted symbols
	sort.Slice(symbols, func(i, j int) bool {
		return symbols[i].Value < symbols[j].Value
	})
	return symbols, nil
}
