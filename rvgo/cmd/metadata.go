package cmd

import (
	"debug/elf"
	"errors"
	"sort"

	"github.com/ethereum-optimism/rvsandbox/rvgo/program"
)

type Symbol struct {
	Name  string `json:"name"`
	Start uint64 `json:"start"`
	Size  uint64 `json:"size"`
}

type Metadata struct {
	Symbols []Symbol `json:"symbols"`
}

// MakeMetadata collects the symbols of an ELF. A stripped ELF yields empty metadata.
func MakeMetadata(f *elf.File) (*Metadata, error) {
	syms, err := program.Symbols(f)
	if errors.Is(err, elf.ErrNoSymbols) {
		return &Metadata{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := &Metadata{Symbols: make([]Symbol, len(syms))}
	for i, s := range syms {
		out.Symbols[i] = Symbol{Name: s.Name, Start: s.Value, Size: s.Size}
	}
	return out, nil
}

// LookupSymbol names the symbol covering addr, "!start" before the first
// symbol and "!gap" between symbols.
func (m *Metadata) LookupSymbol(addr uint64) string {
	if len(m.Symbols) == 0 {
		return "!unknown"
	}
	// find first symbol with higher start. Or n if no such symbol exists
	i := sort.Search(len(m.Symbols), func(i int) bool {
		return m.Symbols[i].Start > addr
	})
	if i == 0 {
		return "!start"
	}
	out := &m.Symbols[i-1]
	// symbols cover [Start, Start+Size), zero sized labels only their start
	if addr != out.Start && addr-out.Start >= out.Size {
		return "!gap"
	}
	return out.Name
}
