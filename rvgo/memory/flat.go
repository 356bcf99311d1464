package memory

import (
	"encoding/binary"

	"github.com/ethereum-optimism/rvsandbox/rvgo/riscv"
)

// Flat is a single contiguous chunk of memory. It does not check page
// permissions; wrap it in WXorX for that.
type Flat struct {
	data       []byte
	flags      []uint8
	memorySize uint64
	pages      uint64

	loadReservation uint64
}

var _ Memory = (*Flat)(nil)

// NewFlat panics if memorySize exceeds riscv.RiscvMaxMemory or is not
// page aligned: both are host configuration bugs.
func NewFlat(memorySize uint64) *Flat {
	checkMemorySize(memorySize)
	return &Flat{
		data:            make([]byte, memorySize),
		flags:           make([]uint8, PageCountOf(memorySize)),
		memorySize:      memorySize,
		pages:           PageCountOf(memorySize),
		loadReservation: riscv.NoReservation,
	}
}

func NewDefaultFlat() *Flat {
	return NewFlat(riscv.RiscvMaxMemory)
}

// UncheckedBytes exposes the backing buffer for bulk copies.
// Nothing is bounds checked or marked dirty: the caller must have validated
// the range against MemorySize and must set flags itself when writing.
func (m *Flat) UncheckedBytes() []byte {
	return m.data
}

func (m *Flat) ResetMemory() error {
	clear(m.data)
	clear(m.flags)
	m.loadReservation = riscv.NoReservation
	return nil
}

func (m *Flat) InitPages(addr, size uint64, _ uint8, source []byte, offsetFromAddr uint64) error {
	return FillPageData(m, addr, size, source, offsetFromAddr)
}

func (m *Flat) FetchFlag(page uint64) (uint8, error) {
	if page >= m.pages {
		return 0, ErrMemOutOfBound
	}
	return m.flags[page], nil
}

func (m *Flat) SetFlag(page uint64, flag uint8) error {
	if page >= m.pages {
		return ErrMemOutOfBound
	}
	m.flags[page] |= flag
	return nil
}

func (m *Flat) ClearFlag(page uint64, flag uint8) error {
	if page >= m.pages {
		return ErrMemOutOfBound
	}
	m.flags[page] &^= flag
	return nil
}

func (m *Flat) MemorySize() uint64 {
	return m.memorySize
}

func (m *Flat) ExecuteLoad16(addr uint64) (uint16, error) {
	v, err := m.Load16(addr)
	return uint16(v), err
}

func (m *Flat) ExecuteLoad32(addr uint64) (uint32, error) {
	v, err := m.Load32(addr)
	return uint32(v), err
}

// span returns the checked slice for a read of size bytes at addr.
func (m *Flat) span(addr, size uint64) ([]byte, error) {
	if err := CheckRange(addr, size, uint64(len(m.data))); err != nil {
		return nil, err
	}
	return m.data[addr : addr+size], nil
}

// writable marks the touched pages dirty, then returns the slice to write into.
func (m *Flat) writable(addr, size uint64) ([]byte, error) {
	first, last, err := PageIndices(addr, size, m.memorySize)
	if err != nil {
		return nil, err
	}
	if err := SetDirty(m, first, last); err != nil {
		return nil, err
	}
	return m.data[addr : addr+size], nil
}

func (m *Flat) Load8(addr uint64) (uint64, error) {
	b, err := m.span(addr, 1)
	if err != nil {
		return 0, err
	}
	return uint64(b[0]), nil
}

// NOTE: Base RISC-V ISA is defined as a little-endian memory system.

func (m *Flat) Load16(addr uint64) (uint64, error) {
	b, err := m.span(addr, 2)
	if err != nil {
		return 0, err
	}
	return uint64(binary.LittleEndian.Uint16(b)), nil
}

func (m *Flat) Load32(addr uint64) (uint64, error) {
	b, err := m.span(addr, 4)
	if err != nil {
		return 0, err
	}
	return uint64(binary.LittleEndian.Uint32(b)), nil
}

func (m *Flat) Load64(addr uint64) (uint64, error) {
	b, err := m.span(addr, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (m *Flat) Store8(addr, value uint64) error {
	b, err := m.writable(addr, 1)
	if err != nil {
		return err
	}
	b[0] = uint8(value)
	return nil
}

func (m *Flat) Store16(addr, value uint64) error {
	b, err := m.writable(addr, 2)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(b, uint16(value))
	return nil
}

func (m *Flat) Store32(addr, value uint64) error {
	b, err := m.writable(addr, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, uint32(value))
	return nil
}

func (m *Flat) Store64(addr, value uint64) error {
	b, err := m.writable(addr, 8)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(b, value)
	return nil
}

func (m *Flat) StoreBytes(addr uint64, value []byte) error {
	if len(value) == 0 {
		return nil
	}
	b, err := m.writable(addr, uint64(len(value)))
	if err != nil {
		return err
	}
	copy(b, value)
	return nil
}

func (m *Flat) StoreByte(addr, size uint64, value uint8) error {
	if size == 0 {
		return nil
	}
	b, err := m.writable(addr, size)
	if err != nil {
		return err
	}
	for i := range b {
		b[i] = value
	}
	return nil
}

func (m *Flat) LoadBytes(addr, size uint64) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}
	if err := CheckRange(addr, size, m.memorySize); err != nil {
		return nil, err
	}
	out := make([]byte, size)
	copy(out, m.data[addr:addr+size])
	return out, nil
}

func (m *Flat) LR() uint64 {
	return m.loadReservation
}

func (m *Flat) SetLR(value uint64) {
	m.loadReservation = value
}
