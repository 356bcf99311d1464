package memory

import (
	"errors"
	"fmt"
	"io"
	"math/bits"

	"github.com/ethereum-optimism/rvsandbox/rvgo/riscv"
)

var (
	ErrMemOutOfBound              = errors.New("memory: out of bound")
	ErrMemPageUnalignedAccess     = errors.New("memory: page unaligned access")
	ErrMemWriteOnExecutablePage   = errors.New("memory: write on executable page")
	ErrMemWriteOnFreezedPage      = errors.New("memory: write on freezed page")
	ErrInvalidPermission          = errors.New("memory: invalid permission")
	ErrSnapshotMemorySizeMismatch = errors.New("memory: snapshot memory size mismatch")
	ErrInvalidMemorySize          = errors.New("memory: invalid memory size")
)

// IOError wraps a low-level read/write failure while moving bytes
// in or out of a Memory.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("memory: io failure during %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Memory is everything a running program can do to addressable storage.
// Every access outside [0, MemorySize()) fails with ErrMemOutOfBound.
// Multi-byte values are little-endian.
type Memory interface {
	ResetMemory() error
	// InitPages fills [addr, addr+size): the first offsetFromAddr bytes are
	// zeroed, source follows, and whatever the source does not cover is zeroed.
	InitPages(addr, size uint64, flags uint8, source []byte, offsetFromAddr uint64) error
	FetchFlag(page uint64) (uint8, error)
	SetFlag(page uint64, flag uint8) error
	ClearFlag(page uint64, flag uint8) error
	MemorySize() uint64

	// ExecuteLoad16 and ExecuteLoad32 are the instruction fetch paths.
	ExecuteLoad16(addr uint64) (uint16, error)
	ExecuteLoad32(addr uint64) (uint32, error)

	Load8(addr uint64) (uint64, error)
	Load16(addr uint64) (uint64, error)
	Load32(addr uint64) (uint64, error)
	Load64(addr uint64) (uint64, error)

	Store8(addr, value uint64) error
	Store16(addr, value uint64) error
	Store32(addr, value uint64) error
	Store64(addr, value uint64) error

	StoreBytes(addr uint64, value []byte) error
	StoreByte(addr, size uint64, value uint8) error
	LoadBytes(addr, size uint64) ([]byte, error)

	// LR is the load-reservation slot; riscv.NoReservation when empty.
	LR() uint64
	SetLR(value uint64)
}

// CheckRange reports ErrMemOutOfBound unless [addr, addr+size) fits in memorySize.
func CheckRange(addr, size, memorySize uint64) error {
	end, carry := bits.Add64(addr, size, 0)
	if carry != 0 || end > memorySize {
		return ErrMemOutOfBound
	}
	return nil
}

// PageIndices returns the first and last page touched by a non-empty
// access of size bytes at addr.
func PageIndices(addr, size, memorySize uint64) (first, last uint64, err error) {
	if size == 0 {
		return 0, 0, ErrMemOutOfBound
	}
	if err := CheckRange(addr, size, memorySize); err != nil {
		return 0, 0, err
	}
	return addr >> riscv.RiscvPageShifts, (addr + size - 1) >> riscv.RiscvPageShifts, nil
}

// SetDirty marks pages first..last (inclusive) with riscv.FlagDirty.
func SetDirty(m Memory, first, last uint64) error {
	for page := first; page <= last; page++ {
		if err := m.SetFlag(page, riscv.FlagDirty); err != nil {
			return err
		}
	}
	return nil
}

// FillPageData implements the InitPages fill rule on top of StoreByte and StoreBytes.
// Nothing is written unless the whole range fits.
func FillPageData(m Memory, addr, size uint64, source []byte, offsetFromAddr uint64) error {
	if err := CheckRange(addr, size, m.MemorySize()); err != nil {
		return err
	}
	var written uint64
	if offsetFromAddr > 0 {
		n := min(size, offsetFromAddr)
		if err := m.StoreByte(addr, n, 0); err != nil {
			return err
		}
		written += n
	}
	if n := min(size-written, uint64(len(source))); n > 0 {
		if err := m.StoreBytes(addr+written, source[:n]); err != nil {
			return err
		}
		written += n
	}
	if written < size {
		return m.StoreByte(addr+written, size-written, 0)
	}
	return nil
}

// LoadFrom streams r into memory starting at addr, one page-sized chunk at a time,
// until r is exhausted. It returns the number of bytes written.
func LoadFrom(m Memory, addr uint64, r io.Reader) (uint64, error) {
	var buf [riscv.RiscvPageSize]byte
	var total uint64
	for {
		n, err := io.ReadFull(r, buf[:])
		if n > 0 {
			if serr := m.StoreBytes(addr+total, buf[:n]); serr != nil {
				return total, serr
			}
			total += uint64(n)
		}
		switch {
		case err == nil:
			continue
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return total, nil
		default:
			return total, &IOError{Op: "load", Err: err}
		}
	}
}

// PageCountOf returns the number of pages covering memorySize bytes.
func PageCountOf(memorySize uint64) uint64 {
	return memorySize >> riscv.RiscvPageShifts
}

// validMemorySize reports ErrInvalidMemorySize unless memorySize is page
// aligned and at most riscv.RiscvMaxMemory.
func validMemorySize(memorySize uint64) error {
	if memorySize > riscv.RiscvMaxMemory {
		return fmt.Errorf("%w: %d exceeds maximum of %d", ErrInvalidMemorySize, memorySize, riscv.RiscvMaxMemory)
	}
	if memorySize%riscv.RiscvPageSize != 0 {
		return fmt.Errorf("%w: %d is not a multiple of page size %d", ErrInvalidMemorySize, memorySize, riscv.RiscvPageSize)
	}
	return nil
}

func checkMemorySize(memorySize uint64) {
	if err := validMemorySize(memorySize); err != nil {
		panic(err.Error())
	}
}
