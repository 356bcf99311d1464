package memory

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum-optimism/rvsandbox/rvgo/riscv"
)

type Page [riscv.RiscvPageSize]byte

// Sparse allocates pages only when they are first written.
// Untouched pages read as zero.
type Sparse struct {
	pages      map[uint64]*Page
	flags      []uint8
	memorySize uint64
	pageCount  uint64

	// two caches: we often read instructions from one page, and do memory things with another page.
	// this prevents map lookups each instruction
	lastPageKeys [2]uint64
	lastPage     [2]*Page

	loadReservation uint64
}

var _ Memory = (*Sparse)(nil)

// NewSparse applies the same size assertions as NewFlat.
func NewSparse(memorySize uint64) *Sparse {
	checkMemorySize(memorySize)
	return &Sparse{
		pages:           make(map[uint64]*Page),
		flags:           make([]uint8, PageCountOf(memorySize)),
		memorySize:      memorySize,
		pageCount:       PageCountOf(memorySize),
		lastPageKeys:    [2]uint64{^uint64(0), ^uint64(0)}, // default to invalid keys, to not match any pages
		loadReservation: riscv.NoReservation,
	}
}

func NewDefaultSparse() *Sparse {
	return NewSparse(riscv.RiscvMaxMemory)
}

// PageCount is the number of allocated pages.
func (m *Sparse) PageCount() int {
	return len(m.pages)
}

func (m *Sparse) ForEachPage(fn func(pageIndex uint64, page *Page) error) error {
	for pageIndex, page := range m.pages {
		if err := fn(pageIndex, page); err != nil {
			return err
		}
	}
	return nil
}

func (m *Sparse) pageLookup(pageIndex uint64) (*Page, bool) {
	// hit caches
	if pageIndex == m.lastPageKeys[0] {
		return m.lastPage[0], true
	}
	if pageIndex == m.lastPageKeys[1] {
		return m.lastPage[1], true
	}
	p, ok := m.pages[pageIndex]

	// only cache existing pages.
	if ok {
		m.lastPageKeys[1] = m.lastPageKeys[0]
		m.lastPage[1] = m.lastPage[0]
		m.lastPageKeys[0] = pageIndex
		m.lastPage[0] = p
	}
	return p, ok
}

func (m *Sparse) allocPage(pageIndex uint64) *Page {
	p := new(Page)
	m.pages[pageIndex] = p
	return p
}

// read copies memory into dest. The range must already be checked.
func (m *Sparse) read(addr uint64, dest []byte) {
	for len(dest) > 0 {
		pageAddr := addr & riscv.RiscvPageMask
		var n int
		if p, ok := m.pageLookup(addr >> riscv.RiscvPageShifts); ok {
			n = copy(dest, p[pageAddr:])
		} else {
			n = min(len(dest), int(riscv.RiscvPageSize-pageAddr))
			clear(dest[:n])
		}
		dest = dest[n:]
		addr += uint64(n)
	}
}

// write copies src into memory, allocating pages on the way. The range must
// already be checked and marked dirty.
func (m *Sparse) write(addr uint64, src []byte) {
	for len(src) > 0 {
		pageIndex := addr >> riscv.RiscvPageShifts
		pageAddr := addr & riscv.RiscvPageMask
		p, ok := m.pageLookup(pageIndex)
		if !ok {
			// zero writes into missing pages need no backing page
			if n := min(len(src), int(riscv.RiscvPageSize-pageAddr)); isZero(src[:n]) {
				src = src[n:]
				addr += uint64(n)
				continue
			}
			p = m.allocPage(pageIndex)
		}
		n := copy(p[pageAddr:], src)
		src = src[n:]
		addr += uint64(n)
	}
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

func (m *Sparse) ResetMemory() error {
	m.pages = make(map[uint64]*Page)
	m.lastPageKeys = [2]uint64{^uint64(0), ^uint64(0)}
	m.lastPage = [2]*Page{nil, nil}
	clear(m.flags)
	m.loadReservation = riscv.NoReservation
	return nil
}

func (m *Sparse) InitPages(addr, size uint64, _ uint8, source []byte, offsetFromAddr uint64) error {
	return FillPageData(m, addr, size, source, offsetFromAddr)
}

func (m *Sparse) FetchFlag(page uint64) (uint8, error) {
	if page >= m.pageCount {
		return 0, ErrMemOutOfBound
	}
	return m.flags[page], nil
}

func (m *Sparse) SetFlag(page uint64, flag uint8) error {
	if page >= m.pageCount {
		return ErrMemOutOfBound
	}
	m.flags[page] |= flag
	return nil
}

func (m *Sparse) ClearFlag(page uint64, flag uint8) error {
	if page >= m.pageCount {
		return ErrMemOutOfBound
	}
	m.flags[page] &^= flag
	return nil
}

func (m *Sparse) MemorySize() uint64 {
	return m.memorySize
}

func (m *Sparse) ExecuteLoad16(addr uint64) (uint16, error) {
	v, err := m.Load16(addr)
	return uint16(v), err
}

func (m *Sparse) ExecuteLoad32(addr uint64) (uint32, error) {
	v, err := m.Load32(addr)
	return uint32(v), err
}

func (m *Sparse) load(addr uint64, dest []byte) error {
	if err := CheckRange(addr, uint64(len(dest)), m.memorySize); err != nil {
		return err
	}
	m.read(addr, dest)
	return nil
}

func (m *Sparse) store(addr uint64, src []byte) error {
	first, last, err := PageIndices(addr, uint64(len(src)), m.memorySize)
	if err != nil {
		return err
	}
	if err := SetDirty(m, first, last); err != nil {
		return err
	}
	m.write(addr, src)
	return nil
}

func (m *Sparse) Load8(addr uint64) (uint64, error) {
	var b [1]byte
	if err := m.load(addr, b[:]); err != nil {
		return 0, err
	}
	return uint64(b[0]), nil
}

func (m *Sparse) Load16(addr uint64) (uint64, error) {
	var b [2]byte
	if err := m.load(addr, b[:]); err != nil {
		return 0, err
	}
	return uint64(binary.LittleEndian.Uint16(b[:])), nil
}

func (m *Sparse) Load32(addr uint64) (uint64, error) {
	var b [4]byte
	if err := m.load(addr, b[:]); err != nil {
		return 0, err
	}
	return uint64(binary.LittleEndian.Uint32(b[:])), nil
}

func (m *Sparse) Load64(addr uint64) (uint64, error) {
	var b [8]byte
	if err := m.load(addr, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func (m *Sparse) Store8(addr, value uint64) error {
	return m.store(addr, []byte{uint8(value)})
}

func (m *Sparse) Store16(addr, value uint64) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], uint16(value))
	return m.store(addr, b[:])
}

func (m *Sparse) Store32(addr, value uint64) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(value))
	return m.store(addr, b[:])
}

func (m *Sparse) Store64(addr, value uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], value)
	return m.store(addr, b[:])
}

func (m *Sparse) StoreBytes(addr uint64, value []byte) error {
	if len(value) == 0 {
		return nil
	}
	return m.store(addr, value)
}

func (m *Sparse) StoreByte(addr, size uint64, value uint8) error {
	if size == 0 {
		return nil
	}
	first, last, err := PageIndices(addr, size, m.memorySize)
	if err != nil {
		return err
	}
	if err := SetDirty(m, first, last); err != nil {
		return err
	}
	var chunk Page
	if value != 0 {
		for i := range chunk {
			chunk[i] = value
		}
	}
	for size > 0 {
		n := min(size, uint64(len(chunk)))
		m.write(addr, chunk[:n])
		addr += n
		size -= n
	}
	return nil
}

func (m *Sparse) LoadBytes(addr, size uint64) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}
	if err := CheckRange(addr, size, m.memorySize); err != nil {
		return nil, err
	}
	out := make([]byte, size)
	m.read(addr, out)
	return out, nil
}

func (m *Sparse) LR() uint64 {
	return m.loadReservation
}

func (m *Sparse) SetLR(value uint64) {
	m.loadReservation = value
}

// Usage reports allocated page memory in human readable form.
func (m *Sparse) Usage() string {
	total := uint64(len(m.pages)) * riscv.RiscvPageSize
	const unit = 1024
	if total < unit {
		return fmt.Sprintf("%d B", total)
	}
	div, exp := uint64(unit), 0
	for n := total / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	// KiB, MiB, GiB, TiB, ...
	return fmt.Sprintf("%.1f %ciB", float64(total)/float64(div), "KMGTPE"[exp])
}
