package memory

import (
	"github.com/ethereum-optimism/rvsandbox/rvgo/riscv"
)

// WXorX enforces the page flags handed to InitPages: a page is either
// writable or executable, never both, and freezed pages cannot be
// re-initialized.
type WXorX struct {
	inner Memory
}

var _ Memory = (*WXorX)(nil)

func NewWXorX(inner Memory) *WXorX {
	return &WXorX{inner: inner}
}

// Inner returns the wrapped memory.
func (m *WXorX) Inner() Memory {
	return m.inner
}

func (m *WXorX) ResetMemory() error {
	return m.inner.ResetMemory()
}

func (m *WXorX) InitPages(addr, size uint64, flags uint8, source []byte, offsetFromAddr uint64) error {
	if err := CheckRange(addr, size, m.inner.MemorySize()); err != nil {
		return err
	}
	if addr&riscv.RiscvPageMask != 0 || size&riscv.RiscvPageMask != 0 {
		return ErrMemPageUnalignedAccess
	}
	first, end := addr>>riscv.RiscvPageShifts, (addr+size)>>riscv.RiscvPageShifts
	for page := first; page < end; page++ {
		flag, err := m.inner.FetchFlag(page)
		if err != nil {
			return err
		}
		if flag&riscv.FlagFreezed != 0 {
			return ErrMemWriteOnFreezedPage
		}
	}
	for page := first; page < end; page++ {
		if err := m.inner.SetFlag(page, flags); err != nil {
			return err
		}
	}
	return m.inner.InitPages(addr, size, flags, source, offsetFromAddr)
}

func (m *WXorX) FetchFlag(page uint64) (uint8, error) {
	return m.inner.FetchFlag(page)
}

func (m *WXorX) SetFlag(page uint64, flag uint8) error {
	return m.inner.SetFlag(page, flag)
}

func (m *WXorX) ClearFlag(page uint64, flag uint8) error {
	return m.inner.ClearFlag(page, flag)
}

func (m *WXorX) MemorySize() uint64 {
	return m.inner.MemorySize()
}

func (m *WXorX) checkExecutable(addr, size uint64) error {
	first, last, err := PageIndices(addr, size, m.inner.MemorySize())
	if err != nil {
		return err
	}
	for page := first; page <= last; page++ {
		flag, err := m.inner.FetchFlag(page)
		if err != nil {
			return err
		}
		if flag&riscv.FlagExecutable == 0 {
			return ErrInvalidPermission
		}
	}
	return nil
}

func (m *WXorX) checkWritable(addr, size uint64) error {
	first, last, err := PageIndices(addr, size, m.inner.MemorySize())
	if err != nil {
		return err
	}
	for page := first; page <= last; page++ {
		flag, err := m.inner.FetchFlag(page)
		if err != nil {
			return err
		}
		if flag&riscv.FlagWXorXBit != riscv.FlagWritable {
			return ErrMemWriteOnExecutablePage
		}
	}
	return nil
}

func (m *WXorX) ExecuteLoad16(addr uint64) (uint16, error) {
	if err := m.checkExecutable(addr, 2); err != nil {
		return 0, err
	}
	return m.inner.ExecuteLoad16(addr)
}

func (m *WXorX) ExecuteLoad32(addr uint64) (uint32, error) {
	if err := m.checkExecutable(addr, 4); err != nil {
		return 0, err
	}
	return m.inner.ExecuteLoad32(addr)
}

func (m *WXorX) Load8(addr uint64) (uint64, error)  { return m.inner.Load8(addr) }
func (m *WXorX) Load16(addr uint64) (uint64, error) { return m.inner.Load16(addr) }
func (m *WXorX) Load32(addr uint64) (uint64, error) { return m.inner.Load32(addr) }
func (m *WXorX) Load64(addr uint64) (uint64, error) { return m.inner.Load64(addr) }

func (m *WXorX) Store8(addr, value uint64) error {
	if err := m.checkWritable(addr, 1); err != nil {
		return err
	}
	return m.inner.Store8(addr, value)
}

func (m *WXorX) Store16(addr, value uint64) error {
	if err := m.checkWritable(addr, 2); err != nil {
		return err
	}
	return m.inner.Store16(addr, value)
}

func (m *WXorX) Store32(addr, value uint64) error {
	if err := m.checkWritable(addr, 4); err != nil {
		return err
	}
	return m.inner.Store32(addr, value)
}

func (m *WXorX) Store64(addr, value uint64) error {
	if err := m.checkWritable(addr, 8); err != nil {
		return err
	}
	return m.inner.Store64(addr, value)
}

func (m *WXorX) StoreBytes(addr uint64, value []byte) error {
	if len(value) == 0 {
		return nil
	}
	if err := m.checkWritable(addr, uint64(len(value))); err != nil {
		return err
	}
	return m.inner.StoreBytes(addr, value)
}

func (m *WXorX) StoreByte(addr, size uint64, value uint8) error {
	if size == 0 {
		return nil
	}
	if err := m.checkWritable(addr, size); err != nil {
		return err
	}
	return m.inner.StoreByte(addr, size, value)
}

func (m *WXorX) LoadBytes(addr, size uint64) ([]byte, error) {
	return m.inner.LoadBytes(addr, size)
}

func (m *WXorX) LR() uint64 {
	return m.inner.LR()
}

func (m *WXorX) SetLR(value uint64) {
	m.inner.SetLR(value)
}
