package memory

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/rvsandbox/rvgo/riscv"
)

type memoryFactory struct {
	name string
	new  func(size uint64) Memory
}

var factories = []memoryFactory{
	{"flat", func(size uint64) Memory { return NewFlat(size) }},
	{"sparse", func(size uint64) Memory { return NewSparse(size) }},
}

func forEachMemory(t *testing.T, size uint64, fn func(t *testing.T, m Memory)) {
	for _, f := range factories {
		f := f
		t.Run(f.name, func(t *testing.T) {
			fn(t, f.new(size))
		})
	}
}

func load(m Memory, width int, addr uint64) (uint64, error) {
	switch width {
	case 1:
		return m.Load8(addr)
	case 2:
		return m.Load16(addr)
	case 4:
		return m.Load32(addr)
	default:
		return m.Load64(addr)
	}
}

func store(m Memory, width int, addr, value uint64) error {
	switch width {
	case 1:
		return m.Store8(addr, value)
	case 2:
		return m.Store16(addr, value)
	case 4:
		return m.Store32(addr, value)
	default:
		return m.Store64(addr, value)
	}
}

func TestNewFlatAssertions(t *testing.T) {
	require.Panics(t, func() { NewFlat(riscv.RiscvMaxMemory + riscv.RiscvPageSize) })
	require.Panics(t, func() { NewFlat(riscv.RiscvPageSize + 1) })
	require.Panics(t, func() { NewSparse(riscv.RiscvPageSize - 1) })
	require.NotPanics(t, func() { NewFlat(0) })

	m := NewDefaultFlat()
	require.Equal(t, uint64(riscv.RiscvMaxMemory), m.MemorySize())
	require.Len(t, m.UncheckedBytes(), riscv.RiscvMaxMemory)
	require.Equal(t, riscv.NoReservation, m.LR())
}

func TestMemoryRoundTrip(t *testing.T) {
	const size = riscv.RiscvPageSize * 4
	forEachMemory(t, size, func(t *testing.T, m Memory) {
		values := map[int]uint64{1: 0xab, 2: 0xbeef, 4: 0xdeadbeef, 8: 0x0123456789abcdef}
		for width, v := range values {
			for _, addr := range []uint64{0, 1, 7, riscv.RiscvPageSize - 1, riscv.RiscvPageSize*2 - 3, size - uint64(width)} {
				require.NoError(t, store(m, width, addr, v), "store%d at %d", width*8, addr)
				got, err := load(m, width, addr)
				require.NoError(t, err)
				require.Equalf(t, v, got, "load%d at %d", width*8, addr)
			}
		}
	})
}

func TestMemoryStoreTruncatesToWidth(t *testing.T) {
	forEachMemory(t, riscv.RiscvPageSize, func(t *testing.T, m Memory) {
		require.NoError(t, m.Store16(0, 0xffff_1234))
		v, err := m.Load32(0)
		require.NoError(t, err)
		require.Equal(t, uint64(0x1234), v)
	})
}

func TestMemoryLittleEndian(t *testing.T) {
	forEachMemory(t, riscv.RiscvPageSize, func(t *testing.T, m Memory) {
		require.NoError(t, m.Store16(0, 0x0102))
		b, err := m.LoadBytes(0, 2)
		require.NoError(t, err)
		require.Equal(t, []byte{0x02, 0x01}, b)

		require.NoError(t, m.Store64(8, 0x0807060504030201))
		b, err = m.LoadBytes(8, 8)
		require.NoError(t, err)
		require.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, b)

		v, err := m.Load32(10)
		require.NoError(t, err)
		require.Equal(t, uint64(0x06050403), v)
	})

	t.Run("flat raw buffer", func(t *testing.T) {
		m := NewFlat(riscv.RiscvPageSize)
		require.NoError(t, m.Store16(0, 0x0102))
		require.Equal(t, []byte{0x02, 0x01}, m.UncheckedBytes()[:2])
	})
}

func TestMemoryOutOfBound(t *testing.T) {
	const size = riscv.RiscvPageSize * 2
	forEachMemory(t, size, func(t *testing.T, m Memory) {
		for _, width := range []int{1, 2, 4, 8} {
			for _, addr := range []uint64{size, size - uint64(width) + 1, math.MaxUint64, math.MaxUint64 - uint64(width) + 1, math.MaxUint64 - 2} {
				_, err := load(m, width, addr)
				require.ErrorIsf(t, err, ErrMemOutOfBound, "load%d at %x", width*8, addr)
				require.ErrorIsf(t, store(m, width, addr, 1), ErrMemOutOfBound, "store%d at %x", width*8, addr)
			}
		}
		_, err := m.LoadBytes(size-1, 2)
		require.ErrorIs(t, err, ErrMemOutOfBound)
		_, err = m.LoadBytes(math.MaxUint64, 2)
		require.ErrorIs(t, err, ErrMemOutOfBound)
		require.ErrorIs(t, m.StoreBytes(size-1, []byte{1, 2}), ErrMemOutOfBound)
		require.ErrorIs(t, m.StoreByte(math.MaxUint64, 2, 0), ErrMemOutOfBound)
		_, err = m.ExecuteLoad32(size - 2)
		require.ErrorIs(t, err, ErrMemOutOfBound)

		// failed stores must not leave flags behind
		for page := uint64(0); page < 2; page++ {
			flag, err := m.FetchFlag(page)
			require.NoError(t, err)
			require.Zero(t, flag)
		}
	})
}

func TestMemoryZeroLength(t *testing.T) {
	forEachMemory(t, riscv.RiscvPageSize, func(t *testing.T, m Memory) {
		for _, addr := range []uint64{0, riscv.RiscvPageSize, math.MaxUint64} {
			b, err := m.LoadBytes(addr, 0)
			require.NoError(t, err)
			require.Empty(t, b)
			require.NoError(t, m.StoreBytes(addr, nil))
			require.NoError(t, m.StoreBytes(addr, []byte{}))
			require.NoError(t, m.StoreByte(addr, 0, 0xff))
		}
		flag, err := m.FetchFlag(0)
		require.NoError(t, err)
		require.Zero(t, flag, "zero length stores must not dirty pages")
	})
}

func TestMemoryFlags(t *testing.T) {
	forEachMemory(t, riscv.RiscvPageSize*2, func(t *testing.T, m Memory) {
		require.NoError(t, m.SetFlag(1, 0b0011))
		require.NoError(t, m.SetFlag(1, 0b1000))
		flag, err := m.FetchFlag(1)
		require.NoError(t, err)
		require.Equal(t, uint8(0b1011), flag)

		require.NoError(t, m.ClearFlag(1, 0b0010))
		flag, err = m.FetchFlag(1)
		require.NoError(t, err)
		require.Equal(t, uint8(0b1001), flag)

		flag, err = m.FetchFlag(0)
		require.NoError(t, err)
		require.Zero(t, flag)

		_, err = m.FetchFlag(2)
		require.ErrorIs(t, err, ErrMemOutOfBound)
		require.ErrorIs(t, m.SetFlag(2, 1), ErrMemOutOfBound)
		require.ErrorIs(t, m.ClearFlag(math.MaxUint64, 1), ErrMemOutOfBound)
	})
}

func TestMemoryDirtyPages(t *testing.T) {
	const size = riscv.RiscvPageSize * 4
	forEachMemory(t, size, func(t *testing.T, m Memory) {
		flags := func() []uint8 {
			out := make([]uint8, 4)
			for i := range out {
				f, err := m.FetchFlag(uint64(i))
				require.NoError(t, err)
				out[i] = f
			}
			return out
		}
		require.NoError(t, m.Store8(riscv.RiscvPageSize*2+5, 1))
		require.Equal(t, []uint8{0, 0, riscv.FlagDirty, 0}, flags(), "store confined to one page")

		require.NoError(t, m.StoreBytes(riscv.RiscvPageSize-1, []byte{1, 2}))
		require.Equal(t, []uint8{riscv.FlagDirty, riscv.FlagDirty, riscv.FlagDirty, 0}, flags())

		require.NoError(t, m.ClearFlag(0, riscv.FlagDirty))
		require.NoError(t, m.ClearFlag(1, riscv.FlagDirty))
		require.NoError(t, m.StoreByte(riscv.RiscvPageSize*3, riscv.RiscvPageSize, 0xaa))
		require.Equal(t, []uint8{0, 0, riscv.FlagDirty, riscv.FlagDirty}, flags())
	})
}

func TestMemoryStraddlingStore(t *testing.T) {
	forEachMemory(t, riscv.RiscvPageSize*4, func(t *testing.T, m Memory) {
		addr := uint64(riscv.RiscvPageSize - 2)
		require.NoError(t, m.Store32(addr, 0xDEADBEEF))
		for page := uint64(0); page < 4; page++ {
			flag, err := m.FetchFlag(page)
			require.NoError(t, err)
			if page < 2 {
				require.Equal(t, riscv.FlagDirty, flag&riscv.FlagDirty, "page %d", page)
			} else {
				require.Zero(t, flag, "page %d", page)
			}
		}
		v, err := m.Load32(addr)
		require.NoError(t, err)
		require.Equal(t, uint64(0xDEADBEEF), v)
	})
}

func TestMemoryReset(t *testing.T) {
	forEachMemory(t, riscv.RiscvPageSize*2, func(t *testing.T, m Memory) {
		require.NoError(t, m.StoreByte(0, riscv.RiscvPageSize*2, 0x5a))
		require.NoError(t, m.SetFlag(1, riscv.FlagExecutable))
		m.SetLR(0x40)
		require.Equal(t, uint64(0x40), m.LR())

		require.NoError(t, m.ResetMemory())
		b, err := m.LoadBytes(0, riscv.RiscvPageSize*2)
		require.NoError(t, err)
		require.Equal(t, make([]byte, riscv.RiscvPageSize*2), b)
		for page := uint64(0); page < 2; page++ {
			flag, err := m.FetchFlag(page)
			require.NoError(t, err)
			require.Zero(t, flag)
		}
		require.Equal(t, riscv.NoReservation, m.LR())
	})
}

func TestMemoryInitPages(t *testing.T) {
	forEachMemory(t, riscv.RiscvPageSize*2, func(t *testing.T, m Memory) {
		require.NoError(t, m.StoreByte(0, riscv.RiscvPageSize*2, 0xff))

		require.NoError(t, m.InitPages(0, 16, riscv.FlagExecutable, []byte{1, 2, 3, 4}, 3))
		b, err := m.LoadBytes(0, 17)
		require.NoError(t, err)
		require.Equal(t, []byte{0, 0, 0, 1, 2, 3, 4, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xff}, b)

		t.Run("source longer than range", func(t *testing.T) {
			require.NoError(t, m.InitPages(32, 4, 0, []byte{9, 8, 7, 6, 5, 4}, 1))
			b, err := m.LoadBytes(32, 5)
			require.NoError(t, err)
			require.Equal(t, []byte{0, 9, 8, 7, 0xff}, b)
		})

		t.Run("no source", func(t *testing.T) {
			require.NoError(t, m.InitPages(64, 4, 0, nil, 0))
			b, err := m.LoadBytes(64, 5)
			require.NoError(t, err)
			require.Equal(t, []byte{0, 0, 0, 0, 0xff}, b)
		})

		t.Run("out of bound", func(t *testing.T) {
			require.ErrorIs(t, m.InitPages(riscv.RiscvPageSize*2-2, 4, 0, nil, 0), ErrMemOutOfBound)
		})
	})
}

func TestMemoryExecuteLoad(t *testing.T) {
	forEachMemory(t, riscv.RiscvPageSize, func(t *testing.T, m Memory) {
		require.NoError(t, m.Store32(0, riscv.InstrEcall))
		v32, err := m.ExecuteLoad32(0)
		require.NoError(t, err)
		require.Equal(t, uint32(riscv.InstrEcall), v32)
		v16, err := m.ExecuteLoad16(0)
		require.NoError(t, err)
		require.Equal(t, uint16(0x0073), v16)
	})
}

func TestMemoryLR(t *testing.T) {
	forEachMemory(t, riscv.RiscvPageSize, func(t *testing.T, m Memory) {
		require.Equal(t, riscv.NoReservation, m.LR())
		m.SetLR(math.MaxUint64 - 1)
		require.Equal(t, uint64(math.MaxUint64-1), m.LR())
		require.NoError(t, m.Store64(0, 1))
		require.Equal(t, uint64(math.MaxUint64-1), m.LR(), "stores leave the reservation alone")
	})
}

func TestLoadFrom(t *testing.T) {
	data := []byte(strings.Repeat("under the big bright yellow sun ", 300))
	forEachMemory(t, riscv.RiscvPageSize*4, func(t *testing.T, m Memory) {
		n, err := LoadFrom(m, 0x1337, bytes.NewReader(data))
		require.NoError(t, err)
		require.Equal(t, uint64(len(data)), n)
		got, err := m.LoadBytes(0x1337, uint64(len(data)))
		require.NoError(t, err)
		require.Equal(t, data, got)

		_, err = LoadFrom(m, riscv.RiscvPageSize*4-4, bytes.NewReader(data))
		require.ErrorIs(t, err, ErrMemOutOfBound)

		_, err = LoadFrom(m, 0, iotest.ErrReader(errors.New("boom")))
		var ioErr *IOError
		require.ErrorAs(t, err, &ioErr)
		require.EqualError(t, ioErr.Unwrap(), "boom")
	})
}

func TestPageIndices(t *testing.T) {
	first, last, err := PageIndices(riscv.RiscvPageSize-2, 4, riscv.RiscvMaxMemory)
	require.NoError(t, err)
	require.Equal(t, uint64(0), first)
	require.Equal(t, uint64(1), last)

	first, last, err = PageIndices(riscv.RiscvPageSize, riscv.RiscvPageSize, riscv.RiscvMaxMemory)
	require.NoError(t, err)
	require.Equal(t, uint64(1), first)
	require.Equal(t, uint64(1), last)

	_, _, err = PageIndices(math.MaxUint64, 1, riscv.RiscvMaxMemory)
	require.ErrorIs(t, err, ErrMemOutOfBound)
	_, _, err = PageIndices(0, 0, riscv.RiscvMaxMemory)
	require.ErrorIs(t, err, ErrMemOutOfBound)
}

func TestSparseAllocation(t *testing.T) {
	m := NewSparse(riscv.RiscvPageSize * 8)
	require.Equal(t, 0, m.PageCount())
	require.Equal(t, "0 B", m.Usage())

	require.NoError(t, m.StoreByte(0, riscv.RiscvPageSize*8, 0))
	require.Equal(t, 0, m.PageCount(), "zero fills do not allocate")

	require.NoError(t, m.Store8(riscv.RiscvPageSize*3, 1))
	require.NoError(t, m.Store64(riscv.RiscvPageSize*5-4, math.MaxUint64))
	require.Equal(t, 3, m.PageCount())
	require.Equal(t, "12.0 KiB", m.Usage())

	var seen []uint64
	require.NoError(t, m.ForEachPage(func(pageIndex uint64, page *Page) error {
		seen = append(seen, pageIndex)
		return nil
	}))
	require.ElementsMatch(t, []uint64{3, 4, 5}, seen)

	require.NoError(t, m.ResetMemory())
	require.Equal(t, 0, m.PageCount())
	v, err := m.Load64(riscv.RiscvPageSize*5 - 4)
	require.NoError(t, err)
	require.Zero(t, v)
}
