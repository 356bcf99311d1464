package program

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/rvsandbox/rvgo/machine"
	"github.com/ethereum-optimism/rvsandbox/rvgo/memory"
	"github.com/ethereum-optimism/rvsandbox/rvgo/riscv"
)

type segment struct {
	vaddr uint64
	flags elf.ProgFlag
	data  []byte
	memsz uint64
}

// buildELF assembles a minimal section-less ELF64 image.
func buildELF(t *testing.T, arch elf.Machine, entry uint64, segs ...segment) *elf.File {
	const headerSize, progSize = 64, 56
	var ident [elf.EI_NIDENT]byte
	copy(ident[:], elf.ELFMAG)
	ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, elf.Header64{
		Ident:     ident,
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(arch),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     entry,
		Phoff:     headerSize,
		Ehsize:    headerSize,
		Phentsize: progSize,
		Phnum:     uint16(len(segs)),
		Shentsize: 64,
	}))
	offset := uint64(headerSize + progSize*len(segs))
	for _, s := range segs {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, elf.Prog64{
			Type:   uint32(elf.PT_LOAD),
			Flags:  uint32(s.flags),
			Off:    offset,
			Vaddr:  s.vaddr,
			Paddr:  s.vaddr,
			Filesz: uint64(len(s.data)),
			Memsz:  s.memsz,
			Align:  riscv.RiscvPageSize,
		}))
		offset += uint64(len(s.data))
	}
	for _, s := range segs {
		buf.Write(s.data)
	}
	f, err := elf.NewFile(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	return f
}

func TestLoadELF(t *testing.T) {
	code := []byte{0x73, 0x00, 0x00, 0x00, 0x73, 0x00, 0x10, 0x00}
	data := []byte{1, 2, 3, 4}
	f := buildELF(t, elf.EM_RISCV, 0x1010,
		segment{vaddr: 0x1010, flags: elf.PF_R | elf.PF_X, data: code, memsz: uint64(len(code))},
		segment{vaddr: 0x3000, flags: elf.PF_R | elf.PF_W, data: data, memsz: 0x1800},
	)

	mem := memory.NewWXorX(memory.NewFlat(riscv.RiscvPageSize * 8))
	require.NoError(t, mem.Store64(0x4ff8, 0xffff))
	entry, err := LoadELF(f, mem)
	require.NoError(t, err)
	require.Equal(t, uint64(0x1010), entry)

	inst, err := mem.ExecuteLoad32(0x1010)
	require.NoError(t, err)
	require.Equal(t, uint32(riscv.InstrEcall), inst)
	inst, err = mem.ExecuteLoad32(0x1014)
	require.NoError(t, err)
	require.Equal(t, uint32(riscv.InstrEbreak), inst)
	pad, err := mem.Load64(0x1000)
	require.NoError(t, err)
	require.Zero(t, pad, "bytes before the segment start are zero padding")

	v, err := mem.Load32(0x3000)
	require.NoError(t, err)
	require.Equal(t, uint64(0x04030201), v)
	v, err = mem.Load64(0x4ff8)
	require.NoError(t, err)
	require.Zero(t, v, "bss is zero filled up to the page boundary")

	flag, err := mem.FetchFlag(1)
	require.NoError(t, err)
	require.Equal(t, riscv.FlagExecutable, flag&riscv.FlagExecutable)
	require.ErrorIs(t, mem.Store8(0x1020, 1), memory.ErrMemWriteOnExecutablePage)
	require.NoError(t, mem.Store8(0x4000, 1))
	_, err = mem.ExecuteLoad32(0x3000)
	require.ErrorIs(t, err, memory.ErrInvalidPermission)

	t.Run("not riscv", func(t *testing.T) {
		f := buildELF(t, elf.EM_X86_64, 0)
		_, err := LoadELF(f, memory.NewFlat(riscv.RiscvPageSize))
		require.ErrorIs(t, err, ErrNotRiscv)
	})

	t.Run("file size larger than mem size", func(t *testing.T) {
		f := buildELF(t, elf.EM_RISCV, 0, segment{vaddr: 0, flags: elf.PF_R, data: data, memsz: 2})
		_, err := LoadELF(f, memory.NewFlat(riscv.RiscvPageSize))
		require.ErrorContains(t, err, "file size (4) > mem size (2)")
	})

	t.Run("segment outside memory", func(t *testing.T) {
		f := buildELF(t, elf.EM_RISCV, 0, segment{vaddr: riscv.RiscvPageSize, flags: elf.PF_R, data: data, memsz: 4})
		_, err := LoadELF(f, memory.NewFlat(riscv.RiscvPageSize))
		require.ErrorIs(t, err, memory.ErrMemOutOfBound)
	})
}

func TestLoadFlat(t *testing.T) {
	mem := memory.NewSparse(riscv.RiscvPageSize * 4)
	code := bytes.Repeat([]byte{0x13, 0, 0, 0}, riscv.RiscvPageSize/4+1)
	require.NoError(t, LoadFlat(mem, riscv.RiscvPageSize, code, riscv.FlagExecutable))
	got, err := mem.LoadBytes(riscv.RiscvPageSize, uint64(len(code)))
	require.NoError(t, err)
	require.Equal(t, code, got)
	require.Equal(t, 2, mem.PageCount())

	require.ErrorIs(t, LoadFlat(mem, 1, code, 0), memory.ErrMemPageUnalignedAccess)
	require.ErrorIs(t, LoadFlat(mem, riscv.RiscvPageSize*3, code, 0), memory.ErrMemOutOfBound)
	require.NoError(t, LoadFlat(mem, 0, nil, 0))
}

func TestInitStack(t *testing.T) {
	m := machine.NewCoreMachine(memory.NewFlat(riscv.RiscvPageSize*4), 0)
	sp, err := InitStack(m, [][]byte{[]byte("prog"), []byte("-v")}, riscv.RiscvPageSize*2, riscv.RiscvPageSize*2)
	require.NoError(t, err)
	require.Equal(t, uint64(0x3fd0), sp)
	require.Zero(t, sp%16)
	require.Equal(t, sp, m.Register(riscv.SP))

	mem := m.Memory()
	argc, err := mem.Load64(sp)
	require.NoError(t, err)
	require.Equal(t, uint64(2), argc)
	expected := []string{"prog\x00", "-v\x00"}
	for i, want := range expected {
		ptr, err := mem.Load64(sp + 8*uint64(i+1))
		require.NoError(t, err)
		got, err := mem.LoadBytes(ptr, uint64(len(want)))
		require.NoError(t, err)
		require.Equal(t, want, string(got))
	}
	term, err := mem.Load64(sp + 8*3)
	require.NoError(t, err)
	require.Zero(t, term)

	t.Run("no args", func(t *testing.T) {
		sp, err := InitStack(m, nil, 0, riscv.RiscvPageSize)
		require.NoError(t, err)
		require.Equal(t, uint64(riscv.RiscvPageSize-16), sp)
	})

	t.Run("too small", func(t *testing.T) {
		_, err := InitStack(m, [][]byte{make([]byte, 100)}, 0, 64)
		require.Error(t, err)
		_, err = InitStack(m, [][]byte{make([]byte, 40)}, 0, 64)
		require.ErrorContains(t, err, "argument table")
	})

	t.Run("outside memory", func(t *testing.T) {
		_, err := InitStack(m, nil, riscv.RiscvPageSize*4, riscv.RiscvPageSize)
		require.ErrorIs(t, err, memory.ErrMemOutOfBound)
	})
}
