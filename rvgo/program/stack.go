package program

import (
	"fmt"

	"github.com/ethereum-optimism/rvsandbox/rvgo/machine"
	"github.com/ethereum-optimism/rvsandbox/rvgo/memory"
	"github.com/ethereum-optimism/rvsandbox/rvgo/riscv"
)

// InitStack lays out the program arguments at the top of the stack region
// [stackStart, stackStart+stackSize) and points sp at them. From sp upwards:
//
//	argc
//	argv[0] .. argv[argc-1]   pointers to the NUL-terminated strings
//	0                         argv terminator
//
// The strings sit above the table. sp is 16 byte aligned. InitStack returns sp.
func InitStack(m machine.Machine, args [][]byte, stackStart, stackSize uint64) (uint64, error) {
	mem := m.Memory()
	if err := memory.CheckRange(stackStart, stackSize, mem.MemorySize()); err != nil {
		return 0, fmt.Errorf("stack region %x+%x: %w", stackStart, stackSize, err)
	}
	sp := stackStart + stackSize
	pointers := make([]uint64, 0, len(args))
	for i, arg := range args {
		size := uint64(len(arg)) + 1
		if sp-stackStart < size {
			return 0, fmt.Errorf("argument %d does not fit on the stack", i)
		}
		sp -= size
		if err := mem.StoreBytes(sp, arg); err != nil {
			return 0, err
		}
		if err := mem.Store8(sp+size-1, 0); err != nil {
			return 0, err
		}
		pointers = append(pointers, sp)
	}

	values := make([]uint64, 0, len(args)+2)
	values = append(values, uint64(len(args)))
	values = append(values, pointers...)
	values = append(values, 0)
	table := uint64(len(values)) * 8
	if sp-stackStart < table {
		return 0, fmt.Errorf("argument table of %d bytes does not fit on the stack", table)
	}
	sp = (sp - table) &^ 15
	if sp < stackStart {
		return 0, fmt.Errorf("argument table of %d bytes does not fit on the stack", table)
	}
	for i, v := range values {
		if err := mem.Store64(sp+uint64(i)*8, v); err != nil {
			return 0, err
		}
	}
	m.SetRegister(riscv.SP, sp)
	return sp, nil
}
