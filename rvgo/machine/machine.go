package machine

import (
	"fmt"

	"github.com/ethereum-optimism/rvsandbox/rvgo/memory"
	"github.com/ethereum-optimism/rvsandbox/rvgo/riscv"
)

// Machine is the view of a running machine that host hooks get to see.
type Machine interface {
	Memory() memory.Memory

	// Register reads register idx. idx must be below riscv.RegisterCount.
	Register(idx int) uint64
	// SetRegister writes register idx. Writes to x0 are dropped.
	SetRegister(idx int, value uint64)

	PC() uint64
	SetPC(pc uint64)

	Cycles() uint64
	SetCycles(cycles uint64)
	MaxCycles() uint64

	Running() bool
	SetRunning(running bool)
}

// CoreMachine is a 64 bit register file with a program counter and a cycle
// counter, backed by any Memory.
type CoreMachine struct {
	registers [riscv.RegisterCount]uint64
	pc        uint64
	mem       memory.Memory

	cycles    uint64
	maxCycles uint64
	running   bool
}

var _ Machine = (*CoreMachine)(nil)

func NewCoreMachine(mem memory.Memory, maxCycles uint64) *CoreMachine {
	return &CoreMachine{
		mem:       mem,
		maxCycles: maxCycles,
	}
}

func (m *CoreMachine) Memory() memory.Memory {
	return m.mem
}

func (m *CoreMachine) Register(idx int) uint64 {
	checkRegister(idx)
	return m.registers[idx]
}

func (m *CoreMachine) SetRegister(idx int, value uint64) {
	checkRegister(idx)
	if idx == riscv.Zero {
		return
	}
	m.registers[idx] = value
}

// Registers returns a copy of the register file.
func (m *CoreMachine) Registers() [riscv.RegisterCount]uint64 {
	return m.registers
}

func (m *CoreMachine) PC() uint64 {
	return m.pc
}

func (m *CoreMachine) SetPC(pc uint64) {
	m.pc = pc
}

func (m *CoreMachine) Cycles() uint64 {
	return m.cycles
}

func (m *CoreMachine) SetCycles(cycles uint64) {
	m.cycles = cycles
}

func (m *CoreMachine) MaxCycles() uint64 {
	return m.maxCycles
}

func (m *CoreMachine) SetMaxCycles(maxCycles uint64) {
	m.maxCycles = maxCycles
}

func (m *CoreMachine) Running() bool {
	return m.running
}

func (m *CoreMachine) SetRunning(running bool) {
	m.running = running
}

// Reset clears registers, pc and cycles, resets memory and installs a new
// cycle limit. The machine is left stopped.
func (m *CoreMachine) Reset(maxCycles uint64) error {
	m.registers = [riscv.RegisterCount]uint64{}
	m.pc = 0
	m.cycles = 0
	m.maxCycles = maxCycles
	m.running = false
	return m.mem.ResetMemory()
}

func checkRegister(idx int) {
	if idx < 0 || idx >= riscv.RegisterCount {
		panic(fmt.Errorf("invalid register index %d", idx))
	}
}
