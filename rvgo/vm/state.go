package vm

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ethereum-optimism/rvsandbox/rvgo/memory"
	"github.com/ethereum-optimism/rvsandbox/rvgo/riscv"
)

type State struct {
	Memory *memory.Snapshot `json:"memory"`

	PC uint64 `json:"pc"`

	Cycles    uint64 `json:"cycles"`
	MaxCycles uint64 `json:"maxCycles"`

	Running bool `json:"running"`

	Registers [riscv.RegisterCount]uint64 `json:"registers"`
}

// Encode is the binary form the state hash commits to. The memory is
// represented by its digest.
func (s *State) Encode() ([]byte, error) {
	if s.Memory == nil {
		return nil, ErrNoMemoryState
	}
	memDigest, err := s.Memory.Digest()
	if err != nil {
		return nil, fmt.Errorf("failed to digest memory: %w", err)
	}
	out := make([]byte, 0, 32+8*3+1+8*riscv.RegisterCount)
	out = append(out, memDigest[:]...)
	out = binary.BigEndian.AppendUint64(out, s.PC)
	out = binary.BigEndian.AppendUint64(out, s.Cycles)
	out = binary.BigEndian.AppendUint64(out, s.MaxCycles)
	if s.Running {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	for _, r := range s.Registers {
		out = binary.BigEndian.AppendUint64(out, r)
	}
	return out, nil
}

func (s *State) Hash() (common.Hash, error) {
	enc, err := s.Encode()
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(enc), nil
}

func (m *DefaultMachine) State() (*State, error) {
	snap, err := memory.TakeSnapshot(m.Memory())
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot memory: %w", err)
	}
	return &State{
		Memory:    snap,
		PC:        m.PC(),
		Cycles:    m.Cycles(),
		MaxCycles: m.MaxCycles(),
		Running:   m.Running(),
		Registers: m.Registers(),
	}, nil
}

// Restore loads s into the machine. The memory must have the size the
// state was taken with.
func (m *DefaultMachine) Restore(s *State) error {
	if s.Memory == nil {
		return ErrNoMemoryState
	}
	if err := s.Memory.Restore(m.Memory()); err != nil {
		return fmt.Errorf("failed to restore memory: %w", err)
	}
	for i, r := range s.Registers {
		m.SetRegister(i, r)
	}
	m.SetPC(s.PC)
	m.SetCycles(s.Cycles)
	m.SetMaxCycles(s.MaxCycles)
	m.SetRunning(s.Running)
	return nil
}
