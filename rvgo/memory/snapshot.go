package memory

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fxamacker/cbor/v2"

	"github.com/ethereum-optimism/rvsandbox/rvgo/riscv"
)

type PageEntry struct {
	Index uint64        `json:"index" cbor:"1,keyasint"`
	Flags uint8         `json:"flags" cbor:"2,keyasint"`
	Data  hexutil.Bytes `json:"data" cbor:"3,keyasint"`
}

// Snapshot is a portable copy of a Memory: every page that holds data or
// carries flags, in ascending page order, plus the reservation slot.
type Snapshot struct {
	MemorySize      hexutil.Uint64 `json:"memorySize" cbor:"1,keyasint"`
	LoadReservation hexutil.Uint64 `json:"loadReservation" cbor:"2,keyasint"`
	Pages           []PageEntry    `json:"pages" cbor:"3,keyasint"`
}

func TakeSnapshot(m Memory) (*Snapshot, error) {
	out := &Snapshot{
		MemorySize:      hexutil.Uint64(m.MemorySize()),
		LoadReservation: hexutil.Uint64(m.LR()),
		Pages:           []PageEntry{},
	}
	for page := uint64(0); page < PageCountOf(m.MemorySize()); page++ {
		flags, err := m.FetchFlag(page)
		if err != nil {
			return nil, err
		}
		data, err := m.LoadBytes(page<<riscv.RiscvPageShifts, riscv.RiscvPageSize)
		if err != nil {
			return nil, err
		}
		if flags == 0 && isZero(data) {
			continue
		}
		out.Pages = append(out.Pages, PageEntry{Index: page, Flags: flags, Data: data})
	}
	return out, nil
}

// Restore resets m and loads the snapshot into it. Page flags end up exactly
// as captured, including the dirty bit.
func (s *Snapshot) Restore(m Memory) error {
	if uint64(s.MemorySize) != m.MemorySize() {
		return fmt.Errorf("%w: snapshot has %d bytes, memory has %d", ErrSnapshotMemorySizeMismatch, s.MemorySize, m.MemorySize())
	}
	if err := m.ResetMemory(); err != nil {
		return err
	}
	for i, p := range s.Pages {
		if len(p.Data) != riscv.RiscvPageSize {
			return fmt.Errorf("page entry %d (page %d) has %d bytes, expected %d", i, p.Index, len(p.Data), riscv.RiscvPageSize)
		}
		if p.Index >= PageCountOf(m.MemorySize()) {
			return fmt.Errorf("page entry %d: %w", i, ErrMemOutOfBound)
		}
		if err := m.InitPages(p.Index<<riscv.RiscvPageShifts, riscv.RiscvPageSize, p.Flags, p.Data, 0); err != nil {
			return fmt.Errorf("failed to restore page %d: %w", p.Index, err)
		}
		if err := m.ClearFlag(p.Index, 0xff); err != nil {
			return err
		}
		if err := m.SetFlag(p.Index, p.Flags); err != nil {
			return err
		}
	}
	m.SetLR(uint64(s.LoadReservation))
	return nil
}

// Serialize writes the snapshot in a simple binary format which can be read again using Deserialize
// The format is a simple concatenation of fields, with prefixed item count for repeating items and using big endian
// encoding for numbers.
//
// memory size       uint64
// load reservation  uint64
// len(Pages)        uint64
// For each page (ascending index):
//
//	page index          uint64
//	page flags          uint8
//	page Data           [RiscvPageSize]byte
func (s *Snapshot) Serialize(out io.Writer) error {
	header := []uint64{uint64(s.MemorySize), uint64(s.LoadReservation), uint64(len(s.Pages))}
	if err := binary.Write(out, binary.BigEndian, header); err != nil {
		return &IOError{Op: "serialize", Err: err}
	}
	for _, p := range s.Pages {
		if len(p.Data) != riscv.RiscvPageSize {
			return fmt.Errorf("page %d has %d bytes, expected %d", p.Index, len(p.Data), riscv.RiscvPageSize)
		}
		if err := binary.Write(out, binary.BigEndian, p.Index); err != nil {
			return &IOError{Op: "serialize", Err: err}
		}
		if _, err := out.Write(append([]byte{p.Flags}, p.Data...)); err != nil {
			return &IOError{Op: "serialize", Err: err}
		}
	}
	return nil
}

func (s *Snapshot) Deserialize(in io.Reader) error {
	var header [3]uint64
	if err := binary.Read(in, binary.BigEndian, &header); err != nil {
		return &IOError{Op: "deserialize", Err: err}
	}
	if err := validMemorySize(header[0]); err != nil {
		return err
	}
	s.MemorySize = hexutil.Uint64(header[0])
	s.LoadReservation = hexutil.Uint64(header[1])
	pageCount := header[2]
	if pageCount > PageCountOf(header[0]) {
		return fmt.Errorf("snapshot claims %d pages but memory size %d only has %d", pageCount, header[0], PageCountOf(header[0]))
	}
	s.Pages = nil
	for i := uint64(0); i < pageCount; i++ {
		var index uint64
		if err := binary.Read(in, binary.BigEndian, &index); err != nil {
			return &IOError{Op: "deserialize", Err: err}
		}
		buf := make([]byte, 1+riscv.RiscvPageSize)
		if _, err := io.ReadFull(in, buf); err != nil {
			return &IOError{Op: "deserialize", Err: err}
		}
		s.Pages = append(s.Pages, PageEntry{Index: index, Flags: buf[0], Data: buf[1:]})
	}
	return nil
}

var cborEncMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Errorf("invalid cbor encoding options: %w", err))
	}
	return em
}()

// EncodeCBOR uses core deterministic encoding, so equal snapshots encode to equal bytes.
func (s *Snapshot) EncodeCBOR() ([]byte, error) {
	return cborEncMode.Marshal(s)
}

func DecodeCBOR(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode memory snapshot: %w", err)
	}
	return &s, nil
}

// Digest is the keccak256 hash of the binary encoding.
func (s *Snapshot) Digest() (common.Hash, error) {
	var buf bytes.Buffer
	if err := s.Serialize(&buf); err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(buf.Bytes()), nil
}
