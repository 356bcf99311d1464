package syscalls

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/rvsandbox/rvgo/machine"
	"github.com/ethereum-optimism/rvsandbox/rvgo/riscv"
)

// PreimageOracle answers hints and pre-image lookups for the guest.
// Failures are returned to the ecall, they never panic.
type PreimageOracle interface {
	Hint(v []byte) error
	GetPreimage(k [32]byte) ([]byte, error)
}

// Preimage serves the pre-image oracle file descriptors:
// hints are written to riscv.FdHintWrite, keys to riscv.FdPreimageWrite,
// and the length-prefixed value of the current key is read from riscv.FdPreimageRead.
type Preimage struct {
	oracle PreimageOracle
	log    log.Logger

	key    [32]byte
	offset uint64

	// pending hint bytes, a hint is a 4 byte big-endian length followed by the hint
	hintBuf []byte

	// cached pre-image data, including 8 byte length prefix
	lastPreimage []byte
	// key for above preimage
	lastPreimageKey [32]byte
}

func NewPreimage(oracle PreimageOracle, logger log.Logger) *Preimage {
	return &Preimage{oracle: oracle, log: logger}
}

func (p *Preimage) Initialize(machine.Machine) error {
	p.key = [32]byte{}
	p.offset = 0
	p.hintBuf = p.hintBuf[:0]
	return nil
}

// Key returns the current pre-image key and the read offset into its value.
func (p *Preimage) Key() ([32]byte, uint64) {
	return p.key, p.offset
}

func (p *Preimage) Ecall(m machine.Machine) (bool, error) {
	fd := m.Register(riscv.A0)
	addr, count := m.Register(riscv.A1), m.Register(riscv.A2)
	var n uint64
	var err error
	switch a7 := m.Register(riscv.A7); {
	case a7 == riscv.SysWrite && fd == riscv.FdHintWrite:
		n, err = p.writeHint(m, addr, count)
	case a7 == riscv.SysWrite && fd == riscv.FdPreimageWrite:
		n, err = p.writePreimageKey(m, addr, count)
	case a7 == riscv.SysRead && fd == riscv.FdPreimageRead:
		n, err = p.readPreimageValue(m, addr, count)
	case a7 == riscv.SysRead && fd == riscv.FdHintRead:
		// hint acknowledgements carry no data
		n = count
	default:
		return false, nil
	}
	if err != nil {
		return false, err
	}
	m.SetRegister(riscv.A0, n)
	m.SetRegister(riscv.A1, 0)
	return true, nil
}

func (p *Preimage) writeHint(m machine.Machine, addr, count uint64) (uint64, error) {
	data, err := m.Memory().LoadBytes(addr, count)
	if err != nil {
		return 0, fmt.Errorf("failed to read hint: %w", err)
	}
	p.hintBuf = append(p.hintBuf, data...)
	for len(p.hintBuf) >= 4 {
		hintLen := uint64(binary.BigEndian.Uint32(p.hintBuf[:4]))
		if uint64(len(p.hintBuf)) < 4+hintLen {
			break
		}
		hint := p.hintBuf[4 : 4+hintLen]
		p.log.Debug("Forwarding hint", "len", hintLen)
		if err := p.oracle.Hint(append([]byte(nil), hint...)); err != nil {
			return 0, fmt.Errorf("failed to forward hint: %w", err)
		}
		p.hintBuf = p.hintBuf[4+hintLen:]
	}
	return count, nil
}

// writePreimageKey shifts up to 32 bytes into the key and resets the read offset.
func (p *Preimage) writePreimageKey(m machine.Machine, addr, count uint64) (uint64, error) {
	n := min(count, 32)
	data, err := m.Memory().LoadBytes(addr, n)
	if err != nil {
		return 0, fmt.Errorf("failed to read pre-image key: %w", err)
	}
	copy(p.key[:], p.key[n:])
	copy(p.key[32-n:], data)
	p.offset = 0
	return n, nil
}

func (p *Preimage) readPreimageValue(m machine.Machine, addr, count uint64) (uint64, error) {
	dat, datLen, err := p.readPreimage(p.key, p.offset)
	if err != nil {
		return 0, err
	}
	n := min(count, datLen)
	if err := m.Memory().StoreBytes(addr, dat[:n]); err != nil {
		return 0, fmt.Errorf("failed to write pre-image value: %w", err)
	}
	p.offset += n
	return n, nil
}

func (p *Preimage) readPreimage(key [32]byte, offset uint64) (dat [32]byte, datLen uint64, err error) {
	preimage := p.lastPreimage
	if preimage == nil || key != p.lastPreimageKey {
		data, err := p.oracle.GetPreimage(key)
		if err != nil {
			return dat, 0, fmt.Errorf("failed to get pre-image %x: %w", key, err)
		}
		p.lastPreimageKey = key
		// add the length prefix
		preimage = make([]byte, 0, 8+len(data))
		preimage = binary.BigEndian.AppendUint64(preimage, uint64(len(data)))
		preimage = append(preimage, data...)
		p.lastPreimage = preimage
	}
	if offset > uint64(len(preimage)) {
		return dat, 0, fmt.Errorf("pre-image offset %d out of bounds, value has %d bytes", offset, len(preimage))
	}
	datLen = uint64(copy(dat[:], preimage[offset:]))
	return
}
