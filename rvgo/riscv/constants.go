package riscv

// Instruction is a decoded instruction as handed over by the dispatcher.
// Its encoding is owned by the decoder; hosts only see it in cost functions.
type Instruction uint64

const (
	RiscvPageShifts = 12
	RiscvPageSize   = 1 << RiscvPageShifts
	RiscvPageMask   = RiscvPageSize - 1
	RiscvMaxMemory  = 4 << 20
	RiscvPages      = RiscvMaxMemory / RiscvPageSize

	// NoReservation is the load-reservation value meaning "nothing reserved".
	NoReservation = ^uint64(0)
)

// Page flag bits.
const (
	FlagFreezed    uint8 = 0b001
	FlagExecutable uint8 = 0b010
	FlagWXorXBit   uint8 = 0b010
	FlagWritable   uint8 = (^FlagExecutable) & FlagWXorXBit
	FlagDirty      uint8 = 0b100
)

// Register indices, following the standard ABI names.
const (
	Zero = 0
	RA   = 1
	SP   = 2
	GP   = 3
	TP   = 4
	A0   = 10
	A1   = 11
	A2   = 12
	A3   = 13
	A4   = 14
	A5   = 15
	A6   = 16
	A7   = 17

	RegisterCount = 32
)

const (
	SysRead      = 63
	SysWrite     = 64
	SysExit      = 93
	SysExitGroup = 94
	SysDebug     = 2177

	FdStdin         = 0
	FdStdout        = 1
	FdStderr        = 2
	FdHintRead      = 3
	FdHintWrite     = 4
	FdPreimageRead  = 5
	FdPreimageWrite = 6

	// Linux errno values returned in a1.
	ErrnoBadFd = 0x4d
)

// Trap instruction encodings, used by hosts that charge for the trap itself.
const (
	InstrEcall  = 0x00000073
	InstrEbreak = 0x00100073
)
