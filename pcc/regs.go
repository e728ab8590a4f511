package pcc

// Offsets of the common control registers at the start of every block
// window.
const (
	RegSwReset      = 0x00
	RegQch          = 0x04
	RegIPProcessing = 0x08
	RegSyncMode     = 0x0c
	RegInt0Enable   = 0x10
	RegInt0Status   = 0x14
	RegInt1Enable   = 0x18
	RegInt1Status   = 0x1c
	RegCmdqHdrLo    = 0x20
	RegCmdqHdrHi    = 0x24
	RegCmdqNum      = 0x28
	RegCmdqMode     = 0x2c
	RegTrigger      = 0x30
	RegShotFcount   = 0x34
	RegHwFcount     = 0x38
	RegFcountSet    = 0x3c
	RegIdle         = 0x40
	RegVersion      = 0x44

	// ControlSize is the span reserved for common control registers.
	ControlSize = 0x100
)

// Bits of the general interrupt status register.
const (
	Int0FrameStart  uint32 = 1 << 0
	Int0FrameEnd    uint32 = 1 << 1
	Int0SettingDone uint32 = 1 << 2

	Int0All = Int0FrameStart | Int0FrameEnd | Int0SettingDone
)

// Bits of the error interrupt status register.
const (
	Int1Overflow  uint32 = 1 << 0
	Int1CmdqError uint32 = 1 << 1
	Int1DmaError  uint32 = 1 << 2
	Int1Watchdog  uint32 = 1 << 3

	Int1All = Int1Overflow | Int1CmdqError | Int1DmaError | Int1Watchdog
)

// Values of RegCmdqMode.
const (
	CmdqModeDirect = 0
	CmdqModeQueue  = 1
)

// IntID selects one of the interrupt status registers.
type IntID int

// The interrupt status registers.
const (
	Int0 IntID = iota
	Int1
)

func (id IntID) statusReg() uint32 {
	if id == Int0 {
		return RegInt0Status
	}

	return RegInt1Status
}

// SyncMode selects when a triggered frame starts.
type SyncMode uint32

// The frame-sync modes.
const (
	SyncASAP SyncMode = iota
	SyncVsyncRise
)

func (m SyncMode) String() string {
	if m == SyncASAP {
		return "asap"
	}

	return "vsync-rise"
}

var regNames = map[uint32]string{
	RegSwReset:      "SW_RESET",
	RegQch:          "QCH",
	RegIPProcessing: "IP_PROCESSING",
	RegSyncMode:     "SYNC_MODE",
	RegInt0Enable:   "INT0_EN",
	RegInt0Status:   "INT0_STATUS",
	RegInt1Enable:   "INT1_EN",
	RegInt1Status:   "INT1_STATUS",
	RegCmdqHdrLo:    "CMDQ_HDR_LO",
	RegCmdqHdrHi:    "CMDQ_HDR_HI",
	RegCmdqNum:      "CMDQ_NUM",
	RegCmdqMode:     "CMDQ_MODE",
	RegTrigger:      "TRIGGER",
	RegShotFcount:   "SHOT_FCOUNT",
	RegHwFcount:     "HW_FCOUNT",
	RegFcountSet:    "FCOUNT_SET",
	RegIdle:         "IDLE",
	RegVersion:      "VERSION",
}

// RegName returns the name of a control register, or "" for other offsets.
func RegName(offset uint32) string {
	return regNames[offset]
}
