// Package vic implements the minimal slice of the VIC-II video chip the SID
// playback kernel depends on: the raster counter that paces the system clock
// and the raster-line IRQ that raster-driven PSID tunes use to invoke PLAY
// once per frame. Sprite DMA, bad lines, and pixel output are out of scope —
// this kernel never renders a picture.
package vic

// VIC-II Timing Constants.
const (
	CYCLES_PER_LINE_PAL  = 63  // CPU cycles per raster line, PAL
	TOTAL_LINES_PAL      = 312 // Raster lines per frame, PAL
	CYCLES_PER_LINE_NTSC = 65
	TOTAL_LINES_NTSC     = 262

	// Memory locations
	SPRITE_POINTER_BASE = 0x07F8
	COLOR_RAM_BASE       = 0xD800
)

// VIC-II register offsets relevant to raster IRQ control (from $D000).
const (
	RegRasterLine   = 0x12 // current raster line (low 8 bits)
	RegControl1     = 0x11 // bit 7 = raster line high bit
	RegInterruptReq = 0x19 // bit 0 on read = raster IRQ pending, ack by writing back
	RegInterruptEn  = 0x1A // bit 0 = raster IRQ enabled
	RegRasterIRQ    = 0x12 // write target selecting the IRQ line (shared with RegRasterLine per real hardware; kept separate in our register shadow)
)

// VIC maintains the raster counter and cycles-per-screen budget needed to
// pace the system clock and to raise a raster-line interrupt.
type VIC struct {
	cyclesPerLine int
	totalLines    int

	cycleInLine int
	rasterLine  int

	irqLine     int  // configured raster line that triggers an IRQ
	irqEnabled  bool
	rasterIRQ   bool // sticky until acknowledged by a register write
	framePending bool
}

// NewVIC creates a VIC timed for PAL (ntsc=false) or NTSC (ntsc=true).
func NewVIC(ntsc bool) *VIC {
	v := &VIC{}
	v.Reset(ntsc)
	return v
}

func (v *VIC) Reset(ntsc bool) {
	if ntsc {
		v.cyclesPerLine = CYCLES_PER_LINE_NTSC
		v.totalLines = TOTAL_LINES_NTSC
	} else {
		v.cyclesPerLine = CYCLES_PER_LINE_PAL
		v.totalLines = TOTAL_LINES_PAL
	}
	v.cycleInLine = 0
	v.rasterLine = 0
	v.irqLine = 0
	v.irqEnabled = false
	v.rasterIRQ = false
	v.framePending = false
}

// CyclesPerScreen returns the total CPU cycles in one frame — the window
// passed to cia.ForwardToNextInterrupt and the fallback slot length for
// timer-driven PSID when the CIA1 timer latch is garbage.
func (v *VIC) CyclesPerScreen() uint32 {
	return uint32(v.cyclesPerLine * v.totalLines)
}

// Clock advances the raster state by one system cycle. It returns true the
// cycle a configured raster IRQ line is reached.
func (v *VIC) Clock() bool {
	v.cycleInLine++
	if v.cycleInLine >= v.cyclesPerLine {
		v.cycleInLine = 0
		v.rasterLine++
		if v.rasterLine >= v.totalLines {
			v.rasterLine = 0
			v.framePending = true
		}
		if v.irqEnabled && v.rasterLine == v.irqLine {
			v.rasterIRQ = true
			return true
		}
	}
	return false
}

// RasterIRQPending reports whether an unacknowledged raster IRQ is latched.
func (v *VIC) RasterIRQPending() bool {
	return v.rasterIRQ
}

// AckRasterIRQ clears the latched raster IRQ flag, mirroring a real write to
// $D019 bit 0.
func (v *VIC) AckRasterIRQ() {
	v.rasterIRQ = false
}

// FramePending reports (and clears) whether the raster counter wrapped since
// the last call — used by the dispatcher to detect frame boundaries.
func (v *VIC) FramePending() bool {
	pending := v.framePending
	v.framePending = false
	return pending
}

func (v *VIC) RasterLine() int { return v.rasterLine }

// ForceRasterIRQPending latches the raster-IRQ flag regardless of the enable
// bit, the way the PSID raster-driven dispatcher primes $D019 for tunes that
// poll it without ever producing an organic raster match.
func (v *VIC) ForceRasterIRQPending() {
	v.rasterIRQ = true
}

// ReadMem / WriteMem implement the tiny slice of $D000-$D3FF this kernel
// cares about: the raster-IRQ line select and ack/enable bits.
func (v *VIC) ReadMem(addr uint16) uint8 {
	offset := (addr - 0xD000) & 0x3F
	switch offset {
	case RegRasterLine:
		return uint8(v.rasterLine)
	case RegControl1:
		var hi uint8
		if v.rasterLine > 0xFF {
			hi = 0x80
		}
		return hi
	case RegInterruptReq:
		if v.rasterIRQ {
			return 0x01
		}
		return 0
	case RegInterruptEn:
		if v.irqEnabled {
			return 0x01
		}
		return 0
	}
	return 0
}

func (v *VIC) WriteMem(addr uint16, value uint8) {
	offset := (addr - 0xD000) & 0x3F
	switch offset {
	case RegRasterIRQ:
		v.irqLine = (v.irqLine &^ 0xFF) | int(value)
	case RegControl1:
		if value&0x80 != 0 {
			v.irqLine |= 0x100
		} else {
			v.irqLine &^= 0x100
		}
	case RegInterruptReq:
		if value&0x01 != 0 {
			v.AckRasterIRQ()
		}
	case RegInterruptEn:
		v.irqEnabled = value&0x01 != 0
	}
}
