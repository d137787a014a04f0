// Package sid models the register-visible surface of a 6581/8580 Sound
// Interface Device. The analog oscillator/envelope/filter DSP is an
// out-of-scope external collaborator (see spec §1); what lives here is the
// register shadow every write passes through, the digi detector tap on top
// of it, and the per-chip sample clock used to pace PCM output.
package sid

import "github.com/bobuss/websid/c64/digi"

// NumRegisters is the size of one SID chip's register window ($D400-$D41C
// plus mirror padding to 32 bytes).
const NumRegisters = 32

// RegModeVol is $D418: volume (bits 0-3) + filter mode (bits 4-7).
const RegModeVol = 0x18

// RegFilterRoute is $D417: resonance (bits 4-7) + per-voice filter routing
// (bits 0-2, one per voice).
const RegFilterRoute = 0x17

// Chip models one SID instance's register shadow and digi tap.
type Chip struct {
	baseAddr  uint16
	is6581    bool
	clockRate uint32

	registers [NumRegisters]uint8
	digi      *digi.Detector

	nmiMode bool
	cycles  uint64
}

// NewChip creates a SID chip shadow at baseAddr.
func NewChip(baseAddr uint16, clockRate uint32, is6581 bool) *Chip {
	c := &Chip{baseAddr: baseAddr, clockRate: clockRate, is6581: is6581}
	c.digi = digi.NewDetector(baseAddr)
	return c
}

// Reset clears the register shadow and the digi detector, as done once per
// startup_song.
func (c *Chip) Reset(isRSID bool, compatibility uint8) {
	c.registers = [NumRegisters]uint8{}
	c.digi.Reset(isRSID, compatibility)
	c.cycles = 0
}

// SetNMIMode informs the digi detector whether the CPU is presently
// executing an NMI handler, relevant only to $D418 digi classification.
func (c *Chip) SetNMIMode(active bool) { c.nmiMode = active }

// Is6581 reports the configured chip model.
func (c *Chip) Is6581() bool { return c.is6581 }

// BaseAddr returns this chip's register base address.
func (c *Chip) BaseAddr() uint16 { return c.baseAddr }

// WriteMem handles a CPU write into this chip's register window (mirrored
// every 32 bytes), updating the shadow and feeding the digi detector.
func (c *Chip) WriteMem(addr uint16, value uint8) {
	offset := (addr - c.baseAddr) % NumRegisters
	c.registers[offset] = value
	c.digi.DetectSample(c.baseAddr+offset, value, c.cycles, c.nmiMode)
}

// ReadMem returns the shadowed register value; real SID chips only make a
// few registers (oscillator/envelope readback) actually readable, but the
// kernel never depends on that distinction since music files write-only.
func (c *Chip) ReadMem(addr uint16) uint8 {
	offset := (addr - c.baseAddr) % NumRegisters
	return c.registers[offset]
}

// Clock advances this chip's cycle counter by one system cycle. The analog
// synthesis step that would normally run here is an external collaborator
// and is intentionally not modeled.
func (c *Chip) Clock() {
	c.cycles++
}

// DigiSample returns the last digi-recognized sample and its source voice
// (0 = $D418, 1..3 = voice, -1 = none), for mixing into the output stream.
func (c *Chip) DigiSample() (int32, int8) {
	return c.digi.GetSample(), c.digi.GetSource()
}

// FilterRouteBits returns the live $D417 per-voice filter-routing bits, for
// deciding whether a digi sample sourced from a given voice would have
// passed through the (unmodeled) analog filter.
func (c *Chip) FilterRouteBits() uint8 {
	return c.registers[RegFilterRoute] & 0x07
}

// CyclesPerSample returns how many CPU cycles elapse per output sample at
// the given output sample rate.
func CyclesPerSample(clockRate uint32, sampleRate uint32) float64 {
	return float64(clockRate) / float64(sampleRate)
}
