package emu

import (
	"fmt"
	"log/slog"

	"github.com/bobuss/websid/c64/cia"
	"github.com/bobuss/websid/c64/digi"
	"github.com/bobuss/websid/c64/sid"
	"github.com/bobuss/websid/c64/vic"
	"github.com/bobuss/websid/cpu"
	"github.com/bobuss/websid/hacks"
	"github.com/bobuss/websid/membus"
)

// CycleLimit bounds how long an INIT routine may run before startup_song
// gives up and reports it as hung.
const CycleLimit = 2_000_000

// rasterOverrunGrace is how many extra cycles a PSID raster-driven PLAY
// routine is allowed to run past its frame budget before being abandoned.
const rasterOverrunGrace = 60000

// cpuPortDefault is the conventional post-reset $0001 CPU port value; this
// kernel has no ROM overlay to bank in or out (memory bank switching is out
// of scope), but PSID songs routinely read the byte back so it still needs
// a plausible value.
const cpuPortDefault = 0x37

// Emulator is the playback kernel aggregate: it owns every emulated
// component and drives them through the startup/run-one-frame lifecycle.
// Each instance is independently ownable — no package-level mutable state.
type Emulator struct {
	bus  *membus.Bus
	cpu  *cpu.CPU
	vic  *vic.VIC
	cia1 *cia.CIA
	cia2 *cia.CIA
	sids []*sid.Chip

	env        Environment
	hacksTable *hacks.Table
	logger     *slog.Logger

	songData    []uint8
	currentSong int

	cycles          float64
	cyclesPerSample float64

	psidBankSetting uint8

	// Cross-frame state for the PSID timer-driven dispatcher (§4.7).
	timerSlotOverflow int32
	timerPendingPC    uint16
}

// NewEmulator constructs an Emulator wired to play songs described by env.
// hacksTable may be nil (equivalent to hacks.Empty()); logger may be nil
// (defaults to slog.Default()).
func NewEmulator(env Environment, hacksTable *hacks.Table, logger *slog.Logger) *Emulator {
	if hacksTable == nil {
		hacksTable = hacks.Empty()
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &Emulator{
		env:        env,
		hacksTable: hacksTable,
		logger:     logger,
		bus:        membus.NewBus(),
	}

	e.vic = vic.NewVIC(env.IsNTSC())
	e.cia1 = cia.NewCIA(0xDC00, e.cpuClockAdapter())
	e.cia2 = cia.NewCIA(0xDD00, e.cpuClockAdapter())
	e.cpu = cpu.NewCPU(e.bus)

	e.bus.AttachVIC(e.vic)
	e.bus.AttachCIA1(e.cia1)
	e.bus.AttachCIA2(e.cia2)

	addrs := env.SidAddresses()
	models := env.SidModels()
	for i, addr := range addrs {
		if i > 0 && addr == 0 {
			continue
		}
		base := addr
		if i == 0 && base == 0 {
			base = 0xD400
		}
		chip := sid.NewChip(base, env.ClockRate(), models[i])
		e.sids = append(e.sids, chip)
		e.bus.AttachSID(base, chip)
	}

	return e
}

// cpuClockAdapter returns the cia.SystemClock view of this emulator's CPU.
// It is called before e.cpu exists (CIA construction precedes CPU
// construction so the CPUs can be wired into the bus in natural order), so
// it closes over e and resolves e.cpu lazily on each call.
func (e *Emulator) cpuClockAdapter() cia.SystemClock {
	return cpuClockView{e}
}

type cpuClockView struct{ e *Emulator }

func (v cpuClockView) TotalCycles() uint64  { return v.e.cpu.TotalCycles() }
func (v cpuClockView) MainLoopActive() bool { return v.e.cpu.MainLoopActive() }

// LoadSongBinary writes src into RAM at destAddr and snapshots the whole 64
// KiB image, restored before every subsequent StartupSong call.
func (e *Emulator) LoadSongBinary(src []uint8, destAddr uint16) error {
	e.songData = append([]uint8(nil), src...)
	return e.bus.LoadSongBinary(src, destAddr)
}

// reset reinitializes every component, as done once per StartupSong call.
func (e *Emulator) reset(sampleRate uint32, ntsc bool, compatibility uint8) {
	e.cpu.HardReset()
	e.cia1.Reset(e.vic.CyclesPerScreen())
	e.cia2.Reset(e.vic.CyclesPerScreen())
	e.vic.Reset(ntsc)
	for _, s := range e.sids {
		s.Reset(e.env.IsRSID(), compatibility)
	}
	e.cycles = 0
	e.cyclesPerSample = sid.CyclesPerSample(e.env.ClockRate(), sampleRate)
}

// setDefaultBanksPSID writes the conventional $0000/$0001 CPU port bytes a
// PSID expects to see, standing in for the donor's ROM bank-switching logic
// (out of scope here — there is no ROM overlay to bank).
func (e *Emulator) setDefaultBanksPSID() {
	if e.env.IsFilePSID() {
		e.bus.RawWrite(0x0000, 0x2F)
		e.bus.RawWrite(0x0001, cpuPortDefault)
	}
}

// StartupSong resets every component, restores the loaded song's RAM
// snapshot, applies any hack-table override to initAddr, and runs INIT to
// completion (bounded by CycleLimit). For PSID files it additionally primes
// the timer-driven dispatcher's cross-frame state and forces CIA1 Timer A
// to a fixed playback rate. Returns the (possibly hack-overridden) init
// address actually used, and currentSong becomes the active song index for
// subsequent RunOneFrame dispatch decisions.
func (e *Emulator) StartupSong(sampleRate uint32, ntsc bool, compatibility uint8, initAddr uint16, loadEndAddr uint16, playAddr uint16, subsong uint8, songIndex int) (uint16, error) {
	e.currentSong = songIndex
	e.reset(sampleRate, ntsc, compatibility)
	e.bus.RestoreSnapshot()

	resolvedInit := e.hacksTable.ApplyInitAddr(e.songData, initAddr)
	if resolvedInit != initAddr {
		e.logger.Info("hack table overrode init address", slog.Uint64("orig", uint64(initAddr)), slog.Uint64("override", uint64(resolvedInit)))
	}

	e.setDefaultBanksPSID()
	_ = loadEndAddr // reserved: only meaningful for donor ROM-bank sizing, unused by this flat-memory kernel

	e.cpu.Reset(resolvedInit, subsong)

	for e.cpu.Clock() {
		if e.cpu.TotalCycles() >= CycleLimit {
			e.logger.Warn("INIT routine hangs", slog.Uint64("cycles", e.cpu.TotalCycles()))
			return resolvedInit, fmt.Errorf("emu: INIT routine at $%04X did not return within %d cycles", resolvedInit, CycleLimit)
		}
		e.clockComponents()
		e.cpu.ClockSystem()
	}

	if e.env.IsFilePSID() {
		e.timerSlotOverflow = 0
		e.timerPendingPC = 0
		e.cia1.ForceLatch(cia.TimerA, uint16(e.env.ClockRate()/60))

		_ = playAddr // PSID PLAY address resolution happens per-frame via irqVectorPSID
		e.psidBankSetting = e.bus.RawRead(0x0001)
	}

	return resolvedInit, nil
}

// clockComponents advances VIC, both CIAs, and all SID chips by one system
// cycle and re-derives the CPU's interrupt lines from their resulting
// state — VIC and CIA IRQ outputs are wired together onto the CPU's IRQ
// pin on real hardware. Does not advance the CPU itself or the system
// cycle counter; callers do that immediately after.
func (e *Emulator) clockComponents() {
	e.vic.Clock()
	e.cia1.Clock()
	e.cia2.Clock()
	for _, s := range e.sids {
		s.SetNMIMode(e.cpu.InNMI())
		s.Clock()
	}
	e.cpu.SetIRQLine(e.cia1.IRQAsserted() || e.cia2.IRQAsserted() || e.vic.RasterIRQPending())
}

// synthSample mixes every attached SID chip's recognized digi sample into
// one interleaved-frame output value. The analog oscillator/envelope/filter
// synthesis that would normally dominate this mix is an out-of-scope
// external collaborator (§1); what this kernel can produce is the digi
// stream alone. A sample that RouteDigiSignal reports as filter-routed gets
// attenuated rather than summed at full scale, since the filter stage
// itself isn't modeled here and can't be trusted to pass it through
// unshaped.
func (e *Emulator) synthSample() int16 {
	var sum int32
	for _, s := range e.sids {
		sample, source := s.DigiSample()
		if digi.RouteDigiSignal(source, s.FilterRouteBits()) {
			sample /= 2
		}
		sum += sample
	}
	switch {
	case sum > 32767:
		sum = 32767
	case sum < -32768:
		sum = -32768
	}
	return int16(sum)
}

// isTimerDriven resolves PSID dispatch mode, letting a hacks-table entry
// override the file's own (possibly wrong) speed-bitmap declaration.
func (e *Emulator) isTimerDriven() bool {
	if h, ok := e.hacksTable.Lookup(e.songData); ok {
		if h.ForceTimerDriven {
			return true
		}
		if h.ForceRasterDriven {
			return false
		}
	}
	return e.env.IsTimerDrivenPSID(e.currentSong)
}

// RunOneFrame advances playback by one frame's worth of output, dispatching
// to the RSID, PSID-raster, or PSID-timer loop per the active song's
// declared (or hack-overridden) dispatch mode. buf receives samplesPerCall
// interleaved PCM samples; pass nil to advance state without producing
// audio (e.g. while fast-forwarding past an intro).
func (e *Emulator) RunOneFrame(buf []int16, samplesPerCall uint16) error {
	e.cia1.UpdateTOD(e.env.CurrentSongSpeed())
	e.cia2.UpdateTOD(e.env.CurrentSongSpeed())

	switch {
	case e.env.IsRSID():
		e.runRSID(buf, samplesPerCall)
	case e.isTimerDriven():
		e.runTimerPSID(buf, samplesPerCall)
	default:
		e.runRasterPSID(buf, samplesPerCall)
	}
	return nil
}

// runRSID is the emulation loop for real C64 memory images (§4.5): pure
// cycle stepping, hardware IRQs/NMIs arise organically from CIA/VIC state
// and the loaded program's own interrupt vectors.
func (e *Emulator) runRSID(buf []int16, samplesPerCall uint16) {
	n := e.cyclesPerSample
	for i := uint16(0); i < samplesPerCall; i++ {
		for e.cycles < n {
			e.clockComponents()
			e.cpu.Clock()
			e.cpu.ClockSystem()
			e.cycles++
		}
		e.cycles -= n
		if buf != nil {
			buf[i] = e.synthSample()
		}
	}
}

func (e *Emulator) isDummyIrqVectorPSID() bool {
	if e.env.SidPlayAddr() != 0 {
		return true
	}
	ffVec := uint16(e.bus.RawRead(0xFFFE)) | uint16(e.bus.RawRead(0xFFFF))<<8
	softVec := uint16(e.bus.RawRead(0x0314)) | uint16(e.bus.RawRead(0x0315))<<8
	return ffVec == 0 && e.env.IsFilePSID() && softVec != 0
}

func (e *Emulator) irqVectorPSID() uint16 {
	if e.env.SidPlayAddr() != 0 {
		return e.env.SidPlayAddr()
	}
	vec := uint16(e.bus.RawRead(0xFFFE)) | uint16(e.bus.RawRead(0xFFFF))<<8
	if vec == 0 && e.env.IsFilePSID() {
		vec = uint16(e.bus.RawRead(0x0314)) | uint16(e.bus.RawRead(0x0315))<<8
	}
	return vec
}

// preparePlayPSID restores the post-INIT bank byte and force-dispatches
// into the resolved PLAY/IRQ vector, as every PSID dispatch mode must do
// before each simulated PLAY call (real PSID files routinely corrupt $0001
// and leave inconsistent IRQ vectors between calls).
func (e *Emulator) preparePlayPSID() {
	e.bus.RawWrite(0x0001, e.psidBankSetting)
	if e.isDummyIrqVectorPSID() {
		e.cpu.RegReset()
	}
	e.cpu.ResetToIRQ(e.irqVectorPSID())
}

func (e *Emulator) timerForPSID() uint16 {
	t := e.cia1.TimerALatch()
	if t == 0 {
		return uint16(e.vic.CyclesPerScreen())
	}
	return t
}

// runRasterPSID is the PSID once-per-frame dispatch mode (§4.6): a single
// forced PLAY call per frame, given up to rasterOverrunGrace extra cycles
// if it overruns the frame budget before being abandoned.
func (e *Emulator) runRasterPSID(buf []int16, samplesPerCall uint16) {
	e.preparePlayPSID()
	e.vic.ForceRasterIRQPending()

	n := e.cyclesPerSample
	validPC := true

	for i := uint16(0); i < samplesPerCall; i++ {
		for e.cycles < n {
			e.clockComponents()
			if validPC {
				validPC = e.cpu.Clock()
			}
			e.cpu.ClockSystem()
			e.cycles++
		}
		e.cycles -= n
		if buf != nil {
			buf[i] = e.synthSample()
		}
	}

	// The reference clocks the CPU before the other components in this
	// overrun tail, unlike every other loop here — preserved as-is.
	if validPC {
		count := 0
		for {
			validPC = e.cpu.Clock()
			if !validPC || count >= rasterOverrunGrace {
				break
			}
			count++
			e.clockComponents()
			e.cpu.ClockSystem()
		}
		if validPC {
			e.logger.Warn("PSID PLAY overran its frame past the grace period", slog.Int("grace_cycles", rasterOverrunGrace))
		}
	}
}

// runTimerPSID is the PSID CIA1-timer-driven dispatch mode (§4.7): PLAY is
// invoked at intervals set by the CIA1 Timer A latch (falling back to one
// frame's cycle budget if the song never configured it), tolerating PLAY
// calls that overrun their slot or cross a frame boundary entirely.
func (e *Emulator) runTimerPSID(buf []int16, samplesPerCall uint16) {
	n := e.cyclesPerSample

	slotCycles := e.timerSlotOverflow
	if slotCycles == 0 {
		slotCycles = int32(e.timerForPSID())
	}

	validPC := e.timerPendingPC != 0
	var irqCycles int32
	fillCycles := e.timerSlotOverflow

	for i := uint16(0); i < samplesPerCall; i++ {
		for e.cycles < n {
			e.clockComponents()

			if validPC {
				irqCycles++
				validPC = e.cpu.Clock()

				if !validPC {
					if e.timerPendingPC != 0 {
						if e.timerSlotOverflow != 0 {
							if irqCycles > e.timerSlotOverflow {
								fillCycles = 0
							} else {
								fillCycles = e.timerSlotOverflow - irqCycles
							}
							e.timerSlotOverflow = 0
						} else {
							slotCycles = int32(e.timerForPSID())
							fillCycles = 0
						}
						e.timerPendingPC = 0
					} else {
						slotCycles = int32(e.timerForPSID())
						if irqCycles > slotCycles {
							fillCycles = 0
							slotCycles -= (irqCycles - slotCycles) % slotCycles
						} else {
							fillCycles = slotCycles - irqCycles
						}
					}
				}
			} else {
				if fillCycles > 0 {
					fillCycles--
				} else {
					e.preparePlayPSID()
					e.cia1.FakeTimerAUnderflow()
					irqCycles = 0
					validPC = true
					fillCycles = 0
				}
			}

			e.cpu.ClockSystem()
			e.cycles++
		}
		e.cycles -= n
		if buf != nil {
			buf[i] = e.synthSample()
		}
	}

	e.timerSlotOverflow = fillCycles
	if validPC {
		e.timerPendingPC = e.cpu.GetPC()
	} else {
		e.timerPendingPC = 0
	}

	if e.timerPendingPC != 0 {
		if irqCycles > slotCycles {
			e.timerSlotOverflow = 0
		} else {
			e.timerSlotOverflow = slotCycles - irqCycles
		}
	}
}
