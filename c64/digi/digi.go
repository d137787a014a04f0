// Package digi implements the SID register-write tap and the per-voice
// pattern detectors that recognize "digi" PCM-over-SID-registers playback
// tricks: the classic $D418 volume-register digi (and its Mahoney variant),
// frequency-modulation digi, pulse-width-modulation digi, and the Swallow
// and Ice Guys player-specific variants.
package digi

// Detection-window constants, measured in CPU cycles. The reference only
// ships these as compiled-in magic numbers inside its detector source, which
// is not part of this pack — the numeric thresholds below are a documented
// assumption (see DESIGN.md) rather than a literal port, chosen to match the
// state-machine shapes and example scenarios the specification describes.
const (
	FreqDetectTimeoutCycles  = 8
	PulseDetectTimeoutCycles = 8
	SourceLockTimeoutCycles  = 8
	D418MahoneyWindowCycles  = 64
)

// FreqDetectState is the per-voice FM-digi detector state.
type FreqDetectState uint8

const (
	FreqIdle FreqDetectState = iota
	FreqPrep
	FreqSet
	FreqVariant1
	FreqVariant2
)

// PulseDetectState is the per-voice PWM-digi detector state.
type PulseDetectState uint8

const (
	PulseIdle PulseDetectState = iota
	PulsePrep
	PulseConfirm
	PulsePrep2
	PulseConfirm2
)

// DigiType tags which detector last produced a sample, for diagnostics.
type DigiType uint8

const (
	TypeNone DigiType = iota
	TypeD418
	TypeD418Mahoney
	TypeFM
	TypePWM
	TypeSwallow
	TypeIceGuys
)

func (t DigiType) String() string {
	switch t {
	case TypeD418:
		return "D418"
	case TypeD418Mahoney:
		return "D418-Mahoney"
	case TypeFM:
		return "FM"
	case TypePWM:
		return "PWM"
	case TypeSwallow:
		return "Swallow"
	case TypeIceGuys:
		return "IceGuys"
	default:
		return "None"
	}
}

// SID control-register waveform bits (offset 4 within a voice).
const (
	waveGate = 0x01
	waveSync = 0x02
	waveRing = 0x04
	waveTest = 0x08
	waveTri  = 0x10
	waveSaw  = 0x20
	wavePuls = 0x40
	waveNoise = 0x80
)

// Voice register offsets relative to a voice's base.
const (
	regFreqLo = 0
	regFreqHi = 1
	regPwLo   = 2
	regPwHi   = 3
	regCtrl   = 4
	regAD     = 5
	regSR     = 6
)

const regD418 = 0x18 // volume/filter-mode, relative to SID base

// Swallow's two-register PWM handshake: a width-LO write arms the
// accumulator, and only a width-HI write arriving before the timeout
// completes it.
const (
	swallowIdle uint8 = iota
	swallowAwaitHI
)

type voiceState struct {
	freqState   FreqDetectState
	freqTS      uint64
	freqPending uint8

	pulseState    PulseDetectState
	pulseTS       uint64
	pulseBaseline uint8

	swallowPWM  uint16
	swallowMode uint8
	swallowTS   uint64
}

// Detector recognizes digi playback patterns in a stream of SID register
// writes and produces a signed-sample output stream.
type Detector struct {
	baseAddr uint16
	enabled  bool

	isRSID     bool
	compatible uint8

	voices [3]voiceState

	digiSource  int8 // -1 = none, 0 = $D418, else voice index + 1 (1..3)
	lastEventTS uint64

	currentSample int32
	currentType   DigiType

	// $D418 Mahoney detection: count of non-NMI D418 writes seen within
	// the current detection window.
	d418NonNMICount uint8
	d418WindowStart uint64
}

// NewDetector creates a digi detector for a SID chip at baseAddr.
func NewDetector(baseAddr uint16) *Detector {
	d := &Detector{baseAddr: baseAddr}
	d.Reset(false, 0)
	return d
}

// Reset clears all detector state, as done once per startup_song.
func (d *Detector) Reset(isRSID bool, compatible uint8) {
	d.enabled = true
	d.isRSID = isRSID
	d.compatible = compatible
	d.voices = [3]voiceState{}
	d.digiSource = -1
	d.lastEventTS = 0
	d.currentSample = 0
	d.currentType = TypeNone
	d.d418NonNMICount = 0
	d.d418WindowStart = 0
}

// SetEnabled allows the caller to manually mute digi detection.
func (d *Detector) SetEnabled(enabled bool) { d.enabled = enabled }

// GetSample returns the last digi sample recognized, as signed 16-bit.
func (d *Detector) GetSample() int32 { return d.currentSample }

// GetSource returns 0 for a $D418-sourced digi, else voice+1; -1 (as 0xFF
// when asserted as uint8) if no digi source is currently locked.
func (d *Detector) GetSource() int8 {
	if d.digiSource < 0 {
		return -1
	}
	return d.digiSource
}

func (d *Detector) GetType() DigiType { return d.currentType }

// DetectSample processes one SID register write and reports whether it was
// recognized as (part of) a digi event. cycles is the CPU's total elapsed
// cycle count; nmiMode reports whether the CPU is presently inside an
// NMI handler (relevant only to $D418 classification).
func (d *Detector) DetectSample(addr uint16, value uint8, cycles uint64, nmiMode bool) bool {
	if !d.enabled {
		return false
	}
	offset := addr - d.baseAddr

	if offset == regD418 {
		return d.handleD418Digi(value, cycles, nmiMode)
	}
	if offset >= 0x15 {
		return false
	}

	voice := int(offset / 7)
	reg := offset % 7

	if ok := d.handleFreqModulationDigi(voice, reg, value, cycles); ok {
		return true
	}
	if ok := d.handlePulseModulationDigi(voice, reg, value, cycles); ok {
		return true
	}
	if ok := d.handleSwallowDigi(voice, reg, value, cycles); ok {
		return true
	}
	return false
}

// assertSameSource enforces the single-source lock: once a voice (or $D418)
// has produced digi output, writes attributed to a different source are
// ignored until the lock expires.
func (d *Detector) assertSameSource(source int8, cycles uint64) bool {
	if d.digiSource == source {
		return true
	}
	if d.digiSource == -1 || cycles-d.lastEventTS > SourceLockTimeoutCycles {
		d.digiSource = source
		return true
	}
	return false
}

func (d *Detector) recordSample(sample int32, source int8, typ DigiType, cycles uint64) {
	d.currentSample = sample
	d.currentType = typ
	d.digiSource = source
	d.lastEventTS = cycles
}

// handleD418Digi implements detection strategy 1: the classic $D418 4-bit
// DAC, with a Mahoney variant recognized from a burst of non-NMI writes.
func (d *Detector) handleD418Digi(value uint8, cycles uint64, nmiMode bool) bool {
	if !d.assertSameSource(0, cycles) {
		return false
	}
	nibble := int32(value&0x0F) - 8
	sample := nibble * 4096

	typ := TypeD418
	if !nmiMode {
		if cycles-d.d418WindowStart > D418MahoneyWindowCycles {
			d.d418WindowStart = cycles
			d.d418NonNMICount = 0
		}
		d.d418NonNMICount++
		if d.d418NonNMICount >= 2 {
			typ = TypeD418Mahoney
		}
	} else {
		d.d418NonNMICount = 0
	}

	d.recordSample(sample, 0, typ, cycles)
	return true
}

func (d *Detector) isWithinFreqDetectTimeout(v *voiceState, cycles uint64) bool {
	return cycles-v.freqTS <= FreqDetectTimeoutCycles
}

// handleFreqModulationDigi implements detection strategy 2: test-bit set ->
// freq-hi write -> test-bit release, each step within a per-voice timeout.
// It also carries strategy 5 (Ice Guys): a second test-bit-set write
// arriving before the freq-hi write, instead of an ordinary release, forks
// the same state machine into the FreqVariant1/FreqVariant2 path via
// handleIceGuysDigi rather than a separate, disconnected detector.
func (d *Detector) handleFreqModulationDigi(voice int, reg uint16, value uint8, cycles uint64) bool {
	v := &d.voices[voice]

	switch reg {
	case regCtrl:
		testSet := value&waveTest != 0
		switch v.freqState {
		case FreqIdle:
			if testSet {
				v.freqState = FreqPrep
				v.freqTS = cycles
			}
		case FreqPrep:
			if !testSet {
				v.freqState = FreqIdle
			} else if cycles != v.freqTS {
				d.handleIceGuysDigi(voice, reg, value, cycles)
			}
		case FreqSet:
			if !testSet && d.isWithinFreqDetectTimeout(v, cycles) {
				if !d.assertSameSource(int8(voice+1), cycles) {
					v.freqState = FreqIdle
					return false
				}
				sample := (int32(v.freqPending) - 128) << 8
				d.recordSample(sample, int8(voice+1), TypeFM, cycles)
				v.freqState = FreqIdle
				return true
			}
			v.freqState = FreqIdle
		case FreqVariant1:
			if !d.isWithinFreqDetectTimeout(v, cycles) {
				v.freqState = FreqIdle
			}
		case FreqVariant2:
			if !testSet && d.isWithinFreqDetectTimeout(v, cycles) {
				if !d.assertSameSource(int8(voice+1), cycles) {
					v.freqState = FreqIdle
					return false
				}
				sample := (int32(v.freqPending) - 128) << 8
				d.recordSample(sample, int8(voice+1), TypeIceGuys, cycles)
				v.freqState = FreqIdle
				return true
			}
			v.freqState = FreqIdle
		}
	case regFreqHi:
		switch v.freqState {
		case FreqPrep:
			if d.isWithinFreqDetectTimeout(v, cycles) {
				v.freqPending = value
				v.freqState = FreqSet
				v.freqTS = cycles
			} else {
				v.freqState = FreqIdle
			}
		case FreqVariant1:
			if d.isWithinFreqDetectTimeout(v, cycles) {
				v.freqPending = value
				v.freqState = FreqVariant2
				v.freqTS = cycles
			} else {
				v.freqState = FreqIdle
			}
		}
	}
	return false
}

func (d *Detector) isWithinPulseDetectTimeout(v *voiceState, cycles uint64) bool {
	return cycles-v.pulseTS <= PulseDetectTimeoutCycles
}

// handlePulseModulationDigi implements detection strategy 3: repeated
// writes to pulse-width LO or pulse-width HI at regular intervals, the
// 8-bit delta from a recorded baseline being the sample. LO and HI are
// tracked as independent sub-channels — PulsePrep/PulseConfirm for a
// LO-driven sequence, PulsePrep2/PulseConfirm2 for a HI-driven one — since a
// voice's PWM digi commits consistently to whichever half of the register
// it repeatedly writes, not to both interleaved.
func (d *Detector) handlePulseModulationDigi(voice int, reg uint16, value uint8, cycles uint64) bool {
	if reg != regPwLo && reg != regPwHi {
		return false
	}
	v := &d.voices[voice]

	prepState, confirmState := PulsePrep, PulseConfirm
	if reg == regPwHi {
		prepState, confirmState = PulsePrep2, PulseConfirm2
	}

	tracking := v.pulseState == prepState || v.pulseState == confirmState
	if !tracking || !d.isWithinPulseDetectTimeout(v, cycles) {
		v.pulseBaseline = value
		v.pulseTS = cycles
		v.pulseState = prepState
		return false
	}

	delta := int32(value) - int32(v.pulseBaseline)
	v.pulseTS = cycles
	v.pulseState = confirmState

	if !d.assertSameSource(int8(voice+1), cycles) {
		return false
	}
	sample := delta << 8
	d.recordSample(sample, int8(voice+1), TypePWM, cycles)
	return true
}

// handleIceGuysDigi implements detection strategy 5's entry condition: a
// second test-bit-set control-register write arriving while still waiting
// for freq-hi (instead of the release that would complete ordinary FM-digi)
// forks the per-voice state machine into FreqVariant1, from which
// handleFreqModulationDigi's regFreqHi/regCtrl cases carry it on to
// FreqVariant2 and eventual commit. Called from handleFreqModulationDigi,
// not dispatched directly, since both strategies share one FSM.
func (d *Detector) handleIceGuysDigi(voice int, reg uint16, value uint8, cycles uint64) bool {
	v := &d.voices[voice]
	if reg != regCtrl || value&waveTest == 0 {
		return false
	}
	if !d.isWithinFreqDetectTimeout(v, cycles) {
		v.freqState = FreqIdle
		return false
	}
	v.freqState = FreqVariant1
	v.freqTS = cycles
	return false
}

// handleSwallowDigi implements detection strategy 4: Swallow's player packs
// a 16-bit pulse-width value across a width-LO write immediately followed
// by a width-HI write, committing the combined accumulator as the sample
// once both halves arrive within the timeout. This is distinct from the
// single-byte-delta PWM digi of strategy 3, which already claims the write
// first whenever its own repeated-writes pattern matches.
func (d *Detector) handleSwallowDigi(voice int, reg uint16, value uint8, cycles uint64) bool {
	if reg != regPwLo && reg != regPwHi {
		return false
	}
	v := &d.voices[voice]

	if reg == regPwLo {
		v.swallowPWM = (v.swallowPWM & 0xFF00) | uint16(value)
		v.swallowMode = swallowAwaitHI
		v.swallowTS = cycles
		return false
	}

	if v.swallowMode != swallowAwaitHI || cycles-v.swallowTS > PulseDetectTimeoutCycles {
		v.swallowMode = swallowIdle
		return false
	}
	v.swallowPWM = (v.swallowPWM & 0x00FF) | uint16(value&0x0F)<<8
	v.swallowMode = swallowIdle

	if !d.assertSameSource(int8(voice+1), cycles) {
		return false
	}
	sample := (int32(v.swallowPWM) - 2048) << 4
	d.recordSample(sample, int8(voice+1), TypeSwallow, cycles)
	return true
}

// RouteDigiSignal reports whether the last recognized sample should be
// mixed into the filtered (true) or unfiltered (false) output accumulator,
// depending on which voice sourced it and whether that voice's filter
// route bit is set.
func RouteDigiSignal(source int8, filterRouteBits uint8) bool {
	if source <= 0 {
		return false
	}
	return filterRouteBits&(1<<uint(source-1)) != 0
}
