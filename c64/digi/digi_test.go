package digi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// S4 — $D418 digi under NMI: alternating positive/negative scaled levels,
// source == 0.
func TestD418DigiUnderNMI(t *testing.T) {
	d := NewDetector(0xD400)

	ok := d.DetectSample(0xD418, 0x0F, 100, true)
	assert.True(t, ok)
	assert.Greater(t, d.GetSample(), int32(0))
	assert.Equal(t, int8(0), d.GetSource())

	ok = d.DetectSample(0xD418, 0x00, 108, true)
	assert.True(t, ok)
	assert.Less(t, d.GetSample(), int32(0))
	assert.Equal(t, int8(0), d.GetSource())
}

// S5 — FM digi on voice 1: test+gate, freq-hi, release test within timeout.
func TestFreqModulationDigiVoice1(t *testing.T) {
	d := NewDetector(0xD400)

	ok := d.DetectSample(0xD404, 0x09, 0, false) // test bit set
	assert.False(t, ok)

	ok = d.DetectSample(0xD401, 0x80, 2, false) // freq-hi
	assert.False(t, ok)

	ok = d.DetectSample(0xD404, 0x01, 4, false) // test bit released
	assert.True(t, ok)
	assert.Equal(t, int8(1), d.GetSource())
	assert.Equal(t, TypeFM, d.GetType())
	assert.Equal(t, (int32(0x80)-128)<<8, d.GetSample())
}

// Invariant 8: no partial FM sequence emits output.
func TestFreqModulationPartialSequenceNoEmit(t *testing.T) {
	d := NewDetector(0xD400)

	ok := d.DetectSample(0xD404, 0x09, 0, false) // test bit set only
	assert.False(t, ok)
	assert.Equal(t, TypeNone, d.GetType())

	// Timeout elapses before freq-hi arrives; the release write should not
	// commit a sample.
	ok = d.DetectSample(0xD404, 0x01, 1000, false)
	assert.False(t, ok)
	assert.Equal(t, TypeNone, d.GetType())
}

// Invariant 8 / source lock: FM timeout resets to Idle without emitting.
func TestFreqModulationTimeoutResets(t *testing.T) {
	d := NewDetector(0xD400)

	d.DetectSample(0xD404, 0x09, 0, false)
	d.DetectSample(0xD401, 0x80, 2, false)

	// Test-bit release arrives long after the per-voice timeout.
	ok := d.DetectSample(0xD404, 0x01, 2+FreqDetectTimeoutCycles+1, false)
	assert.False(t, ok)
}

func TestSourceLockIgnoresOtherVoiceUntilTimeout(t *testing.T) {
	d := NewDetector(0xD400)

	d.DetectSample(0xD418, 0x0F, 0, true)
	assert.Equal(t, int8(0), d.GetSource())

	// A voice-1 FM sequence arriving immediately should be locked out.
	d.DetectSample(0xD404, 0x09, 1, false)
	d.DetectSample(0xD401, 0x80, 2, false)
	ok := d.DetectSample(0xD404, 0x01, 3, false)
	assert.False(t, ok)
	assert.Equal(t, int8(0), d.GetSource())
}

// Strategy 5 — Ice Guys: a second test-bit-set control write, arriving
// before the ordinary FM-digi release, forks the voice into
// FreqVariant1/FreqVariant2 and eventually commits as TypeIceGuys rather
// than leaving the voice's FM detection permanently stuck.
func TestIceGuysDigiVoice1(t *testing.T) {
	d := NewDetector(0xD400)

	ok := d.DetectSample(0xD404, 0x09, 0, false) // test bit set
	assert.False(t, ok)

	ok = d.DetectSample(0xD404, 0x09, 1, false) // second test-set write forks to Ice Guys
	assert.False(t, ok)

	ok = d.DetectSample(0xD401, 0xA0, 3, false) // freq-hi
	assert.False(t, ok)

	ok = d.DetectSample(0xD404, 0x01, 5, false) // test bit released
	assert.True(t, ok)
	assert.Equal(t, int8(1), d.GetSource())
	assert.Equal(t, TypeIceGuys, d.GetType())
	assert.Equal(t, (int32(0xA0)-128)<<8, d.GetSample())
}

// Ice Guys's fork must not leave the voice stuck in FreqVariant1/2 forever:
// once the timeout lapses without the next expected write, the state
// machine resets to Idle and ordinary FM-digi detection on that voice
// resumes working.
func TestIceGuysDigiTimeoutResetsToIdle(t *testing.T) {
	d := NewDetector(0xD400)

	d.DetectSample(0xD404, 0x09, 0, false)
	d.DetectSample(0xD404, 0x09, 1, false) // forks into FreqVariant1

	// Freq-hi arrives long after the per-voice timeout.
	ok := d.DetectSample(0xD401, 0xA0, 1+FreqDetectTimeoutCycles+1, false)
	assert.False(t, ok)
	assert.Equal(t, TypeNone, d.GetType())

	// Ordinary FM-digi on the same voice works again afterward.
	base := uint64(1 + FreqDetectTimeoutCycles + 1)
	d.DetectSample(0xD404, 0x09, base, false)
	d.DetectSample(0xD401, 0x80, base+2, false)
	ok = d.DetectSample(0xD404, 0x01, base+4, false)
	assert.True(t, ok)
	assert.Equal(t, TypeFM, d.GetType())
}

// Strategy 3's LO and HI pulse-width sub-channels are tracked independently:
// a run of consecutive writes to one half must not confirm against a
// baseline recorded from the other half.
func TestPulseModulationSubModesIndependent(t *testing.T) {
	d := NewDetector(0xD400)

	ok := d.DetectSample(0xD402, 0x10, 0, false) // LO write: arms the LO baseline
	assert.False(t, ok)

	// A HI write long enough after (past every timeout in play) breaks both
	// the LO sub-channel's tracking and any stale Swallow arm, without
	// itself confirming anything.
	ok = d.DetectSample(0xD403, 0x50, 20, false)
	assert.False(t, ok)

	ok = d.DetectSample(0xD402, 0x12, 22, false) // LO re-arms with a fresh baseline
	assert.False(t, ok)

	ok = d.DetectSample(0xD402, 0x20, 24, false) // LO confirms against the baseline recorded just above (0x12), not 0x10 or the HI write's 0x50
	assert.True(t, ok)
	assert.Equal(t, int8(1), d.GetSource())
	assert.Equal(t, TypePWM, d.GetType())
	assert.Equal(t, (int32(0x20)-int32(0x12))<<8, d.GetSample())
}

func TestPulseModulationHiSubModeConfirms(t *testing.T) {
	d := NewDetector(0xD400)

	ok := d.DetectSample(0xD403, 0x20, 0, false)
	assert.False(t, ok)

	ok = d.DetectSample(0xD403, 0x25, 2, false)
	assert.True(t, ok)
	assert.Equal(t, TypePWM, d.GetType())
	assert.Equal(t, (int32(0x25)-int32(0x20))<<8, d.GetSample())
}

// Strategy 4 — Swallow: a width-LO write arms a 16-bit accumulator that only
// a width-HI write arriving within the timeout completes.
func TestSwallowDigiVoice1(t *testing.T) {
	d := NewDetector(0xD400)

	ok := d.DetectSample(0xD402, 0x34, 0, false) // width-LO
	assert.False(t, ok)
	assert.Equal(t, TypeNone, d.GetType())

	ok = d.DetectSample(0xD403, 0x07, 2, false) // width-HI within timeout
	assert.True(t, ok)
	assert.Equal(t, int8(1), d.GetSource())
	assert.Equal(t, TypeSwallow, d.GetType())
	assert.Equal(t, (int32(0x0734)-2048)<<4, d.GetSample())
}

// A width-LO write with no width-HI follow-up before the timeout must not
// emit a Swallow sample.
func TestSwallowDigiTimeoutNoEmit(t *testing.T) {
	d := NewDetector(0xD400)

	d.DetectSample(0xD402, 0x34, 0, false)

	ok := d.DetectSample(0xD403, 0x07, PulseDetectTimeoutCycles+2, false)
	assert.False(t, ok)
	assert.Equal(t, TypeNone, d.GetType())
}

func TestRouteDigiSignal(t *testing.T) {
	assert.False(t, RouteDigiSignal(-1, 0xFF))
	assert.False(t, RouteDigiSignal(0, 0xFF))
	assert.True(t, RouteDigiSignal(1, 0x01))
	assert.False(t, RouteDigiSignal(2, 0x01))
}
