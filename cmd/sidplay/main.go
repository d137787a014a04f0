// Command sidplay loads a PSID/RSID file, drives the emulation kernel
// through its startup/run-one-frame lifecycle, and writes the resulting PCM
// stream to a file or stdout. It exercises the emu.Emulator driver API; it
// does not play audio live or provide any interactive front-end.
package main

import (
	"bufio"
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/bobuss/websid/emu"
	"github.com/bobuss/websid/hacks"
	"github.com/bobuss/websid/sidfile"
)

func main() {
	inputFile := flag.String("i", "", "Input .sid file")
	outputFile := flag.String("o", "", "Output file (.wav or raw PCM); empty writes raw PCM to stdout")
	song := flag.Int("song", 0, "1-based song index to play (0 = file's declared start song)")
	seconds := flag.Float64("seconds", 10, "Seconds of audio to render")
	sampleRate := flag.Uint("rate", 44100, "Output sample rate in Hz")
	wav := flag.Bool("wav", false, "Write a WAV container instead of raw PCM")
	flag.Parse()

	if err := run(*inputFile, *outputFile, *song, *seconds, uint32(*sampleRate), *wav); err != nil {
		fmt.Fprintln(os.Stderr, "sidplay:", err)
		os.Exit(1)
	}
}

func run(inputFile, outputFile string, song int, seconds float64, sampleRate uint32, wantWav bool) error {
	if inputFile == "" {
		return fmt.Errorf("missing -i input file")
	}

	raw, err := os.ReadFile(inputFile)
	if err != nil {
		return fmt.Errorf("reading %s: %w", inputFile, err)
	}
	f, err := sidfile.Parse(raw)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", inputFile, err)
	}

	hacksTable, err := hacks.Load()
	if err != nil {
		return fmt.Errorf("loading hacks table: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	e := emu.NewEmulator(f, hacksTable, logger)

	if err := e.LoadSongBinary(f.Data(), f.LoadAddr()); err != nil {
		return fmt.Errorf("loading song binary: %w", err)
	}

	subsong := song
	if subsong == 0 {
		subsong = int(f.StartSong())
	}

	if _, err := e.StartupSong(sampleRate, f.IsNTSC(), 1, f.InitAddr(), f.LoadEndAddr(), f.SidPlayAddr(), uint8(subsong-1), subsong); err != nil {
		return fmt.Errorf("starting song %d: %w", subsong, err)
	}

	out, closeFn, err := openOutput(outputFile)
	if err != nil {
		return err
	}
	defer closeFn()

	channels := 1
	if f.SidAddresses()[1] != 0 {
		channels = 2
	}
	totalSamples := int(seconds * float64(sampleRate))

	var w pcmWriter = &rawPCMWriter{out: out}
	if wantWav || strings.HasSuffix(strings.ToLower(outputFile), ".wav") {
		w = &wavWriter{out: out, sampleRate: sampleRate, channels: channels}
	}

	const samplesPerCall = 882 // one PAL frame at 44100 Hz; the loop resizes buf per call below
	buf := make([]int16, samplesPerCall)

	if err := w.writeHeader(totalSamples * channels); err != nil {
		return fmt.Errorf("writing output header: %w", err)
	}

	remaining := totalSamples
	for remaining > 0 {
		n := samplesPerCall
		if n > remaining {
			n = remaining
		}
		if err := e.RunOneFrame(buf[:n], uint16(n)); err != nil {
			return fmt.Errorf("rendering frame: %w", err)
		}
		if err := w.writeSamples(buf[:n]); err != nil {
			return fmt.Errorf("writing samples: %w", err)
		}
		remaining -= n
	}

	return w.close()
}

func openOutput(path string) (io.Writer, func() error, error) {
	if path == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return file, file.Close, nil
}

// pcmWriter abstracts over raw-PCM and WAV-container output so the render
// loop above doesn't need to know which one it's feeding.
type pcmWriter interface {
	writeHeader(totalSamples int) error
	writeSamples(samples []int16) error
	close() error
}

type rawPCMWriter struct {
	out io.Writer
}

func (w *rawPCMWriter) writeHeader(int) error { return nil }

func (w *rawPCMWriter) writeSamples(samples []int16) error {
	return binary.Write(w.out, binary.LittleEndian, samples)
}

func (w *rawPCMWriter) close() error { return nil }

// wavWriter emits a minimal 44-byte canonical RIFF/WAVE header followed by
// raw little-endian PCM16 samples. No WAV-writing library appears anywhere
// in the retrieval pack (see DESIGN.md), so this header is hand-rolled
// against the well-known fixed layout rather than pulled in as a dependency
// for 44 bytes of fixed fields.
type wavWriter struct {
	out        io.Writer
	sampleRate uint32
	channels   int
	buffered   *bufio.Writer
}

func (w *wavWriter) writeHeader(totalSamples int) error {
	w.buffered = bufio.NewWriter(w.out)
	dataBytes := uint32(totalSamples * 2)
	byteRate := w.sampleRate * uint32(w.channels) * 2
	blockAlign := uint16(w.channels * 2)

	buf := w.buffered
	write := func(s string) { buf.WriteString(s) }
	writeU32 := func(v uint32) { binary.Write(buf, binary.LittleEndian, v) }
	writeU16 := func(v uint16) { binary.Write(buf, binary.LittleEndian, v) }

	write("RIFF")
	writeU32(36 + dataBytes)
	write("WAVE")
	write("fmt ")
	writeU32(16)
	writeU16(1) // PCM
	writeU16(uint16(w.channels))
	writeU32(w.sampleRate)
	writeU32(byteRate)
	writeU16(blockAlign)
	writeU16(16) // bits per sample
	write("data")
	writeU32(dataBytes)
	return nil
}

func (w *wavWriter) writeSamples(samples []int16) error {
	return binary.Write(w.buffered, binary.LittleEndian, samples)
}

func (w *wavWriter) close() error {
	return w.buffered.Flush()
}
