// Package hacks implements the "hacks" table (spec §2 item 8): a table of
// per-known-song tweaks, keyed by an MD5 digest of the song's loaded PRG
// image, applied just before INIT runs. The table is loaded from a YAML
// file at startup, the way the donor pack's device-identifier table is
// loaded from tocalls.yaml — read once, parsed leniently, and simply
// unavailable (not fatal) if no file is found.
package hacks

import (
	"crypto/md5"
	"encoding/hex"
	"os"

	"gopkg.in/yaml.v3"
)

// Hack describes one song-specific override.
type Hack struct {
	MD5  string `yaml:"md5"`
	Name string `yaml:"name,omitempty"`

	// OverrideInitAddr, when nonzero, replaces the song's declared INIT
	// address before startup_song resets the CPU to it.
	OverrideInitAddr uint16 `yaml:"override_init_addr,omitempty"`

	// ForceRasterDriven/ForceTimerDriven override the env facade's PSID
	// dispatch-mode detection for songs whose metadata lies about it.
	ForceRasterDriven bool `yaml:"force_raster_driven,omitempty"`
	ForceTimerDriven  bool `yaml:"force_timer_driven,omitempty"`
}

type fileFormat struct {
	Hacks []Hack `yaml:"hacks"`
}

// Table is the loaded hacks table, indexed by lowercase hex MD5 digest.
type Table struct {
	byMD5 map[string]Hack
}

// searchLocations mirrors the donor pack's tocalls.yaml lookup order: the
// working directory first, then a couple of conventional install paths.
var searchLocations = []string{
	"hacks.yaml",
	"data/hacks.yaml",
	"../data/hacks.yaml",
	"/usr/local/share/websid/hacks.yaml",
	"/usr/share/websid/hacks.yaml",
}

// Load reads the hacks table from the first matching location. A missing
// file is not an error — it just yields an empty table, since an emulator
// with no hacks configured should still play songs, only without
// per-title touch-ups.
func Load() (*Table, error) {
	t := &Table{byMD5: map[string]Hack{}}

	for _, location := range searchLocations {
		data, err := os.ReadFile(location)
		if err != nil {
			continue
		}
		var ff fileFormat
		if err := yaml.Unmarshal(data, &ff); err != nil {
			return nil, err
		}
		for _, h := range ff.Hacks {
			t.byMD5[h.MD5] = h
		}
		break
	}
	return t, nil
}

// Empty returns a Table with no entries, for callers that don't ship a
// hacks.yaml at all.
func Empty() *Table {
	return &Table{byMD5: map[string]Hack{}}
}

// NewTable builds a Table directly from a list of entries, for callers that
// already have hack data in memory (e.g. tests) rather than a YAML file.
func NewTable(entries []Hack) *Table {
	t := &Table{byMD5: map[string]Hack{}}
	for _, h := range entries {
		t.byMD5[h.MD5] = h
	}
	return t
}

// Digest computes the MD5 key a song's loaded PRG body is looked up by.
func Digest(songData []uint8) string {
	sum := md5.Sum(songData)
	return hex.EncodeToString(sum[:])
}

// Lookup returns the hack entry for songData, and whether one was found.
func (t *Table) Lookup(songData []uint8) (Hack, bool) {
	h, ok := t.byMD5[Digest(songData)]
	return h, ok
}

// ApplyInitAddr returns the (possibly overridden) INIT address for
// songData, matching the reference's hackIfNeeded(init_addr) — called once
// per startup_song, before the CPU is reset to it.
func (t *Table) ApplyInitAddr(songData []uint8, initAddr uint16) uint16 {
	if h, ok := t.Lookup(songData); ok && h.OverrideInitAddr != 0 {
		return h.OverrideInitAddr
	}
	return initAddr
}
