// Package backlight controls keyboard-backlight brightness and color
// through the LED class sysfs interface, supporting fixed-color, one-zone
// RGB and three-zone RGB hardware.
package backlight

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// DefaultLEDPath is the LED class directory scanned for keyboard backlights.
const DefaultLEDPath = "/sys/class/leds"

// Capability classifies the detected backlight hardware.
type Capability int

const (
	CapabilityNone Capability = iota
	CapabilityFixedColor
	CapabilitySingleZoneRGB
	CapabilityThreeZoneRGB
)

// String returns a human-readable capability name for status display.
func (c Capability) String() string {
	switch c {
	case CapabilityFixedColor:
		return "fixed color"
	case CapabilitySingleZoneRGB:
		return "1-zone RGB"
	case CapabilityThreeZoneRGB:
		return "3-zone RGB"
	default:
		return "none"
	}
}

// ErrNotRGB is returned by color operations on non-RGB hardware.
var ErrNotRGB = errors.New("backlight: device has no RGB capability")

// ErrUnavailable is returned when no backlight hardware was detected.
var ErrUnavailable = errors.New("backlight: no keyboard backlight detected")

// Color is an RGB triple, each channel 0..255.
type Color struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

// Snapshot is the saved brightness and zone-0 color captured before an
// auto-off transition.
type Snapshot struct {
	Brightness int   `json:"brightness"`
	Color      Color `json:"color"`
}

// Device owns the set of zone attribute directories for one keyboard
// backlight. Detection runs once; the capability is immutable afterwards.
type Device struct {
	mu sync.Mutex

	basePath      string
	zones         []string // one LED directory per zone
	hasRGB        bool
	capability    Capability
	maxBrightness int
	saved         Snapshot
}

// NewDevice creates a device over the given LED class directory and runs
// detection. An empty path uses DefaultLEDPath.
func NewDevice(basePath string) *Device {
	if basePath == "" {
		basePath = DefaultLEDPath
	}
	d := &Device{
		basePath:      basePath,
		maxBrightness: 255,
		saved:         Snapshot{Brightness: 255, Color: Color{255, 255, 255}},
	}
	d.detect()
	return d
}

// detect enumerates candidate LED directories by name pattern, marks RGB
// capability from the presence of a multi_intensity attribute, and reads
// max_brightness once.
func (d *Device) detect() {
	dirs := globDirs(d.basePath, "*kbd_backlight*")
	if len(dirs) == 0 {
		// Alternative driver naming.
		dirs = append(globDirs(d.basePath, "*keyboard*"), globDirs(d.basePath, "rgb:*")...)
	}

	seen := make(map[string]bool)
	for _, dir := range dirs {
		if seen[dir] {
			continue
		}
		seen[dir] = true
		if _, err := os.Stat(filepath.Join(dir, "multi_intensity")); err == nil {
			d.hasRGB = true
		}
		d.zones = append(d.zones, dir)
	}

	if len(d.zones) == 0 {
		d.capability = CapabilityNone
		return
	}

	if v, err := readIntFile(filepath.Join(d.zones[0], "max_brightness")); err == nil && v > 0 {
		d.maxBrightness = v
	}

	switch {
	case d.hasRGB && len(d.zones) >= 3:
		d.capability = CapabilityThreeZoneRGB
	case d.hasRGB:
		d.capability = CapabilitySingleZoneRGB
	default:
		d.capability = CapabilityFixedColor
	}
}

// Available reports whether any backlight hardware was detected.
func (d *Device) Available() bool {
	return d.capability != CapabilityNone
}

// Capability returns the detected hardware class.
func (d *Device) Capability() Capability {
	return d.capability
}

// HasRGB reports whether color operations are permitted.
func (d *Device) HasRGB() bool {
	return d.hasRGB
}

// Zones returns the number of independently addressable zones.
func (d *Device) Zones() int {
	return len(d.zones)
}

// MaxBrightness returns the device's maximum brightness value.
func (d *Device) MaxBrightness() int {
	return d.maxBrightness
}

// Brightness reads the live zone-0 brightness from hardware.
func (d *Device) Brightness() (int, error) {
	if len(d.zones) == 0 {
		return 0, ErrUnavailable
	}
	return readIntFile(filepath.Join(d.zones[0], "brightness"))
}

// SetBrightness applies one clamped scalar to every zone's brightness
// attribute. A failed zone is reported but the remaining zones are still
// attempted; zones already written are not rolled back.
func (d *Device) SetBrightness(v int) error {
	if len(d.zones) == 0 {
		return ErrUnavailable
	}
	v = clamp(v, 0, d.maxBrightness)

	var firstErr error
	for _, zone := range d.zones {
		path := filepath.Join(zone, "brightness")
		if err := os.WriteFile(path, []byte(strconv.Itoa(v)), 0644); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("backlight: write %s: %w", path, err)
		}
	}
	return firstErr
}

// ColorAt reads the RGB triple of one zone.
func (d *Device) ColorAt(zone int) (Color, error) {
	if !d.hasRGB {
		return Color{}, ErrNotRGB
	}
	if zone < 0 || zone >= len(d.zones) {
		return Color{}, fmt.Errorf("backlight: zone %d out of range", zone)
	}
	data, err := os.ReadFile(filepath.Join(d.zones[zone], "multi_intensity"))
	if err != nil {
		return Color{}, err
	}
	fields := strings.Fields(strings.TrimSpace(string(data)))
	if len(fields) < 3 {
		return Color{}, fmt.Errorf("backlight: malformed multi_intensity %q", string(data))
	}
	var c Color
	if c.R, err = strconv.Atoi(fields[0]); err != nil {
		return Color{}, err
	}
	if c.G, err = strconv.Atoi(fields[1]); err != nil {
		return Color{}, err
	}
	if c.B, err = strconv.Atoi(fields[2]); err != nil {
		return Color{}, err
	}
	return c, nil
}

// SetColor writes a clamped RGB triple to one zone.
func (d *Device) SetColor(c Color, zone int) error {
	if !d.hasRGB {
		return ErrNotRGB
	}
	if zone < 0 || zone >= len(d.zones) {
		return fmt.Errorf("backlight: zone %d out of range", zone)
	}
	return d.writeColor(c, d.zones[zone])
}

// SetColorAll broadcasts the same clamped triple to every zone. As with
// brightness, a failed zone does not stop the remaining writes.
func (d *Device) SetColorAll(c Color) error {
	if !d.hasRGB {
		return ErrNotRGB
	}
	var firstErr error
	for _, zone := range d.zones {
		if err := d.writeColor(c, zone); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (d *Device) writeColor(c Color, zoneDir string) error {
	c = Color{R: clamp(c.R, 0, 255), G: clamp(c.G, 0, 255), B: clamp(c.B, 0, 255)}
	path := filepath.Join(zoneDir, "multi_intensity")
	line := fmt.Sprintf("%d %d %d", c.R, c.G, c.B)
	if err := os.WriteFile(path, []byte(line), 0644); err != nil {
		return fmt.Errorf("backlight: write %s: %w", path, err)
	}
	return nil
}

// SaveState snapshots the live brightness and zone-0 color. It always reads
// hardware, never a cached value, so out-of-band changes are captured.
func (d *Device) SaveState() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if v, err := d.Brightness(); err == nil {
		d.saved.Brightness = v
	}
	if d.hasRGB {
		if c, err := d.ColorAt(0); err == nil {
			d.saved.Color = c
		}
	}
}

// Saved returns the last snapshot.
func (d *Device) Saved() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.saved
}

// SetSavedBrightness overwrites the snapshot's brightness. Used when an
// out-of-band change re-lit the backlight and the live value becomes the
// new restore target.
func (d *Device) SetSavedBrightness(v int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.saved.Brightness = clamp(v, 0, d.maxBrightness)
}

// RestoreState replays the saved brightness and color.
func (d *Device) RestoreState() error {
	snap := d.Saved()
	err := d.SetBrightness(snap.Brightness)
	if d.hasRGB {
		if cerr := d.SetColorAll(snap.Color); err == nil {
			err = cerr
		}
	}
	return err
}

func globDirs(base, pattern string) []string {
	matches, err := filepath.Glob(filepath.Join(base, pattern))
	if err != nil {
		return nil
	}
	return matches
}

func readIntFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
