package backlight

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

// makeZone creates a fake LED class directory with the given attributes.
func makeZone(t *testing.T, base, name string, maxBrightness int, rgb bool) string {
	t.Helper()
	dir := filepath.Join(base, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	writeAttr(t, dir, "brightness", "0")
	writeAttr(t, dir, "max_brightness", strconv.Itoa(maxBrightness))
	if rgb {
		writeAttr(t, dir, "multi_intensity", "255 255 255")
	}
	return dir
}

func writeAttr(t *testing.T, dir, name, value string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(value), 0644); err != nil {
		t.Fatal(err)
	}
}

func readAttr(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestDetectNone(t *testing.T) {
	d := NewDevice(t.TempDir())

	if d.Available() {
		t.Error("empty LED dir should yield no capability")
	}
	if d.Capability() != CapabilityNone {
		t.Errorf("Capability() = %v, want none", d.Capability())
	}
	if _, err := d.Brightness(); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Brightness() error = %v, want ErrUnavailable", err)
	}
	if err := d.SetBrightness(10); !errors.Is(err, ErrUnavailable) {
		t.Errorf("SetBrightness() error = %v, want ErrUnavailable", err)
	}
}

func TestDetectFixedColor(t *testing.T) {
	base := t.TempDir()
	makeZone(t, base, "white:kbd_backlight", 3, false)

	d := NewDevice(base)

	if d.Capability() != CapabilityFixedColor {
		t.Errorf("Capability() = %v, want fixed color", d.Capability())
	}
	if d.HasRGB() {
		t.Error("fixed-color device should not report RGB")
	}
	if d.MaxBrightness() != 3 {
		t.Errorf("MaxBrightness() = %d, want 3", d.MaxBrightness())
	}
	if err := d.SetColorAll(Color{255, 0, 0}); !errors.Is(err, ErrNotRGB) {
		t.Errorf("SetColorAll() error = %v, want ErrNotRGB", err)
	}
}

func TestDetectSingleZoneRGB(t *testing.T) {
	base := t.TempDir()
	makeZone(t, base, "rgb:kbd_backlight", 255, true)

	d := NewDevice(base)

	if d.Capability() != CapabilitySingleZoneRGB {
		t.Errorf("Capability() = %v, want 1-zone RGB", d.Capability())
	}
	if d.Zones() != 1 {
		t.Errorf("Zones() = %d, want 1", d.Zones())
	}
}

func TestDetectThreeZoneRGB(t *testing.T) {
	base := t.TempDir()
	makeZone(t, base, "rgb:kbd_backlight_1", 255, true)
	makeZone(t, base, "rgb:kbd_backlight_2", 255, true)
	makeZone(t, base, "rgb:kbd_backlight_3", 255, true)

	d := NewDevice(base)

	if d.Capability() != CapabilityThreeZoneRGB {
		t.Errorf("Capability() = %v, want 3-zone RGB", d.Capability())
	}
	if d.Zones() != 3 {
		t.Errorf("Zones() = %d, want 3", d.Zones())
	}
}

func TestSetBrightnessAllZonesAndClamp(t *testing.T) {
	base := t.TempDir()
	z1 := makeZone(t, base, "rgb:kbd_backlight_1", 255, true)
	z2 := makeZone(t, base, "rgb:kbd_backlight_2", 255, true)
	z3 := makeZone(t, base, "rgb:kbd_backlight_3", 255, true)

	d := NewDevice(base)

	if err := d.SetBrightness(999); err != nil {
		t.Fatalf("SetBrightness() error: %v", err)
	}
	for _, z := range []string{z1, z2, z3} {
		if got := readAttr(t, z, "brightness"); got != "255" {
			t.Errorf("zone %s brightness = %q, want 255 (clamped)", z, got)
		}
	}

	got, err := d.Brightness()
	if err != nil {
		t.Fatalf("Brightness() error: %v", err)
	}
	if got != 255 {
		t.Errorf("Brightness() = %d, want 255", got)
	}
}

func TestSetColorBroadcastAndPerZone(t *testing.T) {
	base := t.TempDir()
	z1 := makeZone(t, base, "rgb:kbd_backlight_1", 255, true)
	z2 := makeZone(t, base, "rgb:kbd_backlight_2", 255, true)
	z3 := makeZone(t, base, "rgb:kbd_backlight_3", 255, true)

	d := NewDevice(base)

	if err := d.SetColorAll(Color{300, -1, 128}); err != nil {
		t.Fatalf("SetColorAll() error: %v", err)
	}
	for _, z := range []string{z1, z2, z3} {
		if got := readAttr(t, z, "multi_intensity"); got != "255 0 128" {
			t.Errorf("zone %s color = %q, want clamped 255 0 128", z, got)
		}
	}

	if err := d.SetColor(Color{10, 20, 30}, 1); err != nil {
		t.Fatalf("SetColor() error: %v", err)
	}
	if got := readAttr(t, z2, "multi_intensity"); got != "10 20 30" {
		t.Errorf("zone 1 color = %q, want 10 20 30", got)
	}
	if got := readAttr(t, z1, "multi_intensity"); got != "255 0 128" {
		t.Errorf("zone 0 color changed: %q", got)
	}

	c, err := d.ColorAt(1)
	if err != nil {
		t.Fatalf("ColorAt() error: %v", err)
	}
	if c != (Color{10, 20, 30}) {
		t.Errorf("ColorAt(1) = %+v, want {10 20 30}", c)
	}
}

func TestSaveRestoreRoundTrip(t *testing.T) {
	base := t.TempDir()
	zone := makeZone(t, base, "rgb:kbd_backlight", 255, true)

	d := NewDevice(base)

	writeAttr(t, zone, "brightness", "180")
	writeAttr(t, zone, "multi_intensity", "12 34 56")

	d.SaveState()

	// Clobber hardware state, then restore.
	if err := d.SetBrightness(0); err != nil {
		t.Fatal(err)
	}
	if err := d.SetColorAll(Color{0, 0, 0}); err != nil {
		t.Fatal(err)
	}

	if err := d.RestoreState(); err != nil {
		t.Fatalf("RestoreState() error: %v", err)
	}

	got, _ := d.Brightness()
	if got != 180 {
		t.Errorf("restored brightness = %d, want 180", got)
	}
	c, _ := d.ColorAt(0)
	if c != (Color{12, 34, 56}) {
		t.Errorf("restored color = %+v, want {12 34 56}", c)
	}
}

func TestSaveStateReadsLiveHardware(t *testing.T) {
	base := t.TempDir()
	zone := makeZone(t, base, "white:kbd_backlight", 255, false)

	d := NewDevice(base)
	if err := d.SetBrightness(100); err != nil {
		t.Fatal(err)
	}

	// Out-of-band change between operations.
	writeAttr(t, zone, "brightness", "42")

	d.SaveState()

	if got := d.Saved().Brightness; got != 42 {
		t.Errorf("Saved().Brightness = %d, want the live value 42", got)
	}
}

func TestSetSavedBrightness(t *testing.T) {
	base := t.TempDir()
	makeZone(t, base, "white:kbd_backlight", 255, false)

	d := NewDevice(base)
	d.SetSavedBrightness(77)

	if got := d.Saved().Brightness; got != 77 {
		t.Errorf("Saved().Brightness = %d, want 77", got)
	}
}

func TestPartialZoneFailureStillWritesRemaining(t *testing.T) {
	base := t.TempDir()
	z1 := makeZone(t, base, "rgb:kbd_backlight_1", 255, true)
	z2 := makeZone(t, base, "rgb:kbd_backlight_2", 255, true)
	z3 := makeZone(t, base, "rgb:kbd_backlight_3", 255, true)

	d := NewDevice(base)

	// Break zone 1's brightness attribute by replacing it with a directory.
	if err := os.Remove(filepath.Join(z2, "brightness")); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(z2, "brightness"), 0755); err != nil {
		t.Fatal(err)
	}

	err := d.SetBrightness(128)
	if err == nil {
		t.Fatal("SetBrightness() should report the failed zone")
	}

	if got := readAttr(t, z1, "brightness"); got != "128" {
		t.Errorf("zone 0 brightness = %q, want 128", got)
	}
	if got := readAttr(t, z3, "brightness"); got != "128" {
		t.Errorf("zone 2 should still be written after zone 1 failed, got %q", got)
	}
}
