package fanctl

import (
	"errors"
	"fmt"
	"sync"
)

// Platform identifies which hardware command set the control device speaks.
type Platform string

const (
	PlatformUnknown Platform = "unknown"
	PlatformClevo   Platform = "clevo"
	PlatformUniwill Platform = "uniwill"
)

// FanCount is the number of fans exposed on the public surface. The Clevo
// packed word carries a third channel that is preserved on writes but not
// exposed.
const FanCount = 2

// ErrDeviceUnavailable is returned by every operation on a controller whose
// control device is missing or failed to probe. Callers degrade rather than
// crash; running on unsupported machines is a supported mode.
var ErrDeviceUnavailable = errors.New("fanctl: control device unavailable")

// Reading is one fan's telemetry.
type Reading struct {
	Fan          int `json:"fan"`
	SpeedPercent int `json:"speedPercent"`
	TempCelsius  int `json:"tempCelsius"`
}

// protocol is the per-variant command implementation. The variant set is
// closed: exactly one of clevoProtocol or uniwillProtocol is selected at
// connect time and never changes for the controller's lifetime.
type protocol interface {
	read(fan int) (Reading, error)
	write(fan, speedPercent int) error
	setAuto() error
	setManual() error
}

// Controller owns the control device handle and exposes platform-agnostic
// fan operations.
type Controller struct {
	mu sync.Mutex

	devicePath string
	tr         transport
	proto      protocol
	platform   Platform
}

// NewController creates a disconnected controller for the given device node.
func NewController(devicePath string) *Controller {
	if devicePath == "" {
		devicePath = DefaultDevicePath
	}
	return &Controller{devicePath: devicePath, platform: PlatformUnknown}
}

// Connect opens the control device and probes the two hardware-check
// commands, Clevo first. Any failure leaves the controller disconnected;
// the error reports why, but the controller stays usable as an inert stub.
func (c *Controller) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.proto != nil {
		return nil
	}

	tr, err := openDevice(c.devicePath)
	if err != nil {
		return fmt.Errorf("fanctl: open %s: %w", c.devicePath, err)
	}

	if v, err := tr.readInt(reqHWCheckClevo); err == nil && v == 1 {
		c.tr = tr
		c.proto = &clevoProtocol{tr: tr}
		c.platform = PlatformClevo
		return nil
	}
	if v, err := tr.readInt(reqHWCheckUniwill); err == nil && v == 1 {
		c.tr = tr
		c.proto = &uniwillProtocol{tr: tr}
		c.platform = PlatformUniwill
		return nil
	}

	_ = tr.close()
	return fmt.Errorf("fanctl: %s answered neither hardware check: %w", c.devicePath, ErrDeviceUnavailable)
}

// Disconnect closes the device handle and returns the controller to the
// disconnected state.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tr != nil {
		_ = c.tr.close()
	}
	c.tr = nil
	c.proto = nil
	c.platform = PlatformUnknown
}

// Connected reports whether a hardware variant was successfully probed.
func (c *Controller) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.proto != nil
}

// Platform returns the detected hardware variant.
func (c *Controller) Platform() Platform {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.platform
}

// Read returns one fan's speed and temperature. A disconnected controller
// returns a zero reading with ErrDeviceUnavailable.
func (c *Controller) Read(fan int) (Reading, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.proto == nil {
		return Reading{Fan: fan}, ErrDeviceUnavailable
	}
	if fan < 0 || fan >= FanCount {
		return Reading{Fan: fan}, fmt.Errorf("fanctl: fan index %d out of range", fan)
	}
	r, err := c.proto.read(fan)
	if err != nil {
		return Reading{Fan: fan}, fmt.Errorf("fanctl: read fan %d: %w", fan, err)
	}
	return r, nil
}

// Write sets one fan's target speed in percent. No-op with
// ErrDeviceUnavailable when disconnected.
func (c *Controller) Write(fan, speedPercent int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.proto == nil {
		return ErrDeviceUnavailable
	}
	if fan < 0 || fan >= FanCount {
		return fmt.Errorf("fanctl: fan index %d out of range", fan)
	}
	speedPercent = clampInt(speedPercent, 0, 100)
	if err := c.proto.write(fan, speedPercent); err != nil {
		return fmt.Errorf("fanctl: write fan %d: %w", fan, err)
	}
	return nil
}

// SetAuto returns fan control to the hardware.
func (c *Controller) SetAuto() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.proto == nil {
		return ErrDeviceUnavailable
	}
	return c.proto.setAuto()
}

// SetManual disables hardware-autonomous control so explicit writes take
// effect. On Uniwill this is implicit in writing a speed.
func (c *Controller) SetManual() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.proto == nil {
		return ErrDeviceUnavailable
	}
	return c.proto.setManual()
}

// clevoProtocol implements the Clevo command set.
type clevoProtocol struct {
	tr transport
}

// clevoChannels is the number of fan channels packed into one speed word.
const clevoChannels = 3

func (p *clevoProtocol) read(fan int) (Reading, error) {
	info, err := p.tr.readInt(reqClevoFanInfo[fan])
	if err != nil {
		return Reading{}, err
	}
	raw := int(info) & 0xFF
	temp := int(info>>16) & 0xFF
	if temp > 127 {
		temp -= 256 // sign-extend the 8-bit field
	}
	return Reading{
		Fan:          fan,
		SpeedPercent: (raw*100 + 127) / 255,
		TempCelsius:  temp,
	}, nil
}

// write packs all three channels into one word, so the untouched channels'
// current raw values are re-read and carried over unchanged. The re-read
// happens immediately before the write; a concurrent writer could land in
// between and be overwritten with a stale value. This window matches the
// hardware interface's granularity and is accepted.
func (p *clevoProtocol) write(fan, speedPercent int) error {
	target := int32(speedPercent) * 255 / 100

	var raw [clevoChannels]int32
	for i := 0; i < clevoChannels; i++ {
		if i == fan {
			raw[i] = target
			continue
		}
		info, err := p.tr.readInt(reqClevoFanInfo[i])
		if err != nil {
			return err
		}
		raw[i] = info & 0xFF
	}

	arg := raw[0] | raw[1]<<8 | raw[2]<<16
	return p.tr.writeInt(reqClevoFanSpeed, arg)
}

func (p *clevoProtocol) setAuto() error {
	return p.tr.writeInt(reqClevoFanAuto, 0x0F)
}

func (p *clevoProtocol) setManual() error {
	return p.tr.writeInt(reqClevoFanAuto, 0)
}

// uniwillProtocol implements the Uniwill command set.
type uniwillProtocol struct {
	tr transport
}

func (p *uniwillProtocol) read(fan int) (Reading, error) {
	speed, err := p.tr.readInt(reqUniwillFanSpeed[fan])
	if err != nil {
		return Reading{}, err
	}
	temp, err := p.tr.readInt(reqUniwillFanTemp[fan])
	if err != nil {
		return Reading{}, err
	}
	return Reading{
		Fan:          fan,
		SpeedPercent: int(speed),
		TempCelsius:  int(temp),
	}, nil
}

func (p *uniwillProtocol) write(fan, speedPercent int) error {
	return p.tr.writeInt(reqUniwillSetSpeed[fan], int32(speedPercent)*2)
}

func (p *uniwillProtocol) setAuto() error {
	return p.tr.call(reqUniwillFanAuto)
}

// setManual is implicit for Uniwill: writing a speed leaves auto mode.
func (p *uniwillProtocol) setManual() error {
	return nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
