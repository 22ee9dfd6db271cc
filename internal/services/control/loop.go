// Package control runs the daemon's autonomous lanes: fan curve
// application, backlight brightness reconciliation, and the idle auto-off
// timer. All lanes share one fan controller, one backlight device and one
// idle monitor through the loop object; nothing else touches the hardware
// while the loop runs.
package control

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/tuxhw/tuxd/internal/services/backlight"
	"github.com/tuxhw/tuxd/internal/services/fade"
	"github.com/tuxhw/tuxd/internal/services/fanctl"
	"github.com/tuxhw/tuxd/internal/services/pubsub"
)

// Lane cadences.
const (
	DefaultFanTick     = time.Second
	DefaultSyncTick    = 2 * time.Second
	DefaultAutoOffTick = time.Second
)

// Fan selection for manual speed application.
const (
	FanCPU  = 0
	FanGPU  = 1
	FanBoth = 2
)

// CurveMode selects between one shared curve fed by the hottest fan and
// independent per-fan curves.
type CurveMode int

const (
	CurveModeShared CurveMode = iota
	CurveModeSplit
)

func (m CurveMode) String() string {
	if m == CurveModeSplit {
		return "split"
	}
	return "shared"
}

// Curve names accepted by the curve operations.
const (
	CurveShared = "shared"
	CurveCPU    = "cpu"
	CurveGPU    = "gpu"
)

var (
	// ErrUnknownCurve is returned for a curve name outside the fixed set.
	ErrUnknownCurve = errors.New("control: unknown curve name")

	// ErrMonitorUnavailable means auto-off cannot arm because no input
	// device could be watched, as opposed to the timer being disabled.
	ErrMonitorUnavailable = errors.New("control: no input devices to monitor")
)

// FanDevice is the fan controller surface the loop consumes.
type FanDevice interface {
	Connected() bool
	Platform() fanctl.Platform
	Read(fan int) (fanctl.Reading, error)
	Write(fan, speedPercent int) error
	SetAuto() error
	SetManual() error
}

// BacklightDevice is the backlight surface the loop consumes.
type BacklightDevice interface {
	Available() bool
	HasRGB() bool
	Capability() backlight.Capability
	Zones() int
	MaxBrightness() int
	Brightness() (int, error)
	SetBrightness(v int) error
	SetColor(c backlight.Color, zone int) error
	SetColorAll(c backlight.Color) error
	SaveState()
	Saved() backlight.Snapshot
	SetSavedBrightness(v int)
	RestoreState() error
}

// ActivityMonitor is the idle monitor surface the loop consumes.
type ActivityMonitor interface {
	Available() bool
	Start(onActivity func()) error
	Stop()
	IdleTime() time.Duration
	Reset()
}

// Settings is the runtime-mutable configuration shared by the lanes and
// the foreground operations.
type Settings struct {
	CurveControl bool      `json:"curveControl"`
	CurveMode    CurveMode `json:"curveMode"`
	ManualSpeed  int       `json:"manualSpeed"`
	FanSelect    int       `json:"fanSelect"`

	Brightness        int             `json:"brightness"`
	Color             backlight.Color `json:"color"`
	ControlBrightness bool            `json:"controlBrightness"`

	AutoOffEnabled bool          `json:"autoOffEnabled"`
	AutoOffTimeout time.Duration `json:"autoOffTimeout"`
	FadeEnabled    bool          `json:"fadeEnabled"`
	FadeDuration   time.Duration `json:"fadeDuration"`
}

// DefaultSettings mirrors the daemon's out-of-the-box behavior: hardware
// keeps fan control, brightness is managed, auto-off is opt-in.
func DefaultSettings() Settings {
	return Settings{
		ManualSpeed:       50,
		Brightness:        255,
		Color:             backlight.Color{R: 255, G: 255, B: 255},
		ControlBrightness: true,
		AutoOffTimeout:    30 * time.Second,
		FadeEnabled:       true,
		FadeDuration:      500 * time.Millisecond,
	}
}

// Config carries the lane cadences; zero values take the defaults. Tests
// shrink these.
type Config struct {
	FanTick     time.Duration
	SyncTick    time.Duration
	AutoOffTick time.Duration
}

// Loop is the top-level scheduler.
type Loop struct {
	mu sync.RWMutex

	fans    FanDevice
	kbd     BacklightDevice
	monitor ActivityMonitor
	fades   *fade.Engine
	bus     *pubsub.PubSub

	curveShared *fanctl.Curve
	curveCPU    *fanctl.Curve
	curveGPU    *fanctl.Curve

	settings Settings

	lastReadings [fanctl.FanCount]fanctl.Reading

	// autoOffArmed is true while the auto-off feature watches the idle
	// clock; turnedOff is its belief that it switched the backlight off.
	autoOffArmed bool
	turnedOff    bool

	fanTick     time.Duration
	syncTick    time.Duration
	autoOffTick time.Duration

	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewLoop wires a control loop over the shared hardware handles.
func NewLoop(cfg Config, fans FanDevice, kbd BacklightDevice, monitor ActivityMonitor, fades *fade.Engine, bus *pubsub.PubSub) *Loop {
	if cfg.FanTick <= 0 {
		cfg.FanTick = DefaultFanTick
	}
	if cfg.SyncTick <= 0 {
		cfg.SyncTick = DefaultSyncTick
	}
	if cfg.AutoOffTick <= 0 {
		cfg.AutoOffTick = DefaultAutoOffTick
	}
	return &Loop{
		fans:        fans,
		kbd:         kbd,
		monitor:     monitor,
		fades:       fades,
		bus:         bus,
		curveShared: fanctl.DefaultCurve(),
		curveCPU:    fanctl.DefaultCurve(),
		curveGPU:    fanctl.DefaultCurve(),
		settings:    DefaultSettings(),
		fanTick:     cfg.FanTick,
		syncTick:    cfg.SyncTick,
		autoOffTick: cfg.AutoOffTick,
	}
}

// Start launches the three lanes. Idempotent.
func (l *Loop) Start() {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.stopChan = make(chan struct{})
	stopChan := l.stopChan
	l.mu.Unlock()

	l.wg.Add(3)
	go l.runLane(stopChan, l.fanTick, l.fanLaneTick)
	go l.runLane(stopChan, l.syncTick, l.syncLaneTick)
	go l.runLane(stopChan, l.autoOffTick, l.autoOffLaneTick)
}

// Stop terminates the lanes, cancels any in-flight fade and returns fan
// control to the hardware.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	close(l.stopChan)
	l.mu.Unlock()

	l.wg.Wait()
	l.fades.CancelAndWait()
	l.monitor.Stop()

	if l.fans.Connected() {
		if err := l.fans.SetAuto(); err != nil {
			log.Printf("control: restore hardware fan auto: %v", err)
		}
	}
}

// runLane drives one lane body on a fixed cadence until the stop signal.
func (l *Loop) runLane(stopChan chan struct{}, interval time.Duration, tick func()) {
	defer l.wg.Done()

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-stopChan:
			return
		case <-timer.C:
			tick()
			timer.Reset(interval)
		}
	}
}

// fanLaneTick reads both fans and, when curve control is enabled, applies
// the curve-derived targets. Protocol errors are logged and retried on the
// next tick.
func (l *Loop) fanLaneTick() {
	var readings [fanctl.FanCount]fanctl.Reading
	connected := l.fans.Connected()
	if connected {
		for i := 0; i < fanctl.FanCount; i++ {
			r, err := l.fans.Read(i)
			if err != nil {
				if !errors.Is(err, fanctl.ErrDeviceUnavailable) {
					log.Printf("control: %v", err)
				}
				continue
			}
			readings[i] = r
		}
	}

	l.mu.Lock()
	l.lastReadings = readings
	curveControl := l.settings.CurveControl && connected
	var targets [fanctl.FanCount]int
	if curveControl {
		if l.settings.CurveMode == CurveModeShared {
			temp := readings[0].TempCelsius
			if readings[1].TempCelsius > temp {
				temp = readings[1].TempCelsius
			}
			speed := l.curveShared.SpeedFor(temp)
			targets[0], targets[1] = speed, speed
		} else {
			targets[0] = l.curveCPU.SpeedFor(readings[0].TempCelsius)
			targets[1] = l.curveGPU.SpeedFor(readings[1].TempCelsius)
		}
	}
	l.mu.Unlock()

	if curveControl {
		for i := 0; i < fanctl.FanCount; i++ {
			if err := l.fans.Write(i, targets[i]); err != nil {
				log.Printf("control: %v", err)
			}
		}
	}

	if l.bus != nil {
		l.bus.Publish(pubsub.TopicFanUpdate, readings)
	}
}

// syncLaneTick reconciles the in-memory brightness setting with the live
// hardware value, covering out-of-band changes such as hotkeys. It never
// runs while a fade owns the device.
func (l *Loop) syncLaneTick() {
	if !l.kbd.Available() || l.fades.Active() {
		return
	}
	live, err := l.kbd.Brightness()
	if err != nil {
		return
	}

	l.mu.Lock()
	relit := l.turnedOff && live > 0
	if relit {
		// The backlight came back while auto-off believed it off: the
		// user re-lit it externally. Adopt the live value as the new
		// restore target and restart the idle clock.
		l.turnedOff = false
		if l.autoOffArmed {
			l.monitor.Reset()
		}
		l.kbd.SetSavedBrightness(live)
	}
	changed := live != l.settings.Brightness
	if changed {
		l.settings.Brightness = live
	}
	l.mu.Unlock()

	if changed || relit {
		l.publishStatus()
	}
}

// autoOffLaneTick evaluates the idle timeout and switches the backlight
// off when it fires, saving the live state first.
func (l *Loop) autoOffLaneTick() {
	l.mu.RLock()
	armed := l.autoOffArmed
	off := l.turnedOff
	timeout := l.settings.AutoOffTimeout
	controlBrightness := l.settings.ControlBrightness
	fadeEnabled := l.settings.FadeEnabled
	fadeDuration := l.settings.FadeDuration
	l.mu.RUnlock()

	if !armed || off {
		return
	}
	if l.monitor.IdleTime() < timeout {
		return
	}

	// Always snapshot live hardware before switching off, even when
	// brightness control is disabled, so a later restore has an accurate
	// baseline.
	l.kbd.SaveState()

	l.mu.Lock()
	l.turnedOff = true
	if controlBrightness {
		l.settings.Brightness = 0
	}
	l.mu.Unlock()

	if controlBrightness {
		if fadeEnabled {
			from, err := l.kbd.Brightness()
			if err != nil {
				from = l.kbd.Saved().Brightness
			}
			l.fades.Start(fade.Job{
				From:     from,
				To:       0,
				Duration: fadeDuration,
				Apply:    func(v int) { _ = l.kbd.SetBrightness(v) },
			})
		} else if err := l.kbd.SetBrightness(0); err != nil {
			log.Printf("control: auto-off: %v", err)
		}
	}

	log.Printf("control: backlight off after %v idle", timeout)
	l.publishStatus()
}

// handleActivity is the idle monitor's callback. On renewed activity while
// the backlight is off it restores the saved state, fading in from the
// live value rather than from zero.
func (l *Loop) handleActivity() {
	l.mu.Lock()
	if !l.autoOffArmed || !l.turnedOff {
		l.mu.Unlock()
		return
	}
	l.turnedOff = false
	controlBrightness := l.settings.ControlBrightness
	fadeEnabled := l.settings.FadeEnabled
	fadeDuration := l.settings.FadeDuration
	l.mu.Unlock()

	l.restoreBacklight(controlBrightness, fadeEnabled, fadeDuration)
	l.publishStatus()
}

// restoreBacklight brings the backlight back to the saved snapshot.
func (l *Loop) restoreBacklight(controlBrightness, fadeEnabled bool, fadeDuration time.Duration) {
	if !controlBrightness {
		return
	}

	saved := l.kbd.Saved()

	if fadeEnabled {
		from, err := l.kbd.Brightness()
		if err != nil {
			from = 0
		}
		if from >= saved.Brightness {
			// Already at or above the target (e.g. a cancelled fade-out
			// left it high): a single write suffices.
			from = saved.Brightness
		}
		l.fades.Start(fade.Job{
			From:     from,
			To:       saved.Brightness,
			Duration: fadeDuration,
			Apply:    func(v int) { _ = l.kbd.SetBrightness(v) },
		})
	} else if err := l.kbd.RestoreState(); err != nil {
		log.Printf("control: restore backlight: %v", err)
	}

	l.mu.Lock()
	l.settings.Brightness = saved.Brightness
	l.mu.Unlock()
}

// publishStatus pushes a fresh status snapshot to the stream.
func (l *Loop) publishStatus() {
	if l.bus == nil {
		return
	}
	l.bus.Publish(pubsub.TopicStatus, l.Status())
}
