package control

import (
	"log"
	"time"

	"github.com/tuxhw/tuxd/internal/services/backlight"
	"github.com/tuxhw/tuxd/internal/services/fanctl"
)

// curveByName resolves one of the three curves. Caller holds l.mu.
func (l *Loop) curveByName(name string) (*fanctl.Curve, error) {
	switch name {
	case CurveShared:
		return l.curveShared, nil
	case CurveCPU:
		return l.curveCPU, nil
	case CurveGPU:
		return l.curveGPU, nil
	}
	return nil, ErrUnknownCurve
}

// ApplyFanSpeed sets a fixed manual speed. Curve control is disabled so
// the fan lane does not immediately fight the request.
func (l *Loop) ApplyFanSpeed(fan, speedPercent int) error {
	if !l.fans.Connected() {
		return fanctl.ErrDeviceUnavailable
	}
	if speedPercent < 0 {
		speedPercent = 0
	} else if speedPercent > 100 {
		speedPercent = 100
	}

	l.mu.Lock()
	l.settings.CurveControl = false
	l.settings.ManualSpeed = speedPercent
	l.settings.FanSelect = fan
	l.mu.Unlock()

	if err := l.fans.SetManual(); err != nil {
		return err
	}
	if fan == FanBoth {
		for i := 0; i < fanctl.FanCount; i++ {
			if err := l.fans.Write(i, speedPercent); err != nil {
				return err
			}
		}
		return nil
	}
	return l.fans.Write(fan, speedPercent)
}

// SetHardwareAuto hands fan control back to the embedded controller.
func (l *Loop) SetHardwareAuto() error {
	l.mu.Lock()
	l.settings.CurveControl = false
	l.mu.Unlock()

	if !l.fans.Connected() {
		return fanctl.ErrDeviceUnavailable
	}
	return l.fans.SetAuto()
}

// SetCurveControl toggles curve-driven fan control. Enabling takes manual
// control of the hardware; disabling returns it to the embedded
// controller.
func (l *Loop) SetCurveControl(enabled bool) error {
	l.mu.Lock()
	l.settings.CurveControl = enabled
	l.mu.Unlock()

	if !l.fans.Connected() {
		return fanctl.ErrDeviceUnavailable
	}
	if enabled {
		return l.fans.SetManual()
	}
	return l.fans.SetAuto()
}

// SetCurveMode switches between the shared and split curve modes.
func (l *Loop) SetCurveMode(mode CurveMode) {
	l.mu.Lock()
	l.settings.CurveMode = mode
	l.mu.Unlock()
}

// CurvePoints returns a copy of the named curve's points.
func (l *Loop) CurvePoints(name string) ([]fanctl.Point, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, err := l.curveByName(name)
	if err != nil {
		return nil, err
	}
	return c.Points(), nil
}

// SetCurve replaces the named curve's points.
func (l *Loop) SetCurve(name string, points []fanctl.Point) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, err := l.curveByName(name)
	if err != nil {
		return err
	}
	c.SetPoints(points)
	return nil
}

// SetCurvePoint updates one point of the named curve.
func (l *Loop) SetCurvePoint(name string, i, temp, speed int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, err := l.curveByName(name)
	if err != nil {
		return err
	}
	c.SetPoint(i, temp, speed)
	return nil
}

// InsertCurvePoint bisects the widest gap of the named curve. The bool
// reports whether a point was added.
func (l *Loop) InsertCurvePoint(name string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, err := l.curveByName(name)
	if err != nil {
		return false, err
	}
	return c.Insert(), nil
}

// RemoveCurvePoint removes one point of the named curve. The bool reports
// whether a point was removed.
func (l *Loop) RemoveCurvePoint(name string, i int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, err := l.curveByName(name)
	if err != nil {
		return false, err
	}
	return c.Remove(i), nil
}

// ResetCurve restores the named curve to the built-in default.
func (l *Loop) ResetCurve(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, err := l.curveByName(name)
	if err != nil {
		return err
	}
	c.Reset()
	return nil
}

// wakeForInput restarts the idle clock and, if auto-off had switched the
// backlight off, restores it first. Returns true when a restore ran, in
// which case the caller's own write is redundant.
func (l *Loop) wakeForInput() bool {
	l.mu.Lock()
	if l.autoOffArmed {
		l.monitor.Reset()
	}
	wasOff := l.turnedOff
	var controlBrightness, fadeEnabled bool
	var fadeDuration time.Duration
	if wasOff {
		l.turnedOff = false
		controlBrightness = l.settings.ControlBrightness
		fadeEnabled = l.settings.FadeEnabled
		fadeDuration = l.settings.FadeDuration
	}
	l.mu.Unlock()

	if wasOff {
		l.restoreBacklight(controlBrightness, fadeEnabled, fadeDuration)
	}
	return wasOff
}

// ApplyBrightness records the requested brightness and writes it to the
// hardware when brightness control is enabled and no fade is running.
func (l *Loop) ApplyBrightness(v int) error {
	if !l.kbd.Available() {
		return backlight.ErrUnavailable
	}
	if v < 0 {
		v = 0
	} else if v > l.kbd.MaxBrightness() {
		v = l.kbd.MaxBrightness()
	}

	if l.wakeForInput() {
		l.publishStatus()
		return nil
	}

	l.mu.Lock()
	l.settings.Brightness = v
	controlBrightness := l.settings.ControlBrightness
	l.mu.Unlock()

	if controlBrightness && !l.fades.Active() {
		if err := l.kbd.SetBrightness(v); err != nil {
			return err
		}
	}
	l.publishStatus()
	return nil
}

// ApplyColor writes a color to one zone, or to all zones when zone is
// negative.
func (l *Loop) ApplyColor(c backlight.Color, zone int) error {
	if !l.kbd.Available() {
		return backlight.ErrUnavailable
	}
	if !l.kbd.HasRGB() {
		return backlight.ErrNotRGB
	}

	l.wakeForInput()

	l.mu.Lock()
	l.settings.Color = c
	l.mu.Unlock()

	var err error
	if zone < 0 {
		err = l.kbd.SetColorAll(c)
	} else {
		err = l.kbd.SetColor(c, zone)
	}
	if err != nil {
		return err
	}
	l.publishStatus()
	return nil
}

// SetControlBrightness toggles whether the loop writes brightness at all.
// Enabling adopts the live hardware value so the first sync tick does not
// fight the user.
func (l *Loop) SetControlBrightness(enabled bool) {
	live := -1
	if enabled && l.kbd.Available() {
		if v, err := l.kbd.Brightness(); err == nil {
			live = v
		}
	}

	l.mu.Lock()
	l.settings.ControlBrightness = enabled
	if live >= 0 {
		l.settings.Brightness = live
	}
	l.mu.Unlock()
	l.publishStatus()
}

// SetAutoOff arms or disarms the idle auto-off timer. Arming requires both
// a backlight and a usable input monitor; the monitor being absent is
// reported distinctly from the feature being disabled.
func (l *Loop) SetAutoOff(enabled bool, timeout time.Duration) error {
	if !enabled {
		l.mu.Lock()
		l.settings.AutoOffEnabled = false
		l.autoOffArmed = false
		wasOff := l.turnedOff
		l.turnedOff = false
		controlBrightness := l.settings.ControlBrightness
		fadeEnabled := l.settings.FadeEnabled
		fadeDuration := l.settings.FadeDuration
		l.mu.Unlock()

		l.monitor.Stop()
		if wasOff {
			l.restoreBacklight(controlBrightness, fadeEnabled, fadeDuration)
		}
		l.publishStatus()
		return nil
	}

	if !l.kbd.Available() {
		return backlight.ErrUnavailable
	}
	if !l.monitor.Available() {
		return ErrMonitorUnavailable
	}
	if err := l.monitor.Start(l.handleActivity); err != nil {
		return err
	}
	l.monitor.Reset()
	l.kbd.SaveState()

	l.mu.Lock()
	l.settings.AutoOffEnabled = true
	if timeout > 0 {
		l.settings.AutoOffTimeout = timeout
	}
	l.autoOffArmed = true
	l.turnedOff = false
	l.mu.Unlock()

	l.publishStatus()
	return nil
}

// SetFadeConfig adjusts the brightness fade behavior.
func (l *Loop) SetFadeConfig(enabled bool, duration time.Duration) {
	l.mu.Lock()
	l.settings.FadeEnabled = enabled
	if duration > 0 {
		l.settings.FadeDuration = duration
	}
	l.mu.Unlock()
	l.publishStatus()
}

// Settings returns a copy of the current settings.
func (l *Loop) Settings() Settings {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.settings
}

// ApplySettings replaces the settings wholesale, used when loading the
// persisted state at startup. Auto-off arming still goes through
// SetAutoOff so its preconditions hold.
func (l *Loop) ApplySettings(s Settings) {
	autoOff := s.AutoOffEnabled
	s.AutoOffEnabled = false

	l.mu.Lock()
	l.settings = s
	l.mu.Unlock()

	if autoOff {
		if err := l.SetAutoOff(true, s.AutoOffTimeout); err != nil {
			log.Printf("control: auto-off not restored: %v", err)
		}
	}
}
