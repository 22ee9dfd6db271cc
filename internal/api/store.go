package api

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/tuxhw/tuxd/internal/database/repositories"
	"github.com/tuxhw/tuxd/internal/services/backlight"
	"github.com/tuxhw/tuxd/internal/services/control"
	"github.com/tuxhw/tuxd/internal/services/fanctl"
)

// Setting keys. Kept flat so the table stays readable with plain sqlite
// tooling.
const (
	keyCurveControl      = "fan_curve_control"
	keyCurveMode         = "fan_curve_mode"
	keyManualSpeed       = "fan_manual_speed"
	keyFanSelect         = "fan_select"
	keyFanOnStartup      = "fan_apply_on_startup"
	keyCurveShared       = "fan_curve_shared"
	keyCurveCPU          = "fan_curve_cpu"
	keyCurveGPU          = "fan_curve_gpu"
	keyBrightness        = "kbd_brightness"
	keyColor             = "kbd_color"
	keyControlBrightness = "kbd_control_brightness"
	keyKbdOnStartup      = "kbd_apply_on_startup"
	keyAutoOffEnabled    = "kbd_auto_off_enabled"
	keyAutoOffTimeoutSec = "kbd_auto_off_timeout_sec"
	keyFadeEnabled       = "kbd_fade_enabled"
	keyFadeDurationMs    = "kbd_fade_duration_ms"
	keyLastProfile       = "undervolt_last_profile"
)

var curveKeys = map[string]string{
	control.CurveShared: keyCurveShared,
	control.CurveCPU:    keyCurveCPU,
	control.CurveGPU:    keyCurveGPU,
}

// Store persists the loop's settings and curves through the key/value
// settings table.
type Store struct {
	settings *repositories.SettingRepository
}

// NewStore wraps a setting repository.
func NewStore(settings *repositories.SettingRepository) *Store {
	return &Store{settings: settings}
}

// SaveSettings writes the loop's current settings and all three curves.
func (s *Store) SaveSettings(ctx context.Context, loop *control.Loop) error {
	st := loop.Settings()

	colorJSON, err := json.Marshal(st.Color)
	if err != nil {
		return err
	}

	pairs := map[string]string{
		keyCurveControl:      strconv.FormatBool(st.CurveControl),
		keyCurveMode:         st.CurveMode.String(),
		keyManualSpeed:       strconv.Itoa(st.ManualSpeed),
		keyFanSelect:         strconv.Itoa(st.FanSelect),
		keyBrightness:        strconv.Itoa(st.Brightness),
		keyColor:             string(colorJSON),
		keyControlBrightness: strconv.FormatBool(st.ControlBrightness),
		keyAutoOffEnabled:    strconv.FormatBool(st.AutoOffEnabled),
		keyAutoOffTimeoutSec: strconv.Itoa(int(st.AutoOffTimeout / time.Second)),
		keyFadeEnabled:       strconv.FormatBool(st.FadeEnabled),
		keyFadeDurationMs:    strconv.Itoa(int(st.FadeDuration / time.Millisecond)),
	}

	for name, key := range curveKeys {
		points, err := loop.CurvePoints(name)
		if err != nil {
			return err
		}
		data, err := json.Marshal(points)
		if err != nil {
			return err
		}
		pairs[key] = string(data)
	}

	for key, value := range pairs {
		if _, err := s.settings.Upsert(ctx, key, value); err != nil {
			return err
		}
	}
	return nil
}

// LoadSettings reads the persisted settings into the loop. Missing keys
// keep their defaults; malformed values are skipped the same way.
func (s *Store) LoadSettings(ctx context.Context, loop *control.Loop) error {
	st := loop.Settings()

	if v, ok := s.get(ctx, keyCurveControl); ok {
		st.CurveControl, _ = strconv.ParseBool(v)
	}
	if v, ok := s.get(ctx, keyCurveMode); ok && v == "split" {
		st.CurveMode = control.CurveModeSplit
	}
	if v, ok := s.getInt(ctx, keyManualSpeed); ok {
		st.ManualSpeed = v
	}
	if v, ok := s.getInt(ctx, keyFanSelect); ok {
		st.FanSelect = v
	}
	if v, ok := s.getInt(ctx, keyBrightness); ok {
		st.Brightness = v
	}
	if v, ok := s.get(ctx, keyColor); ok {
		var c backlight.Color
		if json.Unmarshal([]byte(v), &c) == nil {
			st.Color = c
		}
	}
	if v, ok := s.get(ctx, keyControlBrightness); ok {
		st.ControlBrightness, _ = strconv.ParseBool(v)
	}
	if v, ok := s.get(ctx, keyAutoOffEnabled); ok {
		st.AutoOffEnabled, _ = strconv.ParseBool(v)
	}
	if v, ok := s.getInt(ctx, keyAutoOffTimeoutSec); ok && v > 0 {
		st.AutoOffTimeout = time.Duration(v) * time.Second
	}
	if v, ok := s.get(ctx, keyFadeEnabled); ok {
		st.FadeEnabled, _ = strconv.ParseBool(v)
	}
	if v, ok := s.getInt(ctx, keyFadeDurationMs); ok && v > 0 {
		st.FadeDuration = time.Duration(v) * time.Millisecond
	}

	for name, key := range curveKeys {
		v, ok := s.get(ctx, key)
		if !ok {
			continue
		}
		var points []fanctl.Point
		if json.Unmarshal([]byte(v), &points) != nil {
			continue
		}
		if err := loop.SetCurve(name, points); err != nil {
			return err
		}
	}

	loop.ApplySettings(st)
	return nil
}

// ApplyOnStartup reports the replay flags for fan and backlight settings.
func (s *Store) ApplyOnStartup(ctx context.Context) (fan, kbd bool) {
	if v, ok := s.get(ctx, keyFanOnStartup); ok {
		fan, _ = strconv.ParseBool(v)
	}
	if v, ok := s.get(ctx, keyKbdOnStartup); ok {
		kbd, _ = strconv.ParseBool(v)
	}
	return fan, kbd
}

// SetApplyOnStartup stores the replay flags.
func (s *Store) SetApplyOnStartup(ctx context.Context, fan, kbd bool) error {
	if _, err := s.settings.Upsert(ctx, keyFanOnStartup, strconv.FormatBool(fan)); err != nil {
		return err
	}
	_, err := s.settings.Upsert(ctx, keyKbdOnStartup, strconv.FormatBool(kbd))
	return err
}

// SaveLastProfile remembers the most recently applied undervolt profile.
func (s *Store) SaveLastProfile(ctx context.Context, name string) error {
	_, err := s.settings.Upsert(ctx, keyLastProfile, name)
	return err
}

// LastProfile returns the most recently applied undervolt profile name.
func (s *Store) LastProfile(ctx context.Context) (string, bool) {
	return s.get(ctx, keyLastProfile)
}

func (s *Store) get(ctx context.Context, key string) (string, bool) {
	setting, err := s.settings.FindByKey(ctx, key)
	if err != nil || setting == nil {
		return "", false
	}
	return setting.Value, true
}

func (s *Store) getInt(ctx context.Context, key string) (int, bool) {
	v, ok := s.get(ctx, key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
