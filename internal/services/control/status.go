package control

import (
	"time"

	"github.com/tuxhw/tuxd/internal/services/backlight"
	"github.com/tuxhw/tuxd/internal/services/fanctl"
)

// FanStatus reports one fan plus the control state applied to it.
type FanStatus struct {
	Fan          int `json:"fan"`
	SpeedPercent int `json:"speedPercent"`
	TempCelsius  int `json:"tempCelsius"`
}

// BacklightStatus reports the detected backlight and its last known state.
type BacklightStatus struct {
	Available     bool            `json:"available"`
	Capability    string          `json:"capability"`
	Zones         int             `json:"zones"`
	MaxBrightness int             `json:"maxBrightness"`
	Brightness    int             `json:"brightness"`
	Color         backlight.Color `json:"color"`
}

// AutoOffStatus reports the idle timer. State is one of "disabled",
// "unavailable", "armed" and "off".
type AutoOffStatus struct {
	State            string  `json:"state"`
	TimeoutSeconds   int     `json:"timeoutSeconds"`
	IdleSeconds      float64 `json:"idleSeconds"`
	RemainingSeconds float64 `json:"remainingSeconds"`
}

// Status is the full observable daemon state.
type Status struct {
	Platform     string          `json:"platform"`
	FanConnected bool            `json:"fanConnected"`
	Fans         []FanStatus     `json:"fans"`
	CurveControl bool            `json:"curveControl"`
	CurveMode    string          `json:"curveMode"`
	ManualSpeed  int             `json:"manualSpeed"`
	Backlight    BacklightStatus `json:"backlight"`
	AutoOff      AutoOffStatus   `json:"autoOff"`
	FadeActive   bool            `json:"fadeActive"`
	FadeEnabled  bool            `json:"fadeEnabled"`
	FadeMs       int             `json:"fadeMs"`
}

// Status assembles a snapshot from the loop's cached readings and
// settings. It does not touch hardware.
func (l *Loop) Status() Status {
	connected := l.fans.Connected()
	idle := l.monitor.IdleTime()

	l.mu.RLock()
	defer l.mu.RUnlock()

	fans := make([]FanStatus, fanctl.FanCount)
	for i, r := range l.lastReadings {
		fans[i] = FanStatus{Fan: i, SpeedPercent: r.SpeedPercent, TempCelsius: r.TempCelsius}
	}

	auto := AutoOffStatus{
		State:          "disabled",
		TimeoutSeconds: int(l.settings.AutoOffTimeout / time.Second),
	}
	if l.settings.AutoOffEnabled {
		auto.IdleSeconds = idle.Seconds()
		switch {
		case !l.monitor.Available():
			auto.State = "unavailable"
		case l.turnedOff:
			auto.State = "off"
		default:
			auto.State = "armed"
			if rem := l.settings.AutoOffTimeout - idle; rem > 0 {
				auto.RemainingSeconds = rem.Seconds()
			}
		}
	}

	return Status{
		Platform:     string(l.fans.Platform()),
		FanConnected: connected,
		Fans:         fans,
		CurveControl: l.settings.CurveControl,
		CurveMode:    l.settings.CurveMode.String(),
		ManualSpeed:  l.settings.ManualSpeed,
		Backlight: BacklightStatus{
			Available:     l.kbd.Available(),
			Capability:    l.kbd.Capability().String(),
			Zones:         l.kbd.Zones(),
			MaxBrightness: l.kbd.MaxBrightness(),
			Brightness:    l.settings.Brightness,
			Color:         l.settings.Color,
		},
		AutoOff:     auto,
		FadeActive:  l.fades.Active(),
		FadeEnabled: l.settings.FadeEnabled,
		FadeMs:      int(l.settings.FadeDuration / time.Millisecond),
	}
}
