// Package sensors surfaces host temperature readings as a fallback and
// cross-check for the fan controller's own probes.
package sensors

import (
	"strings"

	"github.com/shirou/gopsutil/v3/host"
)

// cpuSensorHints match the sensor keys that report package or core
// temperature across the common x86 drivers.
var cpuSensorHints = []string{"coretemp", "k10temp", "zenpower", "acpitz", "cpu_thermal"}

// Reading is one named temperature.
type Reading struct {
	Sensor  string  `json:"sensor"`
	Celsius float64 `json:"celsius"`
}

// All returns every temperature the host exposes.
func All() ([]Reading, error) {
	temps, err := host.SensorsTemperatures()
	if err != nil {
		// gopsutil reports partial failures as a warning error while
		// still returning usable readings.
		if len(temps) == 0 {
			return nil, err
		}
	}
	out := make([]Reading, 0, len(temps))
	for _, t := range temps {
		out = append(out, Reading{Sensor: t.SensorKey, Celsius: t.Temperature})
	}
	return out, nil
}

// CPUTemp returns the hottest CPU-attributed sensor, falling back to the
// hottest sensor overall when no key matches a known CPU driver.
func CPUTemp() (float64, bool) {
	readings, err := All()
	if err != nil || len(readings) == 0 {
		return 0, false
	}

	var cpuMax, anyMax float64
	cpuFound := false
	for _, r := range readings {
		if r.Celsius > anyMax {
			anyMax = r.Celsius
		}
		if isCPUSensor(r.Sensor) && r.Celsius > cpuMax {
			cpuMax = r.Celsius
			cpuFound = true
		}
	}
	if cpuFound {
		return cpuMax, true
	}
	return anyMax, true
}

func isCPUSensor(key string) bool {
	key = strings.ToLower(key)
	for _, hint := range cpuSensorHints {
		if strings.Contains(key, hint) {
			return true
		}
	}
	return false
}
