// Package models contains the database model definitions. The daemon
// keeps its persisted state small: a key/value settings table and saved
// undervolt profiles.
package models

import (
	"time"
)

// Setting represents one persisted daemon setting.
// Table: settings
type Setting struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Key       string    `gorm:"column:key;uniqueIndex"`
	Value     string    `gorm:"column:value"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Setting) TableName() string { return "settings" }

// UndervoltProfile represents a saved set of voltage offsets and power
// limits. Offsets are negative millivolts; a zero offset leaves the plane
// untouched.
// Table: undervolt_profiles
type UndervoltProfile struct {
	ID       string `gorm:"column:id;primaryKey"`
	Name     string `gorm:"column:name;uniqueIndex"`
	CoreMV   int    `gorm:"column:core_mv;default:0"`
	CacheMV  int    `gorm:"column:cache_mv;default:0"`
	GPUMV    int    `gorm:"column:gpu_mv;default:0"`
	UncoreMV int    `gorm:"column:uncore_mv;default:0"`
	AnalogMV int    `gorm:"column:analog_mv;default:0"`

	// Package power limits in watts with their time windows in seconds.
	// A zero power disables the pair.
	PL1Power int     `gorm:"column:pl1_power;default:0"`
	PL1Time  float64 `gorm:"column:pl1_time;default:0"`
	PL2Power int     `gorm:"column:pl2_power;default:0"`
	PL2Time  float64 `gorm:"column:pl2_time;default:0"`

	TurboDisabled bool `gorm:"column:turbo_disabled;default:false"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (UndervoltProfile) TableName() string { return "undervolt_profiles" }
