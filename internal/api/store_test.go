package api

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tuxhw/tuxd/internal/database/models"
	"github.com/tuxhw/tuxd/internal/database/repositories"
	"github.com/tuxhw/tuxd/internal/services/backlight"
	"github.com/tuxhw/tuxd/internal/services/control"
	"github.com/tuxhw/tuxd/internal/services/fade"
	"github.com/tuxhw/tuxd/internal/services/fanctl"
)

func newStoreLoop(t *testing.T) (*Store, func() *control.Loop) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.Setting{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := NewStore(repositories.NewSettingRepository(db))

	newLoop := func() *control.Loop {
		return control.NewLoop(control.Config{}, &fakeFans{}, makeBacklight(t), &fakeMonitor{}, fade.NewEngine(), nil)
	}
	return store, newLoop
}

func TestSettingsRoundTrip(t *testing.T) {
	store, newLoop := newStoreLoop(t)
	ctx := context.Background()

	src := newLoop()
	src.SetCurveMode(control.CurveModeSplit)
	src.SetFadeConfig(false, 900*time.Millisecond)
	src.SetControlBrightness(true)
	if err := src.SetCurve(control.CurveGPU, []fanctl.Point{{Temp: 20, Speed: 10}, {Temp: 95, Speed: 100}}); err != nil {
		t.Fatalf("SetCurve: %v", err)
	}

	if err := store.SaveSettings(ctx, src); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}

	dst := newLoop()
	if err := store.LoadSettings(ctx, dst); err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}

	got := dst.Settings()
	if got.CurveMode != control.CurveModeSplit {
		t.Errorf("CurveMode = %v, want split", got.CurveMode)
	}
	if got.FadeEnabled || got.FadeDuration != 900*time.Millisecond {
		t.Errorf("fade = %v/%v, want disabled with 900ms", got.FadeEnabled, got.FadeDuration)
	}
	points, err := dst.CurvePoints(control.CurveGPU)
	if err != nil {
		t.Fatalf("CurvePoints: %v", err)
	}
	if len(points) != 2 || points[1].Temp != 95 {
		t.Errorf("gpu curve = %v, want the saved points", points)
	}
}

func TestLoadSettingsEmptyKeepsDefaults(t *testing.T) {
	store, newLoop := newStoreLoop(t)

	loop := newLoop()
	if err := store.LoadSettings(context.Background(), loop); err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}

	got := loop.Settings()
	want := control.DefaultSettings()
	// Live brightness is adopted by SetControlBrightness paths only; an
	// empty store leaves the defaults untouched.
	if got.AutoOffTimeout != want.AutoOffTimeout || got.ManualSpeed != want.ManualSpeed {
		t.Errorf("settings = %+v, want defaults", got)
	}
}

func TestApplyOnStartupFlags(t *testing.T) {
	store, _ := newStoreLoop(t)
	ctx := context.Background()

	fan, kbd := store.ApplyOnStartup(ctx)
	if fan || kbd {
		t.Errorf("flags = %v/%v, want false defaults", fan, kbd)
	}

	if err := store.SetApplyOnStartup(ctx, true, false); err != nil {
		t.Fatalf("SetApplyOnStartup: %v", err)
	}
	fan, kbd = store.ApplyOnStartup(ctx)
	if !fan || kbd {
		t.Errorf("flags = %v/%v, want fan only", fan, kbd)
	}
}

func TestLastProfile(t *testing.T) {
	store, _ := newStoreLoop(t)
	ctx := context.Background()

	if _, ok := store.LastProfile(ctx); ok {
		t.Error("expected no last profile on a fresh store")
	}
	if err := store.SaveLastProfile(ctx, "quiet"); err != nil {
		t.Fatalf("SaveLastProfile: %v", err)
	}
	name, ok := store.LastProfile(ctx)
	if !ok || name != "quiet" {
		t.Errorf("LastProfile = %q/%v, want quiet", name, ok)
	}
}

// Ensure the loop variable in this package's fakes satisfies the
// interfaces the store path relies on.
var _ control.BacklightDevice = (*backlight.Device)(nil)
