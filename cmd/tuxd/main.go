// Package main is the entry point for the tuxd hardware control daemon.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tuxhw/tuxd/internal/api"
	"github.com/tuxhw/tuxd/internal/config"
	"github.com/tuxhw/tuxd/internal/database"
	"github.com/tuxhw/tuxd/internal/database/repositories"
	"github.com/tuxhw/tuxd/internal/services/backlight"
	"github.com/tuxhw/tuxd/internal/services/control"
	"github.com/tuxhw/tuxd/internal/services/fade"
	"github.com/tuxhw/tuxd/internal/services/fanctl"
	"github.com/tuxhw/tuxd/internal/services/idle"
	"github.com/tuxhw/tuxd/internal/services/pubsub"
	"github.com/tuxhw/tuxd/internal/services/undervolt"
	"github.com/tuxhw/tuxd/internal/services/version"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Load .env file if present
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := config.Load()

	// Print startup banner
	printBanner(cfg)

	// Connect to database
	db, err := database.Connect(database.Config{
		URL:         cfg.DatabaseURL,
		MaxIdleConn: 5,
		MaxOpenConn: 10,
		Debug:       cfg.IsDevelopment(),
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = database.Close() }()

	log.Println("Running database migrations...")
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Println("Database migrations complete")

	// Probe the fan control device. A desktop or unsupported laptop runs
	// without it; the fan surface then reports unavailable.
	fans := fanctl.NewController(cfg.DevicePath)
	if err := fans.Connect(); err != nil {
		log.Printf("Warning: fan control unavailable: %v", err)
	} else {
		log.Printf("Fan control connected: %s platform", fans.Platform())
	}

	// Detect the keyboard backlight and input devices.
	kbd := backlight.NewDevice(cfg.LEDPath)
	if kbd.Available() {
		log.Printf("Keyboard backlight: %s, %d zone(s), max %d",
			kbd.Capability(), kbd.Zones(), kbd.MaxBrightness())
	} else {
		log.Println("Warning: no keyboard backlight detected")
	}

	monitor := idle.NewMonitor(cfg.InputDir)
	if !monitor.Available() {
		log.Println("Warning: no keyboard input devices found, auto-off unavailable")
	}

	// Assemble the control loop.
	bus := pubsub.New()
	fades := fade.NewEngine()
	loop := control.NewLoop(control.Config{
		FanTick:     cfg.FanTick,
		SyncTick:    cfg.SyncTick,
		AutoOffTick: cfg.AutoOffTick,
	}, fans, kbd, monitor, fades, bus)

	// Load persisted settings before the lanes start.
	settingRepo := repositories.NewSettingRepository(db)
	store := api.NewStore(settingRepo)
	ctx := context.Background()
	if err := store.LoadSettings(ctx, loop); err != nil {
		log.Printf("Warning: failed to load saved settings: %v", err)
	}

	applyStartupState(ctx, store, loop, kbd)

	loop.Start()

	// HTTP surface
	uv := undervolt.NewService()
	server := api.NewServer(loop, uv, store, repositories.NewProfileRepository(db), bus, api.Options{
		CORSOrigin: cfg.CORSOrigin,
		Debug:      cfg.IsDevelopment(),
		Version:    version.NewService(Version, BuildTime, GitCommit),
	})

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on http://localhost:%s\n", cfg.Port)
		log.Printf("Status stream: ws://localhost:%s/ws/status\n", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	// Persist current settings, then release the hardware.
	if err := store.SaveSettings(ctx, loop); err != nil {
		log.Printf("Warning: failed to save settings: %v", err)
	}
	loop.Stop()
	monitor.Close()
	fans.Disconnect()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server shutdown error: %v", err)
	}

	log.Println("Daemon stopped")
}

// applyStartupState replays persisted fan and backlight settings when the
// corresponding flags are set.
func applyStartupState(ctx context.Context, store *api.Store, loop *control.Loop, kbd *backlight.Device) {
	fanOn, kbdOn := store.ApplyOnStartup(ctx)
	settings := loop.Settings()

	if fanOn {
		if settings.CurveControl {
			if err := loop.SetCurveControl(true); err != nil {
				log.Printf("Warning: startup curve control: %v", err)
			}
		} else if err := loop.ApplyFanSpeed(settings.FanSelect, settings.ManualSpeed); err != nil {
			log.Printf("Warning: startup fan speed: %v", err)
		}
	}

	if kbdOn && kbd.Available() {
		if err := loop.ApplyBrightness(settings.Brightness); err != nil {
			log.Printf("Warning: startup brightness: %v", err)
		}
		if kbd.HasRGB() {
			if err := loop.ApplyColor(settings.Color, -1); err != nil {
				log.Printf("Warning: startup color: %v", err)
			}
		}
	}
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config) {
	fmt.Println("============================================")
	fmt.Println("  tuxd hardware control daemon")
	fmt.Printf("  Version: %s\n", Version)
	fmt.Printf("  Build:   %s\n", BuildTime)
	fmt.Printf("  Commit:  %s\n", GitCommit)
	fmt.Println("============================================")
	fmt.Printf("  Environment: %s\n", cfg.Env)
	fmt.Printf("  Port:        %s\n", cfg.Port)
	fmt.Printf("  Database:    %s\n", cfg.DatabaseURL)
	fmt.Printf("  Device:      %s\n", cfg.DevicePath)
	fmt.Println("============================================")
}
