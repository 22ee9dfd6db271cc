package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
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
	"github.com/tuxhw/tuxd/internal/services/pubsub"
	"github.com/tuxhw/tuxd/internal/services/undervolt"
)

// fakeFans is the minimal fan device the handlers need.
type fakeFans struct {
	mu        sync.Mutex
	connected bool
	mode      string
	writes    map[int]int
}

func (f *fakeFans) Connected() bool { return f.connected }

func (f *fakeFans) Platform() fanctl.Platform {
	if f.connected {
		return fanctl.PlatformUniwill
	}
	return fanctl.PlatformUnknown
}

func (f *fakeFans) Read(fan int) (fanctl.Reading, error) {
	if !f.connected {
		return fanctl.Reading{}, fanctl.ErrDeviceUnavailable
	}
	return fanctl.Reading{Fan: fan, SpeedPercent: 40, TempCelsius: 55}, nil
}

func (f *fakeFans) Write(fan, speedPercent int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return fanctl.ErrDeviceUnavailable
	}
	if f.writes == nil {
		f.writes = make(map[int]int)
	}
	f.writes[fan] = speedPercent
	return nil
}

func (f *fakeFans) SetAuto() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mode = "auto"
	return nil
}

func (f *fakeFans) SetManual() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mode = "manual"
	return nil
}

type fakeMonitor struct {
	available bool
}

func (m *fakeMonitor) Available() bool               { return m.available }
func (m *fakeMonitor) Start(onActivity func()) error { return nil }
func (m *fakeMonitor) Stop()                         {}
func (m *fakeMonitor) IdleTime() time.Duration       { return 0 }
func (m *fakeMonitor) Reset()                        {}

// mockExecutor responds to undervolt invocations.
type mockExecutor struct {
	mu    sync.Mutex
	calls [][]string
	out   []byte
	err   error
}

func (m *mockExecutor) Execute(name string, args ...string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, append([]string{name}, args...))
	return m.out, m.err
}

func makeBacklight(t *testing.T) *backlight.Device {
	t.Helper()
	base := t.TempDir()
	dir := filepath.Join(base, "white:kbd_backlight")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	for name, value := range map[string]string{
		"brightness":     "200",
		"max_brightness": "255",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(value), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return backlight.NewDevice(base)
}

type testEnv struct {
	server *Server
	router http.Handler
	fans   *fakeFans
	uvExec *mockExecutor
	db     *gorm.DB
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.Setting{}, &models.UndervoltProfile{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}

	fans := &fakeFans{connected: true}
	bus := pubsub.New()
	loop := control.NewLoop(control.Config{}, fans, makeBacklight(t), &fakeMonitor{available: true}, fade.NewEngine(), bus)

	uv := undervolt.NewService()
	uvExec := &mockExecutor{out: []byte("core: -80.0 mV\n")}
	uv.SetExecutor(uvExec)

	store := NewStore(repositories.NewSettingRepository(db))
	srv := NewServer(loop, uv, store, repositories.NewProfileRepository(db), bus, Options{CORSOrigin: "http://localhost:3000"})

	return &testEnv{
		server: srv,
		router: srv.Router(),
		fans:   fans,
		uvExec: uvExec,
		db:     db,
	}
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := doJSON(t, env.router, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestStatusEndpoint(t *testing.T) {
	env := newTestEnv(t)
	rec := doJSON(t, env.router, http.MethodGet, "/api/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var payload struct {
		Platform     string `json:"platform"`
		FanConnected bool   `json:"fanConnected"`
		Backlight    struct {
			Available     bool `json:"available"`
			MaxBrightness int  `json:"maxBrightness"`
		} `json:"backlight"`
		UndervoltSupported bool `json:"undervoltSupported"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Platform != "uniwill" || !payload.FanConnected {
		t.Errorf("payload = %+v, want connected uniwill", payload)
	}
	if !payload.Backlight.Available || payload.Backlight.MaxBrightness != 255 {
		t.Errorf("backlight = %+v, want available with max 255", payload.Backlight)
	}
}

func TestFanSpeed(t *testing.T) {
	env := newTestEnv(t)
	rec := doJSON(t, env.router, http.MethodPost, "/api/fan/speed", map[string]int{"fan": 2, "speed": 60})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	env.fans.mu.Lock()
	defer env.fans.mu.Unlock()
	if env.fans.mode != "manual" || env.fans.writes[0] != 60 || env.fans.writes[1] != 60 {
		t.Errorf("fans = mode %q writes %v, want manual 60/60", env.fans.mode, env.fans.writes)
	}
}

func TestFanSpeedValidation(t *testing.T) {
	env := newTestEnv(t)
	rec := doJSON(t, env.router, http.MethodPost, "/api/fan/speed", map[string]int{"fan": 7, "speed": 60})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestFanSpeedDisconnected(t *testing.T) {
	env := newTestEnv(t)
	env.fans.connected = false
	rec := doJSON(t, env.router, http.MethodPost, "/api/fan/speed", map[string]int{"fan": 0, "speed": 60})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestCurveRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	points := []fanctl.Point{{Temp: 25, Speed: 0}, {Temp: 85, Speed: 100}}
	rec := doJSON(t, env.router, http.MethodPut, "/api/fan/curves/cpu", points)
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, env.router, http.MethodGet, "/api/fan/curves", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var curves map[string][]fanctl.Point
	if err := json.Unmarshal(rec.Body.Bytes(), &curves); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(curves["cpu"]) != 2 || curves["cpu"][1].Temp != 85 {
		t.Errorf("cpu curve = %v, want the stored points", curves["cpu"])
	}
	if len(curves["shared"]) != 7 {
		t.Errorf("shared curve = %v, want default 7 points", curves["shared"])
	}
}

func TestCurveUnknownName(t *testing.T) {
	env := newTestEnv(t)
	rec := doJSON(t, env.router, http.MethodPost, "/api/fan/curves/bogus/reset", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestCurveInsertAndRemove(t *testing.T) {
	env := newTestEnv(t)

	rec := doJSON(t, env.router, http.MethodPost, "/api/fan/curves/shared/points", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("insert status = %d: %s", rec.Code, rec.Body.String())
	}
	var curves map[string][]fanctl.Point
	if err := json.Unmarshal(rec.Body.Bytes(), &curves); err != nil {
		t.Fatal(err)
	}
	if len(curves["shared"]) != 8 {
		t.Errorf("shared curve has %d points after insert, want 8", len(curves["shared"]))
	}

	rec = doJSON(t, env.router, http.MethodDelete, "/api/fan/curves/shared/points/0", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("remove status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestBrightness(t *testing.T) {
	env := newTestEnv(t)
	rec := doJSON(t, env.router, http.MethodPost, "/api/backlight/brightness", map[string]int{"value": 128})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var status control.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if status.Backlight.Brightness != 128 {
		t.Errorf("brightness = %d, want 128", status.Backlight.Brightness)
	}
}

func TestColorOnFixedBacklight(t *testing.T) {
	env := newTestEnv(t)
	rec := doJSON(t, env.router, http.MethodPost, "/api/backlight/color", map[string]int{"r": 255, "g": 0, "b": 0})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 on non-RGB hardware", rec.Code)
	}
}

func TestAutoOffEnable(t *testing.T) {
	env := newTestEnv(t)
	rec := doJSON(t, env.router, http.MethodPost, "/api/backlight/auto-off", map[string]interface{}{
		"enabled":        true,
		"timeoutSeconds": 60,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var status control.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if status.AutoOff.State != "armed" || status.AutoOff.TimeoutSeconds != 60 {
		t.Errorf("autoOff = %+v, want armed with 60s timeout", status.AutoOff)
	}
}

func TestUndervoltRead(t *testing.T) {
	env := newTestEnv(t)
	rec := doJSON(t, env.router, http.MethodGet, "/api/undervolt/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "-80.0 mV") {
		t.Errorf("body = %s, want raw report", rec.Body.String())
	}
}

func TestUndervoltApply(t *testing.T) {
	env := newTestEnv(t)
	rec := doJSON(t, env.router, http.MethodPost, "/api/undervolt/", undervolt.Params{CoreMV: -50, Turbo: true})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	env.uvExec.mu.Lock()
	defer env.uvExec.mu.Unlock()
	if len(env.uvExec.calls) != 1 {
		t.Fatalf("calls = %v, want one apply", env.uvExec.calls)
	}
	args := strings.Join(env.uvExec.calls[0], " ")
	if !strings.Contains(args, "--core -50") || !strings.Contains(args, "--turbo 0") {
		t.Errorf("args = %q, want core offset and turbo flag", args)
	}
}

func TestProfileLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := doJSON(t, env.router, http.MethodPost, "/api/profiles/", map[string]interface{}{
		"Name":   "quiet",
		"CoreMV": -80,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	var created models.UndervoltProfile
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.ID == "" {
		t.Fatal("expected generated profile ID")
	}

	rec = doJSON(t, env.router, http.MethodGet, "/api/profiles/", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "quiet") {
		t.Fatalf("list status = %d body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, env.router, http.MethodPost, "/api/profiles/"+created.ID+"/apply", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("apply status = %d: %s", rec.Code, rec.Body.String())
	}
	env.uvExec.mu.Lock()
	gotApply := len(env.uvExec.calls) == 1 && strings.Contains(strings.Join(env.uvExec.calls[0], " "), "--core -80")
	env.uvExec.mu.Unlock()
	if !gotApply {
		t.Error("expected an undervolt invocation with the profile's core offset")
	}

	rec = doJSON(t, env.router, http.MethodDelete, "/api/profiles/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = doJSON(t, env.router, http.MethodGet, "/api/profiles/"+created.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestProfileApplyMissing(t *testing.T) {
	env := newTestEnv(t)
	rec := doJSON(t, env.router, http.MethodPost, "/api/profiles/"+strconv.Itoa(123)+"/apply", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
