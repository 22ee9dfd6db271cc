// Package idle watches keyboard input-event streams and reports elapsed
// idle time, driving the backlight auto-off feature.
package idle

import (
	"encoding/binary"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DefaultInputDir is where input event device nodes live.
const DefaultInputDir = "/dev/input"

// ErrUnavailable is returned when no keyboard-capable input source exists.
// Callers must surface this distinctly from a disabled timer.
var ErrUnavailable = errors.New("idle: no keyboard input devices found")

// pollTimeoutMs bounds each wait across the open event streams so the stop
// signal is observed promptly.
const pollTimeoutMs = 500

// joinTimeout bounds the wait for the watcher goroutine on Stop.
const joinTimeout = time.Second

// Input event capability constants (linux/input-event-codes.h).
const (
	evKey  = 0x01
	keyMax = 0x2FF
)

// inputEvent mirrors the kernel's struct input_event layout.
type inputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

var (
	eventSize    = int(unsafe.Sizeof(inputEvent{}))
	eventTypeOff = int(unsafe.Offsetof(inputEvent{}.Type))
)

// keyboardKeys are common alphanumeric/editing key codes whose presence in
// the EV_KEY capability bitmap marks a device as a keyboard.
var keyboardKeys = []int{
	1,  // KEY_ESC
	28, // KEY_ENTER
	30, // KEY_A
	42, // KEY_LEFTSHIFT
	57, // KEY_SPACE
}

// Monitor watches a set of keyboard event streams. The watcher goroutine
// is the only writer of the last-activity timestamp; readers use
// IdleTime.
type Monitor struct {
	mu sync.Mutex

	devices []*os.File

	running    bool
	stopChan   chan struct{}
	doneChan   chan struct{}
	onActivity func()

	lastActivity atomic.Int64 // unix nanoseconds
}

// NewMonitor enumerates keyboard-capable event devices under inputDir. An
// empty dir uses DefaultInputDir. The monitor is usable even when nothing
// was found; Available reports the difference.
func NewMonitor(inputDir string) *Monitor {
	if inputDir == "" {
		inputDir = DefaultInputDir
	}
	m := &Monitor{}
	m.lastActivity.Store(time.Now().UnixNano())
	m.devices = findKeyboards(inputDir)
	return m
}

// findKeyboards opens every event node and keeps the ones whose EV_KEY
// capability bitmap carries typical keyboard keys.
func findKeyboards(dir string) []*os.File {
	matches, err := filepath.Glob(filepath.Join(dir, "event*"))
	if err != nil {
		return nil
	}
	sort.Strings(matches)

	var keyboards []*os.File
	for _, path := range matches {
		f, err := os.OpenFile(path, os.O_RDONLY|unix.O_NONBLOCK, 0)
		if err != nil {
			continue
		}
		if isKeyboard(f) {
			keyboards = append(keyboards, f)
		} else {
			_ = f.Close()
		}
	}
	if len(keyboards) > 0 {
		log.Printf("idle: monitoring %d keyboard device(s)", len(keyboards))
	}
	return keyboards
}

// isKeyboard issues EVIOCGBIT(EV_KEY) and checks the returned bitmap for
// common key codes.
func isKeyboard(f *os.File) bool {
	var bits [keyMax/8 + 1]byte
	// EVIOCGBIT(ev, len) = _IOC(read, 'E', 0x20 + ev, len)
	req := uint(2)<<30 | uint('E')<<8 | uint(0x20+evKey) | uint(len(bits))<<16
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), uintptr(req), uintptr(unsafe.Pointer(&bits[0])))
	if errno != 0 {
		return false
	}
	for _, key := range keyboardKeys {
		if bits[key/8]&(1<<(uint(key)%8)) != 0 {
			return true
		}
	}
	return false
}

// Available reports whether any keyboard-capable input source was found.
func (m *Monitor) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.devices) > 0
}

// Start launches the watcher goroutine. The callback fires on every
// key-class event; it must be fast and must not call back into Stop.
func (m *Monitor) Start(onActivity func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}
	if len(m.devices) == 0 {
		return ErrUnavailable
	}

	m.onActivity = onActivity
	m.running = true
	m.stopChan = make(chan struct{})
	m.doneChan = make(chan struct{})
	m.lastActivity.Store(time.Now().UnixNano())

	go m.watch(m.devices, m.stopChan, m.doneChan)
	return nil
}

// Stop requests termination and joins the watcher within a bounded wait.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopChan)
	done := m.doneChan
	m.mu.Unlock()

	select {
	case <-done:
	case <-time.After(joinTimeout):
		log.Printf("idle: watcher did not stop within %v", joinTimeout)
	}
}

// Close stops the watcher and releases the device handles.
func (m *Monitor) Close() {
	m.Stop()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.devices {
		_ = f.Close()
	}
	m.devices = nil
}

// IdleTime returns the elapsed time since the last detected key event.
func (m *Monitor) IdleTime() time.Duration {
	return time.Since(time.Unix(0, m.lastActivity.Load()))
}

// Reset forces the last-activity timestamp to now.
func (m *Monitor) Reset() {
	m.lastActivity.Store(time.Now().UnixNano())
}

// watch polls all open streams with a bounded timeout and drains whichever
// became readable. Only EV_KEY records count as activity; sync and misc
// records from the same stream are ignored.
func (m *Monitor) watch(devices []*os.File, stopChan, doneChan chan struct{}) {
	defer close(doneChan)

	fds := make([]unix.PollFd, len(devices))
	for i, f := range devices {
		fds[i] = unix.PollFd{Fd: int32(f.Fd()), Events: unix.POLLIN}
	}

	buf := make([]byte, 4096)
	for {
		select {
		case <-stopChan:
			return
		default:
		}

		n, err := unix.Poll(fds, pollTimeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			log.Printf("idle: poll: %v", err)
			time.Sleep(pollTimeoutMs * time.Millisecond)
			continue
		}
		if n == 0 {
			continue
		}

		activity := false
		for i := range fds {
			if fds[i].Revents&unix.POLLIN == 0 {
				continue
			}
			n, err := devices[i].Read(buf)
			if err != nil {
				continue
			}
			if hasKeyEvent(buf[:n]) {
				activity = true
			}
		}
		if activity {
			m.lastActivity.Store(time.Now().UnixNano())
			if m.onActivity != nil {
				m.onActivity()
			}
		}
	}
}

// hasKeyEvent scans a drained chunk of whole input_event records for at
// least one EV_KEY record.
func hasKeyEvent(buf []byte) bool {
	for off := 0; off+eventSize <= len(buf); off += eventSize {
		if binary.NativeEndian.Uint16(buf[off+eventTypeOff:]) == evKey {
			return true
		}
	}
	return false
}
