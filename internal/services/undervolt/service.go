// Package undervolt shells out to the undervolt utility to read and apply
// CPU voltage offsets and package power limits.
package undervolt

import (
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// Binary is the utility invoked for all operations.
const Binary = "undervolt"

var (
	// ErrNotInstalled means the undervolt binary is not on PATH.
	ErrNotInstalled = errors.New("undervolt: utility not installed")

	// ErrFailed wraps a non-zero exit from the utility, typically a
	// permissions or unsupported-CPU problem.
	ErrFailed = errors.New("undervolt: command failed")
)

// Params is one complete set of offsets and limits. Offsets are negative
// millivolts; zero skips the plane. A power limit pair applies only when
// its power value is positive.
type Params struct {
	CoreMV   int     `json:"coreMv"`
	CacheMV  int     `json:"cacheMv"`
	GPUMV    int     `json:"gpuMv"`
	UncoreMV int     `json:"uncoreMv"`
	AnalogMV int     `json:"analogMv"`
	PL1Power int     `json:"pl1Power"`
	PL1Time  float64 `json:"pl1Time"`
	PL2Power int     `json:"pl2Power"`
	PL2Time  float64 `json:"pl2Time"`
	Turbo    bool    `json:"turbo"`
}

// CommandExecutor interface for executing shell commands (for testing).
type CommandExecutor interface {
	Execute(name string, args ...string) ([]byte, error)
}

// realExecutor implements CommandExecutor using actual shell commands.
type realExecutor struct{}

func (e *realExecutor) Execute(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).Output()
}

// Service wraps the undervolt utility.
type Service struct {
	mu       sync.RWMutex
	executor CommandExecutor
}

// NewService creates a new undervolt service.
func NewService() *Service {
	return &Service{executor: &realExecutor{}}
}

// SetExecutor sets the command executor (for testing).
func (s *Service) SetExecutor(executor CommandExecutor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executor = executor
}

func (s *Service) exec(args ...string) ([]byte, error) {
	s.mu.RLock()
	executor := s.executor
	s.mu.RUnlock()

	out, err := executor.Execute(Binary, args...)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, ErrNotInstalled
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := strings.TrimSpace(string(exitErr.Stderr))
			if msg == "" {
				msg = exitErr.String()
			}
			return nil, fmt.Errorf("%w: %s", ErrFailed, msg)
		}
		return nil, err
	}
	return out, nil
}

// Available reports whether the utility can be found on PATH.
func (s *Service) Available() bool {
	_, err := exec.LookPath(Binary)
	return err == nil
}

// Read returns the utility's own report of the current offsets and
// limits, verbatim.
func (s *Service) Read() (string, error) {
	out, err := s.exec("--read")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Apply writes the given parameters. Zero voltage offsets are skipped so
// untouched planes keep their current value; turbo is always set
// explicitly.
func (s *Service) Apply(p Params) error {
	args := buildArgs(p)
	_, err := s.exec(args...)
	return err
}

// buildArgs translates Params into the utility's flag list.
func buildArgs(p Params) []string {
	args := []string{}

	addOffset := func(flag string, mv int) {
		if mv != 0 {
			args = append(args, flag, strconv.Itoa(mv))
		}
	}
	addOffset("--core", p.CoreMV)
	addOffset("--cache", p.CacheMV)
	addOffset("--gpu", p.GPUMV)
	addOffset("--uncore", p.UncoreMV)
	addOffset("--analogio", p.AnalogMV)

	// A power limit needs both a wattage and a time window; a lone power
	// value would program a zero-second window, so skip the pair instead.
	if p.PL1Power > 0 && p.PL1Time > 0 {
		args = append(args, "-p1", strconv.Itoa(p.PL1Power), formatSeconds(p.PL1Time))
	}
	if p.PL2Power > 0 && p.PL2Time > 0 {
		args = append(args, "-p2", strconv.Itoa(p.PL2Power), formatSeconds(p.PL2Time))
	}

	// The utility's --turbo flag is inverted: 1 disables turbo.
	if p.Turbo {
		args = append(args, "--turbo", "0")
	} else {
		args = append(args, "--turbo", "1")
	}
	return args
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
