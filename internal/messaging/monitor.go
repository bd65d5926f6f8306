package messaging

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aurum-erp/aurum/internal/platform/cache"
	"github.com/aurum-erp/aurum/internal/platform/httpx"
	"github.com/aurum-erp/aurum/internal/shared"
)

// Status is the supervisor's view of the sidecar.
type Status string

const (
	StatusStarted    Status = "started"
	StatusHealthy    Status = "healthy"
	StatusRestarting Status = "restarting"
	StatusError      Status = "error"
)

// ErrRestartInProgress is returned when another restart holds the lock.
var ErrRestartInProgress = fmt.Errorf("messaging: sidecar restart already in progress: %w", httpx.ErrConflict)

// Launcher starts and stops the sidecar process.
type Launcher interface {
	Start(ctx context.Context) error
	Stop() error
	Running() bool
}

// HealthChecker checks the sidecar.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// RestartLock serialises restarts across replicas.
type RestartLock interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// HealthGauge records the health check result.
type HealthGauge interface {
	SidecarHealthy(up bool)
}

// MonitorConfig tunes the supervisor.
type MonitorConfig struct {
	Interval  time.Duration
	Threshold int
	Grace     time.Duration
}

// Monitor supervises the sidecar: it checks health on a fixed interval,
// restarts the process after consecutive failures and publishes status
// changes to listeners.
type Monitor struct {
	checker  HealthChecker
	launcher Launcher
	lock     RestartLock
	gauge    HealthGauge
	logger   *slog.Logger
	cfg      MonitorConfig
	sleep    func(ctx context.Context, d time.Duration) error

	mu        sync.Mutex
	failures  int
	last      Status
	listeners []func(Status)
}

// NewMonitor constructs Monitor. lock and gauge may be nil.
func NewMonitor(checker HealthChecker, launcher Launcher, lock RestartLock, gauge HealthGauge, cfg MonitorConfig, logger *slog.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 3
	}
	if cfg.Grace <= 0 {
		cfg.Grace = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{checker: checker, launcher: launcher, lock: lock, gauge: gauge, logger: logger, cfg: cfg, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// OnStatus registers a status listener.
func (m *Monitor) OnStatus(fn func(Status)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

func (m *Monitor) publish(s Status) {
	m.mu.Lock()
	m.last = s
	listeners := append([]func(Status){}, m.listeners...)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(s)
	}
}

// Run starts the sidecar and supervises it until ctx ends.
func (m *Monitor) Run(ctx context.Context) error {
	if !m.launcher.Running() {
		if err := m.launcher.Start(ctx); err != nil {
			m.logger.Warn("sidecar start failed, will retry", slog.Any("error", err))
		} else {
			m.logger.Info("sidecar started")
		}
	}
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	if !m.launcher.Running() {
		m.logger.Info("sidecar not running, starting")
		if err := m.launcher.Start(ctx); err != nil {
			m.logger.Error("sidecar start failed", slog.Any("error", err))
			m.mu.Lock()
			m.failures++
			m.mu.Unlock()
			m.publish(StatusError)
			return
		}
		m.mu.Lock()
		m.failures = 0
		m.mu.Unlock()
		m.publish(StatusStarted)
		return
	}

	checkCtx, cancel := context.WithTimeout(ctx, m.cfg.Interval)
	err := m.checker.Health(checkCtx)
	cancel()
	if m.gauge != nil {
		m.gauge.SidecarHealthy(err == nil)
	}
	if err == nil {
		m.mu.Lock()
		m.failures = 0
		m.mu.Unlock()
		m.publish(StatusHealthy)
		return
	}

	m.mu.Lock()
	m.failures++
	failures := m.failures
	m.mu.Unlock()
	m.logger.Warn("sidecar health check failed", slog.Int("consecutive", failures), slog.Any("error", err))
	if failures < m.cfg.Threshold {
		return
	}
	m.logger.Error("sidecar appears dead, restarting")
	if err := m.launcher.Stop(); err != nil {
		m.logger.Warn("sidecar stop", slog.Any("error", err))
	}
	m.publish(StatusRestarting)
}

// MonitorStatus is the answer of Status.
type MonitorStatus struct {
	Running bool   `json:"running"`
	Healthy bool   `json:"healthy"`
	Last    Status `json:"last,omitempty"`
}

// Status reports whether the process runs and answers health checks.
func (m *Monitor) Status(ctx context.Context) MonitorStatus {
	running := m.launcher.Running()
	healthy := running && m.checker.Health(ctx) == nil
	m.mu.Lock()
	last := m.last
	m.mu.Unlock()
	return MonitorStatus{Running: running, Healthy: healthy, Last: last}
}

// Restart stops the sidecar, waits for the grace period and starts it again.
func (m *Monitor) Restart(ctx context.Context) error {
	if m.lock != nil {
		ok, err := m.lock.TryLock(ctx, shared.SidecarRestartLockKey, m.cfg.Grace+30*time.Second)
		if err != nil {
			return err
		}
		if !ok {
			return ErrRestartInProgress
		}
		defer func() {
			if err := m.lock.Unlock(context.WithoutCancel(ctx), shared.SidecarRestartLockKey); err != nil {
				m.logger.Warn("sidecar restart unlock", slog.Any("error", err))
			}
		}()
	}
	if err := m.launcher.Stop(); err != nil {
		m.logger.Warn("sidecar stop", slog.Any("error", err))
	}
	m.publish(StatusRestarting)
	if err := m.sleep(ctx, m.cfg.Grace); err != nil {
		return err
	}
	if err := m.launcher.Start(ctx); err != nil {
		m.publish(StatusError)
		return fmt.Errorf("messaging: restart sidecar: %w", err)
	}
	m.mu.Lock()
	m.failures = 0
	m.mu.Unlock()
	m.publish(StatusStarted)
	return nil
}

// RedisLock implements RestartLock with a Redis key.
type RedisLock struct {
	Client *redis.Client
}

func (l RedisLock) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return cache.TryLock(ctx, l.Client, key, ttl)
}

func (l RedisLock) Unlock(ctx context.Context, key string) error {
	return cache.Unlock(ctx, l.Client, key)
}

// NewLauncher returns a process launcher for command, or a launcher for an
// externally managed sidecar when command is empty.
func NewLauncher(command string, logger *slog.Logger) Launcher {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return unmanaged{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecLauncher{name: fields[0], args: fields[1:], logger: logger}
}

type unmanaged struct{}

func (unmanaged) Start(context.Context) error { return nil }
func (unmanaged) Stop() error                 { return nil }
func (unmanaged) Running() bool               { return true }

// ExecLauncher runs the sidecar as a child process and forwards its output
// to the logger.
type ExecLauncher struct {
	name   string
	args   []string
	logger *slog.Logger

	mu  sync.Mutex
	cmd *exec.Cmd
}

// Start spawns the process unless it already runs.
func (l *ExecLauncher) Start(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cmd != nil {
		return nil
	}
	cmd := exec.Command(l.name, l.args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("messaging: spawn sidecar: %w", err)
	}
	l.cmd = cmd
	go l.forward(stdout, slog.LevelInfo)
	go l.forward(stderr, slog.LevelWarn)
	go func() {
		err := cmd.Wait()
		var exitErr *exec.ExitError
		code := 0
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		l.logger.Warn("sidecar terminated", slog.Int("code", code))
		l.mu.Lock()
		if l.cmd == cmd {
			l.cmd = nil
		}
		l.mu.Unlock()
	}()
	return nil
}

func (l *ExecLauncher) forward(r io.Reader, level slog.Level) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		l.logger.Log(context.Background(), level, "sidecar", slog.String("line", scanner.Text()))
	}
}

// Stop kills the process.
func (l *ExecLauncher) Stop() error {
	l.mu.Lock()
	cmd := l.cmd
	l.cmd = nil
	l.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// Running reports whether the child process is alive.
func (l *ExecLauncher) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cmd != nil
}
