package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"allskyd/internal/astro"
	"allskyd/internal/camera"
	"allskyd/internal/exposure"
	"allskyd/internal/notify"
)

// SettingsStore abstracts the persistence layer used by the scheduler.
type SettingsStore interface {
	LoadSettings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, settings Settings) error
	InsertCapture(ctx context.Context, run *CaptureRun) error
}

const (
	// stopGrace bounds how long Stop waits for the worker to drain.
	stopGrace = 5 * time.Second

	// stopPollInterval is the cadence at which the worker checks for a stop
	// request while sleeping between cycles.
	stopPollInterval = time.Second

	logRingSize = 100
)

// Scheduler owns the automatic capture loop: it gates cycles on the current
// sky period, runs the adaptive exposure search, writes frames to the image
// directory and records every cycle in the store. A single mutex serializes
// camera access, so a manual trigger and the loop can never expose at once.
type Scheduler struct {
	store    SettingsStore
	driver   camera.Driver
	notifier notify.Notifier
	logger   *slog.Logger
	imageDir string

	// Now is swappable for tests; defaults to time.Now.
	Now func() time.Time

	mu          sync.Mutex
	settings    Settings
	workerAlive bool
	stopping    bool
	stopCh      chan struct{}
	done        chan struct{}
	lastCapture int64

	cameraMu    sync.Mutex
	isCapturing atomic.Bool

	log *logRing
}

// NewScheduler constructs a scheduler with the given dependencies.
func NewScheduler(store SettingsStore, driver camera.Driver, notifier notify.Notifier, logger *slog.Logger, imageDir string) *Scheduler {
	return &Scheduler{
		store:    store,
		driver:   driver,
		notifier: notifier,
		logger:   logger,
		imageDir: imageDir,
		Now:      time.Now,
		settings: DefaultSettings(),
		log:      newLogRing(logRingSize),
	}
}

// Init loads persisted settings and resumes the capture loop if it was
// running when the process last exited.
func (s *Scheduler) Init(ctx context.Context) error {
	settings, err := s.store.LoadSettings(ctx)
	if errors.Is(err, ErrNoSettings) {
		settings = DefaultSettings()
		settings.UpdatedAt = s.Now().UTC()
		if err := s.store.SaveSettings(ctx, settings); err != nil {
			return fmt.Errorf("seed default settings: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()

	if settings.RunIntent {
		s.appendLog("resuming capture loop after restart")
		if err := s.Start(ctx); err != nil && !errors.Is(err, ErrAlreadyRunning) {
			return err
		}
	}
	return nil
}

// Start launches the background capture worker and persists the run intent
// so the loop resumes after a restart. Returns ErrAlreadyRunning if a worker
// is alive.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.workerAlive {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.settings.RunIntent = true
	s.settings.UpdatedAt = s.Now().UTC()
	snapshot := s.settings
	stopCh := make(chan struct{})
	done := make(chan struct{})
	s.stopCh = stopCh
	s.done = done
	s.stopping = false
	s.workerAlive = true
	s.mu.Unlock()

	if err := s.store.SaveSettings(ctx, snapshot); err != nil {
		s.logger.Warn("persist run intent", "err", err)
	}
	s.appendLog("capture loop started")
	go s.run(stopCh, done)
	return nil
}

// Stop clears the run intent, signals the worker and waits up to stopGrace
// for it to drain. Returns ErrNotRunning if no worker is alive.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.workerAlive {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.settings.RunIntent = false
	s.settings.UpdatedAt = s.Now().UTC()
	snapshot := s.settings
	done := s.done
	if !s.stopping {
		s.stopping = true
		close(s.stopCh)
	}
	s.mu.Unlock()

	if err := s.store.SaveSettings(ctx, snapshot); err != nil {
		s.logger.Warn("persist run intent", "err", err)
	}

	select {
	case <-done:
	case <-time.After(stopGrace):
		s.logger.Warn("capture worker did not stop within grace period")
	}
	s.appendLog("capture loop stopped")
	return nil
}

// Shutdown stops the worker for process exit. Unlike Stop it leaves the
// persisted run intent untouched, so Init resumes the loop on the next start.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.workerAlive {
		s.mu.Unlock()
		return ErrNotRunning
	}
	done := s.done
	if !s.stopping {
		s.stopping = true
		close(s.stopCh)
	}
	s.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("capture worker did not stop before shutdown deadline")
	}
	return nil
}

// TriggerOnce starts a single capture cycle outside the automatic loop. When
// override is set the exposure search is skipped and the frame is taken at
// the given exposure. The cycle runs asynchronously; the camera mutex is
// claimed before returning, so a second trigger while one is in flight gets
// ErrCaptureInProgress.
func (s *Scheduler) TriggerOnce(override *float64) error {
	if !s.cameraMu.TryLock() {
		return ErrCaptureInProgress
	}
	go func() {
		defer s.cameraMu.Unlock()
		s.isCapturing.Store(true)
		defer s.isCapturing.Store(false)
		if err := s.cycleLocked(context.Background(), "manual", override); err != nil {
			s.logger.Error("manual capture", "err", err)
			s.appendLog("manual capture failed: " + err.Error())
			s.notifyFailure(err)
		}
	}()
	return nil
}

// SetInterval updates the capture cadence. Values below MinIntervalSeconds
// are rejected; the cached value only changes after the store accepts it.
func (s *Scheduler) SetInterval(ctx context.Context, seconds int) error {
	if seconds < MinIntervalSeconds {
		return fmt.Errorf("%w: %d < %d seconds", ErrInvalidInterval, seconds, MinIntervalSeconds)
	}
	s.mu.Lock()
	updated := s.settings
	updated.IntervalSeconds = seconds
	updated.UpdatedAt = s.Now().UTC()
	s.mu.Unlock()

	if err := s.store.SaveSettings(ctx, updated); err != nil {
		return fmt.Errorf("persist interval: %w", err)
	}

	s.mu.Lock()
	s.settings.IntervalSeconds = seconds
	s.settings.UpdatedAt = updated.UpdatedAt
	s.mu.Unlock()
	s.appendLog(fmt.Sprintf("interval set to %ds", seconds))
	return nil
}

// ApplySettings replaces the full configuration. The run intent is owned by
// Start/Stop and survives the update.
func (s *Scheduler) ApplySettings(ctx context.Context, settings Settings) error {
	if settings.IntervalSeconds < MinIntervalSeconds {
		return fmt.Errorf("%w: %d < %d seconds", ErrInvalidInterval, settings.IntervalSeconds, MinIntervalSeconds)
	}
	s.mu.Lock()
	settings.RunIntent = s.settings.RunIntent
	s.mu.Unlock()
	settings.UpdatedAt = s.Now().UTC()

	if err := s.store.SaveSettings(ctx, settings); err != nil {
		return fmt.Errorf("persist settings: %w", err)
	}

	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
	s.appendLog("settings updated")
	return nil
}

// Settings returns the current configuration.
func (s *Scheduler) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Status returns a snapshot of the engine state, including the resolved sky
// period and the recent log tail.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	settings := s.settings
	workerAlive := s.workerAlive
	lastCapture := s.lastCapture
	s.mu.Unlock()

	return Status{
		RunIntent:       settings.RunIntent,
		IsCapturing:     s.isCapturing.Load(),
		WorkerAlive:     workerAlive,
		IntervalSeconds: settings.IntervalSeconds,
		LastCaptureUnix: lastCapture,
		CurrentPeriod:   astro.Resolve(s.Now(), settings.Site).String(),
		LogLines:        s.log.snapshot(),
	}
}

func (s *Scheduler) run(stopCh, done chan struct{}) {
	defer func() {
		s.mu.Lock()
		s.workerAlive = false
		s.mu.Unlock()
		close(done)
	}()

	for {
		settings := s.Settings()
		period := astro.Resolve(s.Now(), settings.Site)
		if settings.Window.Allows(period) {
			if err := s.runCycle(context.Background(), "auto"); err != nil {
				if errors.Is(err, ErrCaptureInProgress) {
					s.appendLog("cycle skipped: capture already in progress")
				} else {
					s.logger.Error("capture cycle", "err", err)
					s.appendLog("capture failed: " + err.Error())
					s.notifyFailure(err)
				}
			}
		} else {
			s.appendLog(fmt.Sprintf("capture gated: %s outside window", period))
		}

		if s.waitInterval(stopCh) {
			return
		}
	}
}

// waitInterval sleeps for the configured interval, checking for a stop
// request once a second. Returns true when a stop was requested.
func (s *Scheduler) waitInterval(stopCh chan struct{}) bool {
	interval := time.Duration(s.Settings().IntervalSeconds) * time.Second
	deadline := s.Now().Add(interval)
	for {
		select {
		case <-stopCh:
			return true
		case <-time.After(stopPollInterval):
			if !s.Now().Before(deadline) {
				return false
			}
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context, trigger string) error {
	if !s.cameraMu.TryLock() {
		return ErrCaptureInProgress
	}
	defer s.cameraMu.Unlock()
	s.isCapturing.Store(true)
	defer s.isCapturing.Store(false)
	return s.cycleLocked(ctx, trigger, nil)
}

// cycleLocked performs one full capture cycle. The caller must hold cameraMu.
func (s *Scheduler) cycleLocked(ctx context.Context, trigger string, override *float64) error {
	settings := s.Settings()
	now := s.Now()
	run := &CaptureRun{
		ID:          NewID(),
		TriggeredBy: trigger,
		CreatedAt:   now.UTC(),
	}

	var exposureMs float64
	if override != nil {
		exposureMs = *override
		run.Outcome = "override"
	} else {
		result := exposure.FindExposure(ctx, settings.Bounds, settings.TargetADU, settings.Tolerance, s.driver.Acquire)
		exposureMs = result.ChosenExposureMs
		run.Brightness = &result.AchievedBrightness
		run.Outcome = string(result.Outcome)
		run.TrialCount = len(result.Trials)
		if result.Outcome == exposure.OutcomeFallback {
			s.appendLog(fmt.Sprintf("exposure search failed, falling back to %.0fms", exposureMs))
			s.notify("allskyd exposure fallback",
				fmt.Sprintf("every search trial failed, capturing at fallback exposure %.0fms", exposureMs))
		}
	}

	frame, err := s.driver.AcquireFull(ctx, exposureMs)
	if err != nil {
		msg := err.Error()
		run.Error = &msg
		s.recordRun(ctx, run)
		return fmt.Errorf("acquire frame: %w", err)
	}

	filename := fmt.Sprintf("%s_exp%dms.png", now.Format("20060102_150405"), int(math.Round(exposureMs)))
	if err := os.MkdirAll(s.imageDir, 0o755); err != nil {
		msg := err.Error()
		run.Error = &msg
		s.recordRun(ctx, run)
		return fmt.Errorf("create image dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.imageDir, filename), frame, 0o644); err != nil {
		msg := err.Error()
		run.Error = &msg
		s.recordRun(ctx, run)
		return fmt.Errorf("write frame: %w", err)
	}

	run.Filename = &filename
	run.ExposureMs = &exposureMs
	s.recordRun(ctx, run)

	s.mu.Lock()
	s.lastCapture = now.Unix()
	s.mu.Unlock()
	s.appendLog(fmt.Sprintf("captured %s (%.1fms, %s)", filename, exposureMs, run.Outcome))
	return nil
}

func (s *Scheduler) recordRun(ctx context.Context, run *CaptureRun) {
	if err := s.store.InsertCapture(ctx, run); err != nil {
		s.logger.Error("record capture run", "run_id", run.ID, "err", err)
	}
}

func (s *Scheduler) notifyFailure(err error) {
	s.notify("allskyd capture failed", err.Error())
}

func (s *Scheduler) notify(title, body string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.notifier.Send(ctx, title, body); err != nil {
		s.logger.Warn("send notification", "err", err)
	}
}

func (s *Scheduler) appendLog(msg string) {
	s.log.append(fmt.Sprintf("[%s] %s", s.Now().Format("15:04:05"), msg))
}

// logRing keeps the most recent log lines for the status surface.
type logRing struct {
	mu    sync.Mutex
	max   int
	lines []string
}

func newLogRing(max int) *logRing {
	return &logRing{max: max}
}

func (r *logRing) append(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
	if len(r.lines) > r.max {
		r.lines = r.lines[len(r.lines)-r.max:]
	}
}

func (r *logRing) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}
