// Package services wires the metrics engine together and owns its lifecycle.
package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/j-veylop/green-ai-tracker/internal/aggregate"
	"github.com/j-veylop/green-ai-tracker/internal/carbon"
	"github.com/j-veylop/green-ai-tracker/internal/compliance"
	"github.com/j-veylop/green-ai-tracker/internal/config"
	"github.com/j-veylop/green-ai-tracker/internal/logger"
	"github.com/j-veylop/green-ai-tracker/internal/models"
	"github.com/j-veylop/green-ai-tracker/internal/report"
	"github.com/j-veylop/green-ai-tracker/internal/store"
	"github.com/j-veylop/green-ai-tracker/internal/tracker"
	"github.com/j-veylop/green-ai-tracker/internal/watcher"
)

type (
	// GradeEvent is emitted after the rolling window has been re-graded.
	GradeEvent struct {
		Window models.AggregateWindow
		Grade  string
		Score  float64
	}

	// AlertEvent is emitted when the grade falls to or below the alert grade.
	AlertEvent struct {
		Grade      string
		AlertGrade string
		Score      float64
	}

	// PurgeEvent is emitted after retention has been applied.
	PurgeEvent struct {
		Before  time.Time
		Removed int
	}

	// ErrorEvent is emitted when an error occurs in any service.
	ErrorEvent struct {
		Service string
		Error   error
	}
)

// ServiceEvent is the interface implemented by all service events.
type ServiceEvent interface {
	isServiceEvent()
}

func (GradeEvent) isServiceEvent() {}
func (AlertEvent) isServiceEvent() {}
func (PurgeEvent) isServiceEvent() {}
func (ErrorEvent) isServiceEvent() {}

// Notifier delivers a desktop alert.
type Notifier func(title, body string) error

func desktopNotify(title, body string) error {
	return beeep.Notify(title, body, "")
}

// Option configures a Manager.
type Option func(*Manager)

// WithNotifier replaces the desktop notifier.
func WithNotifier(n Notifier) Option {
	return func(m *Manager) { m.notify = n }
}

// WithClock replaces the wall clock used for windows and retention.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager owns the store handle and every component built on it.
type Manager struct {
	cfg        *config.Config
	store      store.Store
	estimator  carbon.Estimator
	classifier carbon.Classifier
	scorer     compliance.Scorer
	aggregator *aggregate.Aggregator
	exporter   *report.Exporter
	recorder   *tracker.Recorder
	notify     Notifier
	now        func() time.Time

	mu          sync.RWMutex
	subscribers []chan ServiceEvent
	lastGrade   string

	closeOnce sync.Once
	closeErr  error
}

// NewManager opens the configured store and builds the components around it.
func NewManager(cfg *config.Config, opts ...Option) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	cal := cfg.Calibration
	if cal == (carbon.Calibration{}) {
		cal = carbon.DefaultCalibration()
	}

	est, err := carbon.NewEstimator(cal)
	if err != nil {
		return nil, err
	}
	cls, err := carbon.NewClassifier(cal.Thresholds)
	if err != nil {
		return nil, err
	}
	scorer, err := compliance.NewScorer(compliance.DefaultWeights(), cal.Thresholds)
	if err != nil {
		return nil, err
	}

	s, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:        cfg,
		store:      s,
		estimator:  est,
		classifier: cls,
		scorer:     scorer,
		aggregator: aggregate.New(s),
		notify:     desktopNotify,
		now:        time.Now,
		lastGrade:  carbon.GradeNone,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.exporter = report.NewExporter(m.aggregator, cls, scorer)
	m.recorder = tracker.NewRecorder(s, est, cls, tracker.WithClock(m.now))
	return m, nil
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendSQLite:
		s, err := store.OpenSQLiteStore(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return s, nil
	case config.BackendFile, "":
		s, err := store.NewFileStore(cfg.DataDir, cfg.SyncInterval)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize metrics directory: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// Store returns the metrics store.
func (m *Manager) Store() store.Store {
	return m.store
}

// Estimator returns the carbon estimator.
func (m *Manager) Estimator() carbon.Estimator {
	return m.estimator
}

// Classifier returns the impact classifier.
func (m *Manager) Classifier() carbon.Classifier {
	return m.classifier
}

// Scorer returns the compliance scorer.
func (m *Manager) Scorer() compliance.Scorer {
	return m.scorer
}

// Aggregator returns the aggregator.
func (m *Manager) Aggregator() *aggregate.Aggregator {
	return m.aggregator
}

// Exporter returns the report exporter.
func (m *Manager) Exporter() *report.Exporter {
	return m.exporter
}

// Recorder returns the tracker recorder bound to the store.
func (m *Manager) Recorder() *tracker.Recorder {
	return m.recorder
}

// Now returns the manager's current time.
func (m *Manager) Now() time.Time {
	return m.now()
}

// Purge removes partitions older than the configured retention.
func (m *Manager) Purge(ctx context.Context) (int, error) {
	before := m.now().Add(-m.cfg.Retention)
	removed, err := m.store.Purge(ctx, before)
	if err != nil {
		m.broadcast(ErrorEvent{Service: "store", Error: err})
		return 0, err
	}
	m.broadcast(PurgeEvent{Before: before, Removed: removed})
	return removed, nil
}

// CheckGrade aggregates the trailing window ending now, broadcasts its grade
// and alerts when the grade crosses the configured alert grade.
func (m *Manager) CheckGrade(ctx context.Context, window time.Duration) (GradeEvent, error) {
	end := m.now()
	w, err := m.aggregator.Aggregate(ctx, end.Add(-window), end)
	if err != nil {
		m.broadcast(ErrorEvent{Service: "aggregate", Error: err})
		return GradeEvent{}, err
	}

	event := GradeEvent{
		Window: w,
		Grade:  m.classifier.Grade(w),
		Score:  m.scorer.Score(w),
	}
	m.broadcast(event)
	m.checkAlert(event)
	return event, nil
}

// checkAlert notifies only when the grade moves from above the alert grade to
// at or below it.
func (m *Manager) checkAlert(event GradeEvent) {
	m.mu.Lock()
	previous := m.lastGrade
	m.lastGrade = event.Grade
	m.mu.Unlock()

	limit := carbon.GradeRank(m.cfg.AlertGrade)
	if limit < 0 {
		return
	}
	if carbon.GradeRank(event.Grade) < limit || carbon.GradeRank(previous) >= limit {
		return
	}

	m.broadcast(AlertEvent{Grade: event.Grade, AlertGrade: m.cfg.AlertGrade, Score: event.Score})
	if !m.cfg.Notify || m.notify == nil {
		return
	}

	title := fmt.Sprintf("Green AI grade dropped to %s", event.Grade)
	body := fmt.Sprintf("%d calls, %.4f g CO2, compliance score %.1f", event.Window.Calls, event.Window.CO2Grams, event.Score)
	if err := m.notify(title, body); err != nil {
		logger.Warn("Failed to send grade alert", "error", err)
	}
}

// Watch re-grades the trailing window whenever the store changes and at
// least every interval, until ctx is cancelled.
func (m *Manager) Watch(ctx context.Context, window, interval time.Duration) error {
	dir, filter := m.watchTarget()
	w, err := watcher.New(dir, filter, 0)
	if err != nil {
		return err
	}
	defer func() {
		if err := w.Close(); err != nil {
			logger.Warn("Failed to close watcher", "error", err)
		}
	}()

	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	check := func() {
		if _, err := m.CheckGrade(ctx, window); err != nil && ctx.Err() == nil {
			logger.Warn("Grade check failed", "error", err)
		}
	}

	check()
	for {
		select {
		case event := <-w.Events():
			switch event.Type {
			case watcher.EventChanged, watcher.EventRemoved:
				check()
			case watcher.EventError:
				m.broadcast(ErrorEvent{Service: "watcher", Error: event.Error})
			}
		case <-ticker.C:
			check()
		case <-ctx.Done():
			return nil
		}
	}
}

// watchTarget returns the directory holding the store and a filter for its files.
func (m *Manager) watchTarget() (string, func(string) bool) {
	if m.cfg.StoreBackend == config.BackendSQLite {
		base := filepath.Base(m.cfg.DatabasePath)
		return filepath.Dir(m.cfg.DatabasePath), func(name string) bool {
			return strings.HasPrefix(name, base)
		}
	}
	return m.cfg.DataDir, store.IsPartitionName
}

// broadcast sends an event to all subscribers.
func (m *Manager) broadcast(event ServiceEvent) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sub := range m.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber channel full, skip
		}
	}
}

// Subscribe creates a channel for receiving service events.
func (m *Manager) Subscribe() chan ServiceEvent {
	ch := make(chan ServiceEvent, 50)

	m.mu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.mu.Unlock()

	return ch
}

// Unsubscribe removes a subscriber channel.
func (m *Manager) Unsubscribe(ch chan ServiceEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, sub := range m.subscribers {
		if sub == ch {
			m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

// Close closes subscriber channels and the store. It is safe to call more than once.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		for _, sub := range m.subscribers {
			close(sub)
		}
		m.subscribers = nil
		m.mu.Unlock()

		if d := m.recorder.Dropped(); d > 0 {
			logger.Warn("Metrics were dropped", "count", d)
		}
		m.closeErr = m.store.Close()
	})
	return m.closeErr
}
