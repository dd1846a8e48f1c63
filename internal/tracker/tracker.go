// Package tracker measures one AI call at a time and emits a CallMetric when it ends.
//
// A Recorder is built once with its Store, Estimator and Classifier and shared
// by the host application. Each call gets its own Tracker from Recorder.Start;
// trackers share nothing with one another. Close (or Fail) must run exactly once
// on every exit path, which Track arranges with a deferred call.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/j-veylop/green-ai-tracker/internal/carbon"
	"github.com/j-veylop/green-ai-tracker/internal/logger"
	"github.com/j-veylop/green-ai-tracker/internal/models"
	"github.com/j-veylop/green-ai-tracker/internal/store"
)

const (
	// MaxFeatureLength is the longest feature label kept, in runes.
	MaxFeatureLength = 64
	// UnknownFeature replaces empty feature labels.
	UnknownFeature = "unknown"

	failureLogInterval = 10 * time.Second
)

// Recorder builds trackers and persists the metrics they produce.
type Recorder struct {
	store store.Appender
	est   carbon.Estimator
	cls   carbon.Classifier
	now   func() time.Time
	log   *slog.Logger

	failLog rate.Sometimes
	dropped atomic.Int64
	emitted atomic.Int64
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

// WithLogger sets the logger used for dropped metrics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) {
		r.log = l
	}
}

// NewRecorder returns a Recorder writing to app.
func NewRecorder(app store.Appender, est carbon.Estimator, cls carbon.Classifier, opts ...Option) *Recorder {
	r := &Recorder{
		store:   app,
		est:     est,
		cls:     cls,
		now:     time.Now,
		log:     logger.With("component", "tracker"),
		failLog: rate.Sometimes{First: 1, Interval: failureLogInterval},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Emitted returns how many metrics were persisted.
func (r *Recorder) Emitted() int64 {
	return r.emitted.Load()
}

// Dropped returns how many metrics could not be persisted.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Start opens a tracker for one call.
func (r *Recorder) Start(tier models.UserTier, feature string) *Tracker {
	return r.start(context.Background(), tier, feature)
}

func (r *Recorder) start(ctx context.Context, tier models.UserTier, feature string) *Tracker {
	if tier == "" {
		tier = models.TierUnknown
	}
	return &Tracker{
		rec:     r,
		ctx:     context.WithoutCancel(ctx),
		callID:  uuid.NewString(),
		tier:    tier,
		feature: SanitizeFeature(feature),
		started: r.now(),
	}
}

// emit estimates, classifies and stores the metric. Failures are logged and swallowed.
func (r *Recorder) emit(ctx context.Context, m models.CallMetric, u carbon.Usage) models.CallMetric {
	est, err := r.est.Estimate(u)
	if err != nil {
		r.drop(m.CallID, err)
		return m
	}
	m.CO2Grams = est.CO2Grams
	m.ImpactLevel = r.cls.Classify(est.CO2Grams)

	if err := r.store.Append(ctx, m); err != nil {
		r.drop(m.CallID, err)
		return m
	}
	r.emitted.Add(1)
	return m
}

func (r *Recorder) drop(callID string, err error) {
	n := r.dropped.Add(1)
	r.failLog.Do(func() {
		r.log.Warn("dropping call metric", "call_id", callID, "dropped_total", n, "error", err)
	})
}

// Tracker accumulates the observations of a single call.
// Its methods are safe for concurrent use.
type Tracker struct {
	rec     *Recorder
	ctx     context.Context
	callID  string
	tier    models.UserTier
	feature string
	started time.Time

	mu             sync.Mutex
	promptTokens   int
	responseTokens int
	retries        int
	cacheHit       bool
	closed         bool

	once   sync.Once
	metric models.CallMetric
}

// CallID returns the identifier the metric will carry.
func (t *Tracker) CallID() string {
	return t.callID
}

// RecordRequest adds the approximate token count of text to the prompt tokens.
func (t *Tracker) RecordRequest(text string) {
	t.RecordRequestTokens(EstimateTokens(text))
}

// RecordRequestTokens adds n prompt tokens. Negative values are ignored.
func (t *Tracker) RecordRequestTokens(n int) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.promptTokens = addSaturating(t.promptTokens, n)
	}
}

// RecordResponse adds the approximate token count of text to the response tokens.
func (t *Tracker) RecordResponse(text string, fromCache bool) {
	t.RecordResponseTokens(EstimateTokens(text), fromCache)
}

// RecordResponseTokens adds n response tokens. Once fromCache is seen the call stays a cache hit.
func (t *Tracker) RecordResponseTokens(n int, fromCache bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if n > 0 {
		t.responseTokens = addSaturating(t.responseTokens, n)
	}
	t.cacheHit = t.cacheHit || fromCache
}

// RecordRetry counts one retry attempt.
func (t *Tracker) RecordRetry() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.retries = addSaturating(t.retries, 1)
	}
}

// Close ends a successful call and persists its metric. Only the first call to
// Close or Fail has an effect; later calls return the same metric.
func (t *Tracker) Close() models.CallMetric {
	return t.finish(models.OutcomeSuccess)
}

// Fail ends a call that returned err. Context cancellation and deadline errors
// are recorded as cancelled, anything else as failed. A nil err is a success.
func (t *Tracker) Fail(err error) models.CallMetric {
	return t.finish(outcomeOf(err))
}

func (t *Tracker) finish(outcome models.Outcome) models.CallMetric {
	t.once.Do(func() {
		t.mu.Lock()
		t.closed = true
		u := carbon.Usage{
			PromptTokens:   t.promptTokens,
			ResponseTokens: t.responseTokens,
			RetryCount:     t.retries,
			CacheHit:       t.cacheHit,
		}
		t.mu.Unlock()

		end := t.rec.now()
		latency := end.Sub(t.started).Milliseconds()
		if latency < 0 {
			latency = 0
		}

		m := models.CallMetric{
			Timestamp:      end.UTC(),
			CallID:         t.callID,
			UserTier:       t.tier,
			FeatureUsed:    t.feature,
			Outcome:        outcome,
			PromptTokens:   u.PromptTokens,
			ResponseTokens: u.ResponseTokens,
			RetryCount:     u.RetryCount,
			LatencyMs:      latency,
			CacheHit:       u.CacheHit,
		}
		t.metric = t.rec.emit(t.ctx, m, u)
	})
	return t.metric
}

func outcomeOf(err error) models.Outcome {
	switch {
	case err == nil:
		return models.OutcomeSuccess
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return models.OutcomeCancelled
	default:
		return models.OutcomeFailed
	}
}

// Track runs fn inside a tracker. The metric is emitted on every exit path:
// errors and cancellations are returned unchanged and panics are re-raised
// after the metric is stored.
func Track(ctx context.Context, r *Recorder, tier models.UserTier, feature string, fn func(context.Context, *Tracker) error) (err error) {
	t := r.start(ctx, tier, feature)
	defer func() {
		if p := recover(); p != nil {
			t.Fail(fmt.Errorf("panic: %v", p))
			panic(p)
		}
		if err == nil && ctx.Err() != nil {
			t.Fail(ctx.Err())
			return
		}
		t.Fail(err)
	}()
	return fn(ctx, t)
}

// addSaturating returns a+n for non-negative a and n, capped at math.MaxInt.
func addSaturating(a, n int) int {
	if a > math.MaxInt-n {
		return math.MaxInt
	}
	return a + n
}

// EstimateTokens approximates the token count of text as one token per four
// characters, rounded up.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// SanitizeFeature bounds a feature label to MaxFeatureLength runes of
// [A-Za-z0-9._:/-]. Other runes become '_' and an empty label becomes UnknownFeature.
func SanitizeFeature(feature string) string {
	if feature == "" {
		return UnknownFeature
	}

	out := make([]byte, 0, min(len(feature), MaxFeatureLength))
	count := 0
	for _, r := range feature {
		if count == MaxFeatureLength {
			break
		}
		if allowedFeatureRune(r) {
			out = append(out, byte(r))
		} else {
			out = append(out, '_')
		}
		count++
	}
	return string(out)
}

func allowedFeatureRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '.', r == '_', r == ':', r == '/', r == '-':
		return true
	}
	return false
}
