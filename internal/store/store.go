// Package store persists CallMetric records append-only, partitioned by UTC day.
//
// Two backends are provided: FileStore writes one JSON line per record into a
// file per day, and SQLiteStore keeps records in a single table with a day
// column. Both present a partition-transparent view through Query.
package store

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/j-veylop/green-ai-tracker/internal/models"
)

// Appender accepts completed call metrics.
type Appender interface {
	// Append persists m as a single atomic record.
	Append(ctx context.Context, m models.CallMetric) error
}

// Store is the append-only metrics store.
//
// Query returns a lazy sequence of every record with start <= timestamp < end,
// ordered by timestamp. Each call starts a fresh sequence. A read sees at least
// every Append that returned before the sequence was first pulled. Errors are
// yielded once, after which the sequence ends.
type Store interface {
	Appender
	Query(ctx context.Context, start, end time.Time) iter.Seq2[models.CallMetric, error]
	// Purge removes records strictly older than the UTC day containing before.
	// It waits for in-flight queries to finish and returns the number of
	// partitions removed. A pending Purge does not hold back new queries, so
	// a query may be started while another is being iterated.
	Purge(ctx context.Context, before time.Time) (int, error)
	Close() error
}

// ValidateRecord rejects records that would break store invariants.
func ValidateRecord(m models.CallMetric) error {
	switch {
	case m.CallID == "":
		return fmt.Errorf("%w: missing call_id", models.ErrStorageWrite)
	case m.Timestamp.IsZero():
		return fmt.Errorf("%w: missing timestamp for %s", models.ErrStorageWrite, m.CallID)
	case m.CO2Grams < 0:
		return fmt.Errorf("%w: negative co2_grams for %s", models.ErrStorageWrite, m.CallID)
	case m.PromptTokens < 0 || m.ResponseTokens < 0 || m.RetryCount < 0 || m.LatencyMs < 0:
		return fmt.Errorf("%w: negative quantity for %s", models.ErrStorageWrite, m.CallID)
	case !m.ImpactLevel.Valid():
		return fmt.Errorf("%w: unknown impact level %q for %s", models.ErrStorageWrite, m.ImpactLevel, m.CallID)
	}
	return nil
}

// Collect drains a query into a slice, stopping at the first error.
func Collect(seq iter.Seq2[models.CallMetric, error]) ([]models.CallMetric, error) {
	var out []models.CallMetric
	for m, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, m)
	}
	return out, nil
}

// queryGate admits any number of concurrent queries and gives Purge exclusive
// access once none is running. Unlike sync.RWMutex a waiting Purge does not
// block new queries, so nested queries cannot deadlock against it.
type queryGate struct {
	mu      sync.Mutex
	cond    *sync.Cond
	active  int
	purging bool
}

func newQueryGate() *queryGate {
	g := &queryGate{}
	g.cond = sync.NewCond(&g.mu)
	return g
}

func (g *queryGate) enter() {
	g.mu.Lock()
	for g.purging {
		g.cond.Wait()
	}
	g.active++
	g.mu.Unlock()
}

func (g *queryGate) leave() {
	g.mu.Lock()
	g.active--
	if g.active == 0 {
		g.cond.Broadcast()
	}
	g.mu.Unlock()
}

func (g *queryGate) lock() {
	g.mu.Lock()
	for g.purging || g.active > 0 {
		g.cond.Wait()
	}
	g.purging = true
	g.mu.Unlock()
}

func (g *queryGate) unlock() {
	g.mu.Lock()
	g.purging = false
	g.cond.Broadcast()
	g.mu.Unlock()
}

// dayStart returns midnight UTC of the day containing t.
func dayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// dayOverlaps reports whether the UTC day starting at day intersects [start, end).
func dayOverlaps(day, start, end time.Time) bool {
	return day.Before(end) && day.Add(24*time.Hour).After(start)
}

// inWindow reports whether t falls in [start, end).
func inWindow(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}
