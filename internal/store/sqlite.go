package store

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/j-veylop/green-ai-tracker/internal/db"
	"github.com/j-veylop/green-ai-tracker/internal/logger"
	"github.com/j-veylop/green-ai-tracker/internal/models"
)

// SQLiteStore keeps records in the call_metrics table, partitioned by its day column.
type SQLiteStore struct {
	db *db.DB

	gate      *queryGate
	closeOnce sync.Once
	closeErr  error
}

// OpenSQLiteStore opens (creating if needed) the database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	conn, err := db.New(path)
	if err != nil {
		return nil, err
	}
	return NewSQLiteStore(conn), nil
}

// NewSQLiteStore wraps an already opened database. The store takes ownership of conn.
func NewSQLiteStore(conn *db.DB) *SQLiteStore {
	return &SQLiteStore{db: conn, gate: newQueryGate()}
}

// Append inserts m. The insert is committed before Append returns.
func (s *SQLiteStore) Append(ctx context.Context, m models.CallMetric) error {
	if err := ValidateRecord(m); err != nil {
		return err
	}
	if err := s.db.InsertCallMetric(ctx, m); err != nil {
		return fmt.Errorf("%w: %w", models.ErrStorageWrite, err)
	}
	return nil
}

// Query streams records in [start, end) ordered by timestamp.
func (s *SQLiteStore) Query(ctx context.Context, start, end time.Time) iter.Seq2[models.CallMetric, error] {
	return func(yield func(models.CallMetric, error) bool) {
		if !start.Before(end) {
			return
		}

		s.gate.enter()
		defer s.gate.leave()

		for m, err := range s.db.CallMetrics(ctx, start, end) {
			if err != nil {
				yield(models.CallMetric{}, fmt.Errorf("%w: %w", models.ErrStorageRead, err))
				return
			}
			if !yield(m, nil) {
				return
			}
		}
	}
}

// Purge deletes every day strictly older than the UTC day containing before
// and reclaims the freed pages.
func (s *SQLiteStore) Purge(ctx context.Context, before time.Time) (int, error) {
	cutoff := dayStart(before).Format(models.DayLayout)

	s.gate.lock()
	defer s.gate.unlock()

	removed, err := s.db.PurgeBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		logger.Info("purged metric days", "count", removed, "before", cutoff)
		if err := s.db.Vacuum(ctx); err != nil {
			logger.Warn("failed to vacuum after purge", "error", err)
		}
	}
	return removed, nil
}

// Close checkpoints and closes the database.
func (s *SQLiteStore) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}
