package db

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/j-veylop/green-ai-tracker/internal/models"
)

// InsertCallMetric stores one metric record. Timestamps are kept as fixed-width
// UTC text so that lexical order matches time order.
func (db *DB) InsertCallMetric(ctx context.Context, m models.CallMetric) error {
	query := `INSERT INTO call_metrics (` + sqlMetricColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	ts := m.Timestamp.UTC()

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	_, err := db.ExecContext(ctx, query,
		m.CallID,
		ts.Format(models.TimestampLayout),
		ts.Format(models.DayLayout),
		string(m.UserTier),
		m.FeatureUsed,
		string(m.ImpactLevel),
		string(m.Outcome),
		m.CO2Grams,
		m.PromptTokens,
		m.ResponseTokens,
		m.RetryCount,
		m.LatencyMs,
		boolToInt(m.CacheHit),
	)
	if err != nil {
		return fmt.Errorf("failed to insert call metric %s: %w", m.CallID, err)
	}
	return nil
}

// CallMetrics streams every record in [start, end) ordered by timestamp then call id.
// The rows are read from a single statement and therefore one consistent snapshot.
func (db *DB) CallMetrics(ctx context.Context, start, end time.Time) iter.Seq2[models.CallMetric, error] {
	return func(yield func(models.CallMetric, error) bool) {
		query := `SELECT ` + sqlMetricColumns + ` FROM call_metrics ` + sqlWindowClause +
			` ORDER BY timestamp, call_id`

		rows, err := db.QueryContext(ctx, query,
			start.UTC().Format(models.TimestampLayout),
			end.UTC().Format(models.TimestampLayout),
		)
		if err != nil {
			yield(models.CallMetric{}, fmt.Errorf("failed to query call metrics: %w", err))
			return
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var (
				m        models.CallMetric
				ts, day  string
				tier     string
				level    string
				outcome  string
				cacheHit int
			)
			err := rows.Scan(
				&m.CallID,
				&ts,
				&day,
				&tier,
				&m.FeatureUsed,
				&level,
				&outcome,
				&m.CO2Grams,
				&m.PromptTokens,
				&m.ResponseTokens,
				&m.RetryCount,
				&m.LatencyMs,
				&cacheHit,
			)
			if err != nil {
				yield(models.CallMetric{}, fmt.Errorf("failed to scan call metric: %w", err))
				return
			}

			m.Timestamp, err = time.Parse(models.TimestampLayout, ts)
			if err != nil {
				yield(models.CallMetric{}, fmt.Errorf("bad timestamp %q for %s: %w", ts, m.CallID, err))
				return
			}
			m.UserTier = models.UserTier(tier)
			m.ImpactLevel = models.ImpactLevel(level)
			m.Outcome = models.Outcome(outcome)
			m.CacheHit = cacheHit != 0

			if !yield(m, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(models.CallMetric{}, fmt.Errorf("failed to iterate call metrics: %w", err))
		}
	}
}

// PurgeBefore deletes every record whose day is before the given day (2006-01-02)
// and returns how many distinct days were removed.
func (db *DB) PurgeBefore(ctx context.Context, day string) (int, error) {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin purge: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var days int
	err = tx.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT day) FROM call_metrics WHERE day < ?", day,
	).Scan(&days)
	if err != nil {
		return 0, fmt.Errorf("failed to count purgeable days: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM call_metrics WHERE day < ?", day); err != nil {
		return 0, fmt.Errorf("failed to purge call metrics: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit purge: %w", err)
	}
	return days, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
