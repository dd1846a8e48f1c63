package store

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/j-veylop/green-ai-tracker/internal/logger"
	"github.com/j-veylop/green-ai-tracker/internal/models"
)

const (
	partitionPrefix = "metrics-"
	partitionSuffix = ".jsonl"

	// maxOpenPartitions bounds the number of partition handles kept open for appends.
	maxOpenPartitions = 4
	maxLineBytes      = 1024 * 1024
)

// FileStore keeps one JSON-lines file per UTC day.
//
// Each record is encoded in full and handed to the kernel with a single write
// on a file opened with O_APPEND, so concurrent writers (including other
// processes) never interleave partial records. The write is visible to readers
// as soon as Append returns. Durability against power loss depends on the sync
// interval: with a zero interval every Append calls fsync before returning,
// otherwise dirty partitions are fsynced every interval and on Close.
type FileStore struct {
	dir          string
	syncInterval time.Duration

	mu     sync.Mutex
	files  map[string]*os.File
	dirty  map[string]bool
	closed bool

	// gate is entered by in-flight queries and locked by Purge.
	gate *queryGate

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewFileStore opens (creating if needed) a partition directory.
func NewFileStore(dir string, syncInterval time.Duration) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("store directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	s := &FileStore{
		dir:          dir,
		syncInterval: syncInterval,
		files:        make(map[string]*os.File),
		dirty:        make(map[string]bool),
		gate:         newQueryGate(),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}

	if syncInterval > 0 {
		go s.syncLoop()
	} else {
		close(s.doneCh)
	}

	return s, nil
}

// Dir returns the partition directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// PartitionPath returns the file holding records of the given UTC day (2006-01-02).
func (s *FileStore) PartitionPath(day string) string {
	return filepath.Join(s.dir, partitionPrefix+day+partitionSuffix)
}

// Append writes m as one line in its day partition.
func (s *FileStore) Append(ctx context.Context, m models.CallMetric) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", models.ErrStorageWrite, err)
	}
	if err := ValidateRecord(m); err != nil {
		return err
	}

	m.Timestamp = m.Timestamp.UTC()
	line, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("%w: failed to encode %s: %w", models.ErrStorageWrite, m.CallID, err)
	}
	line = append(line, '\n')
	day := m.Day()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("%w: store is closed", models.ErrStorageWrite)
	}

	f, err := s.partitionLocked(day)
	if err != nil {
		return err
	}

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("%w: failed to write %s: %w", models.ErrStorageWrite, m.CallID, err)
	}

	if s.syncInterval <= 0 {
		if err := f.Sync(); err != nil {
			return fmt.Errorf("%w: failed to sync %s: %w", models.ErrStorageWrite, day, err)
		}
		return nil
	}
	s.dirty[day] = true
	return nil
}

// partitionLocked returns an append handle for day. s.mu must be held.
func (s *FileStore) partitionLocked(day string) (*os.File, error) {
	if f, ok := s.files[day]; ok {
		return f, nil
	}

	if len(s.files) >= maxOpenPartitions {
		s.evictOldestLocked()
	}

	f, err := os.OpenFile(s.PartitionPath(day), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open partition %s: %w", models.ErrStorageWrite, day, err)
	}
	s.files[day] = f
	return f, nil
}

// evictOldestLocked syncs and closes the handle of the oldest open partition.
func (s *FileStore) evictOldestLocked() {
	oldest := ""
	for day := range s.files {
		if oldest == "" || day < oldest {
			oldest = day
		}
	}
	if oldest != "" {
		s.closePartitionLocked(oldest)
	}
}

func (s *FileStore) closePartitionLocked(day string) {
	f, ok := s.files[day]
	if !ok {
		return
	}
	if s.dirty[day] {
		if err := f.Sync(); err != nil {
			logger.Warn("failed to sync partition", "day", day, "error", err)
		}
	}
	if err := f.Close(); err != nil {
		logger.Warn("failed to close partition", "day", day, "error", err)
	}
	delete(s.files, day)
	delete(s.dirty, day)
}

func (s *FileStore) syncLoop() {
	ticker := time.NewTicker(s.syncInterval)
	defer func() {
		ticker.Stop()
		close(s.doneCh)
	}()

	for {
		select {
		case <-ticker.C:
			s.syncDirty()
		case <-s.stopCh:
			return
		}
	}
}

func (s *FileStore) syncDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for day := range s.dirty {
		f, ok := s.files[day]
		if !ok {
			delete(s.dirty, day)
			continue
		}
		if err := f.Sync(); err != nil {
			logger.Warn("failed to sync partition", "day", day, "error", err)
			continue
		}
		delete(s.dirty, day)
	}
}

// Query streams records in [start, end) ordered by timestamp, one partition at a time.
func (s *FileStore) Query(ctx context.Context, start, end time.Time) iter.Seq2[models.CallMetric, error] {
	return func(yield func(models.CallMetric, error) bool) {
		if !start.Before(end) {
			return
		}

		s.gate.enter()
		defer s.gate.leave()

		days, err := s.partitions()
		if err != nil {
			yield(models.CallMetric{}, err)
			return
		}

		for _, day := range days {
			if !dayOverlaps(day, start, end) {
				continue
			}
			if err := ctx.Err(); err != nil {
				yield(models.CallMetric{}, fmt.Errorf("%w: %w", models.ErrStorageRead, err))
				return
			}

			records, err := s.readPartition(day.Format(models.DayLayout), start, end)
			if err != nil {
				yield(models.CallMetric{}, err)
				return
			}
			for _, m := range records {
				if !yield(m, nil) {
					return
				}
			}
		}
	}
}

// partitions lists the days that have a partition file, oldest first.
func (s *FileStore) partitions() ([]time.Time, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list %s: %w", models.ErrStorageRead, s.dir, err)
	}

	var days []time.Time
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		day, ok := parsePartitionName(entry.Name())
		if !ok {
			continue
		}
		days = append(days, day)
	}

	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days, nil
}

// IsPartitionName reports whether name is a day partition file name.
func IsPartitionName(name string) bool {
	_, ok := parsePartitionName(name)
	return ok
}

// parsePartitionName extracts the day from a partition file name.
func parsePartitionName(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, partitionPrefix) || !strings.HasSuffix(name, partitionSuffix) {
		return time.Time{}, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(name, partitionPrefix), partitionSuffix)
	day, err := time.Parse(models.DayLayout, raw)
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}

// readPartition decodes one day file and returns its records in [start, end),
// sorted by timestamp then call id. A trailing line without a newline is a
// write still in progress and is skipped.
func (s *FileStore) readPartition(day string, start, end time.Time) ([]models.CallMetric, error) {
	path := s.PartitionPath(day)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %s: %w", models.ErrStorageRead, path, err)
	}
	defer func() { _ = f.Close() }()

	var records []models.CallMetric
	reader := bufio.NewReaderSize(f, 64*1024)
	lineNo := 0
	for {
		line, err := reader.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read %s: %w", models.ErrStorageRead, path, err)
		}
		lineNo++

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if len(line) > maxLineBytes {
			return nil, fmt.Errorf("%w: %s:%d exceeds %d bytes", models.ErrStorageRead, path, lineNo, maxLineBytes)
		}

		var m models.CallMetric
		if err := json.Unmarshal(line, &m); err != nil {
			return nil, fmt.Errorf("%w: %s:%d: %w", models.ErrStorageRead, path, lineNo, err)
		}
		if inWindow(m.Timestamp, start, end) {
			records = append(records, m)
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].Timestamp.Before(records[j].Timestamp)
		}
		return records[i].CallID < records[j].CallID
	})
	return records, nil
}

// Purge deletes every partition whose day ends at or before the UTC day containing before.
func (s *FileStore) Purge(ctx context.Context, before time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	cutoff := dayStart(before)

	s.gate.lock()
	defer s.gate.unlock()

	days, err := s.partitions()
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, day := range days {
		if !day.Before(cutoff) {
			break
		}
		name := day.Format(models.DayLayout)
		s.closePartitionLocked(name)
		if err := os.Remove(s.PartitionPath(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("failed to remove partition %s: %w", name, err)
		}
		removed++
	}

	if removed > 0 {
		logger.Info("purged metric partitions", "count", removed, "before", cutoff.Format(models.DayLayout))
	}
	return removed, nil
}

// Close flushes and closes every open partition. It is safe to call more than once.
func (s *FileStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.syncInterval > 0 {
		close(s.stopCh)
	}
	<-s.doneCh

	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for day, f := range s.files {
		if err := f.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("sync %s: %w", day, err))
		}
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", day, err))
		}
		delete(s.files, day)
	}
	s.dirty = make(map[string]bool)

	return errors.Join(errs...)
}
