// Package memstore is an in-memory job store with the same contract as the
// PostgreSQL store in internal/db. It backs tests and dry runs.
package memstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/seo-autopilot/internal/types"
)

type ledgerKey struct {
	job     uuid.UUID
	service types.Service
}

type notifiedKey struct {
	kind string
	day  string
}

// Store holds every entity in maps guarded by a single mutex.
type Store struct {
	mu sync.Mutex

	// Now stamps created_at/updated_at. Defaults to time.Now.
	Now func() time.Time

	keywords  map[int64]*types.Keyword
	schedules map[int64]*types.Schedule
	articles  map[int64]*types.Article
	logs      []types.GenerationLogEntry
	ledger    []types.CostLedgerEntry
	ledgerIdx map[ledgerKey]struct{}
	notified  map[notifiedKey]struct{}

	nextKeywordID  int64
	nextScheduleID int64
	nextArticleID  int64
	nextLogID      int64
	nextLedgerID   int64

	failRecord error
}

// New creates an empty store.
func New() *Store {
	return &Store{
		Now:       time.Now,
		keywords:  make(map[int64]*types.Keyword),
		schedules: make(map[int64]*types.Schedule),
		articles:  make(map[int64]*types.Article),
		ledgerIdx: make(map[ledgerKey]struct{}),
		notified:  make(map[notifiedKey]struct{}),
	}
}

// FailNextRecord makes the next RecordJobOutcome call fail with err
// without writing anything.
func (s *Store) FailNextRecord(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRecord = err
}

func (s *Store) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Keywords

// UpsertKeyword inserts a keyword or refreshes its metrics when (text, type) exists.
func (s *Store) UpsertKeyword(_ context.Context, kw *types.Keyword) (*types.Keyword, error) {
	kw.Normalize()
	if err := kw.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, existing := range s.keywords {
		if existing.Text == kw.Text && existing.Type == kw.Type {
			existing.SearchVolume = kw.SearchVolume
			existing.CompetitionLevel = kw.CompetitionLevel
			existing.PriorityScore = kw.PriorityScore
			existing.UpdatedAt = now
			out := *existing
			return &out, nil
		}
	}

	s.nextKeywordID++
	stored := *kw
	stored.ID = s.nextKeywordID
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.keywords[stored.ID] = &stored
	out := stored
	return &out, nil
}

// GetKeyword returns nil when the keyword does not exist.
func (s *Store) GetKeyword(_ context.Context, id int64) (*types.Keyword, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kw, ok := s.keywords[id]
	if !ok {
		return nil, nil
	}
	out := *kw
	return &out, nil
}

// FindKeyword looks a keyword up by (text, type).
func (s *Store) FindKeyword(_ context.Context, text string, kind types.KeywordType) (*types.Keyword, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, kw := range s.keywords {
		if kw.Text == text && kw.Type == kind {
			out := *kw
			return &out, nil
		}
	}
	return nil, nil
}

// ListEligibleKeywords returns active keywords of the given types ordered by id.
func (s *Store) ListEligibleKeywords(_ context.Context, kinds []types.KeywordType) ([]types.Keyword, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []types.Keyword
	for _, kw := range s.keywords {
		if kw.Status != types.KeywordActive {
			continue
		}
		for _, k := range kinds {
			if kw.Type == k {
				out = append(out, *kw)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListKeywords returns keywords ordered by priority score, highest first.
func (s *Store) ListKeywords(_ context.Context, kind types.KeywordType, includeArchived bool) ([]types.Keyword, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []types.Keyword
	for _, kw := range s.keywords {
		if kind != "" && kw.Type != kind {
			continue
		}
		if !includeArchived && kw.Status != types.KeywordActive {
			continue
		}
		out = append(out, *kw)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PriorityScore != out[j].PriorityScore {
			return out[i].PriorityScore > out[j].PriorityScore
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ArchiveKeyword returns false when the keyword does not exist.
func (s *Store) ArchiveKeyword(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kw, ok := s.keywords[id]
	if !ok {
		return false, nil
	}
	kw.Status = types.KeywordArchived
	kw.UpdatedAt = s.now()
	return true, nil
}

// Schedules

// CreateSchedule stores a copy of sched and assigns its ID.
func (s *Store) CreateSchedule(_ context.Context, sched *types.Schedule) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.schedules {
		if existing.Name == sched.Name {
			return 0, &types.ValidationError{Field: "name", Message: fmt.Sprintf("schedule %q already exists", sched.Name)}
		}
	}

	s.nextScheduleID++
	now := s.now()
	sched.ID = s.nextScheduleID
	sched.CreatedAt = now
	sched.UpdatedAt = now
	stored := copySchedule(sched)
	s.schedules[sched.ID] = &stored
	return sched.ID, nil
}

// UpdateSchedule overwrites a stored schedule.
func (s *Store) UpdateSchedule(_ context.Context, sched *types.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.schedules[sched.ID]
	if !ok {
		return fmt.Errorf("schedule not found: %d", sched.ID)
	}
	for id, other := range s.schedules {
		if id != sched.ID && other.Name == sched.Name {
			return &types.ValidationError{Field: "name", Message: fmt.Sprintf("schedule %q already exists", sched.Name)}
		}
	}

	sched.CreatedAt = existing.CreatedAt
	sched.UpdatedAt = s.now()
	stored := copySchedule(sched)
	s.schedules[sched.ID] = &stored
	return nil
}

// GetSchedule returns nil when the schedule does not exist.
func (s *Store) GetSchedule(_ context.Context, id int64) (*types.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sched, ok := s.schedules[id]
	if !ok {
		return nil, nil
	}
	out := copySchedule(sched)
	return &out, nil
}

// GetScheduleByName returns nil when no schedule has that name.
func (s *Store) GetScheduleByName(_ context.Context, name string) (*types.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sched := range s.schedules {
		if sched.Name == name {
			out := copySchedule(sched)
			return &out, nil
		}
	}
	return nil, nil
}

// ListSchedules returns every schedule ordered by name.
func (s *Store) ListSchedules(_ context.Context) ([]types.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.Schedule, 0, len(s.schedules))
	for _, sched := range s.schedules {
		out = append(out, copySchedule(sched))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// DueSchedules returns active schedules with next_run <= now, earliest first.
func (s *Store) DueSchedules(_ context.Context, now time.Time) ([]types.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []types.Schedule
	for _, sched := range s.schedules {
		if sched.Status == types.ScheduleActive && sched.NextRun != nil && !sched.NextRun.After(now) {
			out = append(out, copySchedule(sched))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextRun.Equal(*out[j].NextRun) {
			return out[i].NextRun.Before(*out[j].NextRun)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// UpdateScheduleRun stores the run timestamps after a firing.
func (s *Store) UpdateScheduleRun(_ context.Context, id int64, lastRun, nextRun *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sched, ok := s.schedules[id]
	if !ok {
		return fmt.Errorf("schedule not found: %d", id)
	}
	sched.LastRun = copyTime(lastRun)
	sched.NextRun = copyTime(nextRun)
	sched.UpdatedAt = s.now()
	return nil
}

// SetScheduleStatus changes the status and next run of a schedule.
func (s *Store) SetScheduleStatus(_ context.Context, id int64, status types.ScheduleStatus, nextRun *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sched, ok := s.schedules[id]
	if !ok {
		return fmt.Errorf("schedule not found: %d", id)
	}
	sched.Status = status
	sched.NextRun = copyTime(nextRun)
	sched.UpdatedAt = s.now()
	return nil
}

// PauseAllSchedules pauses every active schedule.
func (s *Store) PauseAllSchedules(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, sched := range s.schedules {
		if sched.Status == types.ScheduleActive {
			sched.Status = types.SchedulePaused
			sched.NextRun = nil
			sched.UpdatedAt = s.now()
			n++
		}
	}
	return n, nil
}

// DeleteSchedule returns false when the schedule does not exist.
func (s *Store) DeleteSchedule(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.schedules[id]; !ok {
		return false, nil
	}
	delete(s.schedules, id)
	for i := range s.logs {
		if s.logs[i].ScheduleID != nil && *s.logs[i].ScheduleID == id {
			s.logs[i].ScheduleID = nil
		}
	}
	return true, nil
}

// Generation log

// RecordJobOutcome appends the entry and bumps keyword usage as one unit.
func (s *Store) RecordJobOutcome(_ context.Context, entry *types.GenerationLogEntry, keywordID *int64, usedAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failRecord != nil {
		err := s.failRecord
		s.failRecord = nil
		return 0, err
	}

	var kw *types.Keyword
	if keywordID != nil {
		var ok bool
		if kw, ok = s.keywords[*keywordID]; !ok {
			return 0, fmt.Errorf("keyword not found: %d", *keywordID)
		}
	}

	s.nextLogID++
	entry.ID = s.nextLogID
	entry.CreatedAt = s.now()
	stored := *entry
	stored.APICost = numeric(entry.APICost)
	stored.KeywordsUsed = append([]string(nil), entry.KeywordsUsed...)
	s.logs = append(s.logs, stored)

	if kw != nil {
		kw.UseCount++
		used := usedAt
		kw.LastUsed = &used
		kw.UpdatedAt = entry.CreatedAt
	}
	return entry.ID, nil
}

// SetLogPostReference backfills post_reference on an entry that has none.
func (s *Store) SetLogPostReference(_ context.Context, id int64, ref string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.logs {
		if s.logs[i].ID != id {
			continue
		}
		if s.logs[i].PostReference != nil {
			return false, nil
		}
		r := ref
		s.logs[i].PostReference = &r
		return true, nil
	}
	return false, nil
}

// ListLogs returns log entries newest first.
func (s *Store) ListLogs(_ context.Context, filter types.LogFilter) ([]types.GenerationLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	var out []types.GenerationLogEntry
	for i := len(s.logs) - 1; i >= 0 && len(out) < limit; i-- {
		e := s.logs[i]
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		if filter.ScheduleID != nil && (e.ScheduleID == nil || *e.ScheduleID != *filter.ScheduleID) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Logs returns every entry in insertion order.
func (s *Store) Logs() []types.GenerationLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.GenerationLogEntry(nil), s.logs...)
}

// Stats aggregates log entries created in [from, to).
func (s *Store) Stats(_ context.Context, from, to time.Time) (*types.GenerationStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats types.GenerationStats
	var totalTime float64
	for _, e := range s.logs {
		if e.CreatedAt.Before(from) || !e.CreatedAt.Before(to) {
			continue
		}
		stats.TotalCost += e.APICost
		switch e.Status {
		case types.LogSuccess:
			stats.Succeeded++
			totalTime += e.GenerationTime
		case types.LogFailed:
			stats.Failed++
		}
	}
	if stats.Succeeded > 0 {
		stats.AvgGenerationTime = totalTime / float64(stats.Succeeded)
	}
	return &stats, nil
}

// Cost ledger

// InsertCostEntry ignores a second entry for the same (job, service).
func (s *Store) InsertCostEntry(_ context.Context, entry *types.CostLedgerEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ledgerKey{job: entry.JobID, service: entry.Service}
	if _, dup := s.ledgerIdx[key]; dup {
		return false, nil
	}
	s.ledgerIdx[key] = struct{}{}

	s.nextLedgerID++
	stored := *entry
	stored.ID = s.nextLedgerID
	stored.Day = dateOnly(entry.Day)
	stored.Cost = numeric(entry.Cost)
	stored.CreatedAt = s.now()
	s.ledger = append(s.ledger, stored)
	entry.ID = stored.ID
	return true, nil
}

// SumCost totals ledger entries whose day falls in [from, to).
func (s *Store) SumCost(_ context.Context, from, to time.Time) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lo, hi := dateOnly(from), dateOnly(to)
	var total float64
	for _, e := range s.ledger {
		if !e.Day.Before(lo) && e.Day.Before(hi) {
			total += e.Cost
		}
	}
	return numeric(total), nil
}

// SumCostByService totals ledger entries per service for days in [from, to).
func (s *Store) SumCostByService(_ context.Context, from, to time.Time) (map[types.Service]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lo, hi := dateOnly(from), dateOnly(to)
	totals := make(map[types.Service]float64)
	for _, e := range s.ledger {
		if !e.Day.Before(lo) && e.Day.Before(hi) {
			totals[e.Service] += e.Cost
		}
	}
	for k, v := range totals {
		totals[k] = numeric(v)
	}
	return totals, nil
}

// Ledger returns every ledger entry in insertion order.
func (s *Store) Ledger() []types.CostLedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.CostLedgerEntry(nil), s.ledger...)
}

// MarkNotified returns false if kind was already recorded for day.
func (s *Store) MarkNotified(_ context.Context, kind string, day time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := notifiedKey{kind: kind, day: day.Format(time.DateOnly)}
	if _, ok := s.notified[key]; ok {
		return false, nil
	}
	s.notified[key] = struct{}{}
	return true, nil
}

// Articles

// SaveArticle stores a copy of a and assigns its ID.
func (s *Store) SaveArticle(_ context.Context, a *types.Article) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.articles {
		if existing.JobID == a.JobID {
			return 0, fmt.Errorf("article for job %s already exists", a.JobID)
		}
	}

	s.nextArticleID++
	a.ID = s.nextArticleID
	a.CreatedAt = s.now()
	stored := *a
	stored.Tags = append([]string(nil), a.Tags...)
	stored.ImageURLs = append([]string(nil), a.ImageURLs...)
	s.articles[a.ID] = &stored
	return a.ID, nil
}

// GetArticle returns nil when the article does not exist.
func (s *Store) GetArticle(_ context.Context, id int64) (*types.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.articles[id]
	if !ok {
		return nil, nil
	}
	out := *a
	return &out, nil
}

func copySchedule(s *types.Schedule) types.Schedule {
	out := *s
	out.NextRun = copyTime(s.NextRun)
	out.LastRun = copyTime(s.LastRun)
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// numeric rounds v the way a NUMERIC(14, 4) column stores it.
func numeric(v float64) float64 {
	return math.Round(v*10000) / 10000
}
