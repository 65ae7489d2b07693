package records

import (
	"fmt"
	"time"

	"github.com/gr-butler/wxcore/alarm"
	logger "github.com/sirupsen/logrus"
)

// Hooks lets the caller count what the tracker does.
type Hooks struct {
	RecordBroken  func(scope ScopeName, metric string)
	PersistFailed func(scope ScopeName)
}

// Tracker owns the record scopes. Each scope is locked and written on its own so a slow
// write on one never holds up the others.
type Tracker struct {
	scopes map[ScopeName]*Scope
	audit  logger.FieldLogger
	sink   alarm.Sink
	hooks  Hooks
}

// NewTracker loads every scope file from dir. audit receives one line per record broken.
func NewTracker(dir string, audit logger.FieldLogger, sink alarm.Sink) (*Tracker, error) {
	t := &Tracker{scopes: make(map[ScopeName]*Scope), audit: audit, sink: sink}
	for _, name := range scopeNames {
		s, err := loadScope(dir, name)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s records: %w", name, err)
		}
		t.scopes[name] = s
	}
	if t.audit == nil {
		t.audit = logger.StandardLogger()
	}
	return t, nil
}

func (t *Tracker) SetHooks(h Hooks) {
	t.hooks = h
}

func (t *Tracker) key(scope ScopeName, m Metric, ts time.Time) string {
	if scope == MonthlyAllTime {
		return monthKey(ts.Month(), m.Name)
	}
	return m.Name
}

func midnightOf(ts time.Time) time.Time {
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, ts.Location())
}

// CheckAndSet records value in scope when it beats the current extreme in the metric's direction.
// The scope file is rewritten before the scope lock is released.
func (t *Tracker) CheckAndSet(scope ScopeName, m Metric, value float64, ts time.Time) bool {
	s := t.scopes[scope]
	key := t.key(scope, m, ts)
	if scope == MonthlyAllTime && m.WholeDay {
		ts = midnightOf(ts)
	}

	s.mu.Lock()
	old := s.getLocked(key, m)
	if !m.Beats(value, old.Value) {
		s.mu.Unlock()
		return false
	}
	s.records[key] = ExtremeRecord{Value: value, Timestamp: ts, Description: m.Description}
	if old.Set() {
		t.audit.Infof("[%s] %s new [%.*f] at [%s] previous [%.*f] at [%s]", scope, key,
			m.Decimals, value, ts.Format(time.RFC3339), m.Decimals, old.Value, old.Timestamp.Format(time.RFC3339))
	} else {
		t.audit.Infof("[%s] %s first [%.*f] at [%s]", scope, key, m.Decimals, value, ts.Format(time.RFC3339))
	}
	err := s.saveLocked()
	s.mu.Unlock()

	if err != nil {
		logger.Errorf("Failed to save [%v] records [%v]", scope, err)
		if t.hooks.PersistFailed != nil {
			t.hooks.PersistFailed(scope)
		}
		if t.sink != nil {
			t.sink.Raise(alarm.PersistFailure, fmt.Sprintf("Failed to save %s records: %v", scope, err))
		}
	}
	if t.hooks.RecordBroken != nil {
		t.hooks.RecordBroken(scope, m.Name)
	}
	if scope == AllTime && old.Set() && t.sink != nil {
		t.sink.Raise(alarm.NewRecord, fmt.Sprintf("New all time record %s [%.*f] at [%s]",
			m.Description, m.Decimals, value, ts.Format(time.RFC3339)))
	}
	return true
}

// Observe checks a live reading against Today and every long term scope.
func (t *Tracker) Observe(m Metric, value float64, ts time.Time) {
	if !m.DayEnd {
		t.CheckAndSet(Today, m, value, ts)
	}
	t.ObserveLongTerm(m, value, ts)
}

// ObserveLongTerm checks Month, Year, AllTime and the calendar month's all time table.
func (t *Tracker) ObserveLongTerm(m Metric, value float64, ts time.Time) {
	for _, scope := range []ScopeName{Month, Year, AllTime, MonthlyAllTime} {
		t.CheckAndSet(scope, m, value, ts)
	}
}

func (t *Tracker) Get(scope ScopeName, m Metric) ExtremeRecord {
	s := t.scopes[scope]
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(m.Name, m)
}

func (t *Tracker) GetMonthly(month time.Month, m Metric) ExtremeRecord {
	s := t.scopes[MonthlyAllTime]
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(monthKey(month, m.Name), m)
}

// Records returns a copy of a scope, keyed by metric name.
func (t *Tracker) Records(scope ScopeName) map[string]ExtremeRecord {
	return t.scopes[scope].snapshot()
}

// Started is when the scope was last reset.
func (t *Tracker) Started(scope ScopeName) time.Time {
	s := t.scopes[scope]
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (t *Tracker) save(s *Scope) {
	if err := s.saveLocked(); err != nil {
		logger.Errorf("Failed to save [%v] records [%v]", s.name, err)
		if t.hooks.PersistFailed != nil {
			t.hooks.PersistFailed(s.name)
		}
		if t.sink != nil {
			t.sink.Raise(alarm.PersistFailure, fmt.Sprintf("Failed to save %s records: %v", s.name, err))
		}
	}
}

// CopyToYesterday replaces Yesterday with Today's current extremes.
func (t *Tracker) CopyToYesterday() {
	today := t.scopes[Today]
	today.mu.Lock()
	copied := make(map[string]ExtremeRecord, len(today.records))
	for k, v := range today.records {
		copied[k] = v
	}
	started := today.started
	today.mu.Unlock()

	y := t.scopes[Yesterday]
	y.mu.Lock()
	y.records = copied
	y.started = started
	t.save(y)
	y.mu.Unlock()
}

// Reset puts every metric the scope tracks back to its sentinel, then applies seeds so the
// new period starts with min = max = the current reading.
func (t *Tracker) Reset(scope ScopeName, seeds map[string]float64, ts time.Time) {
	s := t.scopes[scope]
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]ExtremeRecord)
	for _, m := range catalogue {
		if scope == Today && m.DayEnd {
			continue
		}
		r := ExtremeRecord{Value: m.Sentinel(), Description: m.Description}
		if v, ok := seeds[m.Name]; ok {
			r.Value = v
			r.Timestamp = ts
		}
		s.records[m.Name] = r
	}
	s.started = ts
	t.save(s)
	logger.Infof("Reset [%v] records at [%v]", scope, ts.Format(time.RFC3339))
}

// Archive copies the scope's file aside with the given suffix.
func (t *Tracker) Archive(scope ScopeName, suffix string) {
	s := t.scopes[scope]
	s.mu.Lock()
	defer s.mu.Unlock()
	dst, err := s.file.Archive(suffix)
	if err != nil {
		logger.Errorf("Failed to archive [%v] records [%v]", scope, err)
		return
	}
	if dst != "" {
		logger.Infof("Archived [%v] records to [%v]", scope, dst)
	}
}

// Flush rewrites every scope, used at shutdown.
func (t *Tracker) Flush() {
	for _, name := range scopeNames {
		s := t.scopes[name]
		s.mu.Lock()
		t.save(s)
		s.mu.Unlock()
	}
}
