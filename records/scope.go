package records

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gr-butler/wxcore/persist"
	"gopkg.in/ini.v1"
)

type ScopeName string

const (
	Today          ScopeName = "today"
	Yesterday      ScopeName = "yesterday"
	Month          ScopeName = "month"
	Year           ScopeName = "year"
	AllTime        ScopeName = "alltime"
	MonthlyAllTime ScopeName = "monthlyalltime"
)

var scopeNames = []ScopeName{Today, Yesterday, Month, Year, AllTime, MonthlyAllTime}

const infoSection = "scope"

type ExtremeRecord struct {
	Value       float64   `json:"value"`
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description"`
}

// Set reports whether the record holds a real value.
func (r ExtremeRecord) Set() bool {
	return !IsSentinel(r.Value)
}

// Scope is one set of extremes with its own lock and its own file.
type Scope struct {
	name    ScopeName
	mu      sync.Mutex
	records map[string]ExtremeRecord
	started time.Time
	file    *persist.File
}

func loadScope(dir string, name ScopeName) (*Scope, error) {
	s := &Scope{
		name:    name,
		records: make(map[string]ExtremeRecord),
		file:    persist.NewFile(filepath.Join(dir, string(name)+".ini")),
	}
	doc, err := s.file.Load()
	if err != nil {
		return nil, err
	}
	s.started = persist.ParseTime(doc.Section(infoSection).Key("started").String())
	for _, sec := range doc.Sections() {
		if sec.Name() == ini.DefaultSection || sec.Name() == infoSection {
			continue
		}
		s.records[sec.Name()] = ExtremeRecord{
			Value:       sec.Key("value").MustFloat64(0),
			Timestamp:   persist.ParseTime(sec.Key("time").String()),
			Description: sec.Key("description").String(),
		}
	}
	return s, nil
}

// key of a record. MonthlyAllTime keys carry the calendar month.
func monthKey(month time.Month, metric string) string {
	return fmt.Sprintf("%02d.%s", int(month), metric)
}

func (s *Scope) getLocked(key string, m Metric) ExtremeRecord {
	r, ok := s.records[key]
	if !ok {
		return ExtremeRecord{Value: m.Sentinel(), Description: m.Description}
	}
	return r
}

func (s *Scope) saveLocked() error {
	doc := ini.Empty()
	doc.Section(infoSection).Key("started").SetValue(persist.FormatTime(s.started))
	keys := make([]string, 0, len(s.records))
	for k := range s.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		r := s.records[k]
		sec := doc.Section(k)
		sec.Key("value").SetValue(persist.FormatFloat(r.Value))
		sec.Key("time").SetValue(persist.FormatTime(r.Timestamp))
		sec.Key("description").SetValue(r.Description)
	}
	return s.file.Save(doc)
}

func (s *Scope) snapshot() map[string]ExtremeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]ExtremeRecord, len(s.records))
	for k, v := range s.records {
		out[k] = v
	}
	return out
}
