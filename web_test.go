package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gr-butler/wxcore/alarm"
	"github.com/gr-butler/wxcore/station"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedStation struct {
	snap station.Snapshot
}

func (f fixedStation) Snapshot() station.Snapshot { return f.snap }

type fixedAlarms []alarm.Alarm

func (f fixedAlarms) Active() []alarm.Alarm { return f }

func TestSnapshotHandler(t *testing.T) {
	mux := newMux(fixedStation{station.Snapshot{Temperature: 18.2, Pressure: 1012.5}}, fixedAlarms{})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 18.2, body["temperature_C"])
	assert.Equal(t, 1012.5, body["pressure_hPa"])
}

func TestUnknownPathIsNotFound(t *testing.T) {
	mux := newMux(fixedStation{}, fixedAlarms{})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAlarmHandler(t *testing.T) {
	mux := newMux(fixedStation{}, fixedAlarms{{Kind: alarm.TempSpike, Active: true, Count: 2}})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/alarms", nil))

	var got []alarm.Alarm
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, alarm.TempSpike, got[0].Kind)
	assert.Equal(t, 2, got[0].Count)
}

type fakePurger struct {
	before time.Time
	err    error
}

func (f *fakePurger) Purge(_ context.Context, before time.Time) (int64, error) {
	f.before = before
	return 3, f.err
}

func TestPurgeUsesRetention(t *testing.T) {
	now := time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC)
	p := &fakePurger{}
	purge(p, now)
	assert.Equal(t, now.AddDate(0, 0, -7), p.before)

	p.err = errors.New("down")
	purge(p, now)
}
