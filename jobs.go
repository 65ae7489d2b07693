package main

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/gr-butler/wxcore/env"
	"github.com/gr-butler/wxcore/station"
	"github.com/gr-butler/wxcore/store"
	logger "github.com/sirupsen/logrus"
)

type purger interface {
	Purge(ctx context.Context, before time.Time) (int64, error)
}

// startJobs schedules the housekeeping that does not belong on the tick: trimming old rows
// and recomputing the pressure and temperature trends.
func startJobs(st *station.Station, series store.TimeSeries) (*gocron.Scheduler, error) {
	s := gocron.NewScheduler(time.Local)

	if _, err := s.Every(1).Hour().Do(func() { purge(series, time.Now()) }); err != nil {
		return nil, err
	}
	if _, err := s.Every(1).Minute().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		st.RefreshTrends(ctx)
	}); err != nil {
		return nil, err
	}

	s.StartAsync()
	return s, nil
}

func purge(p purger, now time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	n, err := p.Purge(ctx, now.Add(-env.Retention))
	if err != nil {
		logger.Errorf("Failed to purge old readings [%v]", err)
		return
	}
	logger.Debugf("Purged [%v] old readings", n)
}
