package main

import (
	"encoding/json"
	"net/http"

	"github.com/gr-butler/wxcore/alarm"
	"github.com/gr-butler/wxcore/station"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	logger "github.com/sirupsen/logrus"
)

type snapshotter interface {
	Snapshot() station.Snapshot
}

type alarmLister interface {
	Active() []alarm.Alarm
}

type web struct {
	station snapshotter
	alarms  alarmLister
}

func newMux(st snapshotter, alarms alarmLister) *http.ServeMux {
	w := &web{station: st, alarms: alarms}
	mux := http.NewServeMux()
	mux.HandleFunc("/", w.handler)
	mux.HandleFunc("/alarms", w.alarmHandler)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (w *web) handler(rw http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(rw, r)
		return
	}
	writeJSON(rw, w.station.Snapshot())
}

func (w *web) alarmHandler(rw http.ResponseWriter, _ *http.Request) {
	writeJSON(rw, w.alarms.Active())
}

func writeJSON(rw http.ResponseWriter, v interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	js, err := json.Marshal(v)
	if err != nil {
		logger.Errorf("JSON error [%v]", err)
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}
	logger.Debugf("Web read: [%v]", string(js))
	_, _ = rw.Write(js) // not much we can do if this fails
}
