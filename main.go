package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/gr-butler/wxcore/alarm"
	"github.com/gr-butler/wxcore/driver/sim"
	"github.com/gr-butler/wxcore/env"
	"github.com/gr-butler/wxcore/notify"
	"github.com/gr-butler/wxcore/station"
	"github.com/gr-butler/wxcore/store"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	logger "github.com/sirupsen/logrus"
)

const version = "GRB-WxCore-2.0.0"

func main() {
	logger.Infof("Starting weather station [%v]", version)

	args := env.Args{
		Test:    flag.Bool("test", false, "test mode, feeds the station from simulated sensors"),
		Verbose: flag.Bool("verbose", false, "verbose logging"),
		DataDir: flag.String("data", "", "data directory, overrides DATA_DIR"),
	}
	flag.Parse()

	cfg, err := env.Load()
	if err != nil {
		logger.Errorf("Failed to load configuration [%v]", err)
		logger.Exit(1)
	}
	if *args.DataDir != "" {
		cfg.DataDir = *args.DataDir
	}
	configureLogging(cfg, *args.Verbose)

	if *args.Test {
		logger.Info("TEST MODE")
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Errorf("Failed to create data directory [%v]", err)
		logger.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	code := run(ctx, cfg, args)
	logger.Info("Exiting...")
	logger.Exit(code)
}

func configureLogging(cfg *env.Config, verbose bool) {
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logger.JSONFormatter{})
	}
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logger.InfoLevel
	}
	if verbose {
		level = logger.DebugLevel
	}
	logger.SetLevel(level)
}

// auditLog is the record-break log, kept apart from the process log so it survives rotation
// of the latter.
func auditLog(dir string) (*logger.Logger, func()) {
	audit := logger.New()
	audit.SetFormatter(&logger.TextFormatter{DisableColors: true, FullTimestamp: true})
	f, err := os.OpenFile(filepath.Join(dir, "records.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		logger.Warnf("Failed to open records log, using stderr [%v]", err)
		return audit, func() {}
	}
	audit.SetOutput(f)
	return audit, func() { _ = f.Close() }
}

func run(ctx context.Context, cfg *env.Config, args env.Args) int {
	var wg sync.WaitGroup
	bg, cancelBg := context.WithCancel(context.Background())
	defer func() {
		cancelBg()
		wg.Wait()
	}()
	goRun := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(bg)
		}()
	}

	series, days, closeStore, err := openStore(ctx, cfg.Database)
	if err != nil {
		logger.Errorf("Failed to open store [%v]", err)
		return 1
	}
	defer closeStore()

	metrics := station.NewMetrics(prometheus.DefaultRegisterer)

	writer := store.NewWriter(series, days, 256)
	writer.OnFailure(metrics.PersistFailed)
	goRun(writer.Run)

	clock := clockwork.NewRealClock()
	alarms := alarm.NewRegistry(clock, alarm.LogNotifier{})

	audit, closeAudit := auditLog(cfg.DataDir)
	defer closeAudit()

	st, err := station.New(station.Options{
		Station: cfg.Station,
		Limits:  cfg.Limits,
		DataDir: cfg.DataDir,
		Clock:   clock,
		Series:  series,
		Writer:  writer,
		Alarms:  alarms,
		Audit:   audit,
		Metrics: metrics,
	})
	if err != nil {
		logger.Errorf("Failed to create station [%v]", err)
		return 1
	}
	st.AddDayPublisher(writer)

	if cfg.MQTT.Enabled() {
		p, err := notify.NewMQTTPublisher(cfg.MQTT)
		if err != nil {
			logger.Errorf("MQTT disabled [%v]", err)
		} else {
			defer p.Close()
			alarms.AddNotifier(p)
			st.OnSnapshot(p.PublishSnapshot)
			goRun(p.Run)
		}
	}
	if cfg.Redis.Enabled() {
		c := notify.NewRedisCache(cfg.Redis)
		defer func() { _ = c.Close() }()
		alarms.AddNotifier(c)
		st.OnSnapshot(c.PublishSnapshot)
		goRun(c.Run)
	}
	if cfg.Kafka.Enabled() {
		k := notify.NewKafkaDayRecords(cfg.Kafka)
		defer func() { _ = k.Close() }()
		st.AddDayPublisher(k)
		goRun(k.Run)
	}
	goRun(alarms.Run)

	st.Start(ctx)

	jobs, err := startJobs(st, series)
	if err != nil {
		logger.Errorf("Failed to schedule jobs [%v]", err)
		return 1
	}
	defer jobs.Stop()

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: newMux(st, alarms), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Infof("Starting webservice on [%v]", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Webservice failed [%v]", err)
		}
	}()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	if *args.Test {
		go sim.New(clock, time.Now().UnixNano()).Run(ctx, st)
	}

	if err := st.Run(ctx); err != nil {
		logger.Errorf("Station stopped [%v]", err)
		if errors.Is(err, station.ErrClockAnomaly) {
			return 3
		}
		return 1
	}
	return 0
}

func openStore(ctx context.Context, cfg env.DatabaseConfig) (store.TimeSeries, store.DayRecordSink, func(), error) {
	if !cfg.Enabled() {
		logger.Warn("No database configured, readings are kept in memory")
		return store.NewMemoryStore(), nil, func() {}, nil
	}
	pg, err := store.Connect(ctx, cfg.ConnectionString())
	if err != nil {
		return nil, nil, nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		_ = pg.Close()
		return nil, nil, nil, err
	}
	return pg, pg, func() { _ = pg.Close() }, nil
}
