package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nvr-ai/beachwatch/config"
	"github.com/nvr-ai/beachwatch/controller"
	"github.com/nvr-ai/beachwatch/logger"
	"github.com/nvr-ai/beachwatch/metrics"
	"github.com/nvr-ai/beachwatch/simulate"
	"github.com/nvr-ai/beachwatch/store"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func main() {
	var (
		once          = flag.Bool("once", false, "Run a single analysis cycle and exit")
		simulated     = flag.Bool("simulate", false, "Report generated counts instead of analysing video (overrides SIMULATE)")
		parallel      = flag.Bool("parallel", false, "Analyse sources concurrently (overrides PARALLEL_SOURCES)")
		sources       = flag.String("sources", "", "Comma separated beaches to analyse, e.g. hamduck,iho (overrides SOURCES)")
		logLevel      = flag.String("log-level", "", "Log level (overrides LOG_LEVEL)")
		exportHistory = flag.String("export-history", "", "Write the detection history to this .xlsx file and exit")
		latest        = flag.String("latest", "", "Print the latest stored detection for a beach and exit")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *simulated {
		cfg.Schedule.Simulate = true
	}
	if *parallel {
		cfg.Schedule.Parallel = true
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *sources != "" {
		cfg.Sources, err = config.SelectSources(cfg.VideoDir, *sources, os.Getenv)
		if err != nil {
			log.Fatalf("Invalid -sources: %v", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logs, err := logger.New(cfg.Log.Level, cfg.Log.Format, config.ServiceName)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logs.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *exportHistory != "":
		err = runExport(ctx, cfg, *exportHistory, logs)
	case *latest != "":
		err = runLatest(ctx, cfg, *latest, logs)
	default:
		err = runAnalysis(ctx, cfg, *once, logs)
	}
	if err != nil {
		logs.Fatal("beachwatch failed", zap.Error(err))
	}
}

func runAnalysis(ctx context.Context, cfg *config.Config, once bool, logs *zap.Logger) error {
	logs.Info("beachwatch starting",
		zap.String("backend_url", cfg.Report.BackendURL),
		zap.Duration("interval", cfg.Schedule.Interval),
		zap.String("count_mode", cfg.Report.CountMode),
		zap.Bool("simulate", cfg.Schedule.Simulate),
		zap.String("video_dir", cfg.VideoDir),
	)

	sink, closeSinks, err := buildSinks(ctx, cfg, logs)
	if err != nil {
		return err
	}
	defer closeSinks()

	m := metrics.New()
	sink.OnMirrorError = m.ObserveMirrorError
	if cfg.MetricsAddr != "" {
		go func() {
			if err := m.Serve(ctx, cfg.MetricsAddr, logs); err != nil {
				logs.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	opts := controllerOptions(cfg)
	var c *controller.Controller
	if cfg.Schedule.Simulate {
		c = controller.NewSimulated(opts, simulate.New(time.Now().UnixNano()), sink, logs)
	} else {
		c = controller.New(opts, openSource, detectorFactory(cfg, logs), trackerFactory(cfg), sink, logs)
	}
	c.WithRecorder(m)
	defer func() {
		if err := c.Close(); err != nil {
			logs.Warn("error releasing detector", zap.Error(err))
		}
	}()

	if once {
		if err := c.RunCycle(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	}
	return c.Run(ctx)
}

func runExport(ctx context.Context, cfg *config.Config, path string, logs *zap.Logger) error {
	s, err := openHistory(ctx, cfg, logs)
	if err != nil {
		return err
	}
	defer s.Close()

	detections, err := s.Latest(ctx, cfg.History.Keep)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := store.ExportXLSX(f, detections); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	logs.Info("detection history exported", zap.String("path", path), zap.Int("rows", len(detections)))
	return nil
}

func runLatest(ctx context.Context, cfg *config.Config, beach string, logs *zap.Logger) error {
	s, err := openHistory(ctx, cfg, logs)
	if err != nil {
		return err
	}
	defer s.Close()

	d, err := s.LatestBySource(ctx, config.ResolveSlug(beach))
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func openHistory(ctx context.Context, cfg *config.Config, logs *zap.Logger) (*store.Store, error) {
	if cfg.History.DB == "" {
		return nil, errors.New("HISTORY_DB is not set")
	}
	return store.Open(ctx, cfg.History.DB, cfg.History.Keep, logs)
}
