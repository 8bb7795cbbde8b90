package main

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/nvr-ai/beachwatch/capture"
	"github.com/nvr-ai/beachwatch/config"
	"github.com/nvr-ai/beachwatch/congestion"
	"github.com/nvr-ai/beachwatch/controller"
	"github.com/nvr-ai/beachwatch/detector"
	"github.com/nvr-ai/beachwatch/fall"
	"github.com/nvr-ai/beachwatch/inference"
	"github.com/nvr-ai/beachwatch/report"
	"github.com/nvr-ai/beachwatch/session"
	"github.com/nvr-ai/beachwatch/store"
	"github.com/nvr-ai/beachwatch/tracker"
	"go.uber.org/zap"
)

var openSource = capture.OpenSource

func controllerOptions(cfg *config.Config) controller.Options {
	sess := session.DefaultOptions()
	sess.FrameBudget = cfg.Sampling.FrameBudget
	sess.FixedStride = cfg.Sampling.FrameStride
	sess.Detect = detector.Options{
		Classes:             []int{detector.PersonClass},
		ConfidenceThreshold: float32(cfg.Detector.Confidence),
		IoUThreshold:        float32(cfg.Detector.IoU),
		InputSize:           cfg.Detector.InputSize,
	}
	sess.Fall = fall.Config{
		RatioThreshold: cfg.Fall.RatioThreshold,
		MaxHeightRatio: cfg.Fall.MaxHeightRatio,
	}
	sess.Cooldown = cfg.Fall.Cooldown
	sess.StreamClock = cfg.Fall.StreamClock
	sess.Congestion = congestion.Thresholds{
		LowMax:  cfg.Congestion.LowMax,
		HighMin: cfg.Congestion.HighMin,
	}

	return controller.Options{
		Sources:       cfg.Sources,
		Interval:      cfg.Schedule.Interval,
		Spacing:       cfg.Schedule.Spacing,
		RetainState:   cfg.Schedule.RetainState,
		Parallel:      cfg.Schedule.Parallel,
		CountMode:     cfg.Report.CountMode,
		ReportTimeout: cfg.Report.Timeout,
		Session:       sess,
	}
}

func detectorFactory(cfg *config.Config, logs *zap.Logger) detector.Factory {
	if cfg.Detector.Backend == config.BackendOpenCV {
		return func() (detector.Detector, error) {
			det, err := inference.NewDNNDetector(cfg.Detector.ModelPath, cfg.Detector.InputSize)
			if err != nil {
				return nil, err
			}
			logs.Info("opencv detector loaded", zap.String("model", cfg.Detector.ModelPath))
			return det, nil
		}
	}

	return func() (detector.Detector, error) {
		yc := inference.DefaultYOLOConfig()
		yc.ModelPath = cfg.Detector.ModelPath
		yc.LibPath = cfg.Detector.LibPath
		yc.InputSize = cfg.Detector.InputSize
		yc.Provider.Backend = cfg.Detector.Provider

		det, err := inference.NewYOLODetector(yc)
		if err != nil {
			return nil, err
		}
		if err := det.WarmUp(context.Background(), 1); err != nil {
			logs.Warn("detector warmup failed", zap.Error(err))
		}
		logs.Info("onnxruntime detector loaded",
			zap.String("model", yc.ModelPath),
			zap.String("provider", string(yc.Provider.Backend)),
			zap.Int("input_size", yc.InputSize),
		)
		return det, nil
	}
}

func trackerFactory(cfg *config.Config) tracker.Factory {
	return tracker.NewFactory(tracker.Config{
		MaxAge:         cfg.Tracker.MaxAge,
		NInit:          cfg.Tracker.NInit,
		MaxIoUDistance: float32(cfg.Tracker.MaxIoUDistance),
	})
}

// buildSinks assembles the collector sink and its Redis and history mirrors.
// Both mirrors are optional.
func buildSinks(ctx context.Context, cfg *config.Config, logs *zap.Logger) (*report.Fanout, func(), error) {
	var (
		mirrors []report.Mirror
		closers []func()
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := client.Ping(pingCtx).Err(); err != nil {
			logs.Warn("redis unavailable at startup, stream reports will be retried each cycle",
				zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		cancel()
		mirrors = append(mirrors, report.Mirror{
			Name: "redis",
			Sink: report.NewRedisSink(client, cfg.Redis.Stream, cfg.History.Keep),
		})
		closers = append(closers, func() { client.Close() })
	}

	if cfg.History.DB != "" {
		s, err := store.Open(ctx, cfg.History.DB, cfg.History.Keep, logs)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		mirrors = append(mirrors, report.Mirror{Name: "history", Sink: store.NewSink(s)})
		closers = append(closers, func() { s.Close() })
	}

	collector := report.NewHTTPSink(cfg.Report.BackendURL, cfg.Report.Timeout)
	return report.NewFanout(collector, logs, mirrors...), closeAll, nil
}
