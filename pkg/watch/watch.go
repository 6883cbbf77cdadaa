package watch

import (
	"context"
	"fmt"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"

	"github.com/sirrobot01/zipscout/internal/config"
	"github.com/sirrobot01/zipscout/internal/logger"
	"github.com/sirrobot01/zipscout/internal/utils"
	"github.com/sirrobot01/zipscout/pkg/fetch"
	"github.com/sirrobot01/zipscout/pkg/report"
	"github.com/sirrobot01/zipscout/pkg/zipmeta"
)

// Watcher re-inspects a remote archive on a schedule and regenerates the
// combined report, logging entry-count deltas between runs.
type Watcher struct {
	url       string
	interval  string
	logger    zerolog.Logger
	lastCount int
}

func New(url, interval string) *Watcher {
	return &Watcher{
		url:      url,
		interval: interval,
		logger:   logger.New("watch"),
	}
}

func (w *Watcher) Start(ctx context.Context) error {
	jd, err := utils.ConvertToJobDef(w.interval)
	if err != nil {
		return err
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	// singleton mode keeps a slow inspection from overlapping the next tick
	_, err = scheduler.NewJob(jd, gocron.NewTask(func() {
		if err := w.run(ctx); err != nil {
			w.logger.Error().Err(err).Msg("Scheduled inspection failed")
		}
	}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule job: %w", err)
	}

	w.logger.Info().Str("url", w.url).Str("interval", w.interval).Msg("Watching remote archive")
	scheduler.Start()

	<-ctx.Done()
	return scheduler.Shutdown()
}

func (w *Watcher) run(ctx context.Context) error {
	cfg := config.Get()

	ins := zipmeta.New(w.url, zipmeta.Options{
		Step:        cfg.GetStep(),
		MaxAttempts: cfg.Locator.MaxAttempts,
		Transport:   fetch.New(fetch.OptionsFromConfig(cfg.Fetch)),
	})
	if err := ins.Inspect(ctx); err != nil {
		return err
	}

	count := ins.Structure().Len()
	if w.lastCount != 0 && count != w.lastCount {
		w.logger.Info().
			Int("previous", w.lastCount).
			Int("current", count).
			Msg("Entry count changed since last run")
	}
	w.lastCount = count

	format, err := report.ParseFormat(cfg.Report.Format)
	if err != nil {
		return err
	}
	_, err = report.Generate(ctx, ins.Structure().Entries(), report.Options{
		OutputDir: cfg.Report.OutputDir,
		Format:    format,
		ShardSize: cfg.Report.ShardSize,
		Workers:   cfg.Report.Workers,
	})
	return err
}
