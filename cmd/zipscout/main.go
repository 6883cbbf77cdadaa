package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/sirrobot01/zipscout/internal/config"
	"github.com/sirrobot01/zipscout/internal/logger"
	"github.com/sirrobot01/zipscout/internal/utils"
	"github.com/sirrobot01/zipscout/pkg/fetch"
	"github.com/sirrobot01/zipscout/pkg/report"
	"github.com/sirrobot01/zipscout/pkg/version"
	"github.com/sirrobot01/zipscout/pkg/watch"
	"github.com/sirrobot01/zipscout/pkg/web"
	"github.com/sirrobot01/zipscout/pkg/zipmeta"
)

func main() {
	var (
		configDir   = flag.String("config", "/app", "path to the config directory")
		url         = flag.String("url", "", "remote ZIP archive URL to inspect")
		format      = flag.String("format", "", "report format: text or csv")
		output      = flag.String("output", "", "report output directory")
		shardSize   = flag.Int("shard-size", 0, "entries per report shard")
		workers     = flag.Int("workers", 0, "concurrent shard writers")
		step        = flag.String("step", "", "probe window growth per attempt, e.g. 1MB")
		maxAttempts = flag.Int("max-attempts", 0, "maximum central directory probe attempts")
		dumpCD      = flag.String("dump-cd", "", "save the located central directory window to this file")
		tree        = flag.Bool("tree", false, "print the archive folder tree")
		genReport   = flag.Bool("report", false, "generate a combined size report")
		serve       = flag.Bool("serve", false, "run the HTTP API server")
		watchMode   = flag.Bool("watch", false, "re-inspect on a schedule")
		interval    = flag.String("interval", "", "watch interval: duration, HH:MM or cron expression")
		logLevel    = flag.String("log-level", "", "log level")
	)
	flag.Parse()

	config.SetConfigPath(*configDir)
	cfg := config.Get()
	applyFlags(cfg, *url, *format, *output, *shardSize, *workers, *step, *maxAttempts, *interval, *logLevel)

	_log := logger.Default()
	fmt.Printf("zipscout %s | log level: %s\n", version.GetInfo(), cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch {
	case *serve:
		err = web.New().Start(ctx)
	case *watchMode:
		if cfg.Watch.URL == "" {
			err = fmt.Errorf("watch mode needs a url (flag -url or config watch.url)")
			break
		}
		err = watch.New(cfg.Watch.URL, cfg.Watch.Interval).Start(ctx)
	default:
		if *url == "" {
			flag.Usage()
			os.Exit(2)
		}
		err = runOnce(ctx, cfg, *url, *tree, *genReport, *dumpCD)
	}
	if err != nil {
		_log.Error().Err(err).Msg("zipscout failed")
		os.Exit(1)
	}
}

func applyFlags(cfg *config.Config, url, format, output string, shardSize, workers int, step string, maxAttempts int, interval, logLevel string) {
	if format != "" {
		cfg.Report.Format = format
	}
	if output != "" {
		cfg.Report.OutputDir = output
	}
	if shardSize > 0 {
		cfg.Report.ShardSize = shardSize
	}
	if workers > 0 {
		cfg.Report.Workers = workers
	}
	if step != "" {
		cfg.Locator.Step = step
	}
	if maxAttempts > 0 {
		cfg.Locator.MaxAttempts = maxAttempts
	}
	if interval != "" {
		cfg.Watch.Interval = interval
	}
	if url != "" {
		cfg.Watch.URL = url
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
}

func runOnce(ctx context.Context, cfg *config.Config, url string, tree, genReport bool, dumpCD string) error {
	fetchOpts := fetch.OptionsFromConfig(cfg.Fetch)
	fetchOpts.Progress = printProgress
	client := fetch.New(fetchOpts)
	ins := zipmeta.New(url, zipmeta.Options{
		Step:        cfg.GetStep(),
		MaxAttempts: cfg.Locator.MaxAttempts,
		Transport:   client,
	})
	if err := ins.Inspect(ctx); err != nil {
		return err
	}
	fmt.Println() // finish the progress line

	structure := ins.Structure()
	fmt.Printf("%s\n  size: %s, entries: %d, total uncompressed: %s\n",
		url,
		utils.HumanSize(ins.ContentLength()),
		structure.Len(),
		utils.HumanSize(structure.TotalSize()),
	)

	if tree {
		printTree(zipmeta.BuildTree(structure.Entries()), "")
	}

	if dumpCD != "" {
		window := ins.Window()
		br := fetch.ByteRange{
			Start: ins.ContentLength() - int64(len(window)),
			End:   ins.ContentLength() - 1,
		}
		if err := client.SaveRange(ctx, url, br, dumpCD); err != nil {
			return fmt.Errorf("failed to dump central directory: %w", err)
		}
		fmt.Printf("central directory window saved to %s\n", dumpCD)
	}

	if genReport {
		format, err := report.ParseFormat(cfg.Report.Format)
		if err != nil {
			return err
		}
		combined, err := report.Generate(ctx, structure.Entries(), report.Options{
			OutputDir: cfg.Report.OutputDir,
			Format:    format,
			ShardSize: cfg.Report.ShardSize,
			Workers:   cfg.Report.Workers,
		})
		if err != nil {
			return err
		}
		abs, _ := filepath.Abs(combined)
		fmt.Printf("combined report: %s\n", abs)
	}
	return nil
}

func printProgress(received, total int64) {
	if total > 0 {
		fmt.Printf("\rfetching %s / %s", utils.HumanSize(received), utils.HumanSize(total))
	} else {
		fmt.Printf("\rfetching %s", utils.HumanSize(received))
	}
}

func printTree(node *zipmeta.Node, indent string) {
	names := make([]string, 0, len(node.Children))
	for name := range node.Children {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		child := node.Children[name]
		if child.IsDir() {
			fmt.Printf("%s%s/\n", indent, name)
			printTree(child, indent+"  ")
		} else {
			fmt.Printf("%s%s (%s)\n", indent, name, utils.HumanSize(child.Size))
		}
	}
}
