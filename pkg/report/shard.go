package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/sirrobot01/zipscout/internal/logger"
	"github.com/sirrobot01/zipscout/pkg/zipmeta"
)

// Format selects the combined report encoding.
type Format string

const (
	FormatText Format = "text"
	FormatCSV  Format = "csv"
)

func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatText, FormatCSV:
		return Format(s), nil
	}
	return "", fmt.Errorf("unknown report format: %s", s)
}

// Ext is the shard file extension for the format.
func (f Format) Ext() string {
	return string(f)
}

// CombinedName is the final report filename for the format.
func (f Format) CombinedName() string {
	if f == FormatCSV {
		return "combined_report.csv"
	}
	return "combined_report.txt"
}

const (
	shardPrefix      = "report_"
	DefaultShardSize = 1000
)

type Options struct {
	OutputDir string
	Format    Format
	ShardSize int
	Workers   int
}

func (o *Options) setDefaults() {
	if o.ShardSize <= 0 {
		o.ShardSize = DefaultShardSize
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.Format == "" {
		o.Format = FormatText
	}
	if o.OutputDir == "" {
		o.OutputDir = "reports"
	}
}

// shardFileName encodes the half-open [start, end) entry index boundary in
// the filename so shards can be ordered later without reading their contents.
func shardFileName(start, end int, format Format) string {
	return fmt.Sprintf("%s%d-%d.%s", shardPrefix, start, end, format.Ext())
}

// WriteShards partitions the ordered entry list into consecutive shards and
// writes each shard file from its own worker. All shard writes complete
// before it returns; a failing shard is reported in the aggregate error but
// never stops its siblings.
func WriteShards(ctx context.Context, entries []zipmeta.Entry, opts Options) ([]string, error) {
	opts.setDefaults()
	log := logger.New("report")

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	var bounds [][2]int
	for start := 0; start < len(entries); start += opts.ShardSize {
		end := start + opts.ShardSize
		if end > len(entries) {
			end = len(entries)
		}
		bounds = append(bounds, [2]int{start, end})
	}

	paths := make([]string, len(bounds))
	errs := make([]error, len(bounds))

	var g errgroup.Group
	g.SetLimit(opts.Workers)
	for i, b := range bounds {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			path := filepath.Join(opts.OutputDir, shardFileName(b[0], b[1], opts.Format))
			if err := writeShard(path, entries[b[0]:b[1]]); err != nil {
				errs[i] = fmt.Errorf("shard %d-%d: %w", b[0], b[1], err)
				log.Error().Err(err).Msgf("Failed to write shard %d-%d", b[0], b[1])
				return nil
			}
			paths[i] = path
			return nil
		})
	}
	_ = g.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	log.Debug().Int("shards", len(paths)).Str("dir", opts.OutputDir).Msg("Shards written")
	return paths, nil
}

// writeShard writes one shard's rows. Shards carry the same "name: size
// bytes" row shape for both formats; only the combined report differs.
func writeShard(path string, entries []zipmeta.Entry) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if _, err := f.WriteString(e.Name + ": " + strconv.FormatInt(e.Size, 10) + " bytes\n"); err != nil {
			_ = f.Close()
			return err
		}
	}
	return f.Close()
}
