package report

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/stanNthe5/stringbuf"

	"github.com/sirrobot01/zipscout/internal/logger"
	"github.com/sirrobot01/zipscout/pkg/zipmeta"
)

type shardFile struct {
	start int
	end   int
	path  string
}

// discoverShards lists the shard files for a format, with boundaries parsed
// out of the filename. Files whose names do not parse as boundary pairs are
// ignored rather than guessed at.
func discoverShards(dir string, format Format) ([]shardFile, error) {
	items, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	suffix := "." + format.Ext()
	shards := make([]shardFile, 0, len(items))
	for _, item := range items {
		name := item.Name()
		if item.IsDir() || !strings.HasPrefix(name, shardPrefix) || !strings.HasSuffix(name, suffix) {
			continue
		}
		spec := strings.TrimSuffix(strings.TrimPrefix(name, shardPrefix), suffix)
		startStr, endStr, found := strings.Cut(spec, "-")
		if !found {
			continue
		}
		start, err := strconv.Atoi(startStr)
		if err != nil {
			continue
		}
		end, err := strconv.Atoi(endStr)
		if err != nil {
			continue
		}
		shards = append(shards, shardFile{start: start, end: end, path: filepath.Join(dir, name)})
	}
	sort.Slice(shards, func(i, j int) bool {
		if shards[i].start != shards[j].start {
			return shards[i].start < shards[j].start
		}
		return shards[i].end < shards[j].end
	})
	return shards, nil
}

// Merge consolidates every shard in outputDir into a single numbered report,
// ordered by the boundary indices encoded in the shard filenames. Rows that
// do not match the "name: size bytes" shape are skipped. With no shards on
// disk the combined report carries only the header row. Shard files are
// left in place; run Cleanup after a successful merge.
func Merge(outputDir string, format Format) (string, error) {
	shards, err := discoverShards(outputDir, format)
	if err != nil {
		return "", fmt.Errorf("failed to list shards: %w", err)
	}

	combinedPath := filepath.Join(outputDir, format.CombinedName())
	f, err := os.Create(combinedPath)
	if err != nil {
		return "", fmt.Errorf("failed to create combined report: %w", err)
	}
	defer f.Close()

	serial := 1
	switch format {
	case FormatCSV:
		w := csv.NewWriter(f)
		if err := w.Write([]string{"S.No", "File Name", "Size (bytes)"}); err != nil {
			return "", err
		}
		for _, shard := range shards {
			if err := eachRow(shard.path, func(name, size string) error {
				if err := w.Write([]string{strconv.Itoa(serial), name, size}); err != nil {
					return err
				}
				serial++
				return nil
			}); err != nil {
				return "", fmt.Errorf("merge failed on %s: %w", shard.path, err)
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return "", err
		}
	default:
		sb := stringbuf.New("S.No\tFile Name\tSize (bytes)\n")
		for _, shard := range shards {
			if err := eachRow(shard.path, func(name, size string) error {
				_, _ = sb.WriteString(strconv.Itoa(serial))
				_, _ = sb.WriteString("\t")
				_, _ = sb.WriteString(name)
				_, _ = sb.WriteString("\t")
				_, _ = sb.WriteString(size)
				_, _ = sb.WriteString("\n")
				serial++
				return nil
			}); err != nil {
				return "", fmt.Errorf("merge failed on %s: %w", shard.path, err)
			}
		}
		if _, err := f.Write(sb.Bytes()); err != nil {
			return "", err
		}
	}

	if err := f.Close(); err != nil {
		return "", err
	}
	return combinedPath, nil
}

// eachRow parses a shard's "name: size bytes" rows. The size token is cut at
// the last ": " so entry names containing the separator still round-trip.
func eachRow(path string, fn func(name, size string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		idx := strings.LastIndex(line, ": ")
		if idx < 0 {
			continue
		}
		name := line[:idx]
		size := strings.TrimSuffix(strings.TrimSpace(line[idx+2:]), " bytes")
		if name == "" {
			continue
		}
		if _, err := strconv.ParseInt(size, 10, 64); err != nil {
			continue
		}
		if err := fn(name, size); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// Cleanup deletes every shard file for the format, keeping the combined
// report. Failures are aggregated; callers treat them as non-fatal.
func Cleanup(outputDir string, format Format) error {
	shards, err := discoverShards(outputDir, format)
	if err != nil {
		return fmt.Errorf("failed to list shards: %w", err)
	}
	errs := make([]error, 0, len(shards))
	for _, shard := range shards {
		if err := os.Remove(shard.path); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// dirLocks serializes shard/merge cycles per output directory so one
// session's merge never absorbs another's shards, and one session's cleanup
// never deletes them.
var dirLocks sync.Map

func lockOutputDir(dir string) *sync.Mutex {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	mu, _ := dirLocks.LoadOrStore(dir, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Generate runs the full pipeline for one session: shard fan-out, barrier,
// ordered merge, then shard cleanup. The whole cycle holds the output
// directory's lock, so concurrent sessions sharing a directory run one
// after another.
func Generate(ctx context.Context, entries []zipmeta.Entry, opts Options) (string, error) {
	opts.setDefaults()
	log := logger.New("report")

	mu := lockOutputDir(opts.OutputDir)
	mu.Lock()
	defer mu.Unlock()

	if _, err := WriteShards(ctx, entries, opts); err != nil {
		return "", err
	}
	combined, err := Merge(opts.OutputDir, opts.Format)
	if err != nil {
		return "", err
	}
	if err := Cleanup(opts.OutputDir, opts.Format); err != nil {
		log.Warn().Err(err).Msg("Failed to clean up shard files")
	}
	log.Info().Str("path", combined).Int("entries", len(entries)).Msg("Combined report written")
	return combined, nil
}
