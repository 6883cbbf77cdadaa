package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/sirrobot01/zipscout/internal/config"
	"github.com/sirrobot01/zipscout/pkg/zipmeta"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "zipscout-report")
	if err != nil {
		panic(err)
	}
	config.SetConfigPath(dir)
	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

func makeEntries(n int) []zipmeta.Entry {
	entries := make([]zipmeta.Entry, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, zipmeta.Entry{
			Name: fmt.Sprintf("dir_%d/file_%05d.dat", i%7, i),
			Size: int64(i * 3),
		})
	}
	return entries
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestWriteShardsPartition(t *testing.T) {
	dir := t.TempDir()
	entries := makeEntries(2500)

	paths, err := WriteShards(context.Background(), entries, Options{
		OutputDir: dir, Format: FormatText, ShardSize: 1000, Workers: 4,
	})
	if err != nil {
		t.Fatalf("WriteShards failed: %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("Expected 3 shards for 2500 entries, got %d", len(paths))
	}

	want := []string{"report_0-1000.text", "report_1000-2000.text", "report_2000-2500.text"}
	for i, p := range paths {
		if filepath.Base(p) != want[i] {
			t.Errorf("Shard %d named %s, expected %s", i, filepath.Base(p), want[i])
		}
	}

	// shards cover the entry list exactly once
	total := 0
	for _, p := range paths {
		total += len(readLines(t, p))
	}
	if total != 2500 {
		t.Errorf("Expected 2500 rows across shards, got %d", total)
	}
}

func TestGenerateTextRoundTrip(t *testing.T) {
	dir := t.TempDir()
	entries := makeEntries(2500)

	combined, err := Generate(context.Background(), entries, Options{
		OutputDir: dir, Format: FormatText, ShardSize: 1000, Workers: 4,
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	lines := readLines(t, combined)
	if lines[0] != "S.No\tFile Name\tSize (bytes)" {
		t.Errorf("Unexpected header: %q", lines[0])
	}
	rows := lines[1:]
	if len(rows) != 2500 {
		t.Fatalf("Expected 2500 rows, got %d", len(rows))
	}
	for i, row := range rows {
		fields := strings.Split(row, "\t")
		if len(fields) != 3 {
			t.Fatalf("Row %d malformed: %q", i, row)
		}
		if fields[0] != strconv.Itoa(i+1) {
			t.Errorf("Row %d serial %s, expected %d", i, fields[0], i+1)
		}
		if fields[1] != entries[i].Name {
			t.Errorf("Row %d name %s, expected %s (original order lost)", i, fields[1], entries[i].Name)
		}
	}

	// cleanup ran: no shards remain, the combined report does
	items, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, item := range items {
		if strings.HasPrefix(item.Name(), shardPrefix) {
			t.Errorf("Shard %s survived cleanup", item.Name())
		}
	}
	if _, err := os.Stat(combined); err != nil {
		t.Errorf("Combined report missing after cleanup: %v", err)
	}
}

func TestGenerateCSV(t *testing.T) {
	dir := t.TempDir()
	entries := makeEntries(42)

	combined, err := Generate(context.Background(), entries, Options{
		OutputDir: dir, Format: FormatCSV, ShardSize: 10, Workers: 2,
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if filepath.Base(combined) != "combined_report.csv" {
		t.Errorf("Unexpected combined name: %s", combined)
	}

	f, err := os.Open(combined)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("csv parse failed: %v", err)
	}
	if len(records) != 43 {
		t.Fatalf("Expected header + 42 rows, got %d", len(records))
	}
	if strings.Join(records[0], ",") != "S.No,File Name,Size (bytes)" {
		t.Errorf("Unexpected header: %v", records[0])
	}
	if records[1][1] != entries[0].Name {
		t.Errorf("First row name %s, expected %s", records[1][1], entries[0].Name)
	}
}

func TestMergeOrdersByBoundaryNotLexicographically(t *testing.T) {
	// report_2000-3000 must sort after report_100-1000 even though it sorts
	// before it lexicographically; creation order must not matter either.
	dir := t.TempDir()
	writeTestShard(t, dir, 2000, 2500, "late")
	writeTestShard(t, dir, 0, 1000, "early")
	writeTestShard(t, dir, 1000, 2000, "middle")

	combined, err := Merge(dir, FormatText)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	lines := readLines(t, combined)
	rows := lines[1:]
	if len(rows) != 3 {
		t.Fatalf("Expected 3 rows, got %d", len(rows))
	}
	wantOrder := []string{"early", "middle", "late"}
	for i, row := range rows {
		fields := strings.Split(row, "\t")
		if fields[1] != wantOrder[i] {
			t.Errorf("Row %d is %s, expected %s", i, fields[1], wantOrder[i])
		}
		if fields[0] != strconv.Itoa(i+1) {
			t.Errorf("Row %d serial %s, expected %d", i, fields[0], i+1)
		}
	}
}

func TestMergeSkipsMalformedRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, shardFileName(0, 3, FormatText))
	content := "good.txt: 100 bytes\nthis line is junk\nalso.txt: 5 bytes\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	combined, err := Merge(dir, FormatText)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	rows := readLines(t, combined)[1:]
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows after skipping junk, got %d", len(rows))
	}
}

func TestMergeIgnoresUnparsableShardNames(t *testing.T) {
	dir := t.TempDir()
	writeTestShard(t, dir, 0, 1, "kept")
	if err := os.WriteFile(filepath.Join(dir, "report_bogus.text"), []byte("x: 1 bytes\n"), 0644); err != nil {
		t.Fatal(err)
	}

	combined, err := Merge(dir, FormatText)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	rows := readLines(t, combined)[1:]
	if len(rows) != 1 || !strings.Contains(rows[0], "kept") {
		t.Errorf("Expected only the parsable shard's row, got %v", rows)
	}
}

func TestMergeNoShardsHeaderOnly(t *testing.T) {
	combined, err := Merge(t.TempDir(), FormatText)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	lines := readLines(t, combined)
	if len(lines) != 1 || lines[0] != "S.No\tFile Name\tSize (bytes)" {
		t.Errorf("Expected a header-only report, got %v", lines)
	}
}

func TestGenerateEmptyArchive(t *testing.T) {
	// an archive with no entries still yields a report, with zero rows
	combined, err := Generate(context.Background(), nil, Options{
		OutputDir: t.TempDir(), Format: FormatText,
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	lines := readLines(t, combined)
	if len(lines) != 1 {
		t.Errorf("Expected header only for an empty archive, got %d lines", len(lines))
	}
}

func TestGenerateSerializesSharedDirectory(t *testing.T) {
	// two sessions writing into the same directory must not interleave: a
	// merge that absorbs the other session's shards would report the sum of
	// both entry counts, and its cleanup would strand the sibling.
	dir := t.TempDir()
	counts := []int{3, 120}

	var wg sync.WaitGroup
	paths := make([]string, len(counts))
	errs := make([]error, len(counts))
	for i, n := range counts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			paths[i], errs[i] = Generate(context.Background(), makeEntries(n), Options{
				OutputDir: dir, Format: FormatText, ShardSize: 50, Workers: 2,
			})
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Generate %d failed: %v", i, err)
		}
	}
	rows := len(readLines(t, paths[0])) - 1
	if rows != counts[0] && rows != counts[1] {
		t.Errorf("Combined report has %d rows, expected %d or %d", rows, counts[0], counts[1])
	}

	items, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, item := range items {
		if strings.HasPrefix(item.Name(), shardPrefix) {
			t.Errorf("Shard %s survived both cleanups", item.Name())
		}
	}
}

func TestShardNamesWithSeparator(t *testing.T) {
	// entry names containing ": " must survive the shard round trip
	dir := t.TempDir()
	entries := []zipmeta.Entry{{Name: "weird: name.txt", Size: 77}}
	combined, err := Generate(context.Background(), entries, Options{
		OutputDir: dir, Format: FormatText, ShardSize: 10, Workers: 1,
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	rows := readLines(t, combined)[1:]
	fields := strings.Split(rows[0], "\t")
	if fields[1] != "weird: name.txt" {
		t.Errorf("Name mangled: %q", fields[1])
	}
	if fields[2] != "77" {
		t.Errorf("Size mangled: %q", fields[2])
	}
}

func writeTestShard(t *testing.T, dir string, start, end int, name string) {
	t.Helper()
	path := filepath.Join(dir, shardFileName(start, end, FormatText))
	row := fmt.Sprintf("%s: %d bytes\n", name, start+1)
	if err := os.WriteFile(path, []byte(row), 0644); err != nil {
		t.Fatal(err)
	}
}
