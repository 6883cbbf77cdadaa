package zipmeta

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/sirrobot01/zipscout/internal/config"
	"github.com/sirrobot01/zipscout/internal/testutil"
	"github.com/sirrobot01/zipscout/pkg/fetch"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "zipscout-zipmeta")
	if err != nil {
		panic(err)
	}
	config.SetConfigPath(dir)
	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

// fakeFetcher serves slices of an in-memory object and records every
// requested range. Optional per-call failures simulate flaky transport.
type fakeFetcher struct {
	data   []byte
	calls  []fetch.ByteRange
	failOn map[int]error // 1-based call index -> error
}

func (f *fakeFetcher) FetchRange(_ context.Context, _ string, br fetch.ByteRange) ([]byte, error) {
	f.calls = append(f.calls, br)
	if err, ok := f.failOn[len(f.calls)]; ok {
		return nil, err
	}
	end := br.End
	if end > int64(len(f.data))-1 {
		end = int64(len(f.data)) - 1
	}
	if br.Start > end {
		return nil, fmt.Errorf("%w: %s", fetch.ErrRangeNotSatisfiable, br.Header())
	}
	return f.data[br.Start : end+1], nil
}

func leadingBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	n := 8192
	if len(data) < n {
		n = len(data)
	}
	return data[:n]
}

func referenceEntryCount(t *testing.T, data []byte) int {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("reference decode failed: %v", err)
	}
	return len(zr.File)
}

func TestProbeWindows(t *testing.T) {
	windows := ProbeWindows(10_000_000, 1<<20, 20)
	if len(windows) != 20 {
		t.Fatalf("Expected 20 windows, got %d", len(windows))
	}
	var prev int64 = 10_000_000
	for i, w := range windows {
		if w.End != 10_000_000-1 {
			t.Errorf("Window %d end = %d, expected 9999999", i, w.End)
		}
		if w.Start < 0 {
			t.Errorf("Window %d start negative: %d", i, w.Start)
		}
		if w.Start > prev {
			t.Errorf("Window %d start %d increased past %d", i, w.Start, prev)
		}
		prev = w.Start
	}
}

func TestProbeWindowsSaturate(t *testing.T) {
	// content_length smaller than the step: first start saturates at 0
	windows := ProbeWindows(500_000, 1<<20, 20)
	if windows[0].Start != 0 {
		t.Errorf("Expected first start saturated at 0, got %d", windows[0].Start)
	}
	if windows[0].End != 499_999 {
		t.Errorf("Expected end 499999, got %d", windows[0].End)
	}
}

func TestCheckSignature(t *testing.T) {
	if err := CheckSignature([]byte("PK\x03\x04rest")); err != nil {
		t.Errorf("Expected valid signature, got %v", err)
	}
	if err := CheckSignature([]byte("XYZ not a zip")); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("Expected ErrInvalidFormat, got %v", err)
	}
	if err := CheckSignature([]byte("P")); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("Expected ErrInvalidFormat for short input, got %v", err)
	}
}

func TestLocateBadSignatureFetchesNothing(t *testing.T) {
	ff := &fakeFetcher{data: []byte("XYZ garbage")}
	loc := NewLocator(ff, 0, 0)
	_, _, err := loc.Locate(context.Background(), "u", int64(len(ff.data)), ff.data)
	if !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("Expected ErrInvalidFormat, got %v", err)
	}
	if len(ff.calls) != 0 {
		t.Errorf("Expected no probe fetches, got %d", len(ff.calls))
	}
}

func TestLocateSmallObjectSingleAttempt(t *testing.T) {
	data, err := testutil.BuildZipN(5)
	if err != nil {
		t.Fatal(err)
	}
	ff := &fakeFetcher{data: data}
	loc := NewLocator(ff, 1<<20, 20)

	window, entries, err := loc.Locate(context.Background(), "u", int64(len(data)), leadingBytes(t, data))
	if err != nil {
		t.Fatalf("Locate failed: %v", err)
	}
	if len(ff.calls) != 1 {
		t.Errorf("Expected exactly 1 fetch, got %d", len(ff.calls))
	}
	if ff.calls[0].Start != 0 {
		t.Errorf("Expected start saturated at 0, got %d", ff.calls[0].Start)
	}
	if len(window) != len(data) {
		t.Errorf("Expected whole object fetched (%d bytes), got %d", len(data), len(window))
	}
	if len(entries) != referenceEntryCount(t, data) {
		t.Errorf("Expected %d entries, got %d", referenceEntryCount(t, data), len(entries))
	}
}

func TestLocateWidensUntilDirectoryFits(t *testing.T) {
	// Enough entries that the central directory is far larger than the step,
	// forcing several attempts before the window covers it.
	data, err := testutil.BuildZipN(300)
	if err != nil {
		t.Fatal(err)
	}
	ff := &fakeFetcher{data: data}
	loc := NewLocator(ff, 2048, 64)

	_, entries, err := loc.Locate(context.Background(), "u", int64(len(data)), leadingBytes(t, data))
	if err != nil {
		t.Fatalf("Locate failed: %v", err)
	}
	if len(ff.calls) < 2 {
		t.Errorf("Expected multiple attempts, got %d", len(ff.calls))
	}
	// success on attempt k means exactly k fetches, no more
	var prev = int64(len(data))
	for i, c := range ff.calls {
		if c.Start > prev {
			t.Errorf("Probe %d start %d did not decrease from %d", i, c.Start, prev)
		}
		prev = c.Start
	}
	if len(entries) != referenceEntryCount(t, data) {
		t.Errorf("Expected %d entries, got %d", referenceEntryCount(t, data), len(entries))
	}
}

func TestLocateRecoversFromFetchFailure(t *testing.T) {
	data, err := testutil.BuildZipN(5)
	if err != nil {
		t.Fatal(err)
	}
	ff := &fakeFetcher{
		data:   data,
		failOn: map[int]error{1: fmt.Errorf("%w: connection reset", fetch.ErrNetwork)},
	}
	loc := NewLocator(ff, 1<<20, 3)

	_, entries, err := loc.Locate(context.Background(), "u", int64(len(data)), leadingBytes(t, data))
	if err != nil {
		t.Fatalf("Expected recovery on a later attempt, got %v", err)
	}
	if len(ff.calls) != 2 {
		t.Errorf("Expected 2 fetches, got %d", len(ff.calls))
	}
	if len(entries) != 5 {
		t.Errorf("Expected 5 entries, got %d", len(entries))
	}
}

func TestLocateExhaustsAttempts(t *testing.T) {
	// Starts with the signature but is not an archive, so every decode fails.
	data := append([]byte("PK"), bytes.Repeat([]byte{0xAB}, 4096)...)
	ff := &fakeFetcher{data: data}
	loc := NewLocator(ff, 512, 7)

	_, _, err := loc.Locate(context.Background(), "u", int64(len(data)), leadingBytes(t, data))
	if !errors.Is(err, ErrCentralDirectoryNotFound) {
		t.Fatalf("Expected ErrCentralDirectoryNotFound, got %v", err)
	}
	if len(ff.calls) != 7 {
		t.Errorf("Expected all 7 attempts, got %d", len(ff.calls))
	}
}

func TestDecodeClassification(t *testing.T) {
	data, err := testutil.BuildZipN(3)
	if err != nil {
		t.Fatal(err)
	}

	if _, derr := decodeStructure(data); derr != nil {
		t.Errorf("Expected clean decode, got %v", derr)
	}

	// Chop off the tail so the central directory is incomplete
	_, derr := decodeStructure(data[:len(data)-10])
	if derr == nil || derr.Kind != KindTruncated {
		t.Errorf("Expected truncated classification, got %v", derr)
	}

	_, derr = decodeStructure([]byte("XYZ definitely not an archive"))
	if derr == nil || derr.Kind != KindBadMagic {
		t.Errorf("Expected bad magic classification, got %v", derr)
	}
}
