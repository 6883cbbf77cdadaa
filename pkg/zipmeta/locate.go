package zipmeta

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sirrobot01/zipscout/internal/logger"
	"github.com/sirrobot01/zipscout/pkg/fetch"
)

// Error definitions
var (
	ErrInvalidFormat            = errors.New("not a valid ZIP object")
	ErrCentralDirectoryNotFound = errors.New("central directory not found")
	ErrEntryNotFound            = errors.New("entry not found")
)

const (
	// DefaultStep is how much further back each probe window reaches.
	DefaultStep = int64(1 << 20)
	// DefaultMaxAttempts bounds the probe loop.
	DefaultMaxAttempts = 20
)

// RangeFetcher is the transport capability the locator drives, one byte
// range per call.
type RangeFetcher interface {
	FetchRange(ctx context.Context, url string, br fetch.ByteRange) ([]byte, error)
}

// Locator finds the trailing window of a remote object that holds a
// decodable central directory, probing backwards in fixed steps. A locator
// performs one sequential sweep per call; concurrent Locate calls on the
// same instance are not supported.
type Locator struct {
	fetcher     RangeFetcher
	step        int64
	maxAttempts int
	logger      zerolog.Logger
}

func NewLocator(fetcher RangeFetcher, step int64, maxAttempts int) *Locator {
	if step <= 0 {
		step = DefaultStep
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Locator{
		fetcher:     fetcher,
		step:        step,
		maxAttempts: maxAttempts,
		logger:      logger.New("locator"),
	}
}

// ProbeWindows returns the byte ranges a locator would fetch, in attempt
// order. Starts decrease by step per attempt and saturate at 0; the end is
// pinned to the object's last byte.
func ProbeWindows(contentLength, step int64, maxAttempts int) []fetch.ByteRange {
	windows := make([]fetch.ByteRange, 0, maxAttempts)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		start := contentLength - step*int64(attempt)
		if start < 0 {
			start = 0
		}
		windows = append(windows, fetch.ByteRange{Start: start, End: contentLength - 1})
	}
	return windows
}

// Locate fetches progressively larger trailing windows until the window,
// appended after the object's leading bytes, decodes as a complete archive
// structure. It returns the winning window and the decoded entry listing.
// Every attempt that fails for a reason other than a too-small window is
// recorded, and the loop still runs through its remaining attempts.
func (l *Locator) Locate(ctx context.Context, url string, contentLength int64, leading []byte) ([]byte, []Entry, error) {
	if err := CheckSignature(leading); err != nil {
		return nil, nil, err
	}

	var lastErr error
	windows := ProbeWindows(contentLength, l.step, l.maxAttempts)
	for i, window := range windows {
		attempt := i + 1
		l.logger.Debug().
			Int("attempt", attempt).
			Int64("start", window.Start).
			Int64("end", window.End).
			Msg("Probing for central directory")

		data, err := l.fetcher.FetchRange(ctx, url, window)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, err
			}
			lastErr = err
			l.logger.Warn().Err(err).Int("attempt", attempt).Msg("Probe fetch failed")
			continue
		}

		buf := make([]byte, 0, len(leading)+len(data))
		buf = append(buf, leading...)
		buf = append(buf, data...)

		entries, derr := decodeStructure(buf)
		if derr == nil {
			l.logger.Debug().
				Int("attempt", attempt).
				Int("entries", len(entries)).
				Msg("Central directory located")
			return data, entries, nil
		}
		if derr.retryable() {
			// Window not wide enough yet
			l.logger.Debug().Int("attempt", attempt).Msgf("Probe too small: %s", derr.Kind)
			continue
		}
		lastErr = derr
		l.logger.Warn().Err(derr).Int("attempt", attempt).Msg("Unexpected decode failure")
	}

	if lastErr != nil {
		return nil, nil, fmt.Errorf("%w after %d attempts: %v", ErrCentralDirectoryNotFound, l.maxAttempts, lastErr)
	}
	return nil, nil, fmt.Errorf("%w after %d attempts", ErrCentralDirectoryNotFound, l.maxAttempts)
}

// CheckSignature validates that the object's leading bytes carry the ZIP
// magic. Runs before any probing so a non-archive fails fast.
func CheckSignature(leading []byte) error {
	if len(leading) < len(signature) || string(leading[:len(signature)]) != string(signature) {
		return ErrInvalidFormat
	}
	return nil
}
