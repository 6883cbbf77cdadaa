package zipmeta

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sirrobot01/zipscout/internal/logger"
	"github.com/sirrobot01/zipscout/pkg/fetch"
)

// leadingSampleSize is how much of the object's head is fetched up front,
// enough to validate the signature and anchor the decode buffer.
const leadingSampleSize = int64(8192)

// Transport is the byte-range capability an inspection session consumes.
type Transport interface {
	RangeFetcher
	ContentLength(ctx context.Context, url string) (int64, error)
}

type Options struct {
	Step        int64
	MaxAttempts int
	Transport   Transport
}

// Inspector holds everything one inspection session owns: the remote
// location, its content length once probed, and the decoded structure.
// A session is a single sequential sweep; it is not resumable and Inspect
// must not be called concurrently.
type Inspector struct {
	id            string
	url           string
	transport     Transport
	locator       *Locator
	logger        zerolog.Logger
	contentLength int64
	structure     *Structure
	window        []byte
}

func New(url string, opts Options) *Inspector {
	transport := opts.Transport
	if transport == nil {
		transport = fetch.New(fetch.Options{})
	}
	return &Inspector{
		id:        uuid.NewString(),
		url:       url,
		transport: transport,
		locator:   NewLocator(transport, opts.Step, opts.MaxAttempts),
		logger:    logger.New("inspector"),
	}
}

func (i *Inspector) ID() string {
	return i.id
}

func (i *Inspector) URL() string {
	return i.url
}

// ContentLength is the remote object's total size; zero until Inspect ran.
func (i *Inspector) ContentLength() int64 {
	return i.contentLength
}

// Structure returns the decoded listing; nil until Inspect succeeded.
func (i *Inspector) Structure() *Structure {
	return i.structure
}

// Window returns the trailing bytes the locator settled on, so callers can
// dump the central directory region to disk.
func (i *Inspector) Window() []byte {
	return i.window
}

// Inspect discovers the archive's structure without downloading it:
// metadata probe, leading sample, signature check, then the backward probe
// sweep for the central directory.
func (i *Inspector) Inspect(ctx context.Context) error {
	i.logger.Info().Str("session", i.id).Str("url", i.url).Msg("Inspecting remote archive")

	size, err := i.transport.ContentLength(ctx, i.url)
	if err != nil {
		return fmt.Errorf("failed to get content length: %w", err)
	}
	if size <= 0 {
		return fmt.Errorf("%w: empty object", ErrInvalidFormat)
	}
	i.contentLength = size
	i.logger.Info().Int64("content_length", size).Msg("Remote object measured")

	leadEnd := leadingSampleSize - 1
	if leadEnd > size-1 {
		leadEnd = size - 1
	}
	leading, err := i.transport.FetchRange(ctx, i.url, fetch.ByteRange{Start: 0, End: leadEnd})
	if err != nil {
		return fmt.Errorf("failed to fetch leading bytes: %w", err)
	}

	window, entries, err := i.locator.Locate(ctx, i.url, size, leading)
	if err != nil {
		return err
	}

	i.window = window
	i.structure = newStructure(entries)
	i.logger.Info().
		Int("entries", i.structure.Len()).
		Int64("total_size", i.structure.TotalSize()).
		Msg("Archive structure decoded")
	return nil
}
