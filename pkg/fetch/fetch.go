package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/ratelimit"

	"github.com/sirrobot01/zipscout/internal/config"
	"github.com/sirrobot01/zipscout/internal/logger"
)

// Error definitions
var (
	ErrNetwork             = errors.New("network error")
	ErrTruncated           = errors.New("truncated response")
	ErrRangeNotSatisfiable = errors.New("requested range not satisfiable")
)

const readChunkSize = 32 * 1024

// ByteRange is an inclusive [Start, End] span in remote object byte space.
type ByteRange struct {
	Start int64
	End   int64
}

// Header renders the range as an HTTP Range header value.
func (r ByteRange) Header() string {
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End)
}

// Len returns the number of bytes the range spans.
func (r ByteRange) Len() int64 {
	return r.End - r.Start + 1
}

func (r ByteRange) Validate() error {
	if r.Start < 0 {
		return fmt.Errorf("invalid byte range %d-%d: negative start", r.Start, r.End)
	}
	if r.Start > r.End {
		return fmt.Errorf("invalid byte range %d-%d: start past end", r.Start, r.End)
	}
	return nil
}

// ProgressFunc observes download progress: bytes received so far against the
// declared total. Purely cosmetic; errors are never reported through it.
type ProgressFunc func(received, total int64)

type Options struct {
	MaxRetries int
	RetryDelay time.Duration
	RateLimit  int // requests per second, 0 means unlimited
	UserAgent  string
	Progress   ProgressFunc
	HTTPClient *http.Client
}

// Client issues HEAD and byte-range GET requests against remote objects.
type Client struct {
	http       *http.Client
	logger     zerolog.Logger
	limiter    ratelimit.Limiter
	maxRetries int
	retryDelay time.Duration
	userAgent  string
	progress   ProgressFunc
}

func New(opts Options) *Client {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "zipscout"
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
			},
		}
	}
	limiter := ratelimit.NewUnlimited()
	if opts.RateLimit > 0 {
		limiter = ratelimit.New(opts.RateLimit)
	}
	return &Client{
		http:       opts.HTTPClient,
		logger:     logger.New("fetch"),
		limiter:    limiter,
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		userAgent:  opts.UserAgent,
		progress:   opts.Progress,
	}
}

// OptionsFromConfig maps the fetch section of the configuration onto client
// options. Callers set Progress themselves when they want one.
func OptionsFromConfig(fc config.Fetch) Options {
	delay, _ := time.ParseDuration(fc.RetryDelay)
	return Options{
		MaxRetries: fc.MaxRetries,
		RetryDelay: delay,
		RateLimit:  fc.RateLimit,
		UserAgent:  fc.UserAgent,
	}
}

func (c *Client) doWithRetry(operation func() (interface{}, error)) (interface{}, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Jitter + exponential backoff delay
			delay := c.retryDelay * time.Duration(1<<uint(attempt-1))
			quarter := int64(delay / 4)
			if quarter < 1 {
				quarter = 1
			}
			jitter := time.Duration(rand.Int63n(quarter))
			time.Sleep(delay + jitter)
		}

		result, err := operation()
		if err == nil {
			return result, nil
		}

		lastErr = err
		// Only retry on network errors
		if !errors.Is(err, ErrNetwork) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("after %d retries: %w", c.maxRetries, lastErr)
}

// ContentLength asks the server for the total size of the remote object.
func (c *Client) ContentLength(ctx context.Context, url string) (int64, error) {
	result, err := c.doWithRetry(func() (interface{}, error) {
		c.limiter.Take()
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return int64(0), fmt.Errorf("%w: %v", ErrNetwork, err)
		}
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.http.Do(req)
		if err != nil {
			return int64(0), fmt.Errorf("%w: %v", ErrNetwork, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return int64(0), fmt.Errorf("%w: unexpected status code: %d", ErrNetwork, resp.StatusCode)
		}
		if resp.ContentLength < 0 {
			return int64(0), fmt.Errorf("%w: content length not provided", ErrNetwork)
		}
		return resp.ContentLength, nil
	})
	if err != nil {
		return 0, err
	}
	return result.(int64), nil
}

// FetchRange retrieves exactly the given inclusive byte range. Servers that
// ignore the Range header and reply 200 with the whole object are tolerated;
// the requested span is sliced out of the full payload.
func (c *Client) FetchRange(ctx context.Context, url string, br ByteRange) ([]byte, error) {
	if err := br.Validate(); err != nil {
		return nil, err
	}
	c.logger.Debug().Str("range", br.Header()).Str("url", url).Msg("Fetching byte range")

	result, err := c.doWithRetry(func() (interface{}, error) {
		c.limiter.Take()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Range", br.Header())

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusPartialContent:
			data, err := c.readAll(resp.Body, resp.ContentLength)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
			}
			if int64(len(data)) < br.Len() {
				return nil, fmt.Errorf("%w: got %d of %d bytes for %s", ErrTruncated, len(data), br.Len(), br.Header())
			}
			return data[:br.Len()], nil
		case http.StatusOK:
			// Some servers return the full content instead of partial
			data, err := c.readAll(resp.Body, resp.ContentLength)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
			}
			if int64(len(data)) <= br.Start {
				return nil, fmt.Errorf("%w: full payload of %d bytes ends before offset %d", ErrTruncated, len(data), br.Start)
			}
			end := br.End
			if int64(len(data))-1 < end {
				end = int64(len(data)) - 1
			}
			return data[br.Start : end+1], nil
		case http.StatusRequestedRangeNotSatisfiable:
			return nil, fmt.Errorf("%w: %s", ErrRangeNotSatisfiable, br.Header())
		default:
			return nil, fmt.Errorf("%w: unexpected status code: %d", ErrNetwork, resp.StatusCode)
		}
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// readAll drains r in small chunks so the progress observer sees
// intermediate byte counts on large windows.
func (c *Client) readAll(r io.Reader, total int64) ([]byte, error) {
	var buf bytes.Buffer
	if total > 0 {
		buf.Grow(int(total))
	}
	chunk := make([]byte, readChunkSize)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			if c.progress != nil {
				c.progress(int64(buf.Len()), total)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
