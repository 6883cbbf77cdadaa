package fetch

import (
	"context"
	"time"

	"github.com/cavaliergopher/grab/v3"
)

// SaveRange downloads the given byte range of the remote object to dest,
// reporting progress every two seconds while the transfer runs.
func (c *Client) SaveRange(ctx context.Context, url string, br ByteRange, dest string) error {
	if err := br.Validate(); err != nil {
		return err
	}

	req, err := grab.NewRequest(dest, url)
	if err != nil {
		return err
	}
	req = req.WithContext(ctx)
	req.HTTPRequest.Header.Set("Range", br.Header())
	req.HTTPRequest.Header.Set("User-Agent", c.userAgent)

	client := &grab.Client{
		UserAgent:  c.userAgent,
		HTTPClient: c.http,
	}

	c.limiter.Take()
	resp := client.Do(req)

	t := time.NewTicker(time.Second * 2)
	defer t.Stop()

Loop:
	for {
		select {
		case <-t.C:
			if c.progress != nil {
				c.progress(resp.BytesComplete(), resp.Size())
			}
		case <-resp.Done:
			break Loop
		}
	}

	if c.progress != nil {
		c.progress(resp.BytesComplete(), resp.Size())
	}

	return resp.Err()
}
