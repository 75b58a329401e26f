package channels

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const downloadTimeout = 30 * time.Second

var httpClient = &http.Client{Timeout: downloadTimeout}

// download fetches url, reading at most limit bytes. file:// URLs are read
// from disk, which is how the console transport attaches files.
func download(ctx context.Context, url string, limit int64) ([]byte, error) {
	var body io.ReadCloser
	if path, ok := strings.CutPrefix(url, "file://"); ok {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("%w: open attachment: %w", ErrTransport, err)
		}
		body = f
	} else {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: build request: %w", ErrTransport, err)
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: download attachment: %w", ErrTransport, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: download attachment: status %d", ErrTransport, resp.StatusCode)
		}
		body = resp.Body
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read attachment: %w", ErrTransport, err)
	}
	if int64(len(data)) > limit {
		return nil, ErrTooLarge
	}
	return data, nil
}
