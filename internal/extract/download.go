// Package extract turns remote bulletin documents (PDF or HTML) into plain text.
// Every failure degrades to an empty string; callers never see an error.
package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultMaxBytes caps how much of a document body is read.
const DefaultMaxBytes = 32 << 20

// Doer is satisfied by *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type downloader struct {
	client    Doer
	userAgent string
	maxBytes  int64
}

func (d downloader) get(ctx context.Context, documentURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, documentURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", documentURL, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("get %s: unexpected status %d", documentURL, resp.StatusCode)
	}
	limit := d.maxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", documentURL, err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("read %s: body exceeds %d bytes", documentURL, limit)
	}
	return body, nil
}

// cleanText drops invalid UTF-8 and NUL bytes. Fonts with encodings the PDF
// reader does not know pass raw character codes through, and Postgres TEXT
// rejects 0x00.
func cleanText(s string) string {
	return strings.ReplaceAll(strings.ToValidUTF8(s, ""), "\x00", "")
}
