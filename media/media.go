// Package media inspects attachment URLs before they are sent with a card.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrUnsupportedScheme = errors.New("media: only http and https urls are allowed")
	ErrFetch             = errors.New("media: fetch failed")
)

// sniffLimit is how much of the body is read; mimetype needs no more.
const sniffLimit = 3072

// Info describes a probed attachment.
type Info struct {
	URL       string `json:"url"`
	MIME      string `json:"mime"`
	Extension string `json:"extension"`
	IsImage   bool   `json:"is_image"`
}

type Prober struct {
	Client *http.Client
}

func NewProber() *Prober {
	return &Prober{Client: &http.Client{Timeout: 10 * time.Second}}
}

// Probe fetches the start of the resource at raw and detects its type.
func (p *Prober) Probe(ctx context.Context, raw string) (Info, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Info{}, fmt.Errorf("media: parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Info{}, ErrUnsupportedScheme
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Info{}, fmt.Errorf("media: build request: %w", err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", sniffLimit-1))

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return Info{}, fmt.Errorf("%w: status %d", ErrFetch, resp.StatusCode)
	}

	head, err := io.ReadAll(io.LimitReader(resp.Body, sniffLimit))
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrFetch, err)
	}

	mtype := mimetype.Detect(head)
	return Info{
		URL:       u.String(),
		MIME:      mtype.String(),
		Extension: mtype.Extension(),
		IsImage:   strings.HasPrefix(mtype.String(), "image/"),
	}, nil
}
