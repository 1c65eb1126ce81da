// Package collyfetcher retrieves the bulletin listing page using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/outbreak-harvester/internal/outbreak"
)

// pdfAnchorSelector matches anchors whose raw href ends with the literal ".pdf".
const pdfAnchorSelector = `a[href$=".pdf"]`

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	Transport http.RoundTripper
}

// Fetcher implements outbreak.ListingFetcher using a Colly collector.
type Fetcher struct {
	cfg    Config
	logger *zap.Logger
}

type collectorHooks interface {
	OnHTML(string, colly.HTMLCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{cfg: cfg, logger: logger}
}

// FetchListing visits listingURL once and returns its PDF anchors in document order.
func (f *Fetcher) FetchListing(ctx context.Context, listingURL string) (outbreak.ListingPage, error) {
	v := &listingVisit{page: outbreak.ListingPage{BaseURL: listingURL}}
	collector := f.buildCollector()
	f.configureCollectorHooks(collector, v)

	f.logger.Info("fetching listing page", zap.String("url", listingURL))
	if err := f.runCollector(ctx, collector, listingURL, &v.err); err != nil {
		return outbreak.ListingPage{}, fmt.Errorf("%w: %s: %w", outbreak.ErrListingUnavailable, listingURL, err)
	}
	f.logger.Info("listing page fetched",
		zap.String("url", v.page.BaseURL),
		zap.Int("status_code", v.status),
		zap.Int("pdf_links", len(v.page.Anchors)),
	)
	// Colly only parses bodies whose Content-Type mentions html, so a
	// mislabelled listing looks exactly like an empty one.
	if len(v.page.Anchors) == 0 && !strings.Contains(strings.ToLower(v.contentType), "html") {
		f.logger.Warn("listing page is not html; no links were parsed",
			zap.String("url", v.page.BaseURL),
			zap.String("content_type", v.contentType),
		)
	}
	return v.page, nil
}

// listingVisit collects what the collector callbacks observe during one run.
type listingVisit struct {
	page        outbreak.ListingPage
	status      int
	contentType string
	err         error
}

func (f *Fetcher) buildCollector() *colly.Collector {
	// A fresh collector per run keeps colly's visited set from rejecting the
	// same listing URL on the next harvest.
	collector := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)
	if f.cfg.Transport != nil {
		collector.WithTransport(f.cfg.Transport)
	}
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, v *listingVisit) {
	hooks.OnResponse(func(r *colly.Response) {
		v.status = r.StatusCode
		if r.Headers != nil {
			v.contentType = r.Headers.Get("Content-Type")
		}
		if r.Request != nil && r.Request.URL != nil {
			v.page.BaseURL = r.Request.URL.String()
		}
	})

	hooks.OnHTML(pdfAnchorSelector, func(e *colly.HTMLElement) {
		v.page.Anchors = append(v.page.Anchors, outbreak.Anchor{
			Text: outbreak.CollapseSpace(e.Text),
			Href: e.Attr("href"),
		})
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			v.status = r.StatusCode
		}
		v.err = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("listing fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}
