package extract

import (
	"bytes"
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/JakeFAU/outbreak-harvester/internal/metrics"
)

// DefaultSelectors are tried in order; the first one matching any element wins.
var DefaultSelectors = []string{"article", "main", "div.content", "div.item-page"}

// HTMLExtractor downloads a page and returns the visible text of its main container.
type HTMLExtractor struct {
	dl        downloader
	selectors []string
	logger    *zap.Logger
}

// NewHTMLExtractor builds an HTMLExtractor. Empty selectors fall back to DefaultSelectors.
func NewHTMLExtractor(client Doer, userAgent string, selectors []string, logger *zap.Logger) *HTMLExtractor {
	if len(selectors) == 0 {
		selectors = DefaultSelectors
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTMLExtractor{
		dl:        downloader{client: client, userAgent: userAgent},
		selectors: append([]string(nil), selectors...),
		logger:    logger,
	}
}

// Extract returns the page text or "" on any failure or when no selector matches.
func (e *HTMLExtractor) Extract(ctx context.Context, documentURL string) string {
	body, err := e.dl.get(ctx, documentURL)
	if err != nil {
		e.logger.Error("html download failed", zap.String("url", documentURL), zap.Error(err))
		metrics.ObserveExtraction("html", "fetch_error")
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		e.logger.Error("html parse failed", zap.String("url", documentURL), zap.Error(err))
		metrics.ObserveExtraction("html", "parse_error")
		return ""
	}
	for _, selector := range e.selectors {
		sel := doc.Find(selector)
		if sel.Length() == 0 {
			continue
		}
		metrics.ObserveExtraction("html", "ok")
		return cleanText(visibleText(sel.First()))
	}
	e.logger.Info("no content container matched", zap.String("url", documentURL))
	metrics.ObserveExtraction("html", "no_match")
	return ""
}

// visibleText joins the trimmed, non-empty text nodes under sel with newlines.
func visibleText(sel *goquery.Selection) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript", "template":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(parts, "\n")
}
