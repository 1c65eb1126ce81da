package extract

import (
	"context"
	"net/url"
	"strings"

	"github.com/JakeFAU/outbreak-harvester/internal/outbreak"
)

// Router sends PDF links to the PDF extractor and everything else to the HTML one.
type Router struct {
	pdf  outbreak.Extractor
	html outbreak.Extractor
}

// NewRouter builds a Router.
func NewRouter(pdf, html outbreak.Extractor) *Router {
	return &Router{pdf: pdf, html: html}
}

// Extract dispatches on the URL path suffix.
func (r *Router) Extract(ctx context.Context, documentURL string) string {
	if IsPDF(documentURL) {
		return r.pdf.Extract(ctx, documentURL)
	}
	return r.html.Extract(ctx, documentURL)
}

// IsPDF reports whether the URL path ends in ".pdf", ignoring case.
func IsPDF(documentURL string) bool {
	path := documentURL
	if u, err := url.Parse(documentURL); err == nil {
		path = u.Path
	}
	return strings.HasSuffix(strings.ToLower(path), ".pdf")
}
