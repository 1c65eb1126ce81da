package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/JakeFAU/outbreak-harvester/internal/metrics"
)

// PDFExtractor downloads a PDF and concatenates the text of its pages.
type PDFExtractor struct {
	dl     downloader
	logger *zap.Logger
}

// NewPDFExtractor builds a PDFExtractor around client.
func NewPDFExtractor(client Doer, userAgent string, logger *zap.Logger) *PDFExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PDFExtractor{
		dl:     downloader{client: client, userAgent: userAgent},
		logger: logger,
	}
}

// Extract returns the document text or "" on any failure.
func (e *PDFExtractor) Extract(ctx context.Context, documentURL string) string {
	body, err := e.dl.get(ctx, documentURL)
	if err != nil {
		e.logger.Error("pdf download failed", zap.String("url", documentURL), zap.Error(err))
		metrics.ObserveExtraction("pdf", "fetch_error")
		return ""
	}
	pages, err := openPDF(body)
	if err != nil {
		e.logger.Error("pdf parse failed", zap.String("url", documentURL), zap.Error(err))
		metrics.ObserveExtraction("pdf", "parse_error")
		return ""
	}
	text := concatPages(pages, func(page int, err error) {
		e.logger.Warn("pdf page yielded no text",
			zap.String("url", documentURL),
			zap.Int("page", page),
			zap.Error(err),
		)
	})
	metrics.ObserveExtraction("pdf", "ok")
	return cleanText(text)
}

// pageSource abstracts the PDF reader for page-by-page extraction.
type pageSource interface {
	NumPage() int
	PageText(page int) (string, error)
}

// concatPages joins page texts in order. A failing page contributes "".
func concatPages(src pageSource, onPageErr func(page int, err error)) string {
	var b strings.Builder
	for i := 1; i <= src.NumPage(); i++ {
		text, err := src.PageText(i)
		if err != nil {
			if onPageErr != nil {
				onPageErr(i, err)
			}
			continue
		}
		b.WriteString(text)
	}
	return b.String()
}

type pdfPages struct {
	reader *pdf.Reader
}

func openPDF(body []byte) (src pageSource, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	return pdfPages{reader: reader}, nil
}

func (p pdfPages) NumPage() int {
	return p.reader.NumPage()
}

func (p pdfPages) PageText(i int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page %d: %v", i, r)
		}
	}()
	page := p.reader.Page(i)
	if page.V.IsNull() {
		return "", nil
	}
	text, err = page.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("page %d text: %w", i, err)
	}
	return text, nil
}
