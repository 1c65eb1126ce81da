package outbreak

import (
	"fmt"
	"strings"
	"time"
)

// DefaultKeywords marks a bulletin title as disease related.
var DefaultKeywords = []string{
	"outbreak",
	"disease",
	"foot and mouth",
	"avian influenza",
	"anthrax",
	"rabies",
	"brucellosis",
	"fmd",
}

// SkipReason explains why an anchor did not become a candidate.
type SkipReason string

// Skip reasons reported by Filter.Evaluate.
const (
	SkipNone          SkipReason = ""
	SkipInvalidTitle  SkipReason = "invalid_title"
	SkipInvalidDate   SkipReason = "invalid_date"
	SkipBeforeCutoff  SkipReason = "before_cutoff"
	SkipNoKeyword     SkipReason = "no_keyword"
	SkipInvalidURL    SkipReason = "invalid_url"
	SkipDuplicate     SkipReason = "duplicate"
	SkipAlreadyStored SkipReason = "already_stored"
	SkipFailed        SkipReason = "failed"
)

// Filter applies the title, recency, and keyword rules to listing anchors.
type Filter struct {
	cutoff   time.Time
	keywords []string
}

// NewFilter builds a Filter. Keywords are matched case-insensitively.
func NewFilter(cutoff time.Time, keywords []string) Filter {
	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			lowered = append(lowered, k)
		}
	}
	return Filter{cutoff: cutoff, keywords: lowered}
}

// Cutoff reports the earliest date the filter accepts.
func (f Filter) Cutoff() time.Time {
	return f.cutoff
}

// Evaluate turns an anchor into a Candidate or reports why it was skipped.
func (f Filter) Evaluate(baseURL string, index int, a Anchor) (Candidate, SkipReason, error) {
	dateStr, title, ok := ParseTitle(a.Text)
	if !ok {
		return Candidate{}, SkipInvalidTitle, nil
	}
	published, ok := ParseDate(dateStr)
	if !ok {
		return Candidate{}, SkipInvalidDate, nil
	}
	if published.Before(f.cutoff) {
		return Candidate{}, SkipBeforeCutoff, nil
	}
	if !f.MatchesKeyword(title) {
		return Candidate{}, SkipNoKeyword, nil
	}
	link, err := ResolveURL(baseURL, a.Href)
	if err != nil {
		return Candidate{}, SkipInvalidURL, fmt.Errorf("resolve %q: %w", a.Href, err)
	}
	return Candidate{
		Index:       index,
		Title:       title,
		Date:        dateStr,
		PublishedOn: published,
		URL:         link,
	}, SkipNone, nil
}

// MatchesKeyword reports whether title contains any configured keyword.
func (f Filter) MatchesKeyword(title string) bool {
	lower := strings.ToLower(title)
	for _, k := range f.keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
