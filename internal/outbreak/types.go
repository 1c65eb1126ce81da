// Package outbreak defines the bulletin record, the listing shapes, and the
// parsing and filtering rules shared by the harvester subsystems.
package outbreak

import (
	"errors"
	"time"
)

// Sentinel errors shared by store implementations and fetchers.
var (
	ErrNotFound           = errors.New("outbreak not found")
	ErrDuplicateURL       = errors.New("outbreak url already stored")
	ErrListingUnavailable = errors.New("listing page unavailable")
)

// Record is one persisted outbreak bulletin.
//
// Date keeps the human-readable string exactly as published ("27 February 2025");
// PublishedOn is the normalized calendar date used for ordering and cutoffs and
// is nil when Date could not be parsed.
type Record struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Date        string     `json:"date"`
	PublishedOn *time.Time `json:"published_on,omitempty"`
	Content     string     `json:"content"`
	ContentHash string     `json:"content_hash,omitempty"`
	URL         string     `json:"url"`
	CreatedAt   time.Time  `json:"created_at"`
}

// EffectiveDate returns the record's calendar date, re-parsing Date when the
// normalized field is missing.
func (r Record) EffectiveDate() (time.Time, bool) {
	if r.PublishedOn != nil {
		return *r.PublishedOn, true
	}
	return ParseDate(r.Date)
}

// Anchor is a link discovered on the listing page.
type Anchor struct {
	Text string
	Href string
}

// ListingPage is the parsed listing: the URL relative links resolve against and
// the PDF anchors in document order.
type ListingPage struct {
	BaseURL string
	Anchors []Anchor
}

// Candidate is an anchor that passed title parsing and filtering.
type Candidate struct {
	Index       int
	Title       string
	Date        string
	PublishedOn time.Time
	URL         string
}

// Notification is the payload published for each newly stored record.
type Notification struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Date  string `json:"date"`
	URL   string `json:"url"`
}

// NotificationFor builds the publish payload for a record.
func NotificationFor(r Record) Notification {
	return Notification{ID: r.ID, Title: r.Title, Date: r.Date, URL: r.URL}
}
