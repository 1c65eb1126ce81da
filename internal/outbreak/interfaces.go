package outbreak

import (
	"context"
	"time"
)

// Store persists outbreak records. Records are created and read, never updated.
type Store interface {
	// FindByURL returns the record stored for url or ErrNotFound.
	FindByURL(ctx context.Context, url string) (Record, error)
	// Latest returns the record with the most recent date or ErrNotFound.
	Latest(ctx context.Context) (Record, error)
	// InsertBatch stores all records atomically; on any failure none are kept.
	InsertBatch(ctx context.Context, records []Record) error
	// List returns records ordered by date, newest first.
	List(ctx context.Context, limit, offset int) ([]Record, error)
	// Get returns the record with the given ID or ErrNotFound.
	Get(ctx context.Context, id string) (Record, error)
	Ping(ctx context.Context) error
	Close()
}

// ListingFetcher retrieves the listing page and returns its PDF anchors.
type ListingFetcher interface {
	FetchListing(ctx context.Context, listingURL string) (ListingPage, error)
}

// Extractor returns the plain text of a remote document. Failures degrade to "".
type Extractor interface {
	Extract(ctx context.Context, documentURL string) string
}

// Publisher pushes notifications to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Pacer blocks until a request to url may proceed.
type Pacer interface {
	Wait(ctx context.Context, url string) error
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record and run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
