package harvester

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/outbreak-harvester/internal/clock"
	"github.com/JakeFAU/outbreak-harvester/internal/hash"
	"github.com/JakeFAU/outbreak-harvester/internal/outbreak"
	mempub "github.com/JakeFAU/outbreak-harvester/internal/publisher/memory"
	memstore "github.com/JakeFAU/outbreak-harvester/internal/storage/memory"
)

const (
	listingURL = "https://www.example.gov/index.php/newsroom/media-release"
	topic      = "outbreak-notifications"
)

var floor = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

type fakeListing struct {
	mu    sync.Mutex
	page  outbreak.ListingPage
	err   error
	calls int
}

func (f *fakeListing) FetchListing(_ context.Context, u string) (outbreak.ListingPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return outbreak.ListingPage{}, f.err
	}
	page := f.page
	if page.BaseURL == "" {
		page.BaseURL = u
	}
	return page, nil
}

type fakeExtractor struct {
	mu      sync.Mutex
	content map[string]string
	panics  map[string]bool
	calls   []string
}

func (f *fakeExtractor) Extract(_ context.Context, u string) string {
	f.mu.Lock()
	f.calls = append(f.calls, u)
	f.mu.Unlock()
	if f.panics[u] {
		panic("corrupt document " + u)
	}
	return f.content[u]
}

type sequentialIDs struct {
	mu sync.Mutex
	n  int
}

func (s *sequentialIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("id-%03d", s.n), nil
}

// failingStore rejects every batch after delegating lookups to a real store.
type failingStore struct {
	*memstore.OutbreakStore
	insertErr error
	latestErr error
}

func (f *failingStore) InsertBatch(ctx context.Context, records []outbreak.Record) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	return f.OutbreakStore.InsertBatch(ctx, records)
}

func (f *failingStore) Latest(ctx context.Context) (outbreak.Record, error) {
	if f.latestErr != nil {
		return outbreak.Record{}, f.latestErr
	}
	return f.OutbreakStore.Latest(ctx)
}

type fixture struct {
	listing   *fakeListing
	extractor *fakeExtractor
	store     outbreak.Store
	mem       *memstore.OutbreakStore
	publisher *mempub.Publisher
	harvester *Harvester
}

func newFixture(t *testing.T, anchors []outbreak.Anchor, opts ...func(*fixture)) *fixture {
	t.Helper()
	mem := memstore.NewOutbreakStore()
	f := &fixture{
		listing:   &fakeListing{page: outbreak.ListingPage{Anchors: anchors}},
		extractor: &fakeExtractor{content: map[string]string{}, panics: map[string]bool{}},
		store:     mem,
		mem:       mem,
		publisher: mempub.New(),
	}
	for _, opt := range opts {
		opt(f)
	}
	h, err := New(RunConfig{
		ListingURL: listingURL,
		FloorDate:  floor,
		Keywords:   outbreak.DefaultKeywords,
		Workers:    2,
		Topic:      topic,
	}, Dependencies{
		Listing:   f.listing,
		Extractor: f.extractor,
		Store:     f.store,
		Publisher: f.publisher,
		IDs:       &sequentialIDs{},
		Hasher:    hash.SHA256{},
		Clock:     clock.NewFixed(time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)),
	}, zap.NewNop())
	require.NoError(t, err)
	f.harvester = h
	return f
}

func standardAnchors() []outbreak.Anchor {
	return []outbreak.Anchor{
		{Text: "3 April 2024: Avian Influenza Outbreak Reported", Href: "/images/releases/avian.pdf"},
		{Text: "5 April 2024: Budget Allocation Update", Href: "/images/releases/budget.pdf"},
		{Text: "Annual Report 2024", Href: "/images/releases/annual.pdf"},
		{Text: "7 April 2024: Rabies vaccination campaign", Href: "/images/releases/rabies.pdf"},
	}
}

func TestRunAddsQualifyingBulletins(t *testing.T) {
	t.Parallel()

	f := newFixture(t, standardAnchors())
	f.extractor.content["https://www.example.gov/images/releases/avian.pdf"] = "H5N1 detected"

	res := f.harvester.Run(context.Background())
	require.Equal(t, OutcomeAdded, res.Outcome)
	require.Equal(t, 2, res.Added)
	require.NoError(t, res.Err)
	require.NotEmpty(t, res.RunID)
	require.Equal(t, "Outbreaks updated successfully! 2 new outbreak articles added.", res.Message())

	require.Len(t, res.Records, 2)
	first, second := res.Records[0], res.Records[1]
	require.Equal(t, "Avian Influenza Outbreak Reported", first.Title)
	require.Equal(t, "3 April 2024", first.Date)
	require.Equal(t, "H5N1 detected", first.Content)
	require.Len(t, first.ContentHash, 64)
	require.Equal(t, "https://www.example.gov/images/releases/avian.pdf", first.URL)
	require.Equal(t, "Rabies vaccination campaign", second.Title)
	require.NotNil(t, second.PublishedOn)
	require.Equal(t, time.Date(2024, time.April, 7, 0, 0, 0, 0, time.UTC), *second.PublishedOn)
	require.Equal(t, 2, f.mem.Len())

	msgs := f.publisher.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, topic, msgs[0].Topic)
	require.Equal(t, outbreak.NotificationFor(first), msgs[0].Payload)
}

func TestRunIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, standardAnchors())
	require.Equal(t, OutcomeAdded, f.harvester.Run(context.Background()).Outcome)
	stored, err := f.store.List(context.Background(), 0, 0)
	require.NoError(t, err)

	res := f.harvester.Run(context.Background())
	require.Equal(t, OutcomeNoneAdded, res.Outcome)
	require.Equal(t, "No new outbreak articles found.", res.Message())

	again, err := f.store.List(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Equal(t, stored, again)
	require.Len(t, f.publisher.Messages(), 2)
}

func TestRunCutoffFollowsLatestStoredRecord(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []outbreak.Anchor{
		{Text: "9 April 2024: Anthrax outbreak", Href: "/a.pdf"},
		{Text: "10 April 2024: Brucellosis update", Href: "/b.pdf"},
		{Text: "11 April 2024: FMD restrictions", Href: "/c.pdf"},
	})
	latest := time.Date(2024, time.April, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.store.InsertBatch(context.Background(), []outbreak.Record{{
		ID: "seed", Title: "Seed outbreak", Date: "10 April 2024", PublishedOn: &latest,
		URL: "https://www.example.gov/seed.pdf", CreatedAt: latest,
	}}))

	res := f.harvester.Run(context.Background())
	require.Equal(t, OutcomeAdded, res.Outcome)
	var dates []string
	for _, r := range res.Records {
		dates = append(dates, r.Date)
	}
	require.Equal(t, []string{"10 April 2024", "11 April 2024"}, dates)
}

func TestRunFloorDateBoundsEmptyStore(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []outbreak.Anchor{
		{Text: "31 December 2023: Rabies outbreak", Href: "/old.pdf"},
		{Text: "1 January 2024: Rabies outbreak", Href: "/new.pdf"},
	})
	res := f.harvester.Run(context.Background())
	require.Equal(t, 1, res.Added)
	require.Equal(t, "https://www.example.gov/new.pdf", res.Records[0].URL)
}

func TestRunLatestLookupFailureFallsBackToFloor(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []outbreak.Anchor{
		{Text: "2 Feb 2024: Anthrax outbreak", Href: "/a.pdf"},
	}, func(f *fixture) {
		f.store = &failingStore{OutbreakStore: f.mem, latestErr: errors.New("db unavailable")}
	})
	res := f.harvester.Run(context.Background())
	require.Equal(t, OutcomeAdded, res.Outcome)
	require.Equal(t, 1, res.Added)
}

func TestRunDedupesURLSpellings(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []outbreak.Anchor{
		{Text: "3 April 2024: Anthrax outbreak", Href: "files/a.pdf"},
		{Text: "4 April 2024: Anthrax outbreak follow up", Href: "./files/a.pdf"},
		{Text: "5 April 2024: Anthrax outbreak again", Href: "HTTPS://WWW.EXAMPLE.GOV/index.php/newsroom/files/a.pdf#p2"},
	})
	res := f.harvester.Run(context.Background())
	require.Equal(t, 1, res.Added)
	require.Equal(t, "Anthrax outbreak", res.Records[0].Title)
	require.Equal(t, []string{"https://www.example.gov/index.php/newsroom/files/a.pdf"}, f.extractor.calls)
}

func TestRunExtractionFailureStillCreatesRecord(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []outbreak.Anchor{
		{Text: "3 April 2024: Avian influenza outbreak", Href: "/missing.pdf"},
	})
	res := f.harvester.Run(context.Background())
	require.Equal(t, OutcomeAdded, res.Outcome)
	require.Equal(t, "", res.Records[0].Content)

	stored, err := f.store.FindByURL(context.Background(), "https://www.example.gov/missing.pdf")
	require.NoError(t, err)
	require.Equal(t, "", stored.Content)
}

func TestRunIsolatesPanickingCandidate(t *testing.T) {
	t.Parallel()

	f := newFixture(t, standardAnchors())
	f.extractor.panics["https://www.example.gov/images/releases/avian.pdf"] = true

	res := f.harvester.Run(context.Background())
	require.Equal(t, OutcomeAdded, res.Outcome)
	require.Equal(t, 1, res.Added)
	require.Equal(t, "https://www.example.gov/images/releases/rabies.pdf", res.Records[0].URL)
}

func TestRunFetchFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.listing.err = fmt.Errorf("%w: connection refused", outbreak.ErrListingUnavailable)

	res := f.harvester.Run(context.Background())
	require.Equal(t, OutcomeFetchFailed, res.Outcome)
	require.ErrorIs(t, res.Err, outbreak.ErrListingUnavailable)
	require.True(t, strings.HasPrefix(res.Message(), "Error fetching the URL: "))
	require.Zero(t, f.mem.Len())
	require.Empty(t, f.extractor.calls)
}

func TestRunCommitFailureLeavesStoreUntouched(t *testing.T) {
	t.Parallel()

	f := newFixture(t, standardAnchors(), func(f *fixture) {
		f.store = &failingStore{OutbreakStore: f.mem, insertErr: errors.New("disk full")}
	})
	res := f.harvester.Run(context.Background())
	require.Equal(t, OutcomeCommitFailed, res.Outcome)
	require.Zero(t, res.Added)
	require.Equal(t, "Error saving outbreaks to database: insert 2 records: disk full", res.Message())
	require.Zero(t, f.mem.Len())
	require.Empty(t, f.publisher.Messages())
}

func TestRunNoQualifyingAnchors(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []outbreak.Anchor{
		{Text: "5 April 2024: Budget Allocation Update", Href: "/budget.pdf"},
		{Text: "Annual Report", Href: "/annual.pdf"},
	})
	res := f.harvester.Run(context.Background())
	require.Equal(t, OutcomeNoneAdded, res.Outcome)
	require.Zero(t, f.mem.Len())
	require.Empty(t, f.extractor.calls)
}

func TestRunPublishFailureDoesNotChangeOutcome(t *testing.T) {
	t.Parallel()

	f := newFixture(t, standardAnchors())
	f.publisher.FailWith(errors.New("topic missing"))

	res := f.harvester.Run(context.Background())
	require.Equal(t, OutcomeAdded, res.Outcome)
	require.Equal(t, 2, f.mem.Len())
}

func TestRunSerializesConcurrentCalls(t *testing.T) {
	t.Parallel()

	f := newFixture(t, standardAnchors())

	var wg sync.WaitGroup
	results := make([]Result, 4)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = f.harvester.Run(context.Background())
		}()
	}
	wg.Wait()

	total := 0
	for _, r := range results {
		require.NotEqual(t, OutcomeCommitFailed, r.Outcome)
		total += r.Added
	}
	require.Equal(t, 2, total)
	require.Equal(t, 2, f.mem.Len())
}

func TestNewValidatesDependencies(t *testing.T) {
	t.Parallel()

	deps := Dependencies{
		Listing:   &fakeListing{},
		Extractor: &fakeExtractor{},
		Store:     memstore.NewOutbreakStore(),
		IDs:       &sequentialIDs{},
		Hasher:    hash.SHA256{},
		Clock:     clock.System{},
	}
	_, err := New(RunConfig{}, deps, nil)
	require.Error(t, err)

	noStore := deps
	noStore.Store = nil
	_, err = New(RunConfig{ListingURL: listingURL}, noStore, nil)
	require.Error(t, err)

	h, err := New(RunConfig{ListingURL: listingURL}, deps, nil)
	require.NoError(t, err)
	require.Equal(t, DefaultWorkers, h.cfg.Workers)
	require.Equal(t, outbreak.DefaultKeywords, h.cfg.Keywords)
}

func TestResultMessage(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Error fetching the URL: boom", Result{Outcome: OutcomeFetchFailed, Err: errors.New("boom")}.Message())
	require.Equal(t, "No new outbreak articles found.", Result{Outcome: OutcomeNoneAdded}.Message())
	require.Equal(t, "Outbreaks updated successfully! 1 new outbreak articles added.", Result{Outcome: OutcomeAdded, Added: 1}.Message())
}
