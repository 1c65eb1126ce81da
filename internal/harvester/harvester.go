// Package harvester runs the bulletin harvest: fetch the listing, filter and
// dedupe its PDF links, extract each new document, and commit the batch.
package harvester

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/outbreak-harvester/internal/metrics"
	"github.com/JakeFAU/outbreak-harvester/internal/outbreak"
)

// DefaultWorkers bounds concurrent document extraction when RunConfig leaves it unset.
const DefaultWorkers = 4

// RunConfig is the immutable configuration of every run.
type RunConfig struct {
	ListingURL string
	FloorDate  time.Time
	Keywords   []string
	Workers    int
	// Topic receives one notification per committed record. Empty disables publishing.
	Topic string
}

// Dependencies are the collaborators a Harvester drives.
type Dependencies struct {
	Listing   outbreak.ListingFetcher
	Extractor outbreak.Extractor
	Store     outbreak.Store
	Publisher outbreak.Publisher
	Pacer     outbreak.Pacer
	IDs       outbreak.IDGenerator
	Hasher    outbreak.Hasher
	Clock     outbreak.Clock
}

// Harvester executes harvest runs one at a time.
type Harvester struct {
	cfg    RunConfig
	deps   Dependencies
	logger *zap.Logger
	mu     sync.Mutex
}

// New constructs a Harvester. Listing, Extractor, Store, IDs, Hasher, and
// Clock are required; Publisher and Pacer may be nil.
func New(cfg RunConfig, deps Dependencies, logger *zap.Logger) (*Harvester, error) {
	switch {
	case cfg.ListingURL == "":
		return nil, errors.New("harvester: listing url is required")
	case deps.Listing == nil, deps.Extractor == nil, deps.Store == nil:
		return nil, errors.New("harvester: listing fetcher, extractor, and store are required")
	case deps.IDs == nil, deps.Hasher == nil, deps.Clock == nil:
		return nil, errors.New("harvester: id generator, hasher, and clock are required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if len(cfg.Keywords) == 0 {
		cfg.Keywords = outbreak.DefaultKeywords
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Harvester{cfg: cfg, deps: deps, logger: logger}, nil
}

// Run performs one harvest. Concurrent calls are serialized.
func (h *Harvester) Run(ctx context.Context) Result {
	h.mu.Lock()
	defer h.mu.Unlock()

	start := h.deps.Clock.Now()
	runID, err := h.deps.IDs.NewID()
	if err != nil {
		h.logger.Warn("run id generation failed", zap.Error(err))
	}
	logger := h.logger.With(zap.String("run_id", runID))

	res := h.run(ctx, logger)
	res.RunID = runID

	metrics.ObserveRun(string(res.Outcome), h.deps.Clock.Now().Sub(start))
	metrics.ObserveRecordsAdded(res.Added)

	fields := []zap.Field{zap.String("outcome", string(res.Outcome)), zap.Int("added", res.Added)}
	if res.Err != nil {
		logger.Error("harvest run failed", append(fields, zap.Error(res.Err))...)
	} else {
		logger.Info("harvest run finished", fields...)
	}
	return res
}

func (h *Harvester) run(ctx context.Context, logger *zap.Logger) Result {
	page, err := h.deps.Listing.FetchListing(ctx, h.cfg.ListingURL)
	if err != nil {
		return Result{Outcome: OutcomeFetchFailed, Err: err}
	}

	filter := outbreak.NewFilter(h.cutoff(ctx, logger), h.cfg.Keywords)
	logger.Info("listing evaluated",
		zap.Int("anchors", len(page.Anchors)),
		zap.Time("cutoff", filter.Cutoff()),
	)

	g := newGate(h.deps.Store)
	candidates := h.selectCandidates(ctx, logger, g, filter, page)
	records := h.extractAll(ctx, logger, candidates)
	if len(records) == 0 {
		return Result{Outcome: OutcomeNoneAdded}
	}

	if err := g.commit(ctx, records); err != nil {
		return Result{Outcome: OutcomeCommitFailed, Err: err}
	}
	h.notify(ctx, logger, records)
	return Result{Outcome: OutcomeAdded, Added: len(records), Records: records}
}

// cutoff is the later of the floor date and the newest stored record's date.
func (h *Harvester) cutoff(ctx context.Context, logger *zap.Logger) time.Time {
	latest, err := h.deps.Store.Latest(ctx)
	if err != nil {
		if !errors.Is(err, outbreak.ErrNotFound) {
			logger.Warn("latest record lookup failed; using floor date", zap.Error(err))
		}
		return outbreak.Cutoff(h.cfg.FloorDate, time.Time{}, false)
	}
	d, ok := latest.EffectiveDate()
	if !ok {
		logger.Warn("latest record has no parseable date; using floor date",
			zap.String("id", latest.ID),
			zap.String("date", latest.Date),
		)
	}
	return outbreak.Cutoff(h.cfg.FloorDate, d, ok)
}

// selectCandidates filters and dedupes anchors in document order.
func (h *Harvester) selectCandidates(
	ctx context.Context,
	logger *zap.Logger,
	g *gate,
	filter outbreak.Filter,
	page outbreak.ListingPage,
) []outbreak.Candidate {
	out := make([]outbreak.Candidate, 0, len(page.Anchors))
	for i, a := range page.Anchors {
		c, reason := h.evaluate(ctx, logger, g, filter, page.BaseURL, i, a)
		if reason != outbreak.SkipNone {
			metrics.ObserveCandidate(string(reason))
			continue
		}
		metrics.ObserveCandidate("accepted")
		out = append(out, c)
	}
	return out
}

func (h *Harvester) evaluate(
	ctx context.Context,
	logger *zap.Logger,
	g *gate,
	filter outbreak.Filter,
	baseURL string,
	index int,
	a outbreak.Anchor,
) (c outbreak.Candidate, reason outbreak.SkipReason) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("candidate panicked",
				zap.Int("index", index),
				zap.String("href", a.Href),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			c, reason = outbreak.Candidate{}, outbreak.SkipFailed
		}
	}()

	c, reason, err := filter.Evaluate(baseURL, index, a)
	if reason == outbreak.SkipNone {
		reason, err = g.admit(ctx, c)
	}
	switch {
	case err != nil:
		logger.Error("candidate skipped",
			zap.Int("index", index),
			zap.String("href", a.Href),
			zap.String("reason", string(reason)),
			zap.Error(err),
		)
	case reason != outbreak.SkipNone:
		logger.Info("candidate skipped",
			zap.Int("index", index),
			zap.String("text", a.Text),
			zap.String("reason", string(reason)),
		)
	}
	return c, reason
}

// extractAll fetches every candidate's document on a bounded pool and returns
// the resulting records in candidate order. Failed candidates are dropped.
func (h *Harvester) extractAll(
	ctx context.Context,
	logger *zap.Logger,
	candidates []outbreak.Candidate,
) []outbreak.Record {
	slots := make([]*outbreak.Record, len(candidates))

	var group errgroup.Group
	group.SetLimit(h.cfg.Workers)
	for i, c := range candidates {
		group.Go(func() error {
			rec, err := h.buildRecord(ctx, c)
			if err != nil {
				metrics.ObserveCandidate(string(outbreak.SkipFailed))
				logger.Error("candidate discarded", zap.String("url", c.URL), zap.Error(err))
				return nil
			}
			slots[i] = &rec
			return nil
		})
	}
	_ = group.Wait() //nolint:errcheck // workers never return errors

	records := make([]outbreak.Record, 0, len(slots))
	for _, r := range slots {
		if r != nil {
			records = append(records, *r)
		}
	}
	return records
}

func (h *Harvester) buildRecord(ctx context.Context, c outbreak.Candidate) (rec outbreak.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()

	if h.deps.Pacer != nil {
		if err := h.deps.Pacer.Wait(ctx, c.URL); err != nil {
			return outbreak.Record{}, fmt.Errorf("pace: %w", err)
		}
	}
	content := h.deps.Extractor.Extract(ctx, c.URL)

	id, err := h.deps.IDs.NewID()
	if err != nil {
		return outbreak.Record{}, fmt.Errorf("generate id: %w", err)
	}
	digest, err := h.deps.Hasher.Hash([]byte(content))
	if err != nil {
		return outbreak.Record{}, fmt.Errorf("hash content: %w", err)
	}
	published := c.PublishedOn
	return outbreak.Record{
		ID:          id,
		Title:       c.Title,
		Date:        c.Date,
		PublishedOn: &published,
		Content:     content,
		ContentHash: digest,
		URL:         c.URL,
		CreatedAt:   h.deps.Clock.Now(),
	}, nil
}

func (h *Harvester) notify(ctx context.Context, logger *zap.Logger, records []outbreak.Record) {
	if h.deps.Publisher == nil || h.cfg.Topic == "" {
		return
	}
	for _, r := range records {
		msgID, err := h.deps.Publisher.Publish(ctx, h.cfg.Topic, outbreak.NotificationFor(r))
		if err != nil {
			logger.Warn("notification publish failed", zap.String("id", r.ID), zap.Error(err))
			continue
		}
		logger.Debug("notification published", zap.String("id", r.ID), zap.String("message_id", msgID))
	}
}
