package harvester

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/outbreak-harvester/internal/outbreak"
)

// gate decides which candidates may become records and commits the survivors.
// It is used by a single goroutine per run.
type gate struct {
	store outbreak.Store
	seen  map[string]struct{}
}

func newGate(store outbreak.Store) *gate {
	return &gate{store: store, seen: make(map[string]struct{})}
}

// admit reports SkipNone when c is new to both this run and the store.
func (g *gate) admit(ctx context.Context, c outbreak.Candidate) (outbreak.SkipReason, error) {
	if _, dup := g.seen[c.URL]; dup {
		return outbreak.SkipDuplicate, nil
	}
	g.seen[c.URL] = struct{}{}

	_, err := g.store.FindByURL(ctx, c.URL)
	switch {
	case err == nil:
		return outbreak.SkipAlreadyStored, nil
	case errors.Is(err, outbreak.ErrNotFound):
		return outbreak.SkipNone, nil
	default:
		return outbreak.SkipFailed, fmt.Errorf("lookup %s: %w", c.URL, err)
	}
}

func (g *gate) commit(ctx context.Context, records []outbreak.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := g.store.InsertBatch(ctx, records); err != nil {
		return fmt.Errorf("insert %d records: %w", len(records), err)
	}
	return nil
}
