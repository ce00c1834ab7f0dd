package reconcile

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"offerwatch/internal/domain"
)

// Matcher is the narrow similarity capability the reconciler needs. It never
// errors: the oracle degrades to a deterministic fallback internally.
type Matcher interface {
	IsSameProduct(ctx context.Context, a, b domain.Offer) bool
}

// Changes are the per-pass buckets of offers worth alerting about. Offers
// unchanged since the previous pass appear in none of them.
type Changes struct {
	New       []domain.Offer
	Restocked []domain.Offer
	Removed   []domain.Offer
}

// Empty reports whether the pass produced nothing to alert about.
func (c Changes) Empty() bool {
	return len(c.New) == 0 && len(c.Restocked) == 0 && len(c.Removed) == 0
}

// Reconciler matches a freshly extracted snapshot against a source's
// history, classifies the delta, and produces the next history state.
type Reconciler struct {
	oracle     Matcher
	maxAgeDays int
	logger     *slog.Logger
}

// New constructs the reconciler. maxAgeDays bounds how long stale,
// fully-notified records are retained.
func New(oracle Matcher, maxAgeDays int, logger *slog.Logger) *Reconciler {
	if maxAgeDays <= 0 {
		maxAgeDays = 30
	}
	return &Reconciler{oracle: oracle, maxAgeDays: maxAgeDays, logger: logger}
}

// Reconcile runs one pass for one source. Matching is greedy: each current
// offer takes the first not-yet-consumed historical entry the oracle accepts,
// scanning keys in sorted order so passes are deterministic. Ties are not
// re-evaluated after an earlier match consumes an entry. The returned history
// replaces the previous one wholesale.
//
// An empty snapshot is processed as "everything disappeared". Whether to
// trust an empty snapshot is the caller's decision; the reconciler applies
// the same rules regardless.
func (r *Reconciler) Reconcile(ctx context.Context, current []domain.Offer, history domain.SourceHistory, now time.Time) (domain.SourceHistory, Changes) {
	next := make(domain.SourceHistory, len(current))
	matched := make(map[domain.RecordKey]bool, len(history))
	keys := sortedKeys(history)

	var changes Changes

	for _, offer := range current {
		hkey, found := r.findMatch(ctx, offer, history, keys, matched)

		if !found {
			state := domain.NotifiedNever
			if offer.Stock == domain.StockIn {
				// Never alert on a never-before-seen offer unless it is
				// actually purchasable.
				changes.New = append(changes.New, offer)
				state = domain.NotifiedInStock
			}
			key := domain.UniqueKey(domain.KeyFor(offer), next)
			next[key] = domain.HistoryRecord{Offer: offer, LastNotified: state, LastUpdated: now}
			continue
		}

		prev := history[hkey]
		state := prev.LastNotified
		if offer.Stock == domain.StockIn && prev.Offer.Stock != domain.StockIn {
			changes.Restocked = append(changes.Restocked, offer)
			state = domain.NotifiedInStock
		}
		// The historical key is kept so identity continuity survives field
		// drift between snapshots.
		next[hkey] = domain.HistoryRecord{Offer: offer, LastNotified: state, LastUpdated: now}
	}

	for _, hkey := range keys {
		if matched[hkey] {
			continue
		}
		rec := history[hkey]

		if ShouldPrune(rec, now, r.maxAgeDays) {
			if r.logger != nil {
				r.logger.Info("pruning stale history record", "name", rec.Offer.Name, "last_updated", rec.LastUpdated)
			}
			continue
		}

		switch {
		case rec.Offer.Stock == domain.StockIn && rec.LastNotified != domain.NotifiedRemoved:
			changes.Removed = append(changes.Removed, rec.Offer)
			rec.LastNotified = domain.NotifiedRemoved
			rec.LastUpdated = now
		case rec.Offer.Stock != domain.StockIn &&
			rec.LastNotified != domain.NotifiedOutOfStock &&
			rec.LastNotified != domain.NotifiedRemoved:
			// First "still out of stock" notice for an offer that vanished
			// without ever being purchasable.
			changes.Removed = append(changes.Removed, rec.Offer)
			rec.LastNotified = domain.NotifiedOutOfStock
			rec.LastUpdated = now
		}
		next[hkey] = rec
	}

	changes.New = dedupe(changes.New)
	changes.Restocked = dedupe(changes.Restocked)
	changes.Removed = dedupe(changes.Removed)

	return next, changes
}

func (r *Reconciler) findMatch(ctx context.Context, offer domain.Offer, history domain.SourceHistory, keys []domain.RecordKey, matched map[domain.RecordKey]bool) (domain.RecordKey, bool) {
	for _, hkey := range keys {
		if matched[hkey] {
			continue
		}
		if r.oracle.IsSameProduct(ctx, offer, history[hkey].Offer) {
			matched[hkey] = true
			return hkey, true
		}
	}
	return "", false
}

// ShouldPrune reports whether a history record may be dropped: it must be
// older than maxAgeDays AND already fully notified as removed or out of
// stock. Records whose last notified state is never or in-stock are always
// kept; they have to resolve through a removed/out-of-stock classification
// first.
func ShouldPrune(rec domain.HistoryRecord, now time.Time, maxAgeDays int) bool {
	if rec.LastNotified != domain.NotifiedRemoved && rec.LastNotified != domain.NotifiedOutOfStock {
		return false
	}
	return now.Sub(rec.LastUpdated) > time.Duration(maxAgeDays)*24*time.Hour
}

func sortedKeys(history domain.SourceHistory) []domain.RecordKey {
	keys := make([]domain.RecordKey, 0, len(history))
	for k := range history {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// dedupe collapses structurally identical offers the oracle or key matching
// left duplicated, preserving first-seen order.
func dedupe(offers []domain.Offer) []domain.Offer {
	if len(offers) < 2 {
		return offers
	}
	seen := make(map[domain.Offer]struct{}, len(offers))
	out := offers[:0]
	for _, o := range offers {
		if _, dup := seen[o]; dup {
			continue
		}
		seen[o] = struct{}{}
		out = append(out, o)
	}
	return out
}
