package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"offerwatch/internal/config"
	"offerwatch/internal/domain"
	"offerwatch/internal/notify"
	"offerwatch/internal/ports"
	"offerwatch/internal/reconcile"
)

// MonitorDeps wires all driven adapters into the monitoring use case.
type MonitorDeps struct {
	Fetcher    ports.PageFetcher
	Extractor  ports.OfferExtractor
	Evaluator  ports.EvaluationWriter
	Reconciler *reconcile.Reconciler
	Debouncer  *notify.Debouncer
	Store      ports.HistoryStore
	Notifier   ports.Notifier
	Logger     *slog.Logger
	MaxRetries int
	RetryDelay time.Duration
}

// Monitor drives one reconciliation pass per configured source: fetch,
// extract, reconcile, debounce, notify, persist.
type Monitor struct {
	deps    MonitorDeps
	sources []config.SourceConfig

	// Per-source tick counters for the everyN cycle divisor. In-memory: a
	// restart resets the phase, which at worst checks a source one cycle
	// early.
	cycles map[string]int
}

// NewMonitor constructs the orchestration component.
func NewMonitor(deps MonitorDeps, sources []config.SourceConfig) *Monitor {
	return &Monitor{deps: deps, sources: sources, cycles: make(map[string]int)}
}

// RunAll executes a pass for every due source. Per-source failures are
// logged and never abort the remaining sources.
func (m *Monitor) RunAll(ctx context.Context, now time.Time) {
	for _, src := range m.sources {
		if !m.due(src) {
			m.deps.Logger.Debug("source not due this cycle", "source", src.Name)
			continue
		}
		if err := m.RunSource(ctx, src, now); err != nil {
			m.deps.Logger.Error("pass failed", "source", src.Name, "error", err)
		}
	}
}

// due applies the everyN cycle divisor for a source.
func (m *Monitor) due(src config.SourceConfig) bool {
	if src.EveryN <= 1 {
		return true
	}
	m.cycles[src.Name]++
	if m.cycles[src.Name]%src.EveryN == 0 {
		m.cycles[src.Name] = 0
		return true
	}
	return false
}

// RunSource executes one pass for one source. Fetch or extraction failure
// skips the pass entirely: history and notification state stay untouched on
// incomplete input. A legitimately empty snapshot is processed as
// "everything disappeared".
func (m *Monitor) RunSource(ctx context.Context, src config.SourceConfig, now time.Time) error {
	log := m.deps.Logger.With("source", src.Name)

	content, err := m.deps.Fetcher.Fetch(ctx, src.URL)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}

	result, err := m.deps.Extractor.ExtractOffers(ctx, content, src.Instruction)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}

	current := result.Offers
	if result.SuggestedURL != "" {
		log.Info("extractor suggested a listing page", "url", result.SuggestedURL)
		current = m.followSuggestion(ctx, src, result.SuggestedURL, log)
	}

	history, err := m.deps.Store.LoadHistory(ctx, src.Name)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	next, changes := m.deps.Reconciler.Reconcile(ctx, current, history, now)
	log.Info("reconciled snapshot",
		"offers", len(current),
		"new", len(changes.New),
		"restocked", len(changes.Restocked),
		"removed", len(changes.Removed))

	initialRun := len(history) == 0
	hasChanges := !changes.Empty() || (initialRun && len(current) > 0)

	if hasChanges {
		m.maybeNotify(ctx, src, current, history, changes, now, log)
	} else {
		log.Debug("no changes to alert")
	}

	// Persisted regardless of the debounce outcome; a suppressed send must
	// not replay old state next pass. Write failures drop this pass's result
	// but are not fatal: notifications already sent cannot be un-sent.
	if err := m.deps.Store.SaveSnapshot(ctx, src.Name, current); err != nil {
		log.Error("persist snapshot failed", "error", err)
	}
	if err := m.deps.Store.ReplaceHistory(ctx, src.Name, next); err != nil {
		log.Error("persist history failed", "error", err)
	}
	return nil
}

// followSuggestion re-fetches the suggested URL (with bounded retries) and
// re-extracts once. A second suggestion is not followed. On failure the
// snapshot is treated as empty, matching a page that lost all listings.
func (m *Monitor) followSuggestion(ctx context.Context, src config.SourceConfig, suggested string, log *slog.Logger) []domain.Offer {
	for attempt := 0; attempt <= m.deps.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(m.deps.RetryDelay)
		}

		content, err := m.deps.Fetcher.Fetch(ctx, suggested)
		if err != nil {
			log.Warn("fetch suggested url failed", "attempt", attempt+1, "error", err)
			continue
		}

		result, err := m.deps.Extractor.ExtractOffers(ctx, content, src.Instruction)
		if err != nil {
			log.Warn("extract from suggested url failed", "attempt", attempt+1, "error", err)
			continue
		}
		if result.SuggestedURL != "" {
			log.Info("suggested page suggested another url, not following")
			break
		}
		return result.Offers
	}

	log.Error("no offers found via suggested url, treating snapshot as empty", "url", suggested)
	return nil
}

func (m *Monitor) maybeNotify(ctx context.Context, src config.SourceConfig, current []domain.Offer, history domain.SourceHistory, changes reconcile.Changes, now time.Time, log *slog.Logger) {
	ok, err := m.deps.Debouncer.CanNotify(ctx, src.Name, now)
	if err != nil {
		log.Error("debounce check failed", "error", err)
		return
	}
	if !ok {
		log.Info("notification debounced")
		return
	}

	digest := notify.Digest{
		SourceURL:  src.URL,
		Changes:    changes,
		AllCurrent: current,
		Evaluation: m.evaluate(ctx, src.Name, current, history, log),
	}

	text := notify.RenderDigest(digest)
	if text == "" {
		return
	}

	if err := m.deps.Notifier.Send(ctx, text); err != nil {
		log.Error("notification send failed", "error", err)
		return
	}
	if err := m.deps.Debouncer.RecordNotified(ctx, src.Name, now); err != nil {
		log.Error("record notification time failed", "error", err)
	}
}

// evaluate asks for a commentary blurb; failure never fails the pass. The
// previous context is the cached snapshot from the last pass; when the cache
// is empty, it is rebuilt from history, skipping records already notified
// removed the way a reader would ignore long-gone offers.
func (m *Monitor) evaluate(ctx context.Context, source string, current []domain.Offer, history domain.SourceHistory, log *slog.Logger) string {
	if m.deps.Evaluator == nil || len(current) == 0 {
		return ""
	}

	previous, err := m.deps.Store.LoadSnapshot(ctx, source)
	if err != nil {
		log.Warn("load cached snapshot failed", "error", err)
	}
	if len(previous) == 0 {
		for _, rec := range history {
			if rec.LastNotified != domain.NotifiedRemoved {
				previous = append(previous, rec.Offer)
			}
		}
	}

	text, err := m.deps.Evaluator.WriteEvaluation(ctx, current, previous)
	if err != nil {
		log.Warn("evaluation generation failed", "error", err)
		return ""
	}
	return text
}
