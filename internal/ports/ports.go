package ports

import (
	"context"
	"time"

	"offerwatch/internal/domain"
)

// PageFetcher retrieves raw page content for a monitored URL.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// ExtractResult is the outcome of one extraction call. Exactly one of Offers
// and SuggestedURL is meaningful: when the extractor cannot find listings but
// spots a link to a listing page, it returns that link instead.
type ExtractResult struct {
	Offers       []domain.Offer
	SuggestedURL string
}

// OfferExtractor turns unstructured page content into structured offers.
type OfferExtractor interface {
	ExtractOffers(ctx context.Context, content, instruction string) (ExtractResult, error)
}

// SimilarityJudge answers whether two offers denote the same underlying
// product. Implementations may be probabilistic or remote; callers must
// tolerate errors and degrade.
type SimilarityJudge interface {
	JudgeSimilar(ctx context.Context, a, b domain.Offer) (bool, error)
}

// EvaluationWriter produces a short free-text commentary on a snapshot,
// given the previously seen offers as context.
type EvaluationWriter interface {
	WriteEvaluation(ctx context.Context, current, previous []domain.Offer) (string, error)
}

// HistoryStore persists per-source reconciliation state.
type HistoryStore interface {
	LoadHistory(ctx context.Context, source string) (domain.SourceHistory, error)
	ReplaceHistory(ctx context.Context, source string, history domain.SourceHistory) error
	LoadSnapshot(ctx context.Context, source string) ([]domain.Offer, error)
	SaveSnapshot(ctx context.Context, source string, offers []domain.Offer) error
}

// NotificationLog persists the last-notification timestamp per source for
// debounce decisions. LastNotified returns the zero time for a source that
// was never notified.
type NotificationLog interface {
	LastNotified(ctx context.Context, source string) (time.Time, error)
	RecordNotified(ctx context.Context, source string, at time.Time) error
}

// Notifier transmits an outbound alert. Delivery is best-effort.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// Scheduler controls when monitoring passes execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
