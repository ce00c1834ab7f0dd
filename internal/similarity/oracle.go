package similarity

import (
	"context"
	"log/slog"
	"strings"

	"offerwatch/internal/domain"
	"offerwatch/internal/ports"
)

// Oracle decides whether two offers represent the same underlying product.
// The primary strategy delegates to a remote judge; when the judge errors out
// (retries are the judge's own concern) the oracle falls back to a
// deterministic character-level similarity ratio so a verdict is always
// available.
type Oracle struct {
	judge     ports.SimilarityJudge
	threshold float64
	logger    *slog.Logger
}

// NewOracle wires the remote judge and the fallback threshold. A nil judge
// means fallback-only operation.
func NewOracle(judge ports.SimilarityJudge, threshold float64, logger *slog.Logger) *Oracle {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.9
	}
	return &Oracle{judge: judge, threshold: threshold, logger: logger}
}

// IsSameProduct reports whether a and b denote the same product. Offers
// missing any of CPU/RAM/Storage carry too little signal to judge identity
// and are never considered the same.
func (o *Oracle) IsSameProduct(ctx context.Context, a, b domain.Offer) bool {
	if !a.HasStructure() || !b.HasStructure() {
		return false
	}

	if o.judge != nil {
		same, err := o.judge.JudgeSimilar(ctx, a, b)
		if err == nil {
			return same
		}
		if o.logger != nil {
			o.logger.Warn("similarity judge unavailable, using fallback ratio", "error", err)
		}
	}

	ratio := Ratio(fingerprint(a), fingerprint(b))
	return ratio >= o.threshold
}

func fingerprint(o domain.Offer) string {
	return strings.ToLower(o.CPU + o.RAM + o.Storage)
}

// Ratio returns a normalized similarity in [0, 1] between two strings: twice
// the number of matching characters (longest common substring, recursively
// applied to the flanks) over the combined length.
func Ratio(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	return float64(2*matchingChars(a, b)) / float64(len(a)+len(b))
}

func matchingChars(a, b string) int {
	posA, posB, max := longestCommonRun(a, b)
	if max == 0 {
		return 0
	}
	sum := max
	sum += matchingChars(a[:posA], b[:posB])
	sum += matchingChars(a[posA+max:], b[posB+max:])
	return sum
}

func longestCommonRun(a, b string) (posA, posB, max int) {
	for i := 0; i < len(a); i++ {
		for j := 0; j < len(b); j++ {
			n := 0
			for i+n < len(a) && j+n < len(b) && a[i+n] == b[j+n] {
				n++
			}
			if n > max {
				posA, posB, max = i, j, n
			}
		}
	}
	return posA, posB, max
}
