package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// Limited throttles an inner Completer. The grounding cache rarely hits, so
// the call budget is enforced here rather than assumed from cache reuse.
type Limited struct {
	inner   Completer
	limiter *rate.Limiter
}

// NewLimited allows perMinute calls per minute with the given burst.
// A non-positive perMinute disables limiting.
func NewLimited(inner Completer, perMinute, burst int) *Limited {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(float64(perMinute) / 60)
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limited{inner: inner, limiter: rate.NewLimiter(limit, burst)}
}

func (l *Limited) Complete(ctx context.Context, req Request) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return l.inner.Complete(ctx, req)
}
