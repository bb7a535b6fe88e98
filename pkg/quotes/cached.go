package quotes

import (
	"context"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/Rohianon/ptracker/pkg/metrics"
)

// CachedSource memoises profiles, which are fetched once per asset and
// effectively never change. Quotes, history and search results pass
// straight through: a valuation run must always see fresh prices.
type CachedSource struct {
	next     Source
	name     string
	profiles *lru.Cache
}

func NewCachedSource(next Source, name string, profileCacheSize int) (*CachedSource, error) {
	if profileCacheSize <= 0 {
		profileCacheSize = 128
	}
	cache, err := lru.New(profileCacheSize)
	if err != nil {
		return nil, err
	}
	return &CachedSource{next: next, name: name, profiles: cache}, nil
}

func (s *CachedSource) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	q, err := s.next.GetQuote(ctx, symbol)
	metrics.RecordQuoteFetch(s.name, outcomeOf(err))
	return q, err
}

func (s *CachedSource) GetProfile(ctx context.Context, symbol string) (*Profile, error) {
	if v, ok := s.profiles.Get(symbol); ok {
		metrics.RecordQuoteFetch(s.name, metrics.OutcomeCacheHit)
		return v.(*Profile), nil
	}
	p, err := s.next.GetProfile(ctx, symbol)
	metrics.RecordQuoteFetch(s.name, outcomeOf(err))
	if err != nil {
		return nil, err
	}
	s.profiles.Add(symbol, p)
	return p, nil
}

func (s *CachedSource) GetHistory(ctx context.Context, symbol string, start, end time.Time) ([]HistoryPoint, error) {
	h, err := s.next.GetHistory(ctx, symbol, start, end)
	metrics.RecordQuoteFetch(s.name, outcomeOf(err))
	return h, err
}

func (s *CachedSource) Search(ctx context.Context, text string) ([]SearchResult, error) {
	r, err := s.next.Search(ctx, text)
	metrics.RecordQuoteFetch(s.name, outcomeOf(err))
	return r, err
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, ErrNotFound):
		return metrics.OutcomeNotFound
	default:
		return metrics.OutcomeError
	}
}
