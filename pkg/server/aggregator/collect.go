package aggregator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Magicwander/OKX-submission-complete/pkg/metrics"
	"github.com/Magicwander/OKX-submission-complete/pkg/server/sources"
)

// Collect fetches symbol from every source concurrently, each bounded by
// FetchTimeout. Answered quotes keep the order of srcs; failures are
// returned per source name and never abort the others.
func (a *PriceAggregator) Collect(ctx context.Context, symbol string, srcs []sources.MarketDataSource) ([]sources.Quote, map[string]error) {
	type result struct {
		quote sources.Quote
		err   error
	}
	results := make([]result, len(srcs))

	var wg sync.WaitGroup
	for i, src := range srcs {
		wg.Add(1)
		go func(i int, src sources.MarketDataSource) {
			defer wg.Done()
			fetchCtx, cancel := context.WithTimeout(ctx, a.cfg.FetchTimeout)
			defer cancel()
			q, err := src.Fetch(fetchCtx, symbol)
			if err == nil && q.Source == "" {
				q.Source = src.Name()
			}
			results[i] = result{quote: q, err: err}
		}(i, src)
	}
	wg.Wait()

	quotes := make([]sources.Quote, 0, len(srcs))
	errs := make(map[string]error)
	for i, r := range results {
		if r.err != nil {
			errs[srcs[i].Name()] = r.err
			continue
		}
		quotes = append(quotes, r.quote)
	}
	return quotes, errs
}

// Price collects quotes and aggregates them as of now.
func (a *PriceAggregator) Price(ctx context.Context, symbol string, srcs []sources.MarketDataSource, now func() time.Time) (q AggregatedQuote, err error) {
	start := time.Now()
	defer func() {
		if err == nil {
			metrics.RecordAggregation(symbol, q.Confidence, time.Since(start))
		}
	}()

	quotes, errs := a.Collect(ctx, symbol, srcs)
	for name, fetchErr := range errs {
		a.logger.Warn("Source fetch failed", "symbol", symbol, "source", name, "error", fetchErr)
	}
	if ctx.Err() != nil {
		return AggregatedQuote{}, fmt.Errorf("collect %s: %w", symbol, ctx.Err())
	}
	return a.Aggregate(symbol, quotes, now())
}
