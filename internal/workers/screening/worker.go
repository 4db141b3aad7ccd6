// -----------------------------------------------------------------------
// Screening worker - Multi-phase stock screening work function
// -----------------------------------------------------------------------

package screening

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/indago/internal/interfaces"
	"github.com/ternarybob/indago/internal/jobs"
)

// Phases maps each screening stage onto the global progress scale
var Phases = jobs.PhaseMap{
	"fetch_list": {Start: 0, End: 10},
	"fetch_data": {Start: 10, End: 65},
	"filter":     {Start: 70, End: 85},
	"score":      {Start: 85, End: 95},
	"save":       {Start: 95, End: 100},
}

const fetchBatchSize = 100

// Params selects which strategy a screening job runs
type Params struct {
	Strategy string `json:"strategy"`
}

// ScoredStock is one matched stock with its computed score
type ScoredStock struct {
	Code  string  `json:"code"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Result is the screening job's terminal payload
type Result struct {
	Strategy     string        `json:"strategy"`
	MatchedCount int           `json:"matched_count"`
	TotalScanned int           `json:"total_scanned"`
	TopStocks    []ScoredStock `json:"top_stocks"`
}

// Worker runs screening strategies against live market data
type Worker struct {
	provider      MarketDataProvider
	strategiesDir string
	logger        arbor.ILogger
}

// NewWorker creates a screening worker
func NewWorker(provider MarketDataProvider, strategiesDir string, logger arbor.ILogger) *Worker {
	return &Worker{
		provider:      provider,
		strategiesDir: strategiesDir,
		logger:        logger,
	}
}

// Factory returns the WorkFactory registered under the "screening" kind.
// Strategy resolution happens here so an unknown strategy fails the request,
// not the job.
func (w *Worker) Factory() interfaces.WorkFactory {
	return func(params json.RawMessage) (interfaces.WorkFunc, error) {
		var p Params
		if len(params) > 0 {
			if err := json.Unmarshal(params, &p); err != nil {
				return nil, fmt.Errorf("invalid screening params: %w", err)
			}
		}
		if p.Strategy == "" {
			return nil, fmt.Errorf("screening params require a strategy name")
		}

		strategies, err := LoadStrategies(w.strategiesDir)
		if err != nil {
			return nil, err
		}
		strategy, ok := strategies[p.Strategy]
		if !ok {
			return nil, fmt.Errorf("unknown strategy: %s", p.Strategy)
		}

		return w.run(strategy), nil
	}
}

func (w *Worker) run(strategy *Strategy) interfaces.WorkFunc {
	return func(ctx context.Context, report interfaces.ProgressFunc) (json.RawMessage, error) {
		report(Phases.Percent("fetch_list", 0, 1), "fetch_list", nil)

		codes, err := w.provider.ListCodes(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list stock codes: %w", err)
		}
		total := len(codes)

		stocks, err := w.fetchWithProgress(ctx, report, codes)
		if err != nil {
			return nil, err
		}

		matched, err := w.filterWithProgress(ctx, report, strategy, stocks)
		if err != nil {
			return nil, err
		}

		report(Phases.Percent("score", 0, 1), "score", map[string]interface{}{
			"matched": len(matched),
		})

		scored := make([]ScoredStock, 0, len(matched))
		for _, stock := range matched {
			scored = append(scored, ScoredStock{
				Code:  stock.Code,
				Name:  stock.Name,
				Score: strategy.Score(stock),
			})
		}
		sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

		report(Phases.Percent("save", 0, 1), "save", nil)

		top := scored
		if len(top) > strategy.TopN {
			top = top[:strategy.TopN]
		}

		result := Result{
			Strategy:     strategy.Name,
			MatchedCount: len(scored),
			TotalScanned: len(stocks),
			TopStocks:    top,
		}

		w.logger.Info().
			Str("strategy", strategy.Name).
			Int("matched", result.MatchedCount).
			Int("scanned", result.TotalScanned).
			Int("universe", total).
			Msg("Screening run finished")

		return json.Marshal(result)
	}
}

// fetchWithProgress pulls indicator data in batches, reporting progress on
// the fetch_data sub-range and honoring cancellation between batches
func (w *Worker) fetchWithProgress(ctx context.Context, report interfaces.ProgressFunc, codes []string) ([]Stock, error) {
	total := len(codes)
	stocks := make([]Stock, 0, total)

	for i := 0; i < total; i += fetchBatchSize {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		end := i + fetchBatchSize
		if end > total {
			end = total
		}

		batch, err := w.provider.FetchStocks(ctx, codes[i:end])
		if err != nil {
			return nil, fmt.Errorf("failed to fetch stock data: %w", err)
		}
		stocks = append(stocks, batch...)

		report(Phases.Percent("fetch_data", end, total), "fetch_data", map[string]interface{}{
			"fetched": end,
			"total":   total,
		})
	}

	return stocks, nil
}

// filterWithProgress applies the strategy filters, reporting on the filter
// sub-range every 100 stocks
func (w *Worker) filterWithProgress(ctx context.Context, report interfaces.ProgressFunc, strategy *Strategy, stocks []Stock) ([]Stock, error) {
	report(Phases.Percent("filter", 0, 1), "filter", nil)

	var matched []Stock
	total := len(stocks)

	for i, stock := range stocks {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		ok := true
		for _, cond := range strategy.Filters {
			if !cond.Match(stock) {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, stock)
		}

		if i > 0 && i%100 == 0 {
			report(Phases.Percent("filter", i, total), "filter", map[string]interface{}{
				"screened": i,
				"matched":  len(matched),
			})
		}
	}

	return matched, nil
}
