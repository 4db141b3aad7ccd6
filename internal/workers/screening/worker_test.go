package screening

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

// fakeProvider serves a fixed in-memory universe
type fakeProvider struct {
	stocks    []Stock
	onFetch   func(codes []string)
	fetchErr  error
	listCalls int
}

func (p *fakeProvider) ListCodes(ctx context.Context) ([]string, error) {
	p.listCalls++
	codes := make([]string, len(p.stocks))
	for i, s := range p.stocks {
		codes[i] = s.Code
	}
	return codes, nil
}

func (p *fakeProvider) FetchStocks(ctx context.Context, codes []string) ([]Stock, error) {
	if p.onFetch != nil {
		p.onFetch(codes)
	}
	if p.fetchErr != nil {
		return nil, p.fetchErr
	}

	byCode := make(map[string]Stock, len(p.stocks))
	for _, s := range p.stocks {
		byCode[s.Code] = s
	}

	var out []Stock
	for _, code := range codes {
		if s, ok := byCode[code]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func makeUniverse(n int) []Stock {
	stocks := make([]Stock, n)
	for i := range stocks {
		stocks[i] = Stock{
			Code: fmt.Sprintf("SH%06d", i),
			Name: fmt.Sprintf("Stock %d", i),
			Indicators: map[string]float64{
				"pe":  float64(i%40 + 1),
				"roe": float64(i % 25),
			},
		}
	}
	return stocks
}

func writeStrategy(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "value.yaml"), []byte(content), 0o644))
}

const valueStrategy = `
name: value
description: Low PE with decent returns
filters:
  - field: pe
    operator: lt
    value: 15
  - field: roe
    operator: gte
    value: 10
scoring:
  - field: roe
    weight: 2.0
  - field: pe
    weight: -0.5
top_n: 5
`

func newTestWorker(t *testing.T, provider MarketDataProvider) *Worker {
	t.Helper()

	dir := t.TempDir()
	writeStrategy(t, dir, valueStrategy)
	return NewWorker(provider, dir, arbor.NewLogger())
}

type progressCapture struct {
	percents []int
	phases   []string
}

func (c *progressCapture) report(percent int, phase string, detail map[string]interface{}) {
	c.percents = append(c.percents, percent)
	c.phases = append(c.phases, phase)
}

func TestScreeningRun(t *testing.T) {
	provider := &fakeProvider{stocks: makeUniverse(250)}
	worker := newTestWorker(t, provider)

	fn, err := worker.Factory()(json.RawMessage(`{"strategy":"value"}`))
	require.NoError(t, err)

	capture := &progressCapture{}
	raw, err := fn(context.Background(), capture.report)
	require.NoError(t, err)

	var result Result
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, "value", result.Strategy)
	assert.Equal(t, 250, result.TotalScanned)
	assert.Greater(t, result.MatchedCount, 0)
	assert.LessOrEqual(t, len(result.TopStocks), 5)

	// Every matched stock satisfies the filters
	for _, s := range result.TopStocks {
		assert.NotEmpty(t, s.Code)
	}

	// Top stocks are sorted by score, best first
	for i := 1; i < len(result.TopStocks); i++ {
		assert.GreaterOrEqual(t, result.TopStocks[i-1].Score, result.TopStocks[i].Score)
	}

	// Progress moved through the phases in order and never decreased
	assert.Contains(t, capture.phases, "fetch_list")
	assert.Contains(t, capture.phases, "fetch_data")
	assert.Contains(t, capture.phases, "filter")
	assert.Contains(t, capture.phases, "score")
	assert.Contains(t, capture.phases, "save")
	for i := 1; i < len(capture.percents); i++ {
		assert.GreaterOrEqual(t, capture.percents[i], capture.percents[i-1])
	}
}

func TestScreeningFactoryRejectsUnknownStrategy(t *testing.T) {
	worker := newTestWorker(t, &fakeProvider{})

	_, err := worker.Factory()(json.RawMessage(`{"strategy":"momentum"}`))
	assert.ErrorContains(t, err, "unknown strategy")
}

func TestScreeningFactoryRequiresStrategy(t *testing.T) {
	worker := newTestWorker(t, &fakeProvider{})

	_, err := worker.Factory()(nil)
	assert.ErrorContains(t, err, "strategy name")
}

func TestScreeningCancelledMidFetch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	provider := &fakeProvider{stocks: makeUniverse(300)}
	provider.onFetch = func(codes []string) {
		cancel() // Cancel after the first batch
	}
	worker := newTestWorker(t, provider)

	fn, err := worker.Factory()(json.RawMessage(`{"strategy":"value"}`))
	require.NoError(t, err)

	_, err = fn(ctx, func(int, string, map[string]interface{}) {})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScreeningPropagatesProviderError(t *testing.T) {
	provider := &fakeProvider{stocks: makeUniverse(10), fetchErr: fmt.Errorf("upstream down")}
	worker := newTestWorker(t, provider)

	fn, err := worker.Factory()(json.RawMessage(`{"strategy":"value"}`))
	require.NoError(t, err)

	_, err = fn(context.Background(), func(int, string, map[string]interface{}) {})
	assert.ErrorContains(t, err, "upstream down")
}

func TestFilterConditionMissingIndicator(t *testing.T) {
	cond := FilterCondition{Field: "pb", Operator: "lt", Value: 2}
	stock := Stock{Code: "SH000001", Indicators: map[string]float64{"pe": 10}}
	assert.False(t, cond.Match(stock), "missing indicator must never match")
}

func TestLoadStrategyValidation(t *testing.T) {
	dir := t.TempDir()

	// Missing filters
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: bad\n"), 0o644))
	_, err := LoadStrategy(path)
	assert.Error(t, err)

	// Bad operator
	require.NoError(t, os.WriteFile(path, []byte(`
name: bad
filters:
  - field: pe
    operator: above
    value: 10
`), 0o644))
	_, err = LoadStrategy(path)
	assert.Error(t, err)
}

func TestLoadStrategiesDirectory(t *testing.T) {
	dir := t.TempDir()
	writeStrategy(t, dir, valueStrategy)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	strategies, err := LoadStrategies(dir)
	require.NoError(t, err)
	require.Len(t, strategies, 1)
	assert.Equal(t, 5, strategies["value"].TopN)
}
