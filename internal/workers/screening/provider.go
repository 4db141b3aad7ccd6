package screening

import "context"

// Stock carries a listed company's identity and its current indicator values
// (pe, pb, roe, market_cap and friends). Absent indicators mean the upstream
// data source had a gap for that field.
type Stock struct {
	Code       string             `json:"code"`
	Name       string             `json:"name"`
	Indicators map[string]float64 `json:"indicators"`
}

// MarketDataProvider supplies the stock universe and per-stock indicator data
type MarketDataProvider interface {
	// ListCodes returns every stock code in the screening universe
	ListCodes(ctx context.Context) ([]string, error)

	// FetchStocks returns indicator data for the given codes. Codes with no
	// available data are silently omitted.
	FetchStocks(ctx context.Context, codes []string) ([]Stock, error)
}
