// Package pricesource fetches token price history over HTTP and decodes the
// item payloads shared by the live API and the backtest files.
package pricesource

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"token-sentry/internal/model"
)

// Source is the single price-source interface the monitor consumes.
// Fetch returns samples with from < t <= to in chronological order.
type Source interface {
	Fetch(ctx context.Context, token string, from, to int64) ([]model.Sample, error)
}

// Payload is the {data:{items:[...]}} envelope. Items carry either a single
// value or an o/h/l/c/v quintuple.
type Payload struct {
	Data struct {
		Items []Item `json:"items"`
	} `json:"data"`
}

// Item is one price observation. Numbers are decoded as decimals so quoted
// and unquoted values are accepted without float re-parsing.
type Item struct {
	UnixTime *int64           `json:"unixTime"`
	Value    *decimal.Decimal `json:"value,omitempty"`
	O        *decimal.Decimal `json:"o,omitempty"`
	H        *decimal.Decimal `json:"h,omitempty"`
	L        *decimal.Decimal `json:"l,omitempty"`
	C        *decimal.Decimal `json:"c,omitempty"`
	V        *decimal.Decimal `json:"v,omitempty"`
}

// Sample converts the item. Price-only items become degenerate OHLC samples.
func (it Item) Sample() (model.Sample, error) {
	if it.UnixTime == nil {
		return model.Sample{}, fmt.Errorf("item missing unixTime: %w", model.ErrSchemaMismatch)
	}
	t := *it.UnixTime

	var s model.Sample
	switch {
	case it.O != nil && it.H != nil && it.L != nil && it.C != nil:
		s = model.Sample{T: t, Open: it.O.InexactFloat64(), High: it.H.InexactFloat64(),
			Low: it.L.InexactFloat64(), Close: it.C.InexactFloat64()}
		if it.V != nil {
			s.Volume = it.V.InexactFloat64()
		}
	case it.Value != nil:
		s = model.NewPriceSample(t, it.Value.InexactFloat64())
	default:
		return model.Sample{}, fmt.Errorf("item at %d has neither value nor o/h/l/c: %w", t, model.ErrSchemaMismatch)
	}
	if !s.Valid() {
		return model.Sample{}, fmt.Errorf("item at %d out of range: %w", t, model.ErrSchemaMismatch)
	}
	return s, nil
}

// Decode parses a payload into chronologically sorted samples. A single bad
// item rejects the whole payload.
func Decode(body []byte) ([]model.Sample, error) {
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode payload: %v: %w", err, model.ErrSchemaMismatch)
	}
	out := make([]model.Sample, 0, len(p.Data.Items))
	for _, it := range p.Data.Items {
		s, err := it.Sample()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].T < out[j].T })
	return out, nil
}

// After returns the suffix of sorted samples with t > last.
func After(samples []model.Sample, last int64) []model.Sample {
	i := sort.Search(len(samples), func(i int) bool { return samples[i].T > last })
	return samples[i:]
}
