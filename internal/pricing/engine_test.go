package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kellerb/sam-watch/internal/models"
	"github.com/kellerb/sam-watch/internal/samgov"
)

type fakeCache struct {
	awards    []models.ContractAward
	queryErr  error
	inserted  []models.ContractAward
	insertErr error
	lastQuery AwardQuery
}

func (f *fakeCache) QueryAwards(ctx context.Context, q AwardQuery) ([]models.ContractAward, error) {
	f.lastQuery = q
	return f.awards, f.queryErr
}

func (f *fakeCache) InsertAwards(ctx context.Context, awards []models.ContractAward) (int, error) {
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	f.inserted = append(f.inserted, awards...)
	return len(awards), nil
}

type fakeSearcher struct {
	page       *samgov.AwardPage
	err        error
	configured bool
	calls      int
	lastParams samgov.AwardSearchParams
}

func (f *fakeSearcher) SearchAwards(ctx context.Context, params samgov.AwardSearchParams) (*samgov.AwardPage, error) {
	f.calls++
	f.lastParams = params
	if f.err != nil {
		return nil, f.err
	}
	return f.page, nil
}

func (f *fakeSearcher) IsConfigured() bool { return f.configured }

func testFamilies() *FamilyMap {
	return &FamilyMap{
		Families: map[string][]string{
			"6810": {"6810", "6840", "6850"},
		},
		Keywords: []string{"solvent", "acid"},
	}
}

func newTestEngine(cache *fakeCache, searcher *fakeSearcher) *Engine {
	return NewEngine(cache, searcher, testFamilies(), zap.NewNop().Sugar())
}

func cachedAwards(n int) []models.ContractAward {
	price := 12.5
	signed := time.Now().AddDate(0, -1, 0)
	awards := make([]models.ContractAward, 0, n)
	for i := 0; i < n; i++ {
		awards = append(awards, models.ContractAward{
			ContractNumber: "CACHED-" + string(rune('A'+i)),
			PSCCode:        "6810",
			UnitPrice:      &price,
			SignedDate:     &signed,
			TotalValue:     1000,
		})
	}
	return awards
}

func TestLookupCacheSufficient(t *testing.T) {
	cache := &fakeCache{awards: cachedAwards(6)}
	searcher := &fakeSearcher{configured: true}
	e := newTestEngine(cache, searcher)

	result := e.LookupPricing(context.Background(), LookupParams{PSCCode: "6810"})
	if !result.Found {
		t.Fatal("expected a found result")
	}
	if result.DataSource != "cache" {
		t.Errorf("data source = %q, want cache", result.DataSource)
	}
	if searcher.calls != 0 {
		t.Errorf("live fetch should not run with %d cached matches", len(cache.awards))
	}
}

func TestLookupThinCacheTriggersLiveFetch(t *testing.T) {
	price := 9.99
	signed := time.Now().AddDate(0, -2, 0)
	cache := &fakeCache{awards: cachedAwards(2)}
	searcher := &fakeSearcher{
		configured: true,
		page: &samgov.AwardPage{Awards: []models.ContractAward{
			{ContractNumber: "LIVE-1", PSCCode: "6810", UnitPrice: &price, SignedDate: &signed, Description: "bulk solvent drums"},
			{ContractNumber: "CACHED-A", PSCCode: "6810", UnitPrice: &price, SignedDate: &signed},
		}},
	}
	e := newTestEngine(cache, searcher)

	result := e.LookupPricing(context.Background(), LookupParams{PSCCode: "6810"})
	if searcher.calls != 1 {
		t.Fatalf("expected one live fetch, got %d", searcher.calls)
	}
	if result.DataSource != "api" {
		t.Errorf("data source = %q, want api", result.DataSource)
	}
	// CACHED-A collides with a cached row and must not be duplicated.
	if len(result.Awards) != 3 {
		t.Errorf("expected 3 deduplicated awards, got %d", len(result.Awards))
	}
	if len(cache.inserted) != 2 {
		t.Errorf("fetched awards should be written back, got %d", len(cache.inserted))
	}
	for _, a := range cache.inserted {
		if a.ContractNumber == "LIVE-1" && len(a.Keywords) == 0 {
			t.Error("fetched award should carry extracted keywords")
		}
	}
}

func TestLookupLiveFetchFailureDegrades(t *testing.T) {
	cache := &fakeCache{awards: cachedAwards(2)}
	searcher := &fakeSearcher{configured: true, err: errors.New("upstream down")}
	e := newTestEngine(cache, searcher)

	result := e.LookupPricing(context.Background(), LookupParams{PSCCode: "6810"})
	if !result.Found || len(result.Awards) != 2 {
		t.Fatalf("expected cache-only degradation, got %+v", result)
	}
	if result.DataSource != "cache" {
		t.Errorf("data source = %q, want cache", result.DataSource)
	}
}

func TestLookupCacheErrorStillAnswers(t *testing.T) {
	cache := &fakeCache{queryErr: errors.New("db down")}
	searcher := &fakeSearcher{configured: false}
	e := newTestEngine(cache, searcher)

	result := e.LookupPricing(context.Background(), LookupParams{PSCCode: "6810"})
	if result == nil {
		t.Fatal("lookup must always return a result")
	}
	if result.Found || result.Confidence != "none" || result.DataSource != "none" {
		t.Errorf("expected empty degraded result, got %+v", result)
	}
}

func TestLookupNSNExpandsFamily(t *testing.T) {
	cache := &fakeCache{awards: cachedAwards(6)}
	e := newTestEngine(cache, &fakeSearcher{})

	e.LookupPricing(context.Background(), LookupParams{StockNumber: "6810-01-234-5678"})
	got := cache.lastQuery.PSCCodes
	want := []string{"6810", "6840", "6850"}
	if len(got) != len(want) {
		t.Fatalf("codes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("codes[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLookupExplicitPSCWins(t *testing.T) {
	cache := &fakeCache{awards: cachedAwards(6)}
	e := newTestEngine(cache, &fakeSearcher{})

	e.LookupPricing(context.Background(), LookupParams{StockNumber: "6810-01-234-5678", PSCCode: "8040"})
	if len(cache.lastQuery.PSCCodes) != 1 || cache.lastQuery.PSCCodes[0] != "8040" {
		t.Errorf("explicit PSC should suppress family expansion: %v", cache.lastQuery.PSCCodes)
	}
}

func TestLookupNAICSOnlyOmitsPSCRestriction(t *testing.T) {
	cache := &fakeCache{}
	searcher := &fakeSearcher{configured: true, page: &samgov.AwardPage{}}
	e := newTestEngine(cache, searcher)

	e.LookupPricing(context.Background(), LookupParams{NAICSCode: "325611"})
	if searcher.calls != 1 {
		t.Fatal("expected a live fetch")
	}
	if len(searcher.lastParams.PSCCodes) != 0 {
		t.Errorf("NAICS-only fetch must not pass PSC codes: %v", searcher.lastParams.PSCCodes)
	}
	if searcher.lastParams.NAICSCode != "325611" {
		t.Errorf("NAICS code not forwarded: %q", searcher.lastParams.NAICSCode)
	}
}

func TestLookupNoDerivableCode(t *testing.T) {
	e := newTestEngine(&fakeCache{}, &fakeSearcher{configured: true})
	result := e.LookupPricing(context.Background(), LookupParams{StockNumber: "no-digits-here"})
	if result.Found || result.Confidence != "none" {
		t.Errorf("expected empty result for underivable input, got %+v", result)
	}
}

func TestConfidenceLevels(t *testing.T) {
	now := time.Now()
	e := newTestEngine(&fakeCache{}, &fakeSearcher{})
	price := 5.0
	recent := now.AddDate(0, -1, 0)
	stale := now.AddDate(-1, 0, 0)

	many := make([]models.ContractAward, 10)
	for i := range many {
		many[i] = models.ContractAward{UnitPrice: &price, SignedDate: &recent}
	}

	tests := []struct {
		name   string
		awards []models.ContractAward
		want   string
	}{
		{"empty", nil, "none"},
		{"single unpriced", []models.ContractAward{{SignedDate: &stale}}, "low"},
		{"one priced", []models.ContractAward{{UnitPrice: &price}}, "medium"},
		{"five unpriced", make([]models.ContractAward, 5), "medium"},
		{"volume priced recent", many, "high"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := e.confidence(tc.awards, now); got != tc.want {
				t.Errorf("confidence = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	if got := summarize(0, nil); got != "No historical pricing data found" {
		t.Errorf("empty summary = %q", got)
	}
	if got := summarize(3, nil); got != "3 comparable awards found; no usable unit pricing" {
		t.Errorf("unpriced summary = %q", got)
	}
	got := summarize(4, &PriceStats{PricedCount: 2, UnitPriceMin: 1.5, UnitPriceMax: 2.25})
	if got != "4 comparable awards found; unit prices $1.50-$2.25" {
		t.Errorf("priced summary = %q", got)
	}
}
