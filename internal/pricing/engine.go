package pricing

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kellerb/sam-watch/internal/models"
	"github.com/kellerb/sam-watch/internal/samgov"
)

const (
	// Default lookback window: two years of award history.
	DefaultLookbackDays = 730

	// Below this many cached matches a live fetch is attempted.
	liveFetchFloor = 5

	maxMatches       = 100
	recentWindow     = 6 * 30 * 24 * time.Hour
	highConfidence   = "high"
	mediumConfidence = "medium"
	lowConfidence    = "low"
	noConfidence     = "none"
)

// AwardQuery selects cached awards: any of the codes, optionally narrowed by
// NAICS, signed on or after the cutoff, newest first.
type AwardQuery struct {
	PSCCodes    []string
	NAICSCode   string
	SignedAfter time.Time
	Limit       int
}

// AwardCache is the local award index. Inserts are insert-or-ignore by
// contract number; duplicate-key conflicts are benign races, not errors.
type AwardCache interface {
	QueryAwards(ctx context.Context, q AwardQuery) ([]models.ContractAward, error)
	InsertAwards(ctx context.Context, awards []models.ContractAward) (int, error)
}

// AwardSearcher is the slice of the SAM.gov client the engine uses for live
// fetches.
type AwardSearcher interface {
	SearchAwards(ctx context.Context, params samgov.AwardSearchParams) (*samgov.AwardPage, error)
	IsConfigured() bool
}

type LookupParams struct {
	StockNumber  string   `json:"stock_number,omitempty"`
	PSCCode      string   `json:"psc_code,omitempty"`
	NAICSCode    string   `json:"naics_code,omitempty"`
	Keywords     []string `json:"keywords,omitempty"`
	LookbackDays int      `json:"lookback_days,omitempty"`
}

// Result is always well-formed: pricing intelligence is advisory and a
// lookup never surfaces an error to its caller.
type Result struct {
	Found      bool                   `json:"found"`
	Summary    string                 `json:"summary"`
	Awards     []models.ContractAward `json:"awards"`
	Stats      *PriceStats            `json:"stats"`
	Confidence string                 `json:"confidence"`
	DataSource string                 `json:"data_source"` // cache, api, none
}

type Engine struct {
	Cache    AwardCache
	Client   AwardSearcher
	Families *FamilyMap

	log *zap.SugaredLogger
	now func() time.Time
}

func NewEngine(cache AwardCache, client AwardSearcher, families *FamilyMap, log *zap.SugaredLogger) *Engine {
	return &Engine{
		Cache:    cache,
		Client:   client,
		Families: families,
		log:      log,
		now:      time.Now,
	}
}

// LookupPricing derives the candidate classification codes, reads the local
// award cache, falls back to a live fetch when the cache is thin, and
// aggregates price statistics with a confidence rating. A live-fetch failure
// degrades to cache-only results rather than failing the lookup.
func (e *Engine) LookupPricing(ctx context.Context, params LookupParams) *Result {
	codes := e.candidateCodes(params)
	if len(codes) == 0 {
		return &Result{
			Summary:    "No classification code could be derived from the request",
			Confidence: noConfidence,
			DataSource: "none",
		}
	}

	lookback := params.LookbackDays
	if lookback <= 0 {
		lookback = DefaultLookbackDays
	}
	now := e.now()
	cutoff := now.AddDate(0, 0, -lookback)

	awards, err := e.Cache.QueryAwards(ctx, AwardQuery{
		PSCCodes:    codes,
		NAICSCode:   params.NAICSCode,
		SignedAfter: cutoff,
		Limit:       maxMatches,
	})
	if err != nil {
		e.log.Errorw("award cache query failed", "codes", codes, "error", err)
		awards = nil
	}

	dataSource := "cache"
	if len(awards) < liveFetchFloor && e.Client.IsConfigured() {
		fetched := e.liveFetch(ctx, codes, params.NAICSCode, cutoff, now)
		if len(fetched) > 0 {
			awards = mergeAwards(awards, fetched)
			dataSource = "api"
		}
	}
	if len(awards) == 0 {
		dataSource = "none"
	}
	if len(awards) > maxMatches {
		awards = awards[:maxMatches]
	}

	stats := ComputeStats(awards)
	result := &Result{
		Found:      len(awards) > 0,
		Awards:     awards,
		Stats:      stats,
		Confidence: e.confidence(awards, now),
		DataSource: dataSource,
	}
	result.Summary = summarize(len(awards), stats)
	return result
}

// candidateCodes resolves the search key set: an explicit PSC wins, else the
// stock number's family expanded through the related-family map, else the
// bare NAICS lookup (codes empty, NAICS carries the query).
func (e *Engine) candidateCodes(params LookupParams) []string {
	if params.PSCCode != "" {
		return []string{params.PSCCode}
	}
	if params.StockNumber != "" {
		if family := samgov.PSCFamilyFromNSN(params.StockNumber); family != "" {
			return e.Families.Expand(family)
		}
	}
	if params.NAICSCode != "" {
		// NAICS-only lookups pass no PSC restriction.
		return []string{""}
	}
	return nil
}

func (e *Engine) liveFetch(ctx context.Context, codes []string, naics string, from, to time.Time) []models.ContractAward {
	searchCodes := codes
	if len(searchCodes) == 1 && searchCodes[0] == "" {
		searchCodes = nil
	}

	page, err := e.Client.SearchAwards(ctx, samgov.AwardSearchParams{
		SignedFrom: from,
		SignedTo:   to,
		PSCCodes:   searchCodes,
		NAICSCode:  naics,
		Limit:      maxMatches,
	})
	if err != nil {
		e.log.Warnw("live award fetch failed, degrading to cache-only",
			"codes", searchCodes, "error", err)
		return nil
	}

	for i := range page.Awards {
		page.Awards[i].Keywords = ExtractKeywords(page.Awards[i].Description, e.Families.Keywords)
	}

	if inserted, err := e.Cache.InsertAwards(ctx, page.Awards); err != nil {
		e.log.Warnw("caching fetched awards failed", "error", err)
	} else if inserted > 0 {
		e.log.Debugw("cached fetched awards", "inserted", inserted, "fetched", len(page.Awards))
	}

	return page.Awards
}

// mergeAwards appends fetched awards, deduplicating by contract number
// against what the cache already returned. Cached rows keep priority.
func mergeAwards(cached, fetched []models.ContractAward) []models.ContractAward {
	seen := make(map[string]struct{}, len(cached))
	for _, a := range cached {
		seen[a.ContractNumber] = struct{}{}
	}

	merged := cached
	for _, a := range fetched {
		if _, ok := seen[a.ContractNumber]; ok {
			continue
		}
		seen[a.ContractNumber] = struct{}{}
		merged = append(merged, a)
	}
	return merged
}

// confidence rates the match set. High needs volume, at least one usable
// unit price, and recency; medium needs volume or a price; low is any
// nonzero match; none is none.
func (e *Engine) confidence(awards []models.ContractAward, now time.Time) string {
	if len(awards) == 0 {
		return noConfidence
	}

	hasPrice := false
	hasRecent := false
	for _, a := range awards {
		if a.UnitPrice != nil && *a.UnitPrice > 0 {
			hasPrice = true
		}
		if a.SignedDate != nil && now.Sub(*a.SignedDate) <= recentWindow {
			hasRecent = true
		}
	}

	switch {
	case len(awards) >= 10 && hasPrice && hasRecent:
		return highConfidence
	case len(awards) >= liveFetchFloor || hasPrice:
		return mediumConfidence
	default:
		return lowConfidence
	}
}

func summarize(count int, stats *PriceStats) string {
	if count == 0 {
		return "No historical pricing data found"
	}
	if stats == nil || stats.PricedCount == 0 {
		return fmt.Sprintf("%d comparable awards found; no usable unit pricing", count)
	}
	return fmt.Sprintf("%d comparable awards found; unit prices $%.2f-$%.2f",
		count, stats.UnitPriceMin, stats.UnitPriceMax)
}
