package pricing

import (
	"sort"
	"time"

	"github.com/kellerb/sam-watch/internal/models"
)

const trendThreshold = 0.05

// PriceStats aggregates the priced sub-population of a match set. Unit-price
// and total-value statistics are computed independently, each over only the
// records where that field is present and positive.
type PriceStats struct {
	PricedCount     int     `json:"priced_count"`
	UnitPriceMin    float64 `json:"unit_price_min"`
	UnitPriceMax    float64 `json:"unit_price_max"`
	UnitPriceMean   float64 `json:"unit_price_mean"`
	UnitPriceMedian float64 `json:"unit_price_median"`

	TotalValueMin    float64 `json:"total_value_min"`
	TotalValueMax    float64 `json:"total_value_max"`
	TotalValueMean   float64 `json:"total_value_mean"`
	TotalValueMedian float64 `json:"total_value_median"`

	// Trend is "up", "down", "stable", or "unknown" (fewer than 4 priced
	// records).
	Trend string `json:"trend"`
}

// ComputeStats builds statistics over a match set. Returns nil when no
// record carries a positive unit price or total value; absence is not zero.
func ComputeStats(awards []models.ContractAward) *PriceStats {
	type pricedPoint struct {
		price float64
		date  time.Time
	}

	var priced []pricedPoint
	var unitPrices, totalValues []float64
	for _, a := range awards {
		if a.UnitPrice != nil && *a.UnitPrice > 0 {
			unitPrices = append(unitPrices, *a.UnitPrice)
			point := pricedPoint{price: *a.UnitPrice}
			if a.SignedDate != nil {
				point.date = *a.SignedDate
			}
			priced = append(priced, point)
		}
		if a.TotalValue > 0 {
			totalValues = append(totalValues, a.TotalValue)
		}
	}

	if len(unitPrices) == 0 && len(totalValues) == 0 {
		return nil
	}

	stats := &PriceStats{PricedCount: len(unitPrices), Trend: "unknown"}
	if len(unitPrices) > 0 {
		stats.UnitPriceMin, stats.UnitPriceMax, stats.UnitPriceMean, stats.UnitPriceMedian = describe(unitPrices)
	}
	if len(totalValues) > 0 {
		stats.TotalValueMin, stats.TotalValueMax, stats.TotalValueMean, stats.TotalValueMedian = describe(totalValues)
	}

	if len(priced) >= 4 {
		sort.SliceStable(priced, func(i, j int) bool { return priced[i].date.Before(priced[j].date) })
		chronological := make([]float64, len(priced))
		for i, p := range priced {
			chronological[i] = p.price
		}
		stats.Trend = classifyTrend(chronological)
	}

	return stats
}

// describe returns min/max/mean/median. Median is the middle element of the
// ascending-sorted list at index floor(n/2), not an interpolated median,
// for output parity with the consumer tooling downstream.
func describe(values []float64) (min, max, mean, median float64) {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	min = sorted[0]
	max = sorted[len(sorted)-1]
	var sum float64
	for _, v := range sorted {
		sum += v
	}
	mean = sum / float64(len(sorted))
	median = sorted[len(sorted)/2]
	return
}

// classifyTrend splits chronologically ordered unit prices at the midpoint
// and compares half means: up above +5%, down below -5%, stable within.
func classifyTrend(chronological []float64) string {
	mid := len(chronological) / 2
	older := meanOf(chronological[:mid])
	newer := meanOf(chronological[mid:])
	if older <= 0 {
		return "unknown"
	}

	change := (newer - older) / older
	switch {
	case change > trendThreshold:
		return "up"
	case change < -trendThreshold:
		return "down"
	default:
		return "stable"
	}
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
