package aggregator

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

func simpleMean(quotes []weightedQuote) decimal.Decimal {
	sum := decimal.Zero
	for _, q := range quotes {
		sum = sum.Add(q.quote.Price)
	}
	return sum.Div(decimal.NewFromInt(int64(len(quotes))))
}

// stdDev is the population standard deviation around mean.
// Formula: σ = sqrt(Σ(Pi - mean)² / n).
func stdDev(quotes []weightedQuote, mean decimal.Decimal) decimal.Decimal {
	if len(quotes) < 2 {
		return decimal.Zero
	}

	sumSquaredDev := decimal.Zero
	for _, q := range quotes {
		deviation := q.quote.Price.Sub(mean)
		sumSquaredDev = sumSquaredDev.Add(deviation.Mul(deviation))
	}
	variance := sumSquaredDev.Div(decimal.NewFromInt(int64(len(quotes))))

	// sqrt in float64 is precise enough for a filter threshold
	varianceFloat, _ := variance.Float64()
	return decimal.NewFromFloat(math.Sqrt(varianceFloat))
}

// weightedAverage calculates the weighted arithmetic mean of prices.
func weightedAverage(quotes []weightedQuote) decimal.Decimal {
	if len(quotes) == 0 {
		return decimal.Zero
	}
	if len(quotes) == 1 {
		return quotes[0].quote.Price
	}

	weightedSum := decimal.Zero
	totalWeight := decimal.Zero
	for _, q := range quotes {
		w := decimal.NewFromFloat(q.weight)
		weightedSum = weightedSum.Add(q.quote.Price.Mul(w))
		totalWeight = totalWeight.Add(w)
	}
	if totalWeight.IsZero() {
		return decimal.Zero
	}
	return weightedSum.Div(totalWeight)
}

// weightedMedian returns the price where the cumulative weight reaches half
// of the total; an exact half between two prices averages them.
func weightedMedian(quotes []weightedQuote) decimal.Decimal {
	n := len(quotes)
	if n == 0 {
		return decimal.Zero
	}
	if n == 1 {
		return quotes[0].quote.Price
	}

	sorted := make([]weightedQuote, n)
	copy(sorted, quotes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].quote.Price.LessThan(sorted[j].quote.Price)
	})

	totalWeight := 0.0
	for _, q := range sorted {
		totalWeight += q.weight
	}

	target := totalWeight / 2.0
	cumulative := 0.0
	for i, q := range sorted {
		cumulative += q.weight
		if cumulative >= target {
			if cumulative == target && i+1 < n {
				return q.quote.Price.Add(sorted[i+1].quote.Price).Div(decimal.NewFromInt(2))
			}
			return q.quote.Price
		}
	}
	return sorted[n/2].quote.Price
}
