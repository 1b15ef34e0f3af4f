package analysis

import (
	"sort"
	"time"

	"market-engine/src/models"

	"github.com/shopspring/decimal"
)

// TimeSeriesResampler handles time-based resampling calculations.
type TimeSeriesResampler struct{}

// Window is one resampling bucket: the indices of the sorted input that fall
// into [StartTime, EndTime).
type Window struct {
	Indices   []int
	StartTime int64
	EndTime   int64
}

// -----------------------------------------------------------------------------

// ResampleIndices groups ascending timestamps into epoch-aligned windows of
// windowSeconds. Empty windows are omitted.
func (r *TimeSeriesResampler) ResampleIndices(timestamps []int64, windowSeconds int64) []Window {
	if len(timestamps) == 0 || windowSeconds <= 0 {
		return []Window{}
	}

	sortedTimestamps := make([]int64, len(timestamps))
	copy(sortedTimestamps, timestamps)
	sort.Slice(sortedTimestamps, func(i, j int) bool {
		return sortedTimestamps[i] < sortedTimestamps[j]
	})

	var results []Window

	for i := 0; i < len(sortedTimestamps); {
		windowStart, windowEnd := CalculateWindowBoundaries(sortedTimestamps[i], windowSeconds)

		endIdx := SearchSorted(sortedTimestamps, windowEnd, "left")

		indices := make([]int, endIdx-i)
		for idx := i; idx < endIdx; idx++ {
			indices[idx-i] = idx
		}
		results = append(results, Window{Indices: indices, StartTime: windowStart, EndTime: windowEnd})
		i = endIdx
	}

	return results
}

// -----------------------------------------------------------------------------

// ResampleBars aggregates ascending OHLCV points into bars of windowSeconds.
// Each output bar is stamped with its window start and labeled interval.
// Points without OHLCV contribute their price as a flat bar.
func (r *TimeSeriesResampler) ResampleBars(points []models.MPricePoint, windowSeconds int64, interval models.Interval) ([]models.MPricePoint, error) {
	if len(points) == 0 {
		return nil, nil
	}

	sorted := make([]models.MPricePoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	timestamps := make([]int64, len(sorted))
	for i, p := range sorted {
		timestamps[i] = p.Timestamp.Unix()
	}

	var bars []models.MPricePoint
	for _, w := range r.ResampleIndices(timestamps, windowSeconds) {
		var agg models.MOHLCV
		for n, idx := range w.Indices {
			bar := barOf(sorted[idx])
			if n == 0 {
				agg = bar
				continue
			}
			agg.High = decimal.Max(agg.High, bar.High)
			agg.Low = decimal.Min(agg.Low, bar.Low)
			agg.Close = bar.Close
			agg.Volume += bar.Volume
		}

		first := sorted[w.Indices[0]]
		p, err := models.NewPricePoint(
			first.Ticker,
			models.MPrice{Amount: agg.Close, Currency: first.Price.Currency},
			time.Unix(w.StartTime, 0).UTC(),
			first.Source,
			interval,
			&agg,
		)
		if err != nil {
			return nil, err
		}
		bars = append(bars, p)
	}
	return bars, nil
}

func barOf(p models.MPricePoint) models.MOHLCV {
	if p.OHLCV != nil {
		return *p.OHLCV
	}
	a := p.Price.Amount
	return models.MOHLCV{Open: a, High: a, Low: a, Close: a}
}

// -----------------------------------------------------------------------------

// SearchSorted returns the insertion index of value in arr; side is "left" or "right".
func SearchSorted(arr []int64, value int64, side string) int {
	if side == "left" {
		return sort.Search(len(arr), func(i int) bool {
			return arr[i] >= value
		})
	}
	return sort.Search(len(arr), func(i int) bool {
		return arr[i] > value
	})
}

// -----------------------------------------------------------------------------

// CalculateWindowBoundaries returns the epoch-aligned window containing ts.
func CalculateWindowBoundaries(ts int64, window int64) (int64, int64) {
	start := ts - (ts % window)
	return start, start + window
}
