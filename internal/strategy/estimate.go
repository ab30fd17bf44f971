package strategy

import (
	"math"
	"strconv"
	"strings"
)

// MaxChartPoints bounds the series callers should render. Estimate itself
// is not capped.
const MaxChartPoints = 4096

// PricePoint is one cycle of the estimated price band. Prices are input
// spent per unit of output. MinPrice comes from the max-output bound and
// MaxPrice from the min-output bound.
type PricePoint struct {
	X        float64 `json:"x"`
	MinPrice float64 `json:"min_price"`
	MaxPrice float64 `json:"max_price"`
	AvgPrice float64 `json:"avg_price"`
}

type ChartData struct {
	Points     []PricePoint `json:"points"`
	Line       string       `json:"line"`
	BandTop    string       `json:"band_top"`
	BandBottom string       `json:"band_bottom"`
	Polygon    string       `json:"polygon"`
}

// EstimateLength is the number of points Estimate returns for cycleCount.
func EstimateLength(cycleCount string) int {
	c := numberOrZero(cycleCount)
	if c < 1 {
		return 1
	}
	if c > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(math.Floor(c))
}

func Estimate(total, cycleCount, minOut, maxOut string) []PricePoint {
	count := EstimateLength(cycleCount)
	perCycleIn := numberOrZero(total) / float64(count)
	minBound := numberOrZero(minOut)
	maxBound := numberOrZero(maxOut)

	minPrice := 0.0
	if maxBound > 0 {
		minPrice = perCycleIn / maxBound
	}
	maxPrice := 0.0
	if minBound > 0 {
		maxPrice = perCycleIn / minBound
	}
	avgPrice := perCycleIn
	if minPrice > 0 && maxPrice > 0 {
		avgPrice = (minPrice + maxPrice) / 2
	}

	span := float64(count - 1)
	if span < 1 {
		span = 1
	}
	points := make([]PricePoint, count)
	for i := range points {
		points[i] = PricePoint{
			X:        float64(i) / span * 100,
			MinPrice: minPrice,
			MaxPrice: maxPrice,
			AvgPrice: avgPrice,
		}
	}
	return points
}

// Normalize maps a price onto a 0..100 plot axis where higher prices sit
// nearer the top.
func Normalize(value, maxValue float64) float64 {
	if maxValue == 0 {
		return 0
	}
	return 100 - (value/maxValue)*100
}

// MaxPriceOverall is the normalisation ceiling, never below 1.
func MaxPriceOverall(points []PricePoint) float64 {
	ceiling := 1.0
	for _, p := range points {
		if p.MaxPrice > ceiling {
			ceiling = p.MaxPrice
		}
	}
	return ceiling
}

// Chart renders points into SVG point lists on a 100x100 view box: the
// average line plus a band polygon running along the max-price curve and
// back along the min-price curve.
func Chart(points []PricePoint) ChartData {
	ceiling := MaxPriceOverall(points)
	line := make([]string, len(points))
	top := make([]string, len(points))
	bottom := make([]string, len(points))
	for i, p := range points {
		line[i] = coord(p.X, Normalize(p.AvgPrice, ceiling))
		top[i] = coord(p.X, Normalize(orAvg(p.MaxPrice, p.AvgPrice), ceiling))
		rev := points[len(points)-1-i]
		bottom[i] = coord(rev.X, Normalize(orAvg(rev.MinPrice, rev.AvgPrice), ceiling))
	}
	data := ChartData{
		Points:     points,
		Line:       strings.Join(line, " "),
		BandTop:    strings.Join(top, " "),
		BandBottom: strings.Join(bottom, " "),
	}
	data.Polygon = strings.TrimSpace(data.BandTop + " " + data.BandBottom)
	return data
}

func orAvg(v, avg float64) float64 {
	if v == 0 {
		return avg
	}
	return v
}

func coord(x, y float64) string {
	return formatNumber(x) + "," + formatNumber(y)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func numberOrZero(raw string) float64 {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0
	}
	v, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
