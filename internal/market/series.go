package market

import "sort"

// Point is one day of a historical price series. Date is the identity key,
// formatted 2006-01-02; Timestamp is unix milliseconds.
type Point struct {
	Date      string  `json:"date"`
	Timestamp int64   `json:"timestamp"`
	Price     float64 `json:"price"`
}

// SortPoints orders a series ascending by date in place.
func SortPoints(points []Point) {
	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })
}

// MergeSeries combines two date-keyed series. Points from primary are kept
// as-is; secondary only fills dates primary does not cover. Historical prices
// never change, so an existing date is never overwritten. The result is
// sorted ascending by date with no duplicate dates.
func MergeSeries(primary, secondary []Point) []Point {
	byDate := make(map[string]Point, len(primary)+len(secondary))
	for _, p := range primary {
		if _, ok := byDate[p.Date]; !ok {
			byDate[p.Date] = p
		}
	}
	for _, p := range secondary {
		if _, ok := byDate[p.Date]; !ok {
			byDate[p.Date] = p
		}
	}

	merged := make([]Point, 0, len(byDate))
	for _, p := range byDate {
		merged = append(merged, p)
	}
	SortPoints(merged)
	return merged
}

// SeriesBounds returns the first and last date of a series, or ok=false for
// an empty series. The series is not assumed sorted.
func SeriesBounds(points []Point) (first, last string, ok bool) {
	if len(points) == 0 {
		return "", "", false
	}
	first, last = points[0].Date, points[0].Date
	for _, p := range points[1:] {
		if p.Date < first {
			first = p.Date
		}
		if p.Date > last {
			last = p.Date
		}
	}
	return first, last, true
}
