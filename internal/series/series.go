package series

import (
	"fmt"
	"math"
	"sync"
)

// yAxisMargin pads the Y bounds so plotted lines never touch the frame.
const yAxisMargin = 0.5

// FieldSeries holds the points for one channel field. Capacity is fixed
// at construction; Append never grows past it.
type FieldSeries struct {
	mu       sync.RWMutex
	label    string
	capacity int
	points   []Point
}

// NewFieldSeries creates an empty series with the given label and capacity
func NewFieldSeries(label string, capacity int) *FieldSeries {
	if capacity < 1 {
		capacity = 1
	}
	return &FieldSeries{
		label:    label,
		capacity: capacity,
		points:   make([]Point, 0, capacity),
	}
}

// Label returns the display label for the field
func (s *FieldSeries) Label() string {
	return s.label
}

// Capacity returns the maximum number of points the series holds
func (s *FieldSeries) Capacity() int {
	return s.capacity
}

// Len returns the current number of points
func (s *FieldSeries) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points)
}

// Append adds a point to the series. It fails once the series is at
// capacity rather than evicting older points; a refresh always builds
// a fresh series, so eviction never applies.
func (s *FieldSeries) Append(p Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.points) >= s.capacity {
		return fmt.Errorf("series %q at capacity %d", s.label, s.capacity)
	}
	s.points = append(s.points, p)
	return nil
}

// Points returns a copy of all points in insertion order
func (s *FieldSeries) Points() []Point {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Point, len(s.points))
	copy(out, s.points)
	return out
}

// Bounds holds axis boundaries for plotting a series
type Bounds struct {
	XMin float64 `json:"x_min"`
	XMax float64 `json:"x_max"`
	YMin float64 `json:"y_min"`
	YMax float64 `json:"y_max"`
}

// AxisBounds returns the plot boundaries for the series, with a fixed
// margin applied to the Y axis. ok is false for an empty series.
func (s *FieldSeries) AxisBounds() (Bounds, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.points) == 0 {
		return Bounds{}, false
	}

	yMin := s.points[0].Y
	yMax := s.points[0].Y
	for _, p := range s.points[1:] {
		if p.Y < yMin {
			yMin = p.Y
		}
		if p.Y > yMax {
			yMax = p.Y
		}
	}

	return Bounds{
		XMin: float64(s.points[0].X),
		XMax: float64(s.points[len(s.points)-1].X),
		YMin: yMin - yAxisMargin,
		YMax: yMax + yAxisMargin,
	}, true
}

// NearestPoint returns the point in the column nearest to the cursor X
// whose Y value is closest to the cursor Y. ok is false when the series
// is empty or the rounded X falls outside the stored index range.
func (s *FieldSeries) NearestPoint(x, y float64) (Point, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.points) == 0 {
		return Point{}, false
	}

	col := int(math.Round(x))
	if col < 0 || col >= len(s.points) {
		return Point{}, false
	}

	// X values are the contiguous index 0..N-1, so the column lookup is
	// a direct index. The Y coordinate picks between overlapping points
	// in the same column, which only occurs if indices ever repeat.
	best := s.points[col]
	bestDist := math.Abs(best.Y - y)
	for _, p := range s.points {
		if p.X != col {
			continue
		}
		if d := math.Abs(p.Y - y); d < bestDist {
			best = p
			bestDist = d
		}
	}
	return best, true
}
