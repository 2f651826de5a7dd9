package series

import (
	"fmt"
	"testing"
)

func buildSeries(t *testing.T, label string, capacity int, ys []float64) *FieldSeries {
	t.Helper()
	s := NewFieldSeries(label, capacity)
	for i, y := range ys {
		p := NewPoint(1000+i, i, y, fmt.Sprintf("2024-12-23 23:%02d:00", i))
		if err := s.Append(p); err != nil {
			t.Fatalf("Append(%d) failed: %v", i, err)
		}
	}
	return s
}

func TestFieldSeries(t *testing.T) {
	t.Run("NewFieldSeries", func(t *testing.T) {
		s := NewFieldSeries("Temperature", 100)
		if s.Len() != 0 {
			t.Errorf("Expected empty series, got %d points", s.Len())
		}
		if s.Capacity() != 100 {
			t.Errorf("Expected capacity 100, got %d", s.Capacity())
		}
		if s.Label() != "Temperature" {
			t.Errorf("Expected label 'Temperature', got %q", s.Label())
		}
	})

	t.Run("AppendAndPoints", func(t *testing.T) {
		s := buildSeries(t, "Temperature", 100, []float64{70.1, 70.5, 71.2})

		points := s.Points()
		if len(points) != 3 {
			t.Fatalf("Expected 3 points, got %d", len(points))
		}
		for i, p := range points {
			if p.X != i {
				t.Errorf("Expected X=%d, got %d", i, p.X)
			}
		}
	})

	t.Run("AppendAtCapacity", func(t *testing.T) {
		s := buildSeries(t, "Temperature", 2, []float64{70.0, 71.0})

		if err := s.Append(NewPoint(3, 2, 72.0, "2024-12-23 23:03:00")); err == nil {
			t.Error("Expected error appending past capacity")
		}
		if s.Len() != 2 {
			t.Errorf("Expected series to stay at 2 points, got %d", s.Len())
		}
	})

	t.Run("PointsReturnsCopy", func(t *testing.T) {
		s := buildSeries(t, "Humidity", 10, []float64{40.0, 41.0})

		points := s.Points()
		points[0].Y = 99.0

		if got := s.Points()[0].Y; got != 40.0 {
			t.Errorf("Mutating the returned slice changed the series: got %v", got)
		}
	})
}

func TestAxisBounds(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		s := NewFieldSeries("Temperature", 10)
		if _, ok := s.AxisBounds(); ok {
			t.Error("Expected ok=false for empty series")
		}
	})

	t.Run("MarginApplied", func(t *testing.T) {
		s := buildSeries(t, "Temperature", 10, []float64{70.0, 75.0, 72.0})

		b, ok := s.AxisBounds()
		if !ok {
			t.Fatal("Expected bounds for non-empty series")
		}
		if b.XMin != 0 || b.XMax != 2 {
			t.Errorf("Expected X bounds [0,2], got [%v,%v]", b.XMin, b.XMax)
		}
		if b.YMin != 69.5 {
			t.Errorf("Expected YMin 69.5, got %v", b.YMin)
		}
		if b.YMax != 75.5 {
			t.Errorf("Expected YMax 75.5, got %v", b.YMax)
		}
	})

	t.Run("SinglePoint", func(t *testing.T) {
		s := buildSeries(t, "Humidity", 10, []float64{50.0})

		b, ok := s.AxisBounds()
		if !ok {
			t.Fatal("Expected bounds for single-point series")
		}
		if b.YMin != 49.5 || b.YMax != 50.5 {
			t.Errorf("Expected Y bounds [49.5,50.5], got [%v,%v]", b.YMin, b.YMax)
		}
	})
}

func TestNearestPoint(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		s := NewFieldSeries("Temperature", 10)
		if _, ok := s.NearestPoint(0, 0); ok {
			t.Error("Expected ok=false for empty series")
		}
	})

	t.Run("RoundsToColumn", func(t *testing.T) {
		s := buildSeries(t, "Temperature", 10, []float64{70.0, 71.0, 72.0})

		p, ok := s.NearestPoint(1.4, 0)
		if !ok {
			t.Fatal("Expected a point")
		}
		if p.X != 1 || p.Y != 71.0 {
			t.Errorf("Expected point (1, 71.0), got (%d, %v)", p.X, p.Y)
		}

		p, ok = s.NearestPoint(1.6, 0)
		if !ok {
			t.Fatal("Expected a point")
		}
		if p.X != 2 {
			t.Errorf("Expected cursor to round to column 2, got %d", p.X)
		}
	})

	t.Run("OutOfRange", func(t *testing.T) {
		s := buildSeries(t, "Temperature", 10, []float64{70.0, 71.0})

		if _, ok := s.NearestPoint(5.0, 0); ok {
			t.Error("Expected ok=false for cursor past the last column")
		}
		if _, ok := s.NearestPoint(-1.0, 0); ok {
			t.Error("Expected ok=false for negative cursor")
		}
	})
}
