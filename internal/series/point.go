package series

// Point represents a single accepted feed entry in a field series
type Point struct {
	EntryID   int     `json:"entry_id"`
	X         int     `json:"x"`
	Y         float64 `json:"y"`
	Timestamp string  `json:"timestamp"`
}

// NewPoint creates a new Point
func NewPoint(entryID, x int, y float64, timestamp string) Point {
	return Point{EntryID: entryID, X: x, Y: y, Timestamp: timestamp}
}
