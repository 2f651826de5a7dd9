package thingspeak

import (
	"fmt"
	"time"
)

const displayTimeLayout = "2006-01-02 15:04:05"

// TimeConverter rewrites feed timestamps from UTC into Pacific time for
// display. The offset is a fixed -8h base with one hour added while DST
// is in effect at conversion time. Points from the other DST regime get
// shifted by the wrong hour; see the known-issues notes before changing
// this.
type TimeConverter struct {
	now func() time.Time
	loc *time.Location
}

// NewTimeConverter creates a converter using the system clock and the
// Pacific time zone database entry
func NewTimeConverter() *TimeConverter {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		// No tzdata available: permanent standard time.
		loc = time.FixedZone("PST", -8*60*60)
	}
	return &TimeConverter{now: time.Now, loc: loc}
}

// NewTimeConverterAt creates a converter with an injected clock and zone
func NewTimeConverterAt(now func() time.Time, loc *time.Location) *TimeConverter {
	return &TimeConverter{now: now, loc: loc}
}

// Offset returns the UTC-to-Pacific offset currently in force
func (c *TimeConverter) Offset() time.Duration {
	offset := -8 * time.Hour
	if c.now().In(c.loc).IsDST() {
		offset += time.Hour
	}
	return offset
}

// ConvertUTC converts an RFC3339 UTC timestamp into the display form
// "2006-01-02 15:04:05" in Pacific time
func (c *TimeConverter) ConvertUTC(ts string) (string, error) {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return "", fmt.Errorf("parsing timestamp %q: %w", ts, err)
	}
	return t.Add(c.Offset()).Format(displayTimeLayout), nil
}
