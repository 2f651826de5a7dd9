package thingspeak

import (
	"testing"
	"time"
)

func pacific(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	return loc
}

func TestConvertUTC(t *testing.T) {
	loc := pacific(t)

	winter := func() time.Time {
		return time.Date(2024, 12, 24, 12, 0, 0, 0, time.UTC)
	}
	summer := func() time.Time {
		return time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	}

	t.Run("StandardTime", func(t *testing.T) {
		conv := NewTimeConverterAt(winter, loc)

		got, err := conv.ConvertUTC("2024-12-24T07:10:39Z")
		if err != nil {
			t.Fatalf("ConvertUTC failed: %v", err)
		}
		if got != "2024-12-23 23:10:39" {
			t.Errorf("ConvertUTC = %q, want %q", got, "2024-12-23 23:10:39")
		}
	})

	t.Run("DaylightTime", func(t *testing.T) {
		conv := NewTimeConverterAt(summer, loc)

		got, err := conv.ConvertUTC("2024-07-01T07:10:39Z")
		if err != nil {
			t.Fatalf("ConvertUTC failed: %v", err)
		}
		if got != "2024-07-01 00:10:39" {
			t.Errorf("ConvertUTC = %q, want %q", got, "2024-07-01 00:10:39")
		}
	})

	t.Run("OffsetFollowsCurrentClock", func(t *testing.T) {
		// The offset tracks the clock at conversion time, not the
		// timestamp being converted. A winter timestamp converted while
		// DST is in force gets the daylight offset.
		conv := NewTimeConverterAt(summer, loc)

		got, err := conv.ConvertUTC("2024-12-24T07:10:39Z")
		if err != nil {
			t.Fatalf("ConvertUTC failed: %v", err)
		}
		if got != "2024-12-24 00:10:39" {
			t.Errorf("ConvertUTC = %q, want %q", got, "2024-12-24 00:10:39")
		}
	})

	t.Run("BadTimestamp", func(t *testing.T) {
		conv := NewTimeConverterAt(winter, loc)

		if _, err := conv.ConvertUTC("yesterday"); err == nil {
			t.Error("Expected error for unparseable timestamp")
		}
	})
}

func TestOffset(t *testing.T) {
	loc := pacific(t)

	t.Run("Winter", func(t *testing.T) {
		conv := NewTimeConverterAt(func() time.Time {
			return time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
		}, loc)
		if got := conv.Offset(); got != -8*time.Hour {
			t.Errorf("Offset = %v, want -8h", got)
		}
	})

	t.Run("Summer", func(t *testing.T) {
		conv := NewTimeConverterAt(func() time.Time {
			return time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC)
		}, loc)
		if got := conv.Offset(); got != -7*time.Hour {
			t.Errorf("Offset = %v, want -7h", got)
		}
	})

	t.Run("FixedZoneFallback", func(t *testing.T) {
		conv := NewTimeConverterAt(time.Now, time.FixedZone("PST", -8*60*60))
		if got := conv.Offset(); got != -8*time.Hour {
			t.Errorf("Offset = %v, want -8h for a zone without DST", got)
		}
	})
}
