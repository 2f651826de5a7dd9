package thingspeak

import (
	"strconv"

	"go.uber.org/zap"

	"github.com/aaronlmathis/homemonitor/internal/metrics"
	"github.com/aaronlmathis/homemonitor/internal/series"
)

// FieldDef names one channel field to extract from a feed
type FieldDef struct {
	Number int
	Label  string
}

// Builder turns parsed feeds into field series ready for the store
type Builder struct {
	fields    []FieldDef
	capacity  int
	converter *TimeConverter
	logger    *zap.Logger
	health    *series.HealthMetrics
}

// SetHealth attaches shared health counters so dropped entries show up
// in the health snapshot as well as the Prometheus metrics.
func (b *Builder) SetHealth(h *series.HealthMetrics) {
	b.health = h
}

// NewBuilder creates a series builder for the configured fields
func NewBuilder(fields []FieldDef, capacity int, converter *TimeConverter, logger *zap.Logger) *Builder {
	return &Builder{
		fields:    fields,
		capacity:  capacity,
		converter: converter,
		logger:    logger,
	}
}

// Build constructs one series per configured field from a feed. Entries
// with a missing or null field value are skipped for that field, and
// values that fail numeric coercion are logged and skipped; X stays the
// contiguous index 0..N-1 of the points actually accepted.
func (b *Builder) Build(channelID int, feed *Feed) map[int]*series.FieldSeries {
	channelLabel := strconv.Itoa(channelID)
	out := make(map[int]*series.FieldSeries, len(b.fields))

	drop := func(fieldLabel, reason string) {
		metrics.RecordDroppedEntry(channelLabel, fieldLabel, reason)
		if b.health != nil {
			b.health.RecordDroppedEntry()
		}
	}

	for _, field := range b.fields {
		fieldLabel := strconv.Itoa(field.Number)
		s := series.NewFieldSeries(field.Label, b.capacity)
		x := 0

		for _, entry := range feed.Entries {
			raw, ok := entry.Field(field.Number)
			if !ok {
				drop(fieldLabel, "missing")
				continue
			}

			y, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				b.logger.Warn("Field value failed numeric coercion",
					zap.Int("channel", channelID),
					zap.Int("field", field.Number),
					zap.Int("entry_id", entry.EntryID),
					zap.String("value", raw))
				drop(fieldLabel, "coercion")
				continue
			}

			timestamp, err := b.converter.ConvertUTC(entry.CreatedAt)
			if err != nil {
				b.logger.Warn("Entry timestamp failed to parse",
					zap.Int("channel", channelID),
					zap.Int("entry_id", entry.EntryID),
					zap.String("created_at", entry.CreatedAt))
				drop(fieldLabel, "timestamp")
				continue
			}

			if err := s.Append(series.NewPoint(entry.EntryID, x, y, timestamp)); err != nil {
				drop(fieldLabel, "capacity")
				break
			}
			x++
		}

		out[field.Number] = s
	}

	return out
}
