package thingspeak

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ChannelInfo is the channel metadata block of a feed response
type ChannelInfo struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	LastEntryID int    `json:"last_entry_id"`
}

// FeedEntry is one entry of a feed response. Field values arrive as
// "field1".."field8" keys holding strings or null.
type FeedEntry struct {
	CreatedAt string
	EntryID   int
	fields    map[int]string
}

// UnmarshalJSON collects the dynamic fieldN keys alongside the fixed ones
func (e *FeedEntry) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	e.fields = make(map[int]string)
	for key, value := range raw {
		switch {
		case key == "created_at":
			if err := json.Unmarshal(value, &e.CreatedAt); err != nil {
				return err
			}
		case key == "entry_id":
			if err := json.Unmarshal(value, &e.EntryID); err != nil {
				return err
			}
		case strings.HasPrefix(key, "field"):
			n, err := strconv.Atoi(strings.TrimPrefix(key, "field"))
			if err != nil || n < 1 || n > 8 {
				continue
			}
			var s *string
			if err := json.Unmarshal(value, &s); err != nil {
				// Some channels publish bare numbers instead of strings.
				var f float64
				if err := json.Unmarshal(value, &f); err != nil {
					continue
				}
				v := strconv.FormatFloat(f, 'f', -1, 64)
				s = &v
			}
			if s != nil {
				e.fields[n] = *s
			}
		}
	}
	return nil
}

// Field returns the raw value for a field number. ok is false when the
// field was absent or null in the entry.
func (e *FeedEntry) Field(n int) (string, bool) {
	v, ok := e.fields[n]
	return v, ok
}

// Feed is a parsed feeds.json response
type Feed struct {
	Channel ChannelInfo
	Entries []FeedEntry
}

// ParseFeed decodes a feeds.json body. Both the "channel" and "feeds"
// keys must be present; anything else is a ParseError.
func ParseFeed(body []byte) (*Feed, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &ParseError{Reason: "not a JSON object"}
	}

	channelRaw, ok := raw["channel"]
	if !ok {
		return nil, &ParseError{Reason: `missing "channel" key`}
	}
	feedsRaw, ok := raw["feeds"]
	if !ok {
		return nil, &ParseError{Reason: `missing "feeds" key`}
	}

	var feed Feed
	if err := json.Unmarshal(channelRaw, &feed.Channel); err != nil {
		return nil, &ParseError{Reason: "malformed channel metadata"}
	}
	if err := json.Unmarshal(feedsRaw, &feed.Entries); err != nil {
		return nil, &ParseError{Reason: "malformed feeds array"}
	}
	return &feed, nil
}
