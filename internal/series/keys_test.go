package series

import "testing"

func TestKeys(t *testing.T) {
	t.Run("Key", func(t *testing.T) {
		if got := Key(2885056, 1); got != "channel.2885056.field.1" {
			t.Errorf("Key() = %q", got)
		}
	})

	t.Run("ParseKey", func(t *testing.T) {
		channelID, fieldNumber, err := ParseKey("channel.2885056.field.2")
		if err != nil {
			t.Fatalf("ParseKey failed: %v", err)
		}
		if channelID != 2885056 {
			t.Errorf("Expected channel 2885056, got %d", channelID)
		}
		if fieldNumber != 2 {
			t.Errorf("Expected field 2, got %d", fieldNumber)
		}
	})

	t.Run("ParseKeyMalformed", func(t *testing.T) {
		bad := []string{
			"",
			"channel.1",
			"series.1.field.2",
			"channel.x.field.2",
			"channel.1.field.y",
			"channel.1.label.2",
		}
		for _, key := range bad {
			if _, _, err := ParseKey(key); err == nil {
				t.Errorf("Expected error parsing %q", key)
			}
		}
	})

	t.Run("RoundTrip", func(t *testing.T) {
		key := Key(42, 8)
		channelID, fieldNumber, err := ParseKey(key)
		if err != nil {
			t.Fatalf("ParseKey(%q) failed: %v", key, err)
		}
		if channelID != 42 || fieldNumber != 8 {
			t.Errorf("Round trip gave (%d, %d)", channelID, fieldNumber)
		}
	})
}
