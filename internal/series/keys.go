package series

import (
	"fmt"
	"strconv"
	"strings"
)

// Series keys take the form "channel.<id>.field.<n>", one series per
// configured field per registered channel.

// Key builds the store key for a channel field
func Key(channelID, fieldNumber int) string {
	return fmt.Sprintf("channel.%d.field.%d", channelID, fieldNumber)
}

// ParseKey splits a store key back into channel ID and field number
func ParseKey(key string) (channelID, fieldNumber int, err error) {
	parts := strings.Split(key, ".")
	if len(parts) != 4 || parts[0] != "channel" || parts[2] != "field" {
		return 0, 0, fmt.Errorf("malformed series key %q", key)
	}
	channelID, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed channel id in key %q", key)
	}
	fieldNumber, err = strconv.Atoi(parts[3])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed field number in key %q", key)
	}
	return channelID, fieldNumber, nil
}

// ChannelPrefix returns the key prefix shared by all of a channel's series
func ChannelPrefix(channelID int) string {
	return fmt.Sprintf("channel.%d.", channelID)
}
