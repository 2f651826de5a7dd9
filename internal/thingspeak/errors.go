package thingspeak

import "fmt"

// StatusError indicates the ThingSpeak API answered with a non-2xx
// status. The previously stored series must be left untouched.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("thingspeak returned status %d", e.Code)
}

// ParseError indicates the response body was not a usable feed document
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("thingspeak response unusable: %s", e.Reason)
}
