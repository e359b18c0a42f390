package mqtt

import "fmt"

// TimeoutError indicates the broker didn't acknowledge a publish in time.
type TimeoutError struct {
	Topic string
}

// Error implements error.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("publish %s timed out", e.Topic)
}
