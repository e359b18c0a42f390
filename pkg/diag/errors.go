package diag

import (
	"errors"
	"fmt"
)

var (
	// ErrFrameTooLong indicates a payload larger than MaxFrameData.
	ErrFrameTooLong = errors.New("frame too long")
	// ErrNoDevice indicates no serial device is configured.
	ErrNoDevice = errors.New("no serial device")
)

// ChecksumError indicates a frame failed its CRC check.
type ChecksumError struct {
	Seq      Seq
	Expected uint16
	Actual   uint16
}

// Error implements error.
func (e *ChecksumError) Error() string {
	return fmt.Sprintf("frame %d checksum mismatch: expected %04x, got %04x", e.Seq, e.Expected, e.Actual)
}
