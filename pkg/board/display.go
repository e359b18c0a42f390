package board

import (
	"fmt"
	"io"
	"sync"
)

var ledColorCodes = [NumLEDs]string{"32", "33", "31", "34"}

// Display renders the LEDs on a terminal line using ANSI colors.
type Display struct {
	Writer io.Writer

	board *Board
	lock  sync.Mutex
}

// NewDisplay creates a Display refreshed on every LED change.
func NewDisplay(b *Board, w io.Writer) *Display {
	d := &Display{Writer: w, board: b}
	b.SubscribeLEDs(d)
	return d
}

// LEDChanged implements LEDListener.
func (d *Display) LEDChanged(Color, bool) {
	d.Render()
}

// Render draws the current LED states.
func (d *Display) Render() {
	d.lock.Lock()
	defer d.lock.Unlock()
	fmt.Fprint(d.Writer, "\r"+FormatLEDs(d.board.LEDs()))
}

// FormatLEDs formats LED states, lit LEDs in their color.
func FormatLEDs(states [NumLEDs]bool) string {
	var s string
	for n, on := range states {
		if n > 0 {
			s += " "
		}
		if on {
			s += "\x1b[" + ledColorCodes[n] + "m●\x1b[0m"
		} else {
			s += "○"
		}
	}
	return s
}
