package board

import (
	"fmt"
	"sync"
)

// Color identifies one of the user LEDs.
type Color int

// The four user LEDs of the discovery board.
const (
	Green Color = iota
	Orange
	Red
	Blue
	NumLEDs
)

var colorNames = [NumLEDs]string{"green", "orange", "red", "blue"}

func (c Color) String() string {
	if c >= 0 && c < NumLEDs {
		return colorNames[c]
	}
	return fmt.Sprintf("Color(%d)", int(c))
}

// ParseColor parses a LED color name.
func ParseColor(s string) (Color, error) {
	for n, name := range colorNames {
		if name == s {
			return Color(n), nil
		}
	}
	return 0, fmt.Errorf("unknown LED %q", s)
}

// LEDListener observes LED changes.
type LEDListener interface {
	LEDChanged(c Color, on bool)
}

// LEDListenerFunc is the func form of LEDListener.
type LEDListenerFunc func(Color, bool)

// LEDChanged implements LEDListener.
func (f LEDListenerFunc) LEDChanged(c Color, on bool) {
	f(c, on)
}

// LED is an output pin driving a LED.
type LED struct {
	Color Color
	// Pin is the GPIO pin, e.g. PD12.
	Pin string

	lock      sync.Mutex
	on        bool
	toggles   uint64
	listeners []LEDListener
}

// IsOn reads the output state.
func (l *LED) IsOn() bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.on
}

// Toggles returns how many times the output changed.
func (l *LED) Toggles() uint64 {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.toggles
}

// Set drives the output.
func (l *LED) Set(on bool) {
	l.lock.Lock()
	if l.on == on {
		l.lock.Unlock()
		return
	}
	l.on = on
	l.toggles++
	lns := l.listeners
	l.lock.Unlock()
	for _, ln := range lns {
		ln.LEDChanged(l.Color, on)
	}
}

// On turns the LED on.
func (l *LED) On() {
	l.Set(true)
}

// Off turns the LED off.
func (l *LED) Off() {
	l.Set(false)
}

// Toggle inverts the output.
func (l *LED) Toggle() {
	l.lock.Lock()
	on := !l.on
	l.lock.Unlock()
	l.Set(on)
}

func (l *LED) subscribe(ln LEDListener) {
	l.lock.Lock()
	l.listeners = append(l.listeners, ln)
	l.lock.Unlock()
}
