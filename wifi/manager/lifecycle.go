package manager

import (
	"fmt"
	"sync"

	"github.com/shazow/wifiportal/wifi"
)

// RadioLifecycle powers a radio exactly once for all the managers that
// share it. Create one per radio per process.
type RadioLifecycle struct {
	radio wifi.Radio

	mu      sync.Mutex
	refs    int
	powered bool
}

func NewRadioLifecycle(radio wifi.Radio) *RadioLifecycle {
	return &RadioLifecycle{radio: radio}
}

// Radio returns the managed radio.
func (l *RadioLifecycle) Radio() wifi.Radio {
	return l.radio
}

// Acquire takes a reference, powering the radio on the first one.
func (l *RadioLifecycle) Acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.powered {
		if err := l.radio.Init(); err != nil {
			return fmt.Errorf("init radio: %w", err)
		}
		l.powered = true
	}
	l.refs++
	return nil
}

// Release drops a reference, powering the radio off with the last one.
func (l *RadioLifecycle) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.refs == 0 {
		return fmt.Errorf("release without acquire: %w", wifi.ErrNotInitialized)
	}
	l.refs--
	if l.refs > 0 {
		return nil
	}
	l.powered = false
	if err := l.radio.Deinit(); err != nil {
		return fmt.Errorf("deinit radio: %w", err)
	}
	return nil
}

// Powered reports whether the radio is initialized.
func (l *RadioLifecycle) Powered() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.powered
}

// outstanding returns the number of references held.
func (l *RadioLifecycle) outstanding() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.refs
}
