// Package manager owns the single active radio profile.
package manager

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/shazow/wifiportal/wifi"
	"github.com/shazow/wifiportal/wifi/profile"
)

// Manager keeps exactly one profile active on the radio and owns the virtual
// interfaces it needs.
type Manager struct {
	lifecycle *RadioLifecycle
	radio     wifi.Radio
	logger    *slog.Logger

	mu         sync.Mutex
	activation *profile.Activation
	ifaces     []wifi.Interface
	closed     bool

	kind atomic.Int32
}

// New acquires the lifecycle, which powers the radio if nothing else has.
func New(lifecycle *RadioLifecycle, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := lifecycle.Acquire(); err != nil {
		return nil, err
	}
	return &Manager{
		lifecycle: lifecycle,
		radio:     lifecycle.Radio(),
		logger:    logger,
	}, nil
}

// SetProfile replaces the active profile. The previous profile is fully torn
// down before anything of p touches the radio. Null deactivates.
func (m *Manager) SetProfile(p profile.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return wifi.ErrClosed
	}

	if err := m.deactivateLocked(); err != nil {
		// The radio may be in an odd state, carry on and let activation report it.
		m.logger.Warn("deactivating previous profile", "error", err)
	}
	if p.Kind == profile.KindNull {
		return nil
	}

	m.logger.Debug("activating profile", "profile", p.Kind.String())
	if err := m.activateLocked(p); err != nil {
		if cerr := m.deactivateLocked(); cerr != nil {
			m.logger.Warn("cleaning up failed activation", "error", cerr)
		}
		return fmt.Errorf("activate %s: %w", p.Kind, err)
	}
	return nil
}

func (m *Manager) activateLocked(p profile.Profile) error {
	for _, kind := range p.Interfaces() {
		iface, err := m.radio.CreateInterface(kind)
		if err != nil {
			return fmt.Errorf("create %s interface: %w", kind, err)
		}
		m.ifaces = append(m.ifaces, iface)
	}

	a, err := profile.Configure(m.radio, p, m.logger)
	if err != nil {
		return err
	}
	m.activation = a
	m.kind.Store(int32(p.Kind))

	if err := m.radio.Start(); err != nil {
		return fmt.Errorf("start radio: %w", err)
	}
	return a.Run()
}

// deactivateLocked tears down the active profile, stops the radio and
// destroys the interfaces. Every step runs even if an earlier one fails.
func (m *Manager) deactivateLocked() error {
	if m.activation == nil && len(m.ifaces) == 0 {
		return nil
	}
	var errs []error
	if m.activation != nil {
		errs = append(errs, m.activation.Teardown())
		m.activation = nil
		m.kind.Store(int32(profile.KindNull))
		if err := m.radio.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop radio: %w", err))
		}
	}
	for _, iface := range m.ifaces {
		if err := m.radio.DestroyInterface(iface); err != nil {
			errs = append(errs, fmt.Errorf("destroy %s interface: %w", iface.Kind, err))
		}
	}
	m.ifaces = nil
	return errors.Join(errs...)
}

// Mode returns the kind of the active profile.
func (m *Manager) Mode() profile.Kind {
	return profile.Kind(m.kind.Load())
}

// Reconnect asks the radio to connect again with the active station
// configuration. It does not take the manager lock, so profile callbacks
// running on the event loop may call it.
func (m *Manager) Reconnect() error {
	switch m.Mode() {
	case profile.KindStation, profile.KindCombined:
	default:
		return fmt.Errorf("reconnect in %s mode: %w", m.Mode(), wifi.ErrNotSupported)
	}
	if err := m.radio.Connect(); err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}
	return nil
}

// Close deactivates the active profile and releases the radio.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return errors.Join(m.deactivateLocked(), m.lifecycle.Release())
}
