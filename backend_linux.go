//go:build linux && !mock

package main

import (
	"fmt"
	"log/slog"

	"github.com/shazow/wifiportal/wifi"
	"github.com/shazow/wifiportal/wifi/iwd"
	"github.com/shazow/wifiportal/wifi/networkmanager"
)

const defaultBackend = "auto"

func platformBackend(name string, logger *slog.Logger) (Radio, error) {
	switch name {
	case "networkmanager":
		return networkmanager.New(logger)
	case "iwd":
		return iwd.New(logger)
	case "", "auto":
		r, err := networkmanager.New(logger)
		if err == nil {
			return r, nil
		}
		logger.Warn("failed to initialize networkmanager backend, falling back to iwd", "error", err)
		// If networkmanager dbus backend failed to initialize, try the iwd backend
		return iwd.New(logger)
	}
	return nil, fmt.Errorf("unknown backend: %w", wifi.ErrNotSupported)
}
