//go:build !linux && !mock

package main

import (
	"fmt"
	"log/slog"

	"github.com/shazow/wifiportal/wifi"
)

const defaultBackend = "auto"

// platformBackend returns an error for unsupported operating systems.
func platformBackend(name string, logger *slog.Logger) (Radio, error) {
	return nil, fmt.Errorf("no radio driver for this operating system: %w", wifi.ErrNotSupported)
}
