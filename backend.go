package main

import (
	"fmt"
	"log/slog"

	"github.com/shazow/wifiportal/wifi"
	"github.com/shazow/wifiportal/wifi/mock"
)

// Radio is a driver that owns background resources.
type Radio interface {
	wifi.Radio
	Close()
}

// GetBackend opens the named radio driver. "auto" picks the best driver
// for the platform.
func GetBackend(name string, logger *slog.Logger) (Radio, error) {
	if name == "mock" {
		return mock.New(logger), nil
	}
	r, err := platformBackend(name, logger)
	if err != nil {
		return nil, fmt.Errorf("backend %q: %w", name, err)
	}
	return r, nil
}
