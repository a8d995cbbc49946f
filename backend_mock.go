//go:build mock

package main

import (
	"fmt"
	"log/slog"

	"github.com/shazow/wifiportal/wifi"
	"github.com/shazow/wifiportal/wifi/mock"
)

const defaultBackend = "mock"

func platformBackend(name string, logger *slog.Logger) (Radio, error) {
	switch name {
	case "", "auto":
		return mock.New(logger), nil
	}
	return nil, fmt.Errorf("only the mock backend is built in: %w", wifi.ErrNotSupported)
}
