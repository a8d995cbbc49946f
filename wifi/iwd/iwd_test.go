//go:build linux

package iwd

import (
	"errors"
	"fmt"
	"testing"

	"github.com/godbus/dbus/v5"

	"github.com/shazow/wifiportal/wifi"
)

func TestTranslateError(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want wifi.Reason
	}{
		{"not found", dbus.Error{Name: iwdErrNotFound}, wifi.ReasonNoAPFound},
		{"failed", dbus.Error{Name: iwdErrFailed}, wifi.ReasonAuthFail},
		{"invalid format", &dbus.Error{Name: iwdErrInvalidFormat}, wifi.ReasonAuthFail},
		{"wrapped", fmt.Errorf("connect: %w", dbus.Error{Name: iwdErrFailed}), wifi.ReasonAuthFail},
		{"aborted", dbus.Error{Name: "net.connman.iwd.Aborted"}, wifi.ReasonConnectionFail},
		{"plain", errors.New("bus closed"), wifi.ReasonConnectionFail},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := translateError(tc.err); got != tc.want {
				t.Errorf("translateError() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestAgentPassphrase(t *testing.T) {
	a := &Agent{}
	if _, err := a.RequestPassphrase("/net/connman/iwd/0/1/home_psk"); err == nil {
		t.Error("expected an empty passphrase to cancel the request")
	}
	a.SetPassphrase("hunter22")
	p, err := a.RequestPassphrase("/net/connman/iwd/0/1/home_psk")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != "hunter22" {
		t.Errorf("expected passphrase hunter22, got %q", p)
	}
}

func TestInterfaceAddress_Missing(t *testing.T) {
	if ip := interfaceAddress("wifiportal-missing0"); ip != "" {
		t.Errorf("expected no address, got %q", ip)
	}
}
