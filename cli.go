package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/shazow/wifiportal/provision"
	"github.com/shazow/wifiportal/wifi"
	"github.com/shazow/wifiportal/wifi/profile"
)

// Connectivity is the part of the manager the commands drive.
type Connectivity interface {
	SetProfile(p profile.Profile) error
}

// scanNetworks runs one scan with the Scanner profile and leaves the radio idle.
func scanNetworks(ctx context.Context, conn Connectivity, timeout time.Duration) ([]wifi.ScanRecord, error) {
	results := make(chan []wifi.ScanRecord, 1)
	p := profile.NewScanner(profile.ScannerConfig{
		OnScanDone: func(records []wifi.ScanRecord) {
			select {
			case results <- records:
			default:
			}
		},
	})
	if err := conn.SetProfile(p); err != nil {
		return nil, fmt.Errorf("failed to start scan: %w", err)
	}
	defer conn.SetProfile(profile.Null())

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case records := <-results:
		return records, nil
	case <-timer.C:
		return nil, fmt.Errorf("scan timed out after %s", timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type scanEntry struct {
	SSID     string `json:"ssid"`
	RSSI     int    `json:"rssi"`
	Strength uint8  `json:"strength"`
}

func runScan(w io.Writer, asJSON bool, records []wifi.ScanRecord) error {
	if asJSON {
		entries := make([]scanEntry, 0, len(records))
		for _, r := range records {
			entries = append(entries, scanEntry{SSID: r.SSID, RSSI: r.RSSI, Strength: r.Strength()})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%d%%\t%d dBm\n", r.SSID, r.Strength(), r.RSSI)
	}
	return nil
}

func runStatus(w io.Writer, store provision.Store) error {
	data, err := store.Read(provision.CredentialsKey)
	if errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(w, "not provisioned")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read credentials: %w", err)
	}
	creds, err := provision.DecodeCredentials(data)
	if err != nil || creds.Empty() {
		fmt.Fprintln(w, "stored credentials are unusable and will be erased on the next run")
		return nil
	}
	fmt.Fprintf(w, "provisioned for %q\n", creds.SSID)
	return nil
}

func runForget(w io.Writer, store provision.Store) error {
	err := store.Remove(provision.CredentialsKey)
	if errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(w, "nothing to forget")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to forget credentials: %w", err)
	}
	fmt.Fprintln(w, "forgot stored credentials")
	return nil
}

func runQR(w io.Writer, ssid, password, listen string) error {
	ap := profile.AccessPointConfig{SSID: ssid, Password: password}
	auth := ap.Auth()
	code, err := GenerateWifiQRCode(ssid, password, auth)
	if err != nil {
		return fmt.Errorf("failed to generate qr code: %w", err)
	}
	fmt.Fprint(w, code)
	fmt.Fprintf(w, "Join %q, then open the portal on %s\n", ssid, listen)
	return nil
}
