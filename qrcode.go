package main

import (
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/shazow/wifiportal/wifi"
)

// EscapeWifiString handles the special character escaping for SSID and Password.
func EscapeWifiString(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`;`, `\;`,
		`,`, `\,`,
		`:`, `\:`,
		`"`, `\"`,
	)
	return r.Replace(s)
}

// WifiJoinString builds the WIFI: URI phones read from a QR code.
func WifiJoinString(ssid, password string, auth wifi.AuthMode) string {
	var b strings.Builder
	b.WriteString("WIFI:S:")
	b.WriteString(EscapeWifiString(ssid))
	b.WriteString(";")

	switch auth {
	case wifi.AuthWPA2PSK:
		b.WriteString("T:WPA;P:")
		b.WriteString(EscapeWifiString(password))
		b.WriteString(";")
	case wifi.AuthOpen:
		b.WriteString("T:nopass;")
	}
	b.WriteString(";")
	return b.String()
}

// GenerateWifiQRCode returns a terminal-friendly QR code that joins the network.
func GenerateWifiQRCode(ssid, password string, auth wifi.AuthMode) (string, error) {
	q, err := qrcode.New(WifiJoinString(ssid, password, auth), qrcode.Medium)
	if err != nil {
		return "", err
	}
	return q.ToSmallString(false), nil
}
