package provision

import (
	"fmt"

	"github.com/shazow/wifiportal/wifi"
)

// CredentialsKey is the store key of the persisted station credentials.
const CredentialsKey = "wificreds.bin"

// Credentials of a network to join.
type Credentials struct {
	SSID     string
	Password string
}

// Empty reports whether either half of the pair is missing.
func (c Credentials) Empty() bool {
	return c.SSID == "" || c.Password == ""
}

// EncodeCredentials serializes c as [ssidLen][ssid][passLen][pass], cutting
// the fields to wifi.MaxSSIDLen and wifi.MaxPasswordLen bytes.
func EncodeCredentials(c Credentials) []byte {
	ssid := c.SSID
	if len(ssid) > wifi.MaxSSIDLen {
		ssid = ssid[:wifi.MaxSSIDLen]
	}
	pass := c.Password
	if len(pass) > wifi.MaxPasswordLen {
		pass = pass[:wifi.MaxPasswordLen]
	}

	buf := make([]byte, 0, 2+len(ssid)+len(pass))
	buf = append(buf, byte(len(ssid)))
	buf = append(buf, ssid...)
	buf = append(buf, byte(len(pass)))
	buf = append(buf, pass...)
	return buf
}

// DecodeCredentials parses a record written by EncodeCredentials.
func DecodeCredentials(b []byte) (Credentials, error) {
	if len(b) < 2 {
		return Credentials{}, fmt.Errorf("record of %d bytes: %w", len(b), ErrMalformedCredentials)
	}

	off := 0
	ssidLen := int(b[off])
	off++
	if ssidLen > wifi.MaxSSIDLen || off+ssidLen+1 > len(b) {
		return Credentials{}, fmt.Errorf("ssid length %d in %d bytes: %w", ssidLen, len(b), ErrMalformedCredentials)
	}
	ssid := string(b[off : off+ssidLen])
	off += ssidLen

	passLen := int(b[off])
	off++
	if passLen > wifi.MaxPasswordLen || off+passLen > len(b) {
		return Credentials{}, fmt.Errorf("password length %d in %d bytes: %w", passLen, len(b), ErrMalformedCredentials)
	}
	pass := string(b[off : off+passLen])

	return Credentials{SSID: ssid, Password: pass}, nil
}
