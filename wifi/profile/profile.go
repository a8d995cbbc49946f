// Package profile describes the radio configurations a device can run and
// how each one is wired onto a wifi.Radio.
package profile

import (
	"github.com/shazow/wifiportal/wifi"
)

// Kind is the tag of a Profile.
type Kind int

const (
	KindNull Kind = iota
	KindAccessPoint
	KindStation
	KindCombined
	KindScanner
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindAccessPoint:
		return "access-point"
	case KindStation:
		return "station"
	case KindCombined:
		return "combined"
	case KindScanner:
		return "scanner"
	}
	return "unknown"
}

const (
	DefaultChannel    = 1
	DefaultMaxClients = 1
	// ScanCapacity is the most records a Scanner reports per scan.
	ScanCapacity = 10
)

// AccessPointConfig hosts a network for clients to join.
type AccessPointConfig struct {
	SSID       string
	Password   string
	Channel    uint8
	MaxClients uint8

	OnDeviceConnected    func(mac, ip string)
	OnDeviceDisconnected func(mac string)
}

// Auth is open when there is no password.
func (c *AccessPointConfig) Auth() wifi.AuthMode {
	if c.Password == "" {
		return wifi.AuthOpen
	}
	return wifi.AuthWPA2PSK
}

func (c *AccessPointConfig) radioConfig() wifi.APConfig {
	return wifi.APConfig{
		SSID:           c.SSID,
		Password:       c.Password,
		Channel:        c.Channel,
		MaxConnections: c.MaxClients,
		Auth:           c.Auth(),
		PMFRequired:    true,
	}
}

// StationConfig joins an existing network.
type StationConfig struct {
	SSID     string
	Password string

	OnConnected    func(ip string)
	OnDisconnected func(reason wifi.Reason)
}

// ScannerConfig reports nearby networks.
type ScannerConfig struct {
	OnScanDone func(records []wifi.ScanRecord)
}

// Profile is one intended radio configuration. Only the payload matching
// Kind is set; Combined carries both AP and Station. Profiles are built by
// the constructors and never mutated afterwards.
type Profile struct {
	Kind    Kind
	AP      *AccessPointConfig
	Station *StationConfig
	Scanner *ScannerConfig
}

// Null is the empty profile, activating it leaves the radio idle.
func Null() Profile {
	return Profile{Kind: KindNull}
}

// NewAccessPoint builds an AccessPoint profile. Zero channel or max clients
// take the defaults.
func NewAccessPoint(cfg AccessPointConfig) Profile {
	ap := normalizeAP(cfg)
	return Profile{Kind: KindAccessPoint, AP: &ap}
}

// NewStation builds a Station profile.
func NewStation(cfg StationConfig) Profile {
	sta := normalizeStation(cfg)
	return Profile{Kind: KindStation, Station: &sta}
}

// NewCombined builds a profile that hosts an access point while joining a network.
func NewCombined(ap AccessPointConfig, sta StationConfig) Profile {
	a := normalizeAP(ap)
	s := normalizeStation(sta)
	return Profile{Kind: KindCombined, AP: &a, Station: &s}
}

// NewScanner builds a Scanner profile.
func NewScanner(cfg ScannerConfig) Profile {
	return Profile{Kind: KindScanner, Scanner: &cfg}
}

func normalizeAP(cfg AccessPointConfig) AccessPointConfig {
	cfg.SSID = truncate(cfg.SSID, wifi.MaxSSIDLen)
	cfg.Password = truncate(cfg.Password, wifi.MaxPasswordLen)
	if cfg.Channel == 0 {
		cfg.Channel = DefaultChannel
	}
	if cfg.MaxClients == 0 {
		cfg.MaxClients = DefaultMaxClients
	}
	return cfg
}

func normalizeStation(cfg StationConfig) StationConfig {
	cfg.SSID = truncate(cfg.SSID, wifi.MaxSSIDLen)
	cfg.Password = truncate(cfg.Password, wifi.MaxPasswordLen)
	return cfg
}

// truncate cuts s to at most n bytes.
func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// Interfaces returns the virtual interfaces the profile needs.
func (p Profile) Interfaces() []wifi.InterfaceKind {
	switch p.Kind {
	case KindAccessPoint:
		return []wifi.InterfaceKind{wifi.InterfaceAP}
	case KindStation, KindScanner:
		return []wifi.InterfaceKind{wifi.InterfaceStation}
	case KindCombined:
		return []wifi.InterfaceKind{wifi.InterfaceAP, wifi.InterfaceStation}
	}
	return nil
}
