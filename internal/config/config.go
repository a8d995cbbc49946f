// Package config loads the daemon configuration file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/shazow/wifiportal/portal"
	"github.com/shazow/wifiportal/provision"
	"github.com/shazow/wifiportal/wifi"
	"github.com/shazow/wifiportal/wifi/profile"
)

// DefaultStoreDir holds the persisted credential record.
const DefaultStoreDir = "/var/lib/wifiportal"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

type Config struct {
	Portal   Portal   `toml:"portal"`
	Station  Station  `toml:"station"`
	Store    Store    `toml:"store"`
	Announce Announce `toml:"announce"`
	Log      Log      `toml:"log"`
}

// Portal is the access point and HTTP listener brought up for provisioning.
type Portal struct {
	SSID       string `toml:"ssid"`
	Password   string `toml:"password"`
	Channel    uint8  `toml:"channel"`
	MaxClients uint8  `toml:"max_clients"`
	Listen     string `toml:"listen"`
	Title      string `toml:"title"`
}

type Station struct {
	MaxRetries int `toml:"max_retries"`
	// ScanTimeout bounds the scan that fills the sign-in page.
	ScanTimeout duration `toml:"scan_timeout"`
}

type Store struct {
	Dir string `toml:"dir"`
}

// Announce describes the mDNS service published once the device is online.
type Announce struct {
	Enabled  bool     `toml:"enabled"`
	Instance string   `toml:"instance"`
	Service  string   `toml:"service"`
	Domain   string   `toml:"domain"`
	Port     int      `toml:"port"`
	Text     []string `toml:"text"`
	// Interface restricts the announcement to one network interface.
	Interface string `toml:"interface"`
}

type Log struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// duration decodes TOML strings like "10s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Portal: Portal{
			SSID:       "wifiportal",
			Channel:    profile.DefaultChannel,
			MaxClients: profile.DefaultMaxClients,
			Listen:     portal.DefaultAddr,
			Title:      portal.DefaultTitle,
		},
		Station: Station{
			MaxRetries:  provision.DefaultMaxRetries,
			ScanTimeout: duration{10 * time.Second},
		},
		Store: Store{Dir: DefaultStoreDir},
		Announce: Announce{
			Instance: "wifiportal",
			Service:  "_http._tcp",
			Domain:   "local.",
			Port:     80,
		},
		Log: Log{Level: "info"},
	}
}

// Load reads the TOML file at path over the defaults. An empty path returns
// the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("load config %s: unknown keys %s: %w", path, strings.Join(keys, ", "), ErrInvalid)
	}
	return cfg, cfg.Validate()
}

// Validate checks the values a radio or listener would reject later.
func (c Config) Validate() error {
	var errs []error
	if c.Portal.SSID == "" {
		errs = append(errs, errors.New("portal.ssid is empty"))
	}
	if len(c.Portal.SSID) > wifi.MaxSSIDLen {
		errs = append(errs, fmt.Errorf("portal.ssid is longer than %d bytes", wifi.MaxSSIDLen))
	}
	if n := len(c.Portal.Password); n > 0 && (n < 8 || n > 63) {
		errs = append(errs, errors.New("portal.password must be empty or 8 to 63 characters"))
	}
	if c.Portal.Channel < 1 || c.Portal.Channel > 14 {
		errs = append(errs, fmt.Errorf("portal.channel %d is not a 2.4GHz channel", c.Portal.Channel))
	}
	if c.Portal.MaxClients == 0 {
		errs = append(errs, errors.New("portal.max_clients must be at least 1"))
	}
	if c.Station.MaxRetries < 1 {
		errs = append(errs, errors.New("station.max_retries must be at least 1"))
	}
	if c.Store.Dir == "" {
		errs = append(errs, errors.New("store.dir is empty"))
	}
	if c.Announce.Enabled && (c.Announce.Port <= 0 || c.Announce.Port > 65535) {
		errs = append(errs, fmt.Errorf("announce.port %d is out of range", c.Announce.Port))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}
