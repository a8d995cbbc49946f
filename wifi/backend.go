package wifi

// RadioMode is the operating mode of the radio hardware.
type RadioMode int

const (
	RadioModeNull RadioMode = iota
	RadioModeAP
	RadioModeStation
	RadioModeAPStation
)

func (m RadioMode) String() string {
	switch m {
	case RadioModeNull:
		return "null"
	case RadioModeAP:
		return "ap"
	case RadioModeStation:
		return "station"
	case RadioModeAPStation:
		return "ap+station"
	}
	return "unknown"
}

// AuthMode is the authentication used by an access point we host.
type AuthMode int

const (
	AuthOpen AuthMode = iota
	AuthWPA2PSK
)

func (a AuthMode) String() string {
	if a == AuthWPA2PSK {
		return "wpa2-psk"
	}
	return "open"
}

const (
	MaxSSIDLen     = 32
	MaxPasswordLen = 64
)

// APConfig is the configuration pushed to the radio for access point mode.
type APConfig struct {
	SSID           string
	Password       string
	Channel        uint8
	MaxConnections uint8
	Auth           AuthMode
	PMFRequired    bool
}

// StationConfig is the configuration pushed to the radio for station mode.
// An empty SSID is valid and is used when the station interface only scans.
type StationConfig struct {
	SSID     string
	Password string
}

// InterfaceKind identifies a virtual network interface on the radio.
type InterfaceKind int

const (
	InterfaceAP InterfaceKind = iota
	InterfaceStation
)

func (k InterfaceKind) String() string {
	if k == InterfaceAP {
		return "ap"
	}
	return "sta"
}

// Interface is a handle to a virtual network interface created by the radio.
type Interface struct {
	Kind InterfaceKind
	Name string
}

// ScanRecord is one network found by a scan.
type ScanRecord struct {
	SSID string
	RSSI int // dBm
}

// Strength converts RSSI to a 0-100 percentage.
func (r ScanRecord) Strength() uint8 {
	// -100 dBm and below is unusable, -50 dBm and above is excellent.
	switch {
	case r.RSSI <= -100:
		return 0
	case r.RSSI >= -50:
		return 100
	}
	return uint8(2 * (r.RSSI + 100))
}

// Radio is the vendor WiFi driver and its event bus.
//
// Mode, config, start and stop calls are not reentrant; callers serialize them.
// Events are delivered one at a time from a single event loop and handlers must
// not block.
type Radio interface {
	// Init powers on the radio driver.
	Init() error
	// Deinit powers off the radio driver.
	Deinit() error

	CreateInterface(kind InterfaceKind) (Interface, error)
	DestroyInterface(iface Interface) error

	Mode() (RadioMode, error)
	SetMode(mode RadioMode) error
	SetAPConfig(cfg APConfig) error
	SetStationConfig(cfg StationConfig) error

	// Start brings up the configured mode. Station mode posts EventStationStart.
	Start() error
	Stop() error

	// Connect asks the station interface to associate with the configured network.
	// It returns immediately; the outcome arrives as an event.
	Connect() error

	// StartScan requests a scan without blocking. EventScanDone follows.
	StartScan() error
	// ScanResults returns up to max records from the last scan.
	ScanResults(max int) ([]ScanRecord, error)

	Subscribe(kind EventKind, h EventHandler) (Subscription, error)
	Unsubscribe(sub Subscription) error
}
