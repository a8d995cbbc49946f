//go:build linux

package networkmanager

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	gonetworkmanager "github.com/Wifx/gonetworkmanager/v3"
	"github.com/google/uuid"

	"github.com/shazow/wifiportal/wifi"
)

const (
	connectionTimeout = 30 * time.Second
	// NetworkManager scans in the background after RequestScan returns.
	scanSettle = 3 * time.Second
)

// Radio implements wifi.Radio using D-Bus to communicate with NetworkManager.
//
// NetworkManager owns a single wireless device, so both virtual interfaces map
// onto it and combined mode depends on the driver supporting concurrent
// AP and station operation.
type Radio struct {
	*wifi.EventLoop

	NM     gonetworkmanager.NetworkManager
	logger *slog.Logger

	mu          sync.Mutex
	device      gonetworkmanager.DeviceWireless
	initialized bool
	started     bool
	mode        wifi.RadioMode
	apConfig    wifi.APConfig
	staConfig   wifi.StationConfig
	apConn      gonetworkmanager.ActiveConnection
	staConn     gonetworkmanager.ActiveConnection
	// staWatch stops the state watcher of the current station attempt.
	staWatch chan struct{}
	// attempt identifies the current station attempt. Stop and every Connect
	// bump it so stale attempts clean up after themselves.
	attempt uint64
}

// New creates a new networkmanager.Radio.
func New(logger *slog.Logger) (*Radio, error) {
	nm, err := gonetworkmanager.NewNetworkManager()
	if err != nil {
		return nil, fmt.Errorf("failed to create network manager client: %w", wifi.ErrNotAvailable)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Radio{
		EventLoop: wifi.NewEventLoop(logger),
		NM:        nm,
		logger:    logger,
	}, nil
}

func (r *Radio) getWirelessDevice() (gonetworkmanager.DeviceWireless, error) {
	if r.device != nil {
		return r.device, nil
	}
	devices, err := r.NM.GetDevices()
	if err != nil {
		return nil, err
	}
	for _, device := range devices {
		if dev, ok := device.(gonetworkmanager.DeviceWireless); ok {
			r.device = dev
			return dev, nil
		}
	}
	return nil, fmt.Errorf("no wireless device found: %w", wifi.ErrNotFound)
}

func (r *Radio) Init() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	enabled, err := r.NM.GetPropertyWirelessEnabled()
	if err != nil {
		return fmt.Errorf("failed to read wireless state: %w", wifi.ErrNotAvailable)
	}
	if !enabled {
		// Not all versions of NetworkManager support subscribing to signals, so we
		// can't wait for the change. See: https://github.com/Wifx/gonetworkmanager/pull/14
		if err := r.NM.SetPropertyWirelessEnabled(true); err != nil {
			return fmt.Errorf("failed to enable wireless: %w", wifi.ErrWirelessDisabled)
		}
	}
	if _, err := r.getWirelessDevice(); err != nil {
		return err
	}
	r.initialized = true
	return nil
}

func (r *Radio) Deinit() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.stopLocked()
	r.initialized = false
	r.mode = wifi.RadioModeNull
	return err
}

func (r *Radio) CreateInterface(kind wifi.InterfaceKind) (wifi.Interface, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dev, err := r.getWirelessDevice()
	if err != nil {
		return wifi.Interface{}, err
	}
	name, err := dev.GetPropertyInterface()
	if err != nil {
		return wifi.Interface{}, fmt.Errorf("failed to read interface name: %w", wifi.ErrOperationFailed)
	}
	return wifi.Interface{Kind: kind, Name: name}, nil
}

// DestroyInterface is a no-op, NetworkManager owns the device.
func (r *Radio) DestroyInterface(iface wifi.Interface) error {
	return nil
}

func (r *Radio) Mode() (wifi.RadioMode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		return wifi.RadioModeNull, wifi.ErrNotInitialized
	}
	return r.mode, nil
}

func (r *Radio) SetMode(mode wifi.RadioMode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		return wifi.ErrNotInitialized
	}
	r.mode = mode
	return nil
}

func (r *Radio) SetAPConfig(cfg wifi.APConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apConfig = cfg
	return nil
}

func (r *Radio) SetStationConfig(cfg wifi.StationConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.staConfig = cfg
	return nil
}

func (r *Radio) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		return wifi.ErrNotInitialized
	}
	dev, err := r.getWirelessDevice()
	if err != nil {
		return err
	}

	if r.mode == wifi.RadioModeAP || r.mode == wifi.RadioModeAPStation {
		iface, _ := dev.GetPropertyInterface()
		ac, err := r.NM.AddAndActivateConnection(accessPointSettings(r.apConfig, iface), dev)
		if err != nil {
			return fmt.Errorf("failed to start access point %q: %w", r.apConfig.SSID, wifi.ErrOperationFailed)
		}
		r.apConn = ac
		r.logger.Info("access point started", "ssid", r.apConfig.SSID, "interface", iface)
	}
	r.started = true
	if r.mode == wifi.RadioModeStation || r.mode == wifi.RadioModeAPStation {
		r.Post(wifi.Event{Kind: wifi.EventStationStart})
	}
	return nil
}

func (r *Radio) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopLocked()
}

func (r *Radio) stopLocked() error {
	var firstErr error
	r.attempt++
	if r.staWatch != nil {
		close(r.staWatch)
		r.staWatch = nil
	}
	for _, ac := range []gonetworkmanager.ActiveConnection{r.staConn, r.apConn} {
		if ac == nil {
			continue
		}
		if err := r.removeConnection(ac); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.staConn = nil
	r.apConn = nil
	r.started = false
	return firstErr
}

// removeConnection deactivates ac and deletes the profile we created for it.
func (r *Radio) removeConnection(ac gonetworkmanager.ActiveConnection) error {
	conn, connErr := ac.GetPropertyConnection()
	if err := r.NM.DeactivateConnection(ac); err != nil {
		r.logger.Debug("deactivate connection failed", "error", err)
	}
	if connErr != nil {
		return fmt.Errorf("failed to look up connection: %w", wifi.ErrOperationFailed)
	}
	if err := conn.Delete(); err != nil {
		return fmt.Errorf("failed to delete connection: %w", wifi.ErrOperationFailed)
	}
	return nil
}

// Connect starts activating a station connection for the configured network
// in the background. The outcome is reported as events.
func (r *Radio) Connect() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return fmt.Errorf("connect before start: %w", wifi.ErrOperationFailed)
	}
	dev, err := r.getWirelessDevice()
	if err != nil {
		return err
	}

	if r.staWatch != nil {
		close(r.staWatch)
		r.staWatch = nil
	}
	prev := r.staConn
	r.staConn = nil
	r.attempt++
	go r.connect(r.attempt, dev, r.staConfig, prev)
	return nil
}

func (r *Radio) current(attempt uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempt == attempt
}

func (r *Radio) connect(attempt uint64, dev gonetworkmanager.DeviceWireless, cfg wifi.StationConfig, prev gonetworkmanager.ActiveConnection) {
	if prev != nil {
		if err := r.removeConnection(prev); err != nil {
			r.logger.Debug("failed to remove previous station connection", "error", err)
		}
	}

	visible, err := r.visible(dev, cfg.SSID)
	if err != nil {
		r.logger.Debug("station scan lookup failed", "ssid", cfg.SSID, "error", err)
	}
	if !visible {
		reason := wifi.ReasonNoAPFound
		if err != nil {
			reason = wifi.ReasonConnectionFail
		}
		if r.current(attempt) {
			r.Post(wifi.Event{Kind: wifi.EventStationDisconnected, Reason: reason})
		}
		return
	}

	iface, _ := dev.GetPropertyInterface()
	ac, err := r.NM.AddAndActivateConnection(stationSettings(cfg, iface), dev)
	if err != nil {
		r.logger.Debug("station activation failed", "ssid", cfg.SSID, "error", err)
		if r.current(attempt) {
			r.Post(wifi.Event{Kind: wifi.EventStationDisconnected, Reason: wifi.ReasonConnectionFail})
		}
		return
	}

	stateChanges := make(chan gonetworkmanager.StateChange, 1)
	exit := make(chan struct{})
	if err := ac.SubscribeState(stateChanges, exit); err != nil {
		r.logger.Debug("failed to watch connection state", "error", err)
		r.discard(ac)
		if r.current(attempt) {
			r.Post(wifi.Event{Kind: wifi.EventStationDisconnected, Reason: wifi.ReasonConnectionFail})
		}
		return
	}

	r.mu.Lock()
	if r.attempt != attempt {
		r.mu.Unlock()
		close(exit)
		r.discard(ac)
		return
	}
	r.staConn = ac
	r.staWatch = exit
	r.mu.Unlock()
	r.watchStation(ac, stateChanges, exit)
}

// discard removes a connection that a newer attempt or Stop superseded.
func (r *Radio) discard(ac gonetworkmanager.ActiveConnection) {
	if err := r.removeConnection(ac); err != nil {
		r.logger.Debug("failed to remove stale station connection", "error", err)
	}
}

func (r *Radio) visible(dev gonetworkmanager.DeviceWireless, ssid string) (bool, error) {
	aps, err := dev.GetAccessPoints()
	if err != nil {
		return false, fmt.Errorf("failed to list access points: %w", wifi.ErrOperationFailed)
	}
	for _, ap := range aps {
		if s, err := ap.GetPropertySSID(); err == nil && s == ssid {
			return true, nil
		}
	}
	return false, nil
}

func (r *Radio) watchStation(ac gonetworkmanager.ActiveConnection, changes <-chan gonetworkmanager.StateChange, exit <-chan struct{}) {
	timeout := time.NewTimer(connectionTimeout)
	defer timeout.Stop()

	for {
		select {
		case <-exit:
			return
		case change := <-changes:
			switch change.State {
			case gonetworkmanager.NmActiveConnectionStateActivated:
				r.Post(wifi.Event{Kind: wifi.EventStationConnected})
				r.Post(wifi.Event{Kind: wifi.EventStationGotIP, IP: activeAddress(ac)})
				timeout.Stop()
			case gonetworkmanager.NmActiveConnectionStateDeactivated:
				r.Post(wifi.Event{Kind: wifi.EventStationDisconnected, Reason: translateReason(change.Reason)})
				return
			}
		case <-timeout.C:
			r.Post(wifi.Event{Kind: wifi.EventStationDisconnected, Reason: wifi.ReasonHandshakeTimeout})
			return
		}
	}
}

func activeAddress(ac gonetworkmanager.ActiveConnection) string {
	cfg, err := ac.GetPropertyIP4Config()
	if err != nil || cfg == nil {
		return ""
	}
	addrs, err := cfg.GetPropertyAddressData()
	if err != nil || len(addrs) == 0 {
		return ""
	}
	return addrs[0].Address
}

func translateReason(reason gonetworkmanager.NmActiveConnectionStateReason) wifi.Reason {
	switch reason {
	case gonetworkmanager.NmActiveConnectionStateReasonNoSecrets,
		gonetworkmanager.NmActiveConnectionStateReasonLoginFailed:
		return wifi.ReasonAuthFail
	case gonetworkmanager.NmActiveConnectionStateReasonConnectTimeout:
		return wifi.ReasonHandshakeTimeout
	}
	return wifi.ReasonConnectionFail
}

func (r *Radio) StartScan() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	dev, err := r.getWirelessDevice()
	if err != nil {
		return err
	}
	if err := dev.RequestScan(); err != nil {
		return fmt.Errorf("failed to request scan: %w", wifi.ErrOperationFailed)
	}
	time.AfterFunc(scanSettle, func() {
		r.Post(wifi.Event{Kind: wifi.EventScanDone})
	})
	return nil
}

func (r *Radio) ScanResults(max int) ([]wifi.ScanRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dev, err := r.getWirelessDevice()
	if err != nil {
		return nil, err
	}
	aps, err := dev.GetAccessPoints()
	if err != nil {
		return nil, fmt.Errorf("failed to list access points: %w", wifi.ErrOperationFailed)
	}

	var records []wifi.ScanRecord
	for _, ap := range aps {
		ssid, err := ap.GetPropertySSID()
		if err != nil || ssid == "" {
			continue
		}
		strength, _ := ap.GetPropertyStrength()
		records = append(records, wifi.ScanRecord{SSID: ssid, RSSI: strengthToRSSI(strength)})
	}
	records = wifi.DedupeScanRecords(records)
	if len(records) > max {
		records = records[:max]
	}
	return records, nil
}

// strengthToRSSI inverts wifi.ScanRecord.Strength.
func strengthToRSSI(strength uint8) int {
	return int(strength)/2 - 100
}

func accessPointSettings(cfg wifi.APConfig, iface string) map[string]map[string]interface{} {
	settings := map[string]map[string]interface{}{
		"connection": {
			"id":             "wifiportal-ap",
			"uuid":           uuid.New().String(),
			"type":           "802-11-wireless",
			"interface-name": iface,
			"autoconnect":    false,
		},
		"802-11-wireless": {
			"mode":    "ap",
			"ssid":    []byte(cfg.SSID),
			"band":    "bg",
			"channel": uint32(cfg.Channel),
		},
		"ipv4": {"method": "shared"},
		"ipv6": {"method": "ignore"},
	}
	if cfg.Auth == wifi.AuthWPA2PSK {
		security := map[string]interface{}{
			"key-mgmt": "wpa-psk",
			"proto":    []string{"rsn"},
			"psk":      cfg.Password,
		}
		if cfg.PMFRequired {
			// NM_SETTING_WIRELESS_SECURITY_PMF_REQUIRED
			security["pmf"] = int32(3)
		}
		settings["802-11-wireless"]["security"] = "802-11-wireless-security"
		settings["802-11-wireless-security"] = security
	}
	return settings
}

func stationSettings(cfg wifi.StationConfig, iface string) map[string]map[string]interface{} {
	settings := map[string]map[string]interface{}{
		"connection": {
			"id":             cfg.SSID,
			"uuid":           uuid.New().String(),
			"type":           "802-11-wireless",
			"interface-name": iface,
			"autoconnect":    false,
		},
		"802-11-wireless": {
			"mode": "infrastructure",
			"ssid": []byte(cfg.SSID),
		},
		"ipv4": {"method": "auto"},
		"ipv6": {"method": "auto"},
	}
	if cfg.Password != "" {
		settings["802-11-wireless"]["security"] = "802-11-wireless-security"
		settings["802-11-wireless-security"] = map[string]interface{}{
			"key-mgmt": "wpa-psk",
			"psk":      cfg.Password,
		}
	}
	return settings
}

var _ wifi.Radio = (*Radio)(nil)
