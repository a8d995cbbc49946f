//go:build linux

// Package iwd drives the radio through iwd over D-Bus.
//
// iwd runs a device either as a station or as an access point, never both, so
// combined mode is not supported.
package iwd

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/shazow/wifiportal/wifi"
)

const connectionTimeout = 30 * time.Second
const pollInterval = 500 * time.Millisecond

// IWD constants
const (
	iwdDest                = "net.connman.iwd"
	iwdPath                = "/"
	iwdAgentManagerIface   = "net.connman.iwd.AgentManager"
	iwdAgentIface          = "net.connman.iwd.Agent"
	iwdDeviceIface         = "net.connman.iwd.Device"
	iwdNetworkIface        = "net.connman.iwd.Network"
	iwdStationIface        = "net.connman.iwd.Station"
	iwdAccessPointIface    = "net.connman.iwd.AccessPoint"
	objectManagerIface     = "org.freedesktop.DBus.ObjectManager"
	propertiesSetMethod    = "org.freedesktop.DBus.Properties.Set"
	agentPath              = dbus.ObjectPath("/wifiportal/agent")
	iwdErrNotFound         = "net.connman.iwd.NotFound"
	iwdErrFailed           = "net.connman.iwd.Failed"
	iwdErrInvalidFormat    = "net.connman.iwd.InvalidFormat"
	iwdErrNotConnected     = "net.connman.iwd.NotConnected"
	iwdErrAlreadyConnected = "net.connman.iwd.AlreadyConnected"
)

// Agent answers iwd's passphrase requests with the configured station password.
type Agent struct {
	mu         sync.Mutex
	passphrase string
}

// SetPassphrase sets the passphrase returned for the next request.
func (a *Agent) SetPassphrase(p string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.passphrase = p
}

// RequestPassphrase is called by iwd over D-Bus.
func (a *Agent) RequestPassphrase(network dbus.ObjectPath) (string, *dbus.Error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.passphrase == "" {
		return "", dbus.NewError("net.connman.iwd.Agent.Error.Canceled", nil)
	}
	return a.passphrase, nil
}

// Release is called by iwd when it no longer uses the agent.
func (a *Agent) Release() *dbus.Error { return nil }

// Cancel is called by iwd when a request is aborted.
func (a *Agent) Cancel(reason string) *dbus.Error { return nil }

type orderedNetwork struct {
	Path   dbus.ObjectPath
	Signal int16 // 100 * dBm
}

// Radio implements wifi.Radio using iwd.
type Radio struct {
	*wifi.EventLoop

	Agent  *Agent
	conn   *dbus.Conn
	logger *slog.Logger

	mu          sync.Mutex
	device      dbus.ObjectPath
	ifaceName   string
	initialized bool
	started     bool
	mode        wifi.RadioMode
	apConfig    wifi.APConfig
	staConfig   wifi.StationConfig
	// attempt is bumped on every Connect and Stop so stale watchers go quiet.
	attempt uint64
}

// New creates a new iwd.Radio.
func New(logger *slog.Logger) (*Radio, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("system bus: %w", wifi.ErrNotAvailable)
	}
	obj := conn.Object(iwdDest, iwdPath)
	var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	if err := obj.Call(objectManagerIface+".GetManagedObjects", 0).Store(&objects); err != nil {
		return nil, fmt.Errorf("iwd is not available: %w", wifi.ErrNotAvailable)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Radio{
		EventLoop: wifi.NewEventLoop(logger),
		Agent:     &Agent{},
		conn:      conn,
		logger:    logger,
	}, nil
}

func (r *Radio) managedObjects() (map[dbus.ObjectPath]map[string]map[string]dbus.Variant, error) {
	var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	err := r.conn.Object(iwdDest, iwdPath).Call(objectManagerIface+".GetManagedObjects", 0).Store(&objects)
	return objects, err
}

func (r *Radio) getDevice() (dbus.ObjectPath, error) {
	if r.device != "" {
		return r.device, nil
	}
	objects, err := r.managedObjects()
	if err != nil {
		return "", fmt.Errorf("list iwd objects: %w", wifi.ErrOperationFailed)
	}
	for path, ifaces := range objects {
		props, ok := ifaces[iwdDeviceIface]
		if !ok {
			continue
		}
		r.device = path
		if name, ok := props["Name"].Value().(string); ok {
			r.ifaceName = name
		}
		return path, nil
	}
	return "", fmt.Errorf("no wireless device found: %w", wifi.ErrNotFound)
}

func (r *Radio) setDeviceProperty(name string, value any) error {
	return r.conn.Object(iwdDest, r.device).Call(propertiesSetMethod, 0, iwdDeviceIface, name, dbus.MakeVariant(value)).Err
}

func (r *Radio) Init() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.getDevice(); err != nil {
		return err
	}
	if err := r.setDeviceProperty("Powered", true); err != nil {
		return fmt.Errorf("power on %s: %w", r.ifaceName, wifi.ErrWirelessDisabled)
	}
	if err := r.conn.Export(r.Agent, agentPath, iwdAgentIface); err != nil {
		return fmt.Errorf("export agent: %w", wifi.ErrOperationFailed)
	}
	if err := r.conn.Object(iwdDest, iwdPath).Call(iwdAgentManagerIface+".RegisterAgent", 0, agentPath).Err; err != nil {
		return fmt.Errorf("register agent: %w", wifi.ErrOperationFailed)
	}
	r.initialized = true
	return nil
}

func (r *Radio) Deinit() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempt++
	err := r.conn.Object(iwdDest, iwdPath).Call(iwdAgentManagerIface+".UnregisterAgent", 0, agentPath).Err
	_ = r.conn.Export(nil, agentPath, iwdAgentIface)
	r.initialized = false
	r.started = false
	r.mode = wifi.RadioModeNull
	if err != nil {
		return fmt.Errorf("unregister agent: %w", wifi.ErrOperationFailed)
	}
	return nil
}

func (r *Radio) CreateInterface(kind wifi.InterfaceKind) (wifi.Interface, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.getDevice(); err != nil {
		return wifi.Interface{}, err
	}
	return wifi.Interface{Kind: kind, Name: r.ifaceName}, nil
}

// DestroyInterface is a no-op, iwd owns the device.
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
	var deviceMode string
	switch mode {
	case wifi.RadioModeNull:
		r.mode = mode
		return nil
	case wifi.RadioModeAP:
		deviceMode = "ap"
	case wifi.RadioModeStation:
		deviceMode = "station"
	default:
		return fmt.Errorf("mode %s: %w", mode, wifi.ErrNotSupported)
	}
	if err := r.setDeviceProperty("Mode", deviceMode); err != nil {
		return fmt.Errorf("set mode %s: %w", mode, wifi.ErrOperationFailed)
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
	r.Agent.SetPassphrase(cfg.Password)
	return nil
}

func (r *Radio) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		return wifi.ErrNotInitialized
	}
	switch r.mode {
	case wifi.RadioModeAP:
		// iwd requires a passphrase for its access points.
		if r.apConfig.Auth == wifi.AuthOpen {
			return fmt.Errorf("open access point: %w", wifi.ErrNotSupported)
		}
		call := r.conn.Object(iwdDest, r.device).Call(iwdAccessPointIface+".Start", 0, r.apConfig.SSID, r.apConfig.Password)
		if call.Err != nil {
			return fmt.Errorf("start access point %q: %w", r.apConfig.SSID, wifi.ErrOperationFailed)
		}
	case wifi.RadioModeStation:
		r.Post(wifi.Event{Kind: wifi.EventStationStart})
	}
	r.started = true
	return nil
}

func (r *Radio) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempt++
	var err error
	switch r.mode {
	case wifi.RadioModeAP:
		err = r.conn.Object(iwdDest, r.device).Call(iwdAccessPointIface+".Stop", 0).Err
	case wifi.RadioModeStation:
		err = r.conn.Object(iwdDest, r.device).Call(iwdStationIface+".Disconnect", 0).Err
		if isDBusError(err, iwdErrNotConnected) {
			err = nil
		}
	}
	r.started = false
	if err != nil {
		return fmt.Errorf("stop %s: %w", r.mode, wifi.ErrOperationFailed)
	}
	return nil
}

func (r *Radio) orderedNetworks() ([]orderedNetwork, error) {
	var networks []orderedNetwork
	err := r.conn.Object(iwdDest, r.device).Call(iwdStationIface+".GetOrderedNetworks", 0).Store(&networks)
	return networks, err
}

func (r *Radio) networkName(path dbus.ObjectPath) string {
	v, err := r.conn.Object(iwdDest, path).GetProperty(iwdNetworkIface + ".Name")
	if err != nil {
		return ""
	}
	name, _ := v.Value().(string)
	return name
}

// Connect starts a connection attempt in the background. Network.Connect
// blocks until iwd has an outcome, which is then posted as events.
func (r *Radio) Connect() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started || r.mode != wifi.RadioModeStation {
		return fmt.Errorf("connect without a started station: %w", wifi.ErrOperationFailed)
	}
	r.attempt++
	go r.connect(r.attempt, r.staConfig.SSID, r.ifaceName)
	return nil
}

func (r *Radio) current(attempt uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempt == attempt
}

func (r *Radio) connect(attempt uint64, ssid, iface string) {
	networks, err := r.orderedNetworks()
	if err != nil {
		r.logger.Debug("iwd: list networks failed", "error", err)
	}
	var target dbus.ObjectPath
	for _, n := range networks {
		if r.networkName(n.Path) == ssid {
			target = n.Path
			break
		}
	}
	if target == "" {
		if r.current(attempt) {
			r.Post(wifi.Event{Kind: wifi.EventStationDisconnected, Reason: wifi.ReasonNoAPFound})
		}
		return
	}

	err = r.conn.Object(iwdDest, target).Call(iwdNetworkIface+".Connect", 0).Err
	if !r.current(attempt) {
		return
	}
	if err != nil && !isDBusError(err, iwdErrAlreadyConnected) {
		r.Post(wifi.Event{Kind: wifi.EventStationDisconnected, Reason: translateError(err)})
		return
	}
	r.Post(wifi.Event{Kind: wifi.EventStationConnected})

	deadline := time.Now().Add(connectionTimeout)
	for time.Now().Before(deadline) {
		if !r.current(attempt) {
			return
		}
		if ip := interfaceAddress(iface); ip != "" {
			r.Post(wifi.Event{Kind: wifi.EventStationGotIP, IP: ip})
			return
		}
		time.Sleep(pollInterval)
	}
	if r.current(attempt) {
		r.Post(wifi.Event{Kind: wifi.EventStationDisconnected, Reason: wifi.ReasonConnectionFail})
	}
}

func isDBusError(err error, name string) bool {
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) {
		return dbusErr.Name == name
	}
	var dbusErrPtr *dbus.Error
	if errors.As(err, &dbusErrPtr) {
		return dbusErrPtr.Name == name
	}
	return false
}

func translateError(err error) wifi.Reason {
	switch {
	case isDBusError(err, iwdErrNotFound):
		return wifi.ReasonNoAPFound
	case isDBusError(err, iwdErrFailed), isDBusError(err, iwdErrInvalidFormat):
		return wifi.ReasonAuthFail
	}
	return wifi.ReasonConnectionFail
}

// interfaceAddress returns the first IPv4 address on iface, iwd leaves DHCP to
// the host network stack.
func interfaceAddress(iface string) string {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return ""
	}
	addrs, err := ifi.Addrs()
	if err != nil {
		return ""
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil {
			return ipnet.IP.String()
		}
	}
	return ""
}

func (r *Radio) StartScan() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mode != wifi.RadioModeStation {
		return fmt.Errorf("scan outside station mode: %w", wifi.ErrOperationFailed)
	}
	err := r.conn.Object(iwdDest, r.device).Call(iwdStationIface+".Scan", 0).Err
	if err != nil {
		return fmt.Errorf("request scan: %w", wifi.ErrOperationFailed)
	}
	go r.waitScan()
	return nil
}

func (r *Radio) waitScan() {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	timeout := time.After(connectionTimeout)
	for {
		select {
		case <-ticker.C:
			v, err := r.conn.Object(iwdDest, r.device).GetProperty(iwdStationIface + ".Scanning")
			if err != nil {
				continue
			}
			if scanning, ok := v.Value().(bool); ok && !scanning {
				r.Post(wifi.Event{Kind: wifi.EventScanDone})
				return
			}
		case <-timeout:
			r.Post(wifi.Event{Kind: wifi.EventScanDone})
			return
		}
	}
}

func (r *Radio) ScanResults(max int) ([]wifi.ScanRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	networks, err := r.orderedNetworks()
	if err != nil {
		return nil, fmt.Errorf("list networks: %w", wifi.ErrOperationFailed)
	}
	var records []wifi.ScanRecord
	for _, n := range networks {
		name := r.networkName(n.Path)
		if name == "" {
			continue
		}
		records = append(records, wifi.ScanRecord{SSID: name, RSSI: int(n.Signal) / 100})
	}
	records = wifi.DedupeScanRecords(records)
	if len(records) > max {
		records = records[:max]
	}
	return records, nil
}

var _ wifi.Radio = (*Radio)(nil)
