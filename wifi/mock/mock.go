package mock

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shazow/wifiportal/wifi"
)

var DefaultActionSleep = 500 * time.Millisecond

// Network is a network the simulated radio can see and join.
type Network struct {
	SSID     string
	Password string
	RSSI     int
}

// Radio is a simulated wifi.Radio. Station connects succeed when the
// configured SSID and password match one of Networks, and fail with the
// reason a real driver would report otherwise.
type Radio struct {
	*wifi.EventLoop

	mu sync.Mutex

	Networks []Network
	// StationIP is the address reported on a successful connect.
	StationIP string
	// ConnectReasons, when not empty, scripts the outcome of the next connects:
	// each Connect pops one reason and reports a disconnect with it.
	ConnectReasons []wifi.Reason

	InitError             error
	DeinitError           error
	CreateInterfaceError  error
	DestroyInterfaceError error
	SetModeError          error
	SetAPConfigError      error
	SetStationConfigError error
	StartError            error
	StopError             error
	ConnectError          error
	ScanError             error
	ScanResultsError      error
	SubscribeErrors       map[wifi.EventKind]error
	UnsubscribeErrors     map[wifi.EventKind]error

	// ActionSleep is a delay before every asynchronous driver event, to better emulate a real-world radio. Set to 0 during testing.
	ActionSleep time.Duration

	initialized   bool
	mode          wifi.RadioMode
	apConfig      wifi.APConfig
	stationConfig wifi.StationConfig
	started       bool
	ifaces        map[string]wifi.Interface
	handlers      map[wifi.Subscription]struct{}
	nextIface     int
	calls         []string
	connects      int
}

// New creates a new mock.Radio with a list of fun wifi networks.
func New(logger *slog.Logger) *Radio {
	return &Radio{
		EventLoop: wifi.NewEventLoop(logger),
		Networks: []Network{
			{SSID: "HideYoKidsHideYoWiFi", Password: "hidden", RSSI: -48},
			{SSID: "Password is password", Password: "password", RSSI: -55},
			{SSID: "Unencrypted_Honeypot", RSSI: -62},
			{SSID: "Dunder MiffLAN", Password: "beetsbears", RSSI: -67},
			{SSID: "TacoBoutAGoodSignal", Password: "tacotuesday", RSSI: -41},
			{SSID: "Police Surveillance 2", Password: "nothingtosee", RSSI: -83},
			{SSID: "I Believe Wi Can Fi", Password: "rkelly", RSSI: -77},
			{SSID: "Hot singles in your area", Password: "nope", RSSI: -90},
		},
		StationIP:   "192.168.1.50",
		ActionSleep: DefaultActionSleep,
		ifaces:      make(map[string]wifi.Interface),
		handlers:    make(map[wifi.Subscription]struct{}),
	}
}

func (r *Radio) record(format string, args ...any) {
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
}

// Calls returns the driver calls made so far, in order.
func (r *Radio) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// ResetCalls clears the call log.
func (r *Radio) ResetCalls() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

// Connects returns how many times Connect was called.
func (r *Radio) Connects() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connects
}

// Initialized reports whether the driver is powered.
func (r *Radio) Initialized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.initialized
}

// Started reports whether the radio is started.
func (r *Radio) Started() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

// Interfaces returns the currently created virtual interfaces.
func (r *Radio) Interfaces() []wifi.Interface {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []wifi.Interface
	for _, iface := range r.ifaces {
		result = append(result, iface)
	}
	return result
}

// APConfig returns the last access point configuration pushed to the radio.
func (r *Radio) APConfig() wifi.APConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.apConfig
}

// StationConfig returns the last station configuration pushed to the radio.
func (r *Radio) StationConfig() wifi.StationConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stationConfig
}

func (r *Radio) Init() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("init")
	if r.InitError != nil {
		return r.InitError
	}
	r.initialized = true
	return nil
}

func (r *Radio) Deinit() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("deinit")
	if r.DeinitError != nil {
		return r.DeinitError
	}
	r.initialized = false
	r.mode = wifi.RadioModeNull
	return nil
}

func (r *Radio) CreateInterface(kind wifi.InterfaceKind) (wifi.Interface, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("create-interface:%s", kind)
	if r.CreateInterfaceError != nil {
		return wifi.Interface{}, r.CreateInterfaceError
	}
	iface := wifi.Interface{Kind: kind, Name: fmt.Sprintf("%s%d", kind, r.nextIface)}
	r.nextIface++
	r.ifaces[iface.Name] = iface
	return iface, nil
}

func (r *Radio) DestroyInterface(iface wifi.Interface) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("destroy-interface:%s", iface.Kind)
	if r.DestroyInterfaceError != nil {
		return r.DestroyInterfaceError
	}
	if _, ok := r.ifaces[iface.Name]; !ok {
		return fmt.Errorf("interface %s: %w", iface.Name, wifi.ErrNotFound)
	}
	delete(r.ifaces, iface.Name)
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
	r.record("set-mode:%s", mode)
	if r.SetModeError != nil {
		return r.SetModeError
	}
	if !r.initialized {
		return wifi.ErrNotInitialized
	}
	r.mode = mode
	return nil
}

func (r *Radio) SetAPConfig(cfg wifi.APConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("set-ap-config:%s", cfg.SSID)
	if r.SetAPConfigError != nil {
		return r.SetAPConfigError
	}
	r.apConfig = cfg
	return nil
}

func (r *Radio) SetStationConfig(cfg wifi.StationConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("set-station-config:%s", cfg.SSID)
	if r.SetStationConfigError != nil {
		return r.SetStationConfigError
	}
	r.stationConfig = cfg
	return nil
}

func (r *Radio) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("start")
	if r.StartError != nil {
		return r.StartError
	}
	if !r.initialized {
		return wifi.ErrNotInitialized
	}
	r.started = true
	if r.mode == wifi.RadioModeStation || r.mode == wifi.RadioModeAPStation {
		r.later(wifi.Event{Kind: wifi.EventStationStart})
	}
	return nil
}

func (r *Radio) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("stop")
	if r.StopError != nil {
		return r.StopError
	}
	r.started = false
	return nil
}

func (r *Radio) Connect() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("connect")
	r.connects++
	if r.ConnectError != nil {
		return r.ConnectError
	}
	if !r.started {
		return fmt.Errorf("connect before start: %w", wifi.ErrOperationFailed)
	}

	if len(r.ConnectReasons) > 0 {
		reason := r.ConnectReasons[0]
		r.ConnectReasons = r.ConnectReasons[1:]
		r.later(wifi.Event{Kind: wifi.EventStationDisconnected, Reason: reason})
		return nil
	}

	cfg := r.stationConfig
	for _, n := range r.Networks {
		if n.SSID != cfg.SSID {
			continue
		}
		if n.Password != cfg.Password {
			r.later(wifi.Event{Kind: wifi.EventStationDisconnected, Reason: wifi.ReasonAuthFail})
			return nil
		}
		r.later(
			wifi.Event{Kind: wifi.EventStationConnected},
			wifi.Event{Kind: wifi.EventStationGotIP, IP: r.StationIP},
		)
		return nil
	}
	r.later(wifi.Event{Kind: wifi.EventStationDisconnected, Reason: wifi.ReasonNoAPFound})
	return nil
}

func (r *Radio) StartScan() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("start-scan")
	if r.ScanError != nil {
		return r.ScanError
	}
	if !r.started {
		return fmt.Errorf("scan before start: %w", wifi.ErrOperationFailed)
	}
	r.later(wifi.Event{Kind: wifi.EventScanDone})
	return nil
}

func (r *Radio) ScanResults(max int) ([]wifi.ScanRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("scan-results")
	if r.ScanResultsError != nil {
		return nil, r.ScanResultsError
	}
	var records []wifi.ScanRecord
	for _, n := range r.Networks {
		if len(records) == max {
			break
		}
		records = append(records, wifi.ScanRecord{SSID: n.SSID, RSSI: n.RSSI})
	}
	return records, nil
}

func (r *Radio) Subscribe(kind wifi.EventKind, h wifi.EventHandler) (wifi.Subscription, error) {
	r.mu.Lock()
	r.record("subscribe:%s", kind)
	err := r.SubscribeErrors[kind]
	r.mu.Unlock()
	if err != nil {
		return wifi.Subscription{}, err
	}
	sub, err := r.EventLoop.Subscribe(kind, h)
	if err != nil {
		return sub, err
	}
	r.mu.Lock()
	r.handlers[sub] = struct{}{}
	r.mu.Unlock()
	return sub, nil
}

func (r *Radio) Unsubscribe(sub wifi.Subscription) error {
	r.mu.Lock()
	r.record("unsubscribe:%s", sub.Kind)
	err := r.UnsubscribeErrors[sub.Kind]
	r.mu.Unlock()
	if err != nil {
		return err
	}
	if err := r.EventLoop.Unsubscribe(sub); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.handlers, sub)
	r.mu.Unlock()
	return nil
}

// Handlers returns how many handlers for kind were subscribed through the
// radio and not yet unsubscribed.
func (r *Radio) Handlers(kind wifi.EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for sub := range r.handlers {
		if sub.Kind == kind {
			n++
		}
	}
	return n
}

// JoinClient simulates a client associating with our access point and
// getting a DHCP lease.
func (r *Radio) JoinClient(mac, ip string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.later(
		wifi.Event{Kind: wifi.EventAPStationJoined, MAC: mac, AID: len(mac) % 8},
		wifi.Event{Kind: wifi.EventAPStationIPAssigned, MAC: mac, IP: ip},
	)
}

// LeaveClient simulates a client leaving our access point.
func (r *Radio) LeaveClient(mac string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.later(wifi.Event{Kind: wifi.EventAPStationLeft, MAC: mac, Reason: wifi.ReasonAssocLeave})
}

// later posts events after ActionSleep. Callers hold r.mu.
func (r *Radio) later(events ...wifi.Event) {
	if r.ActionSleep == 0 {
		for _, ev := range events {
			r.EventLoop.Post(ev)
		}
		return
	}
	time.AfterFunc(r.ActionSleep, func() {
		for _, ev := range events {
			r.EventLoop.Post(ev)
		}
	})
}

var _ wifi.Radio = (*Radio)(nil)
