package mock

import (
	"errors"
	"testing"
	"time"

	"github.com/shazow/wifiportal/wifi"
)

func newTestRadio(t *testing.T) *Radio {
	t.Helper()
	r := New(nil)
	r.ActionSleep = 0
	t.Cleanup(r.Close)
	if err := r.Init(); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	return r
}

// waitEvent subscribes to kind and returns a function that waits for the next event.
func waitEvent(t *testing.T, r *Radio, kind wifi.EventKind) func() wifi.Event {
	t.Helper()
	ch := make(chan wifi.Event, 8)
	if _, err := r.Subscribe(kind, func(ev wifi.Event) { ch <- ev }); err != nil {
		t.Fatalf("Subscribe(%s) failed: %v", kind, err)
	}
	return func() wifi.Event {
		t.Helper()
		select {
		case ev := <-ch:
			return ev
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", kind)
		}
		return wifi.Event{}
	}
}

func startStation(t *testing.T, r *Radio, ssid, password string) {
	t.Helper()
	if err := r.SetMode(wifi.RadioModeStation); err != nil {
		t.Fatalf("SetMode failed: %v", err)
	}
	if err := r.SetStationConfig(wifi.StationConfig{SSID: ssid, Password: password}); err != nil {
		t.Fatalf("SetStationConfig failed: %v", err)
	}
	if err := r.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
}

func TestNew(t *testing.T) {
	r := New(nil)
	defer r.Close()
	if len(r.Networks) == 0 {
		t.Fatal("New() returned no networks")
	}
	if r.Initialized() {
		t.Error("expected radio to start powered off")
	}
	if _, err := r.Mode(); !errors.Is(err, wifi.ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized before Init, got %v", err)
	}
}

func TestConnectSuccess(t *testing.T) {
	r := newTestRadio(t)
	connected := waitEvent(t, r, wifi.EventStationConnected)
	gotIP := waitEvent(t, r, wifi.EventStationGotIP)

	startStation(t, r, "Password is password", "password")
	if err := r.Connect(); err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}
	connected()
	if ev := gotIP(); ev.IP != r.StationIP {
		t.Errorf("expected IP %q, got %q", r.StationIP, ev.IP)
	}
}

func TestConnectFailureReasons(t *testing.T) {
	testCases := []struct {
		name     string
		ssid     string
		password string
		want     wifi.Reason
	}{
		{"wrong password", "Password is password", "hunter2", wifi.ReasonAuthFail},
		{"unknown network", "Nowhere", "password", wifi.ReasonNoAPFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRadio(t)
			disconnected := waitEvent(t, r, wifi.EventStationDisconnected)
			startStation(t, r, tc.ssid, tc.password)
			if err := r.Connect(); err != nil {
				t.Fatalf("Connect() failed: %v", err)
			}
			if ev := disconnected(); ev.Reason != tc.want {
				t.Errorf("expected reason %s, got %s", tc.want, ev.Reason)
			}
		})
	}
}

func TestConnectScripted(t *testing.T) {
	r := newTestRadio(t)
	r.ConnectReasons = []wifi.Reason{wifi.ReasonBeaconTimeout}
	disconnected := waitEvent(t, r, wifi.EventStationDisconnected)
	connected := waitEvent(t, r, wifi.EventStationConnected)

	startStation(t, r, "Password is password", "password")
	if err := r.Connect(); err != nil {
		t.Fatal(err)
	}
	if ev := disconnected(); ev.Reason != wifi.ReasonBeaconTimeout {
		t.Errorf("expected scripted reason, got %s", ev.Reason)
	}
	// Script exhausted, the network table decides again.
	if err := r.Connect(); err != nil {
		t.Fatal(err)
	}
	connected()
	if r.Connects() != 2 {
		t.Errorf("expected 2 connects, got %d", r.Connects())
	}
}

func TestConnectBeforeStart(t *testing.T) {
	r := newTestRadio(t)
	if err := r.Connect(); !errors.Is(err, wifi.ErrOperationFailed) {
		t.Errorf("expected ErrOperationFailed, got %v", err)
	}
}

func TestStartPostsStationStart(t *testing.T) {
	r := newTestRadio(t)
	started := waitEvent(t, r, wifi.EventStationStart)
	startStation(t, r, "", "")
	started()
	if !r.Started() {
		t.Error("expected radio to be started")
	}
}

func TestScan(t *testing.T) {
	r := newTestRadio(t)
	done := waitEvent(t, r, wifi.EventScanDone)
	startStation(t, r, "", "")
	if err := r.StartScan(); err != nil {
		t.Fatalf("StartScan() failed: %v", err)
	}
	done()

	records, err := r.ScanResults(3)
	if err != nil {
		t.Fatalf("ScanResults() failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].SSID != r.Networks[0].SSID {
		t.Errorf("expected first record %q, got %q", r.Networks[0].SSID, records[0].SSID)
	}
}

func TestInterfaces(t *testing.T) {
	r := newTestRadio(t)
	ap, err := r.CreateInterface(wifi.InterfaceAP)
	if err != nil {
		t.Fatal(err)
	}
	sta, err := r.CreateInterface(wifi.InterfaceStation)
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Interfaces()) != 2 {
		t.Fatalf("expected 2 interfaces, got %d", len(r.Interfaces()))
	}
	if err := r.DestroyInterface(ap); err != nil {
		t.Fatal(err)
	}
	if err := r.DestroyInterface(ap); !errors.Is(err, wifi.ErrNotFound) {
		t.Errorf("expected ErrNotFound destroying twice, got %v", err)
	}
	if err := r.DestroyInterface(sta); err != nil {
		t.Fatal(err)
	}
}

func TestInjectedErrors(t *testing.T) {
	r := newTestRadio(t)
	boom := errors.New("boom")
	r.UnsubscribeErrors = map[wifi.EventKind]error{wifi.EventScanDone: boom}

	sub, err := r.Subscribe(wifi.EventScanDone, func(wifi.Event) {})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Unsubscribe(sub); !errors.Is(err, boom) {
		t.Errorf("expected injected error, got %v", err)
	}
	if r.Handlers(wifi.EventScanDone) != 1 {
		t.Error("failed unsubscribe should leave the handler registered")
	}
}

func TestClientEvents(t *testing.T) {
	r := newTestRadio(t)
	assigned := waitEvent(t, r, wifi.EventAPStationIPAssigned)
	left := waitEvent(t, r, wifi.EventAPStationLeft)

	r.JoinClient("aa:bb:cc:dd:ee:ff", "192.168.4.2")
	if ev := assigned(); ev.IP != "192.168.4.2" || ev.MAC != "aa:bb:cc:dd:ee:ff" {
		t.Errorf("unexpected assignment event: %+v", ev)
	}
	r.LeaveClient("aa:bb:cc:dd:ee:ff")
	if ev := left(); ev.MAC != "aa:bb:cc:dd:ee:ff" {
		t.Errorf("unexpected leave event: %+v", ev)
	}
}
