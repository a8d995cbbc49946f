package profile

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/shazow/wifiportal/wifi"
)

// Activation is the runtime state of a profile configured onto a radio.
// It is produced by Configure and torn down exactly once.
type Activation struct {
	profile Profile
	radio   wifi.Radio
	logger  *slog.Logger

	subs     []wifi.Subscription
	scanning atomic.Bool
	torn     bool
}

// Configure subscribes the profile's event handlers and pushes its
// configuration to the radio. On failure, handlers registered so far are
// removed again.
func Configure(radio wifi.Radio, p Profile, logger *slog.Logger) (*Activation, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Activation{
		profile: p,
		radio:   radio,
		logger:  logger.With("profile", p.Kind.String()),
	}

	var err error
	switch p.Kind {
	case KindNull:
	case KindAccessPoint:
		err = a.configureAccessPoint()
	case KindStation:
		err = a.configureStation()
	case KindCombined:
		err = a.configureCombined()
	case KindScanner:
		err = a.configureScanner()
	default:
		err = fmt.Errorf("profile %s: %w", p.Kind, wifi.ErrNotSupported)
	}
	if err != nil {
		if uerr := a.unsubscribeAll(); uerr != nil {
			a.logger.Warn("rollback left handlers registered", "error", uerr)
		}
		return nil, err
	}
	return a, nil
}

// Kind of the activated profile.
func (a *Activation) Kind() Kind {
	return a.profile.Kind
}

// Run gives the profile its kick after the radio started. Station profiles
// connect on their own once the radio reports the station interface is up.
func (a *Activation) Run() error {
	if a.profile.Kind != KindScanner {
		return nil
	}
	if err := a.radio.StartScan(); err != nil {
		return fmt.Errorf("start scan: %w", err)
	}
	return nil
}

// Teardown removes every handler and restores a safe radio mode. All steps are
// attempted; failures are joined.
func (a *Activation) Teardown() error {
	if a.torn {
		return nil
	}
	a.torn = true

	errs := []error{a.unsubscribeAll()}
	switch a.profile.Kind {
	case KindAccessPoint:
		next := wifi.RadioModeNull
		if mode, err := a.radio.Mode(); err == nil && mode == wifi.RadioModeAPStation {
			next = wifi.RadioModeStation
		}
		errs = append(errs, a.setMode(next))
	case KindStation, KindCombined:
		errs = append(errs, a.setMode(wifi.RadioModeNull))
	}
	return errors.Join(errs...)
}

func (a *Activation) setMode(mode wifi.RadioMode) error {
	if err := a.radio.SetMode(mode); err != nil {
		return fmt.Errorf("set mode %s: %w", mode, err)
	}
	return nil
}

func (a *Activation) subscribe(kind wifi.EventKind, h wifi.EventHandler) error {
	sub, err := a.radio.Subscribe(kind, h)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", kind, err)
	}
	a.subs = append(a.subs, sub)
	return nil
}

func (a *Activation) unsubscribeAll() error {
	var errs []error
	for _, sub := range a.subs {
		if err := a.radio.Unsubscribe(sub); err != nil {
			errs = append(errs, fmt.Errorf("unsubscribe %s: %w", sub.Kind, err))
		}
	}
	a.subs = nil
	return errors.Join(errs...)
}

func (a *Activation) configureAccessPoint() error {
	if err := a.setMode(wifi.RadioModeAP); err != nil {
		return err
	}
	if err := a.subscribeAccessPoint(); err != nil {
		return err
	}
	return a.pushAccessPoint()
}

func (a *Activation) configureStation() error {
	if err := a.setMode(wifi.RadioModeStation); err != nil {
		return err
	}
	if err := a.subscribeStation(); err != nil {
		return err
	}
	return a.pushStation()
}

func (a *Activation) configureCombined() error {
	if err := a.setMode(wifi.RadioModeAPStation); err != nil {
		return err
	}
	if err := a.subscribeAccessPoint(); err != nil {
		return err
	}
	if err := a.subscribeStation(); err != nil {
		return err
	}
	if err := a.pushAccessPoint(); err != nil {
		return err
	}
	return a.pushStation()
}

func (a *Activation) configureScanner() error {
	if err := a.setMode(wifi.RadioModeStation); err != nil {
		return err
	}
	if err := a.subscribe(wifi.EventScanDone, a.onScanDone); err != nil {
		return err
	}
	if err := a.radio.SetStationConfig(wifi.StationConfig{}); err != nil {
		return fmt.Errorf("set station config: %w", err)
	}
	return nil
}

func (a *Activation) pushAccessPoint() error {
	cfg := a.profile.AP.radioConfig()
	if err := a.radio.SetAPConfig(cfg); err != nil {
		return fmt.Errorf("set ap config %q: %w", cfg.SSID, err)
	}
	a.logger.Info("access point configured", "ssid", cfg.SSID, "channel", cfg.Channel, "auth", cfg.Auth.String())
	return nil
}

func (a *Activation) pushStation() error {
	sta := a.profile.Station
	if err := a.radio.SetStationConfig(wifi.StationConfig{SSID: sta.SSID, Password: sta.Password}); err != nil {
		return fmt.Errorf("set station config %q: %w", sta.SSID, err)
	}
	return nil
}

func (a *Activation) subscribeAccessPoint() error {
	ap := a.profile.AP
	if err := a.subscribe(wifi.EventAPStationJoined, func(ev wifi.Event) {
		a.logger.Info("client joined", "mac", ev.MAC, "aid", ev.AID)
	}); err != nil {
		return err
	}
	if err := a.subscribe(wifi.EventAPStationLeft, func(ev wifi.Event) {
		a.logger.Info("client left", "mac", ev.MAC, "reason", ev.Reason.String())
		if ap.OnDeviceDisconnected != nil {
			ap.OnDeviceDisconnected(ev.MAC)
		}
	}); err != nil {
		return err
	}
	return a.subscribe(wifi.EventAPStationIPAssigned, func(ev wifi.Event) {
		a.logger.Debug("client assigned address", "mac", ev.MAC, "ip", ev.IP)
		if ap.OnDeviceConnected != nil {
			ap.OnDeviceConnected(ev.MAC, ev.IP)
		}
	})
}

func (a *Activation) subscribeStation() error {
	sta := a.profile.Station
	if err := a.subscribe(wifi.EventStationStart, func(wifi.Event) {
		if err := a.radio.Connect(); err != nil {
			a.logger.Error("connect request failed", "ssid", sta.SSID, "error", err)
			if sta.OnDisconnected != nil {
				sta.OnDisconnected(wifi.ReasonConnectionFail)
			}
		}
	}); err != nil {
		return err
	}
	if err := a.subscribe(wifi.EventStationConnected, func(wifi.Event) {
		a.logger.Info("station associated", "ssid", sta.SSID)
	}); err != nil {
		return err
	}
	if err := a.subscribe(wifi.EventStationDisconnected, func(ev wifi.Event) {
		a.logger.Info("station disconnected", "ssid", sta.SSID, "reason", ev.Reason.String())
		if sta.OnDisconnected != nil {
			sta.OnDisconnected(ev.Reason)
		}
	}); err != nil {
		return err
	}
	return a.subscribe(wifi.EventStationGotIP, func(ev wifi.Event) {
		a.logger.Info("station got address", "ssid", sta.SSID, "ip", ev.IP)
		if sta.OnConnected != nil {
			sta.OnConnected(ev.IP)
		}
	})
}

// onScanDone runs on the event loop, so the fetch happens on a worker.
func (a *Activation) onScanDone(wifi.Event) {
	if !a.scanning.CompareAndSwap(false, true) {
		a.logger.Debug("scan fetch already running")
		return
	}
	go func() {
		defer a.scanning.Store(false)
		records, err := a.radio.ScanResults(ScanCapacity)
		if err != nil {
			a.logger.Error("fetch scan results failed", "error", err)
			return
		}
		if len(records) > ScanCapacity {
			records = records[:ScanCapacity]
		}
		wifi.SortScanRecords(records)
		a.logger.Debug("scan done", "records", len(records))
		if cb := a.profile.Scanner.OnScanDone; cb != nil {
			cb(records)
		}
	}()
}
