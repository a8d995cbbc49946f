package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shazow/wifiportal/internal/announce"
	"github.com/shazow/wifiportal/internal/config"
	wifilog "github.com/shazow/wifiportal/internal/log"
	"github.com/shazow/wifiportal/internal/tui"
	"github.com/shazow/wifiportal/portal"
	"github.com/shazow/wifiportal/provision"
	"github.com/shazow/wifiportal/wifi"
	"github.com/shazow/wifiportal/wifi/manager"
)

// daemon wires the provisioning coordinator to a radio, the portal listener
// and the credential store.
type daemon struct {
	cfg    config.Config
	logger *slog.Logger

	mgr       *manager.Manager
	server    *portal.Server
	pages     *portal.Pages
	coord     *provision.Coordinator
	announcer *announce.Announcer
}

func newDaemon(cfg config.Config, radio wifi.Radio, store provision.Store, logger *slog.Logger) (*daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}
	mgr, err := newManager(radio, logger)
	if err != nil {
		return nil, err
	}

	d := &daemon{
		cfg:       cfg,
		logger:    logger,
		mgr:       mgr,
		server:    portal.New(cfg.Portal.Listen, logger.With("component", "portal")),
		pages:     &portal.Pages{Title: cfg.Portal.Title, Logger: logger},
		announcer: announce.New(logger),
	}
	d.coord = provision.New(mgr, d.server, store, logger.With("component", "provision"))
	d.coord.MaxRetries = cfg.Station.MaxRetries
	d.coord.Channel = cfg.Portal.Channel
	d.coord.MaxClients = cfg.Portal.MaxClients
	d.coord.Pages = d.pages
	return d, nil
}

// start reuses stored credentials when there are any, and opens the portal
// otherwise.
func (d *daemon) start(ctx context.Context) error {
	ap := provision.Credentials{SSID: d.cfg.Portal.SSID, Password: d.cfg.Portal.Password}

	if d.coord.ApplyPreviousProvisioning(ap, d.onProvisioned, d.onProvisionFailed) {
		d.logger.Info("joining previously provisioned network")
		return nil
	}

	d.refreshNetworks(ctx)
	if err := d.coord.Start(ap.SSID, ap.Password, d.onProvisioned, d.onProvisionFailed); err != nil {
		return err
	}
	return nil
}

func (d *daemon) refreshNetworks(ctx context.Context) {
	records, err := scanNetworks(ctx, d.mgr, d.cfg.Station.ScanTimeout.Duration)
	if err != nil {
		d.logger.Warn("scan before opening the portal failed", "error", err)
		return
	}
	d.pages.SetNetworks(records)
	d.logger.Debug("cached scan results", "count", len(records))
}

func (d *daemon) onProvisioned() {
	d.logger.Info("provisioned", "ip", d.coord.StationIP())
	if !d.cfg.Announce.Enabled {
		return
	}
	if err := d.announcer.Publish(d.announceService()); err != nil {
		d.logger.Warn("failed to announce", "error", err)
	}
}

func (d *daemon) announceService() announce.Service {
	a := d.cfg.Announce
	return announce.Service{
		Instance:  a.Instance,
		Service:   a.Service,
		Domain:    a.Domain,
		Port:      a.Port,
		Text:      a.Text,
		Interface: a.Interface,
	}
}

// onProvisionFailed runs before the portal reopens, so the page gets a fresh
// scan.
func (d *daemon) onProvisionFailed(reason provision.FailReason) {
	d.logger.Warn("provisioning failed, reopening portal", "reason", reason.String())
	d.refreshNetworks(context.Background())
}

// Snapshot implements tui.Source.
func (d *daemon) Snapshot() tui.Snapshot {
	state := d.coord.State()
	s := tui.Snapshot{
		State:     state.String(),
		Mode:      d.mgr.Mode().String(),
		StationIP: d.coord.StationIP(),
		Busy:      state == provision.StateConnecting || state == provision.StateBootstrapConnecting,
		Announced: d.announcer.Published(),
	}
	if d.server.Running() {
		s.Portal = fmt.Sprintf("%s on %q", d.server.Addr(), d.cfg.Portal.SSID)
	}
	return s
}

// Networks implements tui.Source.
func (d *daemon) Networks() []wifi.ScanRecord {
	return d.pages.Networks()
}

func (d *daemon) close() error {
	d.announcer.Shutdown()
	err := d.coord.Stop()
	if cerr := d.mgr.Close(); cerr != nil {
		d.logger.Warn("closing radio manager", "error", cerr)
	}
	return err
}

// runDaemon provisions until ctx ends. With monitor set the TUI runs in
// the foreground and quitting it stops the daemon.
func runDaemon(ctx context.Context, d *daemon, monitor bool, logs *wifilog.TUIHandler) error {
	if err := d.start(ctx); err != nil {
		d.close()
		return fmt.Errorf("failed to start provisioning: %w", err)
	}
	defer d.close()

	if monitor {
		return tui.Run(ctx, d, logs)
	}
	<-ctx.Done()
	d.logger.Info("shutting down")
	return nil
}
