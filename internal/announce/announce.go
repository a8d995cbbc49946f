// Package announce publishes the device over mDNS once it has joined a
// network.
package announce

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/grandcat/zeroconf"
)

// ErrAlreadyPublished is returned by Publish while a service is registered.
var ErrAlreadyPublished = errors.New("service already published")

// Service describes a DNS-SD record.
type Service struct {
	Instance string
	Service  string
	Domain   string
	Port     int
	Text     []string
	// Interface limits the announcement to one network interface by name.
	Interface string
}

type registerFunc func(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (shutdowner, error)

type shutdowner interface {
	Shutdown()
}

// Announcer owns at most one published service.
type Announcer struct {
	logger   *slog.Logger
	register registerFunc

	mu     sync.Mutex
	server shutdowner
}

func New(logger *slog.Logger) *Announcer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Announcer{
		logger: logger,
		register: func(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (shutdowner, error) {
			return zeroconf.Register(instance, service, domain, port, txt, ifaces)
		},
	}
}

// Publish registers svc until Shutdown.
func (a *Announcer) Publish(svc Service) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		return ErrAlreadyPublished
	}

	var ifaces []net.Interface
	if svc.Interface != "" {
		iface, err := net.InterfaceByName(svc.Interface)
		if err != nil {
			return fmt.Errorf("announce on %s: %w", svc.Interface, err)
		}
		ifaces = []net.Interface{*iface}
	}
	domain := svc.Domain
	if domain == "" {
		domain = "local."
	}

	srv, err := a.register(svc.Instance, svc.Service, domain, svc.Port, svc.Text, ifaces)
	if err != nil {
		return fmt.Errorf("register %s.%s: %w", svc.Instance, svc.Service, err)
	}
	a.server = srv
	a.logger.Info("published mdns service", "instance", svc.Instance, "service", svc.Service, "port", svc.Port)
	return nil
}

// Published reports whether a service is registered.
func (a *Announcer) Published() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server != nil
}

// Shutdown withdraws the published service. It is a no-op when nothing is
// published.
func (a *Announcer) Shutdown() {
	a.mu.Lock()
	srv := a.server
	a.server = nil
	a.mu.Unlock()
	if srv != nil {
		srv.Shutdown()
		a.logger.Info("withdrew mdns service")
	}
}
