// Package provision runs the captive-portal provisioning workflow: it hosts an
// access point with a sign-in form, tries the submitted credentials as a
// station, persists them once they work and falls back to the portal when
// they don't.
package provision

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shazow/wifiportal/wifi"
	"github.com/shazow/wifiportal/wifi/profile"
)

const (
	// DefaultMaxRetries is the number of station attempts per submission.
	DefaultMaxRetries = 3
	// DefaultReopenAttempts is how often the portal is brought back up after
	// a failed submission before giving up.
	DefaultReopenAttempts = 3
	DefaultReopenDelay    = 2 * time.Second
)

const (
	msgInvalidData = "Invalid Data"
	msgConnecting  = "Trying to connect to AP"
	msgBusy        = "Connection attempt already in progress"
	msgStopped     = "Provisioning stopped"
)

// State of the coordinator.
type State int

const (
	StateIdle State = iota
	StatePortalOpen
	StateConnecting
	StateBootstrapConnecting
	StateProvisioned
	// StatePortalFailed means the portal could not be brought back after a
	// failed attempt. Start recovers.
	StatePortalFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePortalOpen:
		return "portal-open"
	case StateConnecting:
		return "connecting"
	case StateBootstrapConnecting:
		return "bootstrap-connecting"
	case StateProvisioned:
		return "provisioned"
	case StatePortalFailed:
		return "portal-failed"
	}
	return "unknown"
}

// Connectivity swaps radio profiles. Implemented by *manager.Manager.
type Connectivity interface {
	SetProfile(p profile.Profile) error
	// Reconnect retries the active station profile. It is called from radio
	// event handlers and must not block on SetProfile.
	Reconnect() error
}

// Portal is the HTTP transport of the sign-in page.
type Portal interface {
	Handle(method, path string, h http.HandlerFunc) error
	Start() error
	Stop() error
	Running() bool
}

// Store persists byte records by key. Read of a missing key returns an error
// matching fs.ErrNotExist.
type Store interface {
	Read(key string) ([]byte, error)
	Write(key string, data []byte) error
	Remove(key string) error
}

// Pages renders the static content of the portal.
type Pages interface {
	ServeIndex(w http.ResponseWriter, r *http.Request)
	ServeStyles(w http.ResponseWriter, r *http.Request)
}

// Coordinator drives provisioning. Only one connection attempt runs at a time.
type Coordinator struct {
	// MaxRetries bounds the station attempts per submission.
	MaxRetries int
	// Pages serves the sign-in page. Without it those routes answer 404.
	Pages Pages
	// Channel and MaxClients configure the portal access point. Zero picks
	// the profile defaults.
	Channel    uint8
	MaxClients uint8
	// ReopenAttempts and ReopenDelay bound how the portal is restored after
	// a failed submission.
	ReopenAttempts int
	ReopenDelay    time.Duration

	conn   Connectivity
	portal Portal
	store  Store
	logger *slog.Logger

	routes    sync.Once
	routesErr error

	mu            sync.Mutex
	state         State
	ap            Credentials
	onProvisioned func()
	onFailed      func(FailReason)
	stationIP     string
	session       *session
	stopped       bool
	// halt is closed by Stop to cut short pending portal reopens.
	halt chan struct{}

	// ops serializes radio and portal hand-offs between workers and Stop.
	ops     sync.Mutex
	working atomic.Bool
	wg      sync.WaitGroup
}

func New(conn Connectivity, portal Portal, store Store, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		MaxRetries:     DefaultMaxRetries,
		ReopenAttempts: DefaultReopenAttempts,
		ReopenDelay:    DefaultReopenDelay,
		conn:           conn,
		portal:         portal,
		store:          store,
		logger:         logger,
	}
}

// Start opens the portal: the access point goes up and the sign-in form is
// served until credentials work.
func (c *Coordinator) Start(apSSID, apPassword string, onProvisioned func(), onProvisionFailed func(FailReason)) error {
	c.ops.Lock()
	defer c.ops.Unlock()
	c.mu.Lock()
	c.ap = Credentials{SSID: apSSID, Password: apPassword}
	c.onProvisioned = onProvisioned
	c.onFailed = onProvisionFailed
	c.stopped = false
	c.mu.Unlock()
	return c.openPortal()
}

// openPortal brings up the access point and the listener. Callers hold c.ops.

func (c *Coordinator) openPortal() error {
	c.mu.Lock()
	ap := c.ap
	c.mu.Unlock()

	p := profile.NewAccessPoint(profile.AccessPointConfig{
		SSID:       ap.SSID,
		Password:   ap.Password,
		Channel:    c.Channel,
		MaxClients: c.MaxClients,
		OnDeviceConnected: func(mac, ip string) {
			c.logger.Info("portal client connected", "mac", mac, "ip", ip)
		},
		OnDeviceDisconnected: func(mac string) {
			c.logger.Info("portal client left", "mac", mac)
		},
	})
	if err := c.conn.SetProfile(p); err != nil {
		return fmt.Errorf("%w: %w", ErrPortalStartFailed, err)
	}

	c.routes.Do(func() { c.routesErr = c.registerRoutes() })
	if c.routesErr != nil {
		return fmt.Errorf("%w: %w", ErrPortalStartFailed, c.routesErr)
	}
	if !c.portal.Running() {
		if err := c.portal.Start(); err != nil {
			return fmt.Errorf("%w: %w", ErrPortalStartFailed, err)
		}
	}

	c.setState(StatePortalOpen)
	c.logger.Info("portal open", "ssid", ap.SSID)
	return nil
}

func (c *Coordinator) registerRoutes() error {
	routes := []struct {
		method, path string
		h            http.HandlerFunc
	}{
		{http.MethodGet, "/{$}", c.serveIndex},
		{http.MethodGet, "/css/styles.css", c.serveStyles},
		{http.MethodGet, "/", c.redirectHome},
		{http.MethodPost, "/connect", c.handleConnect},
	}
	for _, r := range routes {
		if err := c.portal.Handle(r.method, r.path, r.h); err != nil {
			return fmt.Errorf("register %s %s: %w", r.method, r.path, err)
		}
	}
	return nil
}

func (c *Coordinator) serveIndex(w http.ResponseWriter, r *http.Request) {
	if c.Pages == nil {
		http.NotFound(w, r)
		return
	}
	c.Pages.ServeIndex(w, r)
}

func (c *Coordinator) serveStyles(w http.ResponseWriter, r *http.Request) {
	if c.Pages == nil {
		http.NotFound(w, r)
		return
	}
	c.Pages.ServeStyles(w, r)
}

// redirectHome answers connectivity checks so clients pop up the sign-in page.
func (c *Coordinator) redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusFound)
}

func (c *Coordinator) handleConnect(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFormBody))
	if err != nil {
		c.logger.Warn("reading form", "error", err)
		http.Error(w, msgInvalidData, http.StatusBadRequest)
		return
	}
	form := ParseForm(string(body))
	ssid, okSSID := form.Get("ssid")
	password, okPassword := form.Get("password")
	if !okSSID || !okPassword {
		c.logger.Warn("invalid form submission", "fields", form.Len())
		http.Error(w, msgInvalidData, http.StatusBadRequest)
		return
	}

	if c.isStopped() {
		http.Error(w, msgStopped, http.StatusServiceUnavailable)
		return
	}
	if !c.working.CompareAndSwap(false, true) {
		http.Error(w, msgBusy, http.StatusConflict)
		return
	}
	c.logger.Info("credentials submitted", "ssid", ssid)
	c.startAttempt(Credentials{SSID: ssid, Password: password}, false, StateConnecting)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, msgConnecting)
}

// startAttempt spawns the worker. The caller has set c.working.
func (c *Coordinator) startAttempt(creds Credentials, bootstrap bool, state State) {
	s := newSession(creds, bootstrap, c.maxRetries())
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
	c.setState(state)
	c.wg.Add(1)
	go c.worker(s)
}

// current reports whether s is the active session of a running coordinator.
func (c *Coordinator) current(s *session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.stopped && c.session == s
}

// drop forgets s if it is still the active session.
func (c *Coordinator) drop(s *session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != s {
		return false
	}
	c.session = nil
	return true
}

func (c *Coordinator) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

func (c *Coordinator) maxRetries() int {
	if c.MaxRetries < 1 {
		return 1
	}
	return c.MaxRetries
}

func (c *Coordinator) worker(s *session) {
	defer c.wg.Done()

	logger := c.logger.With("session", s.id, "ssid", s.creds.SSID, "bootstrap", s.bootstrap)

	p := profile.NewStation(profile.StationConfig{
		SSID:     s.creds.SSID,
		Password: s.creds.Password,
		OnConnected: func(ip string) {
			s.finish(true, AttemptOther, ip)
		},
		OnDisconnected: func(reason wifi.Reason) {
			c.onDisconnected(s, logger, reason)
		},
	})

	c.ops.Lock()
	if s.finished.Load() || !c.current(s) {
		c.ops.Unlock()
		if c.drop(s) {
			c.setState(StateIdle)
			c.working.Store(false)
		}
		logger.Info("attempt abandoned")
		return
	}
	err := c.conn.SetProfile(p)
	c.ops.Unlock()
	if err != nil {
		logger.Error("station activation", "error", fmt.Errorf("%w: %w", ErrConnectionAttemptFailed, err))
		s.finish(false, AttemptOther, "")
	}

	<-s.done
	if s.aborted {
		logger.Info("attempt cancelled")
		return
	}
	if s.success {
		c.succeed(s, logger)
	} else {
		c.fail(s, logger)
	}
}

// onDisconnected runs on the radio event loop and must not block.
func (c *Coordinator) onDisconnected(s *session, logger *slog.Logger, reason wifi.Reason) {
	if s.finished.Load() {
		return
	}
	n := int(s.attempts.Add(1))
	kind := Classify(reason)
	logger.Warn("connection attempt failed",
		"attempt", n,
		"reason", reason.String(),
		"error", fmt.Errorf("%w: %s", ErrConnectionAttemptFailed, kind),
	)

	if kind == AttemptInvalidPassword {
		s.finish(false, kind, "")
		return
	}
	if n < s.maxRetries {
		if err := c.conn.Reconnect(); err != nil {
			logger.Error("reconnect", "error", err)
			s.finish(false, kind, "")
		}
		return
	}
	logger.Warn("giving up", "error", fmt.Errorf("%w after %d attempts", ErrRetryExhausted, n))
	s.finish(false, kind, "")
}

func (c *Coordinator) stopPortal(logger *slog.Logger) {
	if !c.portal.Running() {
		return
	}
	if err := c.portal.Stop(); err != nil {
		logger.Warn("stopping portal", "error", err)
	}
}

func (c *Coordinator) succeed(s *session, logger *slog.Logger) {
	c.ops.Lock()
	if !c.current(s) {
		c.ops.Unlock()
		logger.Info("discarding outcome of stopped attempt")
		return
	}
	c.drop(s)
	c.stopPortal(logger)
	if err := c.store.Write(CredentialsKey, EncodeCredentials(s.creds)); err != nil {
		logger.Error("saving credentials", "error", fmt.Errorf("%w: %w", ErrPersistenceFailed, err))
	}

	c.mu.Lock()
	c.state = StateProvisioned
	c.stationIP = s.ip
	cb := c.onProvisioned
	c.mu.Unlock()
	c.ops.Unlock()
	c.working.Store(false)

	logger.Info("provisioned", "ip", s.ip, "attempts", s.attempts.Load()+1)
	if cb != nil {
		cb()
	}
}

func (c *Coordinator) fail(s *session, logger *slog.Logger) {
	c.ops.Lock()
	if !c.current(s) {
		c.ops.Unlock()
		logger.Info("discarding outcome of stopped attempt")
		return
	}
	c.drop(s)
	c.stopPortal(logger)
	if s.bootstrap {
		if err := c.RemovePreviousProvisioning(); err != nil {
			logger.Error("erasing stored credentials", "error", err)
		}
	}

	reason := s.kind.FailReason()
	c.mu.Lock()
	c.state = StateIdle
	cb := c.onFailed
	c.mu.Unlock()
	c.ops.Unlock()
	c.working.Store(false)

	logger.Warn("provisioning failed", "reason", reason.String(), "attempts", s.attempts.Load())
	if cb != nil {
		cb(reason)
	}
	c.reopenPortal(logger)
}

// halted returns a channel that the next Stop closes.
func (c *Coordinator) halted() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.halt == nil {
		c.halt = make(chan struct{})
	}
	return c.halt
}

// reopenPortal retries openPortal and parks the coordinator in
// StatePortalFailed when the portal stays down. It gives way to Stop and to
// a newer attempt.
func (c *Coordinator) reopenPortal(logger *slog.Logger) {
	halt := c.halted()
	tries := c.ReopenAttempts
	if tries < 1 {
		tries = 1
	}
	var err error
	for i := 0; i < tries; i++ {
		if i > 0 {
			select {
			case <-halt:
				return
			case <-time.After(c.ReopenDelay):
			}
		}
		c.ops.Lock()
		if c.isStopped() || c.working.Load() {
			c.ops.Unlock()
			return
		}
		err = c.openPortal()
		c.ops.Unlock()
		if err == nil {
			return
		}
		logger.Warn("reopening portal", "try", i+1, "error", err)
	}
	c.setState(StatePortalFailed)
	logger.Error("portal unavailable", "tries", tries, "error", err)
}

// ApplyPreviousProvisioning tries stored credentials without opening the
// portal. It returns false when there is nothing usable stored; a malformed
// record is erased. ap is the access point to fall back to on failure.
func (c *Coordinator) ApplyPreviousProvisioning(ap Credentials, onProvisioned func(), onProvisionFailed func(FailReason)) bool {
	data, err := c.store.Read(CredentialsKey)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.Error("reading stored credentials", "error", err)
		}
		return false
	}

	creds, err := DecodeCredentials(data)
	if err == nil && creds.Empty() {
		err = fmt.Errorf("empty record: %w", ErrMalformedCredentials)
	}
	if err != nil {
		c.logger.Warn("discarding stored credentials", "error", err)
		if err := c.RemovePreviousProvisioning(); err != nil {
			c.logger.Error("erasing stored credentials", "error", err)
		}
		return false
	}

	if !c.working.CompareAndSwap(false, true) {
		c.logger.Warn("connection attempt already in progress")
		return false
	}
	c.mu.Lock()
	c.ap = ap
	c.onProvisioned = onProvisioned
	c.onFailed = onProvisionFailed
	c.stopped = false
	c.mu.Unlock()

	c.logger.Info("trying stored credentials", "ssid", creds.SSID)
	c.startAttempt(creds, true, StateBootstrapConnecting)
	return true
}

// CheckForPreviousProvisioning reports whether a credential record is stored.
func (c *Coordinator) CheckForPreviousProvisioning() bool {
	_, err := c.store.Read(CredentialsKey)
	return err == nil
}

// RemovePreviousProvisioning erases the stored credentials. A missing record
// is not an error.
func (c *Coordinator) RemovePreviousProvisioning() error {
	if err := c.store.Remove(CredentialsKey); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", CredentialsKey, err)
	}
	return nil
}

// Stop closes the portal and deactivates the radio. A connection attempt in
// flight is cancelled and its outcome discarded. Start resumes.
func (c *Coordinator) Stop() error {
	c.ops.Lock()
	defer c.ops.Unlock()

	c.mu.Lock()
	c.stopped = true
	s := c.session
	c.session = nil
	if c.halt != nil {
		close(c.halt)
		c.halt = nil
	}
	c.mu.Unlock()
	if s != nil {
		s.abort()
		c.working.Store(false)
	}

	var errs []error
	if c.portal.Running() {
		errs = append(errs, c.portal.Stop())
	}
	errs = append(errs, c.conn.SetProfile(profile.Null()))
	c.setState(StateIdle)
	return errors.Join(errs...)
}

// Wait blocks until no connection attempt is running.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != s {
		c.logger.Debug("state change", "from", c.state.String(), "to", s.String())
	}
	c.state = s
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Provisioned reports whether credentials were confirmed working.
func (c *Coordinator) Provisioned() bool {
	return c.State() == StateProvisioned
}

// StationIP is the address obtained by the last successful attempt.
func (c *Coordinator) StationIP() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stationIP
}
