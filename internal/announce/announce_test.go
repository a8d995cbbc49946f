package announce

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeServer struct {
	shutdowns int
}

func (s *fakeServer) Shutdown() { s.shutdowns++ }

type registration struct {
	instance, service, domain string
	port                      int
	txt                       []string
	ifaces                    []net.Interface
}

func newTestAnnouncer(err error) (*Announcer, *fakeServer, *[]registration) {
	srv := &fakeServer{}
	var regs []registration
	a := New(nil)
	a.register = func(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (shutdowner, error) {
		regs = append(regs, registration{instance, service, domain, port, txt, ifaces})
		if err != nil {
			return nil, err
		}
		return srv, nil
	}
	return a, srv, &regs
}

func TestPublishAndShutdown(t *testing.T) {
	a, srv, regs := newTestAnnouncer(nil)

	require.NoError(t, a.Publish(Service{Instance: "gadget", Service: "_http._tcp", Port: 80, Text: []string{"v=1"}}))
	assert.True(t, a.Published())
	require.Len(t, *regs, 1)
	assert.Equal(t, "local.", (*regs)[0].domain)
	assert.Equal(t, 80, (*regs)[0].port)
	assert.Nil(t, (*regs)[0].ifaces)

	assert.ErrorIs(t, a.Publish(Service{Instance: "gadget"}), ErrAlreadyPublished)

	a.Shutdown()
	a.Shutdown()
	assert.False(t, a.Published())
	assert.Equal(t, 1, srv.shutdowns)
}

func TestPublishFailure(t *testing.T) {
	boom := errors.New("no multicast")
	a, _, _ := newTestAnnouncer(boom)

	err := a.Publish(Service{Instance: "gadget", Service: "_http._tcp", Port: 80})
	assert.ErrorIs(t, err, boom)
	assert.False(t, a.Published())
}

func TestPublishUnknownInterface(t *testing.T) {
	a, _, regs := newTestAnnouncer(nil)
	err := a.Publish(Service{Instance: "gadget", Service: "_http._tcp", Port: 80, Interface: "does-not-exist0"})
	assert.Error(t, err)
	assert.Empty(t, *regs)
}
