package portal

import (
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) *Server {
	t.Helper()
	s := New("127.0.0.1:0", nil)
	t.Cleanup(func() {
		if s.Running() {
			s.Stop()
		}
	})
	return s
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServerStartStop(t *testing.T) {
	s := newServer(t)
	require.NoError(t, s.Handle("GET", "/hello", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "hi")
	}))

	assert.False(t, s.Running())
	require.NoError(t, s.Start())
	assert.True(t, s.Running())
	assert.ErrorIs(t, s.Start(), ErrAlreadyRunning)

	code, body := get(t, "http://"+s.Addr()+"/hello")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "hi", body)

	addr := s.Addr()
	require.NoError(t, s.Stop())
	assert.False(t, s.Running())
	assert.ErrorIs(t, s.Stop(), ErrNotRunning)

	_, err := http.Get("http://" + addr + "/hello")
	assert.Error(t, err, "listener should be closed")
}

func TestServerRoutesSurviveRestart(t *testing.T) {
	s := newServer(t)
	require.NoError(t, s.Handle("GET", "/ping", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "pong")
	}))

	require.NoError(t, s.Start())
	require.NoError(t, s.Stop())
	require.NoError(t, s.Start())

	code, body := get(t, "http://"+s.Addr()+"/ping")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "pong", body)
}

func TestServerDuplicateRoute(t *testing.T) {
	s := newServer(t)
	h := func(w http.ResponseWriter, r *http.Request) {}
	require.NoError(t, s.Handle("GET", "/", h))
	assert.ErrorIs(t, s.Handle("GET", "/", h), ErrAlreadyRegistered)
	assert.NoError(t, s.Handle("POST", "/", h), "same path with another method is a different route")
}

func TestServerListenFailure(t *testing.T) {
	a := newServer(t)
	require.NoError(t, a.Start())

	b := New(a.Addr(), nil)
	assert.Error(t, b.Start())
	assert.False(t, b.Running())
}

func TestServerAddr(t *testing.T) {
	assert.Equal(t, DefaultAddr, New("", nil).Addr())
	assert.Equal(t, "10.0.0.1:8080", New("10.0.0.1:8080", nil).Addr())
}
