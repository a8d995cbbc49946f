package manager

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shazow/wifiportal/wifi"
	"github.com/shazow/wifiportal/wifi/mock"
	"github.com/shazow/wifiportal/wifi/profile"
)

func newRadio(t *testing.T) *mock.Radio {
	t.Helper()
	r := mock.New(nil)
	r.ActionSleep = 0
	t.Cleanup(r.Close)
	return r
}

func newManager(t *testing.T, r *mock.Radio) *Manager {
	t.Helper()
	m, err := New(NewRadioLifecycle(r), nil)
	require.NoError(t, err)
	return m
}

func countCalls(calls []string, name string) int {
	n := 0
	for _, c := range calls {
		if c == name {
			n++
		}
	}
	return n
}

// phases collapses the call log into C (handlers registered) and T (handlers
// removed) runs.
func phases(calls []string) string {
	var b strings.Builder
	last := byte(0)
	for _, c := range calls {
		var p byte
		switch {
		case strings.HasPrefix(c, "subscribe:"):
			p = 'C'
		case strings.HasPrefix(c, "unsubscribe:"):
			p = 'T'
		default:
			continue
		}
		if p != last {
			b.WriteByte(p)
			last = p
		}
	}
	return b.String()
}

func TestLifecycleCounting(t *testing.T) {
	r := newRadio(t)
	l := NewRadioLifecycle(r)

	require.NoError(t, l.Acquire())
	require.NoError(t, l.Acquire())
	assert.True(t, l.Powered())
	assert.Equal(t, 1, countCalls(r.Calls(), "init"))

	require.NoError(t, l.Release())
	assert.True(t, l.Powered(), "radio stays powered while referenced")
	assert.Equal(t, 0, countCalls(r.Calls(), "deinit"))

	require.NoError(t, l.Release())
	assert.False(t, l.Powered())
	assert.Equal(t, 1, countCalls(r.Calls(), "deinit"))

	assert.ErrorIs(t, l.Release(), wifi.ErrNotInitialized)
}

func TestLifecycleInitFailure(t *testing.T) {
	r := newRadio(t)
	r.InitError = wifi.ErrNotAvailable
	l := NewRadioLifecycle(r)

	_, err := New(l, nil)
	require.ErrorIs(t, err, wifi.ErrNotAvailable)
	assert.False(t, l.Powered())
	assert.Zero(t, l.outstanding())
}

func TestManagersSharePower(t *testing.T) {
	r := newRadio(t)
	l := NewRadioLifecycle(r)

	a, err := New(l, nil)
	require.NoError(t, err)
	b, err := New(l, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, countCalls(r.Calls(), "init"))

	require.NoError(t, a.Close())
	assert.True(t, r.Initialized())
	require.NoError(t, b.Close())
	assert.False(t, r.Initialized())
}

func TestSetProfileOrdering(t *testing.T) {
	r := newRadio(t)
	m := newManager(t, r)

	profiles := []profile.Profile{
		profile.NewAccessPoint(profile.AccessPointConfig{SSID: "setup"}),
		profile.NewStation(profile.StationConfig{SSID: "home", Password: "secret123"}),
		profile.NewCombined(profile.AccessPointConfig{SSID: "setup"}, profile.StationConfig{SSID: "home"}),
		profile.NewAccessPoint(profile.AccessPointConfig{SSID: "setup", Password: "letmein1"}),
		profile.NewScanner(profile.ScannerConfig{}),
	}
	for _, p := range profiles {
		require.NoError(t, m.SetProfile(p))
		assert.Equal(t, p.Kind, m.Mode())
	}
	require.NoError(t, m.Close())

	// Each configure is followed by its teardown before the next configure.
	assert.Equal(t, strings.Repeat("CT", len(profiles)), phases(r.Calls()))
	assert.Empty(t, r.Interfaces())
	assert.Equal(t, len(profiles), countCalls(r.Calls(), "start"))
	assert.Equal(t, len(profiles), countCalls(r.Calls(), "stop"))
}

func TestSetProfileTeardownBeforeCreate(t *testing.T) {
	r := newRadio(t)
	m := newManager(t, r)

	require.NoError(t, m.SetProfile(profile.NewAccessPoint(profile.AccessPointConfig{SSID: "setup"})))
	r.ResetCalls()
	require.NoError(t, m.SetProfile(profile.NewStation(profile.StationConfig{SSID: "home"})))

	calls := r.Calls()
	idx := func(name string) int {
		for i, c := range calls {
			if c == name {
				return i
			}
		}
		t.Fatalf("call %q not found in %v", name, calls)
		return -1
	}
	assert.Less(t, idx("stop"), idx("destroy-interface:ap"))
	assert.Less(t, idx("destroy-interface:ap"), idx("create-interface:sta"))
	assert.Less(t, idx("create-interface:sta"), idx("set-mode:station"))
	assert.Less(t, idx("set-station-config:home"), idx("start"))
}

func TestSetProfileNull(t *testing.T) {
	r := newRadio(t)
	m := newManager(t, r)

	require.NoError(t, m.SetProfile(profile.NewStation(profile.StationConfig{SSID: "home"})))
	require.NoError(t, m.SetProfile(profile.Null()))

	assert.Equal(t, profile.KindNull, m.Mode())
	assert.Empty(t, r.Interfaces())
	assert.False(t, r.Started())
	assert.True(t, r.Initialized(), "null profile leaves the radio powered")
	assert.Zero(t, r.Handlers(wifi.EventStationGotIP))
}

func TestSetProfileFailureLeavesNull(t *testing.T) {
	r := newRadio(t)
	m := newManager(t, r)
	r.StartError = errors.New("radio on fire")

	err := m.SetProfile(profile.NewStation(profile.StationConfig{SSID: "home"}))
	require.Error(t, err)
	assert.ErrorIs(t, err, r.StartError)

	assert.Equal(t, profile.KindNull, m.Mode())
	assert.Empty(t, r.Interfaces())
	assert.Zero(t, r.Handlers(wifi.EventStationStart))

	r.StartError = nil
	require.NoError(t, m.SetProfile(profile.NewAccessPoint(profile.AccessPointConfig{SSID: "setup"})))
	assert.Equal(t, profile.KindAccessPoint, m.Mode())
}

func TestReconnect(t *testing.T) {
	r := newRadio(t)
	m := newManager(t, r)

	require.NoError(t, m.SetProfile(profile.NewAccessPoint(profile.AccessPointConfig{SSID: "setup"})))
	assert.ErrorIs(t, m.Reconnect(), wifi.ErrNotSupported)

	disconnects := make(chan wifi.Reason, 4)
	require.NoError(t, m.SetProfile(profile.NewStation(profile.StationConfig{
		SSID:           "Nowhere",
		OnDisconnected: func(reason wifi.Reason) { disconnects <- reason },
	})))
	select {
	case <-disconnects:
	case <-time.After(2 * time.Second):
		t.Fatal("expected first attempt to fail")
	}

	require.NoError(t, m.Reconnect())
	select {
	case reason := <-disconnects:
		assert.Equal(t, wifi.ReasonNoAPFound, reason)
	case <-time.After(2 * time.Second):
		t.Fatal("expected reconnect attempt to fail")
	}
	assert.Equal(t, 2, r.Connects())
	// Reconnecting does not recreate the profile.
	assert.Equal(t, 1, countCalls(r.Calls(), "set-station-config:Nowhere"))
}

func TestReconnectFromHandler(t *testing.T) {
	r := newRadio(t)
	m := newManager(t, r)

	done := make(chan struct{})
	attempts := 0
	require.NoError(t, m.SetProfile(profile.NewStation(profile.StationConfig{
		SSID: "Nowhere",
		OnDisconnected: func(wifi.Reason) {
			attempts++
			if attempts < 3 {
				assert.NoError(t, m.Reconnect())
				return
			}
			close(done)
		},
	})))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reconnect from the event loop deadlocked")
	}
	assert.Equal(t, 3, r.Connects())
}

func TestClose(t *testing.T) {
	r := newRadio(t)
	m := newManager(t, r)
	require.NoError(t, m.SetProfile(profile.NewStation(profile.StationConfig{SSID: "home"})))

	require.NoError(t, m.Close())
	assert.False(t, r.Initialized())
	assert.Empty(t, r.Interfaces())
	assert.ErrorIs(t, m.SetProfile(profile.Null()), wifi.ErrClosed)
	assert.NoError(t, m.Close())
}
