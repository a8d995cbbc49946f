package provision

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/shazow/wifiportal/wifi"
)

// AttemptKind classifies why a station attempt ended.
type AttemptKind int

const (
	AttemptAPNotFound AttemptKind = iota
	AttemptInvalidPassword
	AttemptOther
)

func (k AttemptKind) String() string {
	switch k {
	case AttemptAPNotFound:
		return "ap-not-found"
	case AttemptInvalidPassword:
		return "invalid-password"
	}
	return "other"
}

// Classify maps a driver disconnect reason onto an attempt kind.
func Classify(reason wifi.Reason) AttemptKind {
	switch reason {
	case wifi.ReasonNoAPFound:
		return AttemptAPNotFound
	case wifi.ReasonAuthFail:
		return AttemptInvalidPassword
	}
	return AttemptOther
}

// FailReason is reported to the application when provisioning fails.
type FailReason int

const (
	FailAPNotFound FailReason = iota
	FailInvalidAPPassword
)

func (r FailReason) String() string {
	if r == FailInvalidAPPassword {
		return "invalid-ap-password"
	}
	return "ap-not-found"
}

// FailReason reduces an attempt kind to what the application sees.
func (k AttemptKind) FailReason() FailReason {
	if k == AttemptInvalidPassword {
		return FailInvalidAPPassword
	}
	return FailAPNotFound
}

// session tracks one set of station attempts. Event handlers write the
// outcome and close done; the worker reads it only after done is closed.
type session struct {
	id         string
	bootstrap  bool
	maxRetries int
	creds      Credentials

	attempts atomic.Int32
	finished atomic.Bool

	once    sync.Once
	done    chan struct{}
	success bool
	aborted bool
	kind    AttemptKind
	ip      string
}

func newSession(creds Credentials, bootstrap bool, maxRetries int) *session {
	return &session{
		id:         uuid.NewString(),
		bootstrap:  bootstrap,
		maxRetries: maxRetries,
		creds:      creds,
		done:       make(chan struct{}),
	}
}

// finish records the outcome and wakes the worker. Only the first call counts.
func (s *session) finish(success bool, kind AttemptKind, ip string) {
	s.once.Do(func() {
		s.success = success
		s.kind = kind
		s.ip = ip
		s.finished.Store(true)
		close(s.done)
	})
}

// abort ends the session without an outcome.
func (s *session) abort() {
	s.once.Do(func() {
		s.aborted = true
		s.finished.Store(true)
		close(s.done)
	})
}
