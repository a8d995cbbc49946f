package wifi

import "fmt"

// Reason is a station disconnect reason code. Values follow IEEE 802.11
// reason codes, with driver-specific codes starting at 200.
type Reason uint8

const (
	ReasonUnspecified          Reason = 1
	ReasonAuthExpire           Reason = 2
	ReasonAuthLeave            Reason = 3
	ReasonAssocExpire          Reason = 4
	ReasonAssocTooMany         Reason = 5
	ReasonAssocLeave           Reason = 8
	Reason4WayHandshakeTimeout Reason = 15
	ReasonBeaconTimeout        Reason = 200
	ReasonNoAPFound            Reason = 201
	ReasonAuthFail             Reason = 202
	ReasonAssocFail            Reason = 203
	ReasonHandshakeTimeout     Reason = 204
	ReasonConnectionFail       Reason = 205
)

var reasonNames = map[Reason]string{
	ReasonUnspecified:          "unspecified",
	ReasonAuthExpire:           "auth expired",
	ReasonAuthLeave:            "auth leave",
	ReasonAssocExpire:          "assoc expired",
	ReasonAssocTooMany:         "too many stations",
	ReasonAssocLeave:           "assoc leave",
	Reason4WayHandshakeTimeout: "4-way handshake timeout",
	ReasonBeaconTimeout:        "beacon timeout",
	ReasonNoAPFound:            "no AP found",
	ReasonAuthFail:             "auth failed",
	ReasonAssocFail:            "assoc failed",
	ReasonHandshakeTimeout:     "handshake timeout",
	ReasonConnectionFail:       "connection failed",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("reason(%d)", uint8(r))
}
