// Package events defines the typed messages decoded from Twitter streams.
package events

import (
	"time"
)

// Message is the closed set of classified stream messages.
// Implementations live in this package only; consumers switch on the concrete type.
type Message interface {
	Kind() Kind
	sealed()
}

// User carries the author fields needed to route a tweet.
type User struct {
	ID         string
	ScreenName string
	Name       string
}

// Tweet is a status delivered on the stream.
type Tweet struct {
	ID        string
	Text      string
	User      User
	Lang      string
	CreatedAt time.Time
	// Raw holds the original JSON object for application-level decoding.
	Raw []byte
}

// DeleteEvent identifies a status the application must delete.
type DeleteEvent struct {
	TweetID string
	UserID  string
}

// WarningEvent is a stall warning emitted when the client falls behind.
type WarningEvent struct {
	Code        string
	Message     string
	PercentFull int
}

// StatusType distinguishes connection status markers.
type StatusType string

const (
	// StatusFriends is the friends list preamble of a user stream.
	StatusFriends StatusType = "friends"
	// StatusDisconnect announces that the server is about to close the connection.
	StatusDisconnect StatusType = "disconnect"
)

// Disconnect codes with documented meaning.
const (
	DisconnectShutdown        = 1
	DisconnectDuplicateStream = 2
	DisconnectControlRequest  = 3
	DisconnectStall           = 4
	DisconnectNormal          = 5
	DisconnectTokenRevoked    = 6
	DisconnectAdminLogout     = 7
	DisconnectMaxMessageLimit = 9
	DisconnectStreamException = 10
	DisconnectBrokerStall     = 11
	DisconnectShedLoad        = 12
)

// TweetMessage wraps a tweet.
type TweetMessage struct {
	Tweet Tweet
}

// DeleteMessage wraps a deletion notice.
type DeleteMessage struct {
	Delete DeleteEvent
}

// ScrubGeoMessage asks the application to strip geo data from a user's statuses.
type ScrubGeoMessage struct {
	UserID       string
	UpToStatusID string
}

// LimitMessage reports how many matching tweets were withheld by track limiting.
type LimitMessage struct {
	Track int
}

// WarningMessage wraps a stall warning.
type WarningMessage struct {
	Warning WarningEvent
}

// StatusMessage carries a connection status marker.
type StatusMessage struct {
	Status         StatusType
	Friends        []string
	DisconnectCode int
	StreamName     string
	Reason         string
}

// UnknownMessage preserves a frame whose shape was not recognised.
type UnknownMessage struct {
	Keys []string
	Raw  []byte
}

func (TweetMessage) Kind() Kind    { return KindTweet }
func (DeleteMessage) Kind() Kind   { return KindDelete }
func (ScrubGeoMessage) Kind() Kind { return KindScrubGeo }
func (LimitMessage) Kind() Kind    { return KindLimit }
func (WarningMessage) Kind() Kind  { return KindWarning }
func (StatusMessage) Kind() Kind   { return KindStatus }
func (UnknownMessage) Kind() Kind  { return KindUnknown }

func (TweetMessage) sealed()    {}
func (DeleteMessage) sealed()   {}
func (ScrubGeoMessage) sealed() {}
func (LimitMessage) sealed()    {}
func (WarningMessage) sealed()  {}
func (StatusMessage) sealed()   {}
func (UnknownMessage) sealed()  {}

// AuthRevoked reports whether a disconnect notice means the credentials stopped working.
func (m StatusMessage) AuthRevoked() bool {
	if m.Status != StatusDisconnect {
		return false
	}
	return m.DisconnectCode == DisconnectTokenRevoked || m.DisconnectCode == DisconnectAdminLogout
}
