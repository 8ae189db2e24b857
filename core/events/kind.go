package events

// Kind classifies a stream message for routing.
type Kind int

const (
	// KindUnknown represents a message shape this client does not recognise.
	KindUnknown Kind = iota
	// KindTweet represents a status (tweet) payload.
	KindTweet
	// KindDelete represents a status deletion notice.
	KindDelete
	// KindScrubGeo represents a location deletion notice.
	KindScrubGeo
	// KindLimit represents a track limitation notice.
	KindLimit
	// KindWarning represents a stall warning.
	KindWarning
	// KindStatus represents connection status markers (friends lists, disconnect notices).
	KindStatus
)

// Dispatchable reports whether messages of this kind reach listener callbacks.
func (k Kind) Dispatchable() bool {
	switch k {
	case KindTweet, KindDelete, KindScrubGeo, KindLimit, KindWarning, KindStatus:
		return true
	case KindUnknown:
		return false
	default:
		return false
	}
}

// String returns the symbolic name for the message kind.
func (k Kind) String() string {
	switch k {
	case KindTweet:
		return "tweet"
	case KindDelete:
		return "delete"
	case KindScrubGeo:
		return "scrub_geo"
	case KindLimit:
		return "limit"
	case KindWarning:
		return "warning"
	case KindStatus:
		return "status"
	default:
		return "unknown"
	}
}
