// Package stream connects to Twitter's streaming endpoints and keeps the
// connection alive, delivering classified messages to registered listeners.
package stream

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/coachpo/tweetstream/errs"
)

// Kind selects the streaming endpoint. It is fixed for the life of a session.
type Kind int

const (
	// KindFirehose is the full public stream, available to elevated access only.
	KindFirehose Kind = iota + 1
	// KindSample is a small random sample of public statuses.
	KindSample
	// KindFilter returns public statuses matching track, follow or locations predicates.
	KindFilter
	// KindUser is the authenticated user's home timeline stream.
	KindUser
)

// Default endpoint URLs.
const (
	FirehoseURL = "https://stream.twitter.com/1.1/statuses/firehose.json"
	SampleURL   = "https://stream.twitter.com/1.1/statuses/sample.json"
	FilterURL   = "https://stream.twitter.com/1.1/statuses/filter.json"
	UserURL     = "https://userstream.twitter.com/1.1/user.json"
)

func (k Kind) String() string {
	switch k {
	case KindFirehose:
		return "firehose"
	case KindSample:
		return "sample"
	case KindFilter:
		return "filter"
	case KindUser:
		return "user"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Endpoint returns the default URL for the stream kind.
func (k Kind) Endpoint() string {
	switch k {
	case KindFirehose:
		return FirehoseURL
	case KindSample:
		return SampleURL
	case KindFilter:
		return FilterURL
	case KindUser:
		return UserURL
	default:
		return ""
	}
}

// Method returns the HTTP method used to open the stream. Filter predicates
// can exceed URL limits, so filter sends a form body.
func (k Kind) Method() string {
	if k == KindFilter {
		return http.MethodPost
	}
	return http.MethodGet
}

// Valid reports whether k names a known endpoint.
func (k Kind) Valid() bool {
	return k >= KindFirehose && k <= KindUser
}

// ParseKind resolves a kind from its name.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "firehose":
		return KindFirehose, nil
	case "sample":
		return KindSample, nil
	case "filter":
		return KindFilter, nil
	case "user":
		return KindUser, nil
	default:
		return 0, errs.New(name, errs.CodeInvalid,
			errs.WithMessage(fmt.Sprintf("unknown stream kind %q", name)),
			errs.WithRemediation("use one of firehose, sample, filter, user"))
	}
}
