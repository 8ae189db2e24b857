// Package classifier turns stream frames into typed messages by probing top-level keys.
package classifier

import (
	"bytes"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/coachpo/tweetstream/core/events"
	"github.com/coachpo/tweetstream/errs"
)

const twitterTimeLayout = time.RubyDate

// Classifier labels decode errors with a stream name. It holds no per-frame state.
type Classifier struct {
	stream string
}

// New returns a classifier whose errors carry the given stream label.
func New(stream string) Classifier {
	return Classifier{stream: strings.TrimSpace(stream)}
}

// Classify classifies a frame without a stream label.
func Classify(frame []byte) (events.Message, error) {
	return Classifier{stream: ""}.Classify(frame)
}

// Classify maps one non-blank frame to exactly one message.
// Unrecognised shapes yield events.UnknownMessage; only malformed JSON is an error.
// Byte slices in the result alias frame.
func (c Classifier) Classify(frame []byte) (events.Message, error) {
	trimmed := bytes.TrimSpace(frame)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, c.decodeError("frame is not a JSON object", nil)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &top); err != nil {
		return nil, c.decodeError("unmarshal frame", err)
	}

	switch {
	case has(top, "text") && (has(top, "id") || has(top, "id_str")):
		return c.tweet(trimmed)
	case has(top, "delete"):
		return c.deletion(top["delete"])
	case has(top, "scrub_geo"):
		return c.scrubGeo(top["scrub_geo"])
	case has(top, "limit"):
		return c.limit(top["limit"])
	case has(top, "warning"):
		return c.warning(top["warning"])
	case has(top, "disconnect"):
		return c.disconnect(top["disconnect"])
	case has(top, "friends") || has(top, "friends_str"):
		return c.friends(top)
	default:
		keys := make([]string, 0, len(top))
		for k := range top {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return events.UnknownMessage{Keys: keys, Raw: trimmed}, nil
	}
}

type userWire struct {
	ID         json.RawMessage `json:"id"`
	IDStr      string          `json:"id_str"`
	ScreenName string          `json:"screen_name"`
	Name       string          `json:"name"`
}

type tweetWire struct {
	ID            json.RawMessage `json:"id"`
	IDStr         string          `json:"id_str"`
	Text          string          `json:"text"`
	Lang          string          `json:"lang"`
	CreatedAt     string          `json:"created_at"`
	User          *userWire       `json:"user"`
	ExtendedTweet *struct {
		FullText string `json:"full_text"`
	} `json:"extended_tweet"`
}

func (c Classifier) tweet(raw []byte) (events.Message, error) {
	var w tweetWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, c.decodeError("decode tweet", err)
	}
	tweet := events.Tweet{
		ID:        idString(w.IDStr, w.ID),
		Text:      w.Text,
		User:      events.User{ID: "", ScreenName: "", Name: ""},
		Lang:      w.Lang,
		CreatedAt: time.Time{},
		Raw:       raw,
	}
	if w.ExtendedTweet != nil && w.ExtendedTweet.FullText != "" {
		tweet.Text = w.ExtendedTweet.FullText
	}
	if w.User != nil {
		tweet.User = events.User{
			ID:         idString(w.User.IDStr, w.User.ID),
			ScreenName: w.User.ScreenName,
			Name:       w.User.Name,
		}
	}
	if w.CreatedAt != "" {
		if ts, err := time.Parse(twitterTimeLayout, w.CreatedAt); err == nil {
			tweet.CreatedAt = ts.UTC()
		}
	}
	return events.TweetMessage{Tweet: tweet}, nil
}

type deleteWire struct {
	Status struct {
		ID        json.RawMessage `json:"id"`
		IDStr     string          `json:"id_str"`
		UserID    json.RawMessage `json:"user_id"`
		UserIDStr string          `json:"user_id_str"`
	} `json:"status"`
}

func (c Classifier) deletion(raw json.RawMessage) (events.Message, error) {
	var w deleteWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, c.decodeError("decode delete", err)
	}
	return events.DeleteMessage{Delete: events.DeleteEvent{
		TweetID: idString(w.Status.IDStr, w.Status.ID),
		UserID:  idString(w.Status.UserIDStr, w.Status.UserID),
	}}, nil
}

type scrubGeoWire struct {
	UserID          json.RawMessage `json:"user_id"`
	UserIDStr       string          `json:"user_id_str"`
	UpToStatusID    json.RawMessage `json:"up_to_status_id"`
	UpToStatusIDStr string          `json:"up_to_status_id_str"`
}

func (c Classifier) scrubGeo(raw json.RawMessage) (events.Message, error) {
	var w scrubGeoWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, c.decodeError("decode scrub_geo", err)
	}
	return events.ScrubGeoMessage{
		UserID:       idString(w.UserIDStr, w.UserID),
		UpToStatusID: idString(w.UpToStatusIDStr, w.UpToStatusID),
	}, nil
}

func (c Classifier) limit(raw json.RawMessage) (events.Message, error) {
	var w struct {
		Track int `json:"track"`
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, c.decodeError("decode limit", err)
	}
	return events.LimitMessage{Track: w.Track}, nil
}

func (c Classifier) warning(raw json.RawMessage) (events.Message, error) {
	var w struct {
		Code        string `json:"code"`
		Message     string `json:"message"`
		PercentFull int    `json:"percent_full"`
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, c.decodeError("decode warning", err)
	}
	return events.WarningMessage{Warning: events.WarningEvent{
		Code:        w.Code,
		Message:     w.Message,
		PercentFull: w.PercentFull,
	}}, nil
}

func (c Classifier) disconnect(raw json.RawMessage) (events.Message, error) {
	var w struct {
		Code       int    `json:"code"`
		StreamName string `json:"stream_name"`
		Reason     string `json:"reason"`
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, c.decodeError("decode disconnect", err)
	}
	return events.StatusMessage{
		Status:         events.StatusDisconnect,
		Friends:        nil,
		DisconnectCode: w.Code,
		StreamName:     w.StreamName,
		Reason:         w.Reason,
	}, nil
}

func (c Classifier) friends(top map[string]json.RawMessage) (events.Message, error) {
	var ids []string
	if raw, ok := top["friends_str"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &ids); err != nil {
			return nil, c.decodeError("decode friends_str", err)
		}
	} else {
		var nums []json.RawMessage
		if err := json.Unmarshal(top["friends"], &nums); err != nil {
			return nil, c.decodeError("decode friends", err)
		}
		ids = make([]string, 0, len(nums))
		for _, n := range nums {
			ids = append(ids, idString("", n))
		}
	}
	return events.StatusMessage{
		Status:         events.StatusFriends,
		Friends:        ids,
		DisconnectCode: 0,
		StreamName:     "",
		Reason:         "",
	}, nil
}

func (c Classifier) decodeError(msg string, cause error) error {
	opts := []errs.Option{errs.WithMessage(msg)}
	if cause != nil {
		opts = append(opts, errs.WithCause(cause))
	}
	return errs.New(c.stream, errs.CodeDecode, opts...)
}

func has(top map[string]json.RawMessage, key string) bool {
	raw, ok := top[key]
	return ok && !isNull(raw)
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(bytes.TrimSpace(raw)) == "null"
}

// idString prefers the string form of an id and falls back to the numeric literal.
func idString(str string, raw json.RawMessage) string {
	if s := strings.TrimSpace(str); s != "" {
		return s
	}
	if isNull(raw) {
		return ""
	}
	return strings.Trim(strings.TrimSpace(string(raw)), `"`)
}
