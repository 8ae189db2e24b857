package main

import (
	"context"
	"io"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/coachpo/tweetstream/core/dispatcher"
	"github.com/coachpo/tweetstream/core/events"
)

// record is one output line.
type record struct {
	Stream string `json:"stream"`
	Kind   string `json:"kind"`
	Data   any    `json:"data"`
}

type tweetRecord struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	UserID     string `json:"user_id,omitempty"`
	ScreenName string `json:"screen_name,omitempty"`
	Lang       string `json:"lang,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
}

type deleteRecord struct {
	TweetID string `json:"tweet_id"`
	UserID  string `json:"user_id"`
}

type warningRecord struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	PercentFull int    `json:"percent_full"`
}

type scrubGeoRecord struct {
	UserID       string `json:"user_id"`
	UpToStatusID string `json:"up_to_status_id"`
}

type statusRecord struct {
	Status         string   `json:"status"`
	Friends        []string `json:"friends,omitempty"`
	DisconnectCode int      `json:"disconnect_code,omitempty"`
	Reason         string   `json:"reason,omitempty"`
}

// lineWriter serialises records from every session onto one writer.
type lineWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
	raw bool
}

func newLineWriter(w io.Writer, raw bool) *lineWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &lineWriter{enc: enc, raw: raw}
}

func (w *lineWriter) write(rec record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(rec)
}

// listener returns a listener tagging each line with the stream name.
func (w *lineWriter) listener(name string) dispatcher.Listener {
	emit := func(kind events.Kind, data any) error {
		return w.write(record{Stream: name, Kind: kind.String(), Data: data})
	}
	return dispatcher.Funcs{
		Tweet: func(_ context.Context, tw events.Tweet) error {
			if w.raw && len(tw.Raw) > 0 {
				return emit(events.KindTweet, json.RawMessage(tw.Raw))
			}
			return emit(events.KindTweet, tweetRecord{
				ID:         tw.ID,
				Text:       tw.Text,
				UserID:     tw.User.ID,
				ScreenName: tw.User.ScreenName,
				Lang:       tw.Lang,
				CreatedAt:  formatTime(tw.CreatedAt),
			})
		},
		Delete: func(_ context.Context, del events.DeleteEvent) error {
			return emit(events.KindDelete, deleteRecord{TweetID: del.TweetID, UserID: del.UserID})
		},
		Limit: func(_ context.Context, limit events.LimitMessage) error {
			return emit(events.KindLimit, map[string]int{"track": limit.Track})
		},
		Warning: func(_ context.Context, warn events.WarningEvent) error {
			return emit(events.KindWarning, warningRecord{
				Code:        warn.Code,
				Message:     warn.Message,
				PercentFull: warn.PercentFull,
			})
		},
		ScrubGeo: func(_ context.Context, scrub events.ScrubGeoMessage) error {
			return emit(events.KindScrubGeo, scrubGeoRecord{UserID: scrub.UserID, UpToStatusID: scrub.UpToStatusID})
		},
		Status: func(_ context.Context, status events.StatusMessage) error {
			return emit(events.KindStatus, statusRecord{
				Status:         string(status.Status),
				Friends:        status.Friends,
				DisconnectCode: status.DisconnectCode,
				Reason:         status.Reason,
			})
		},
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
