package classifier

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/coachpo/tweetstream/core/events"
	"github.com/coachpo/tweetstream/errs"
)

func TestClassifyTweet(t *testing.T) {
	frame := []byte(`{"created_at":"Wed Oct 10 20:19:24 +0000 2018","id":1,"id_str":"1","text":"hello","lang":"en","user":{"id":6253282,"id_str":"6253282","screen_name":"TwitterAPI","name":"Twitter API"}}`)

	msg, err := Classify(frame)
	require.NoError(t, err)
	tweetMsg, ok := msg.(events.TweetMessage)
	require.True(t, ok, "expected TweetMessage, got %T", msg)

	tweet := tweetMsg.Tweet
	require.Equal(t, "1", tweet.ID)
	require.Equal(t, "hello", tweet.Text)
	require.Equal(t, "en", tweet.Lang)
	require.Equal(t, "6253282", tweet.User.ID)
	require.Equal(t, "TwitterAPI", tweet.User.ScreenName)
	require.Equal(t, time.Date(2018, 10, 10, 20, 19, 24, 0, time.UTC), tweet.CreatedAt)
	require.JSONEq(t, string(frame), string(tweet.Raw))
}

func TestClassifyTweetFallsBackToNumericID(t *testing.T) {
	msg, err := Classify([]byte(`{"id":1050118621198921728,"text":"big id"}`))
	require.NoError(t, err)
	require.Equal(t, "1050118621198921728", msg.(events.TweetMessage).Tweet.ID)
}

func TestClassifyTweetPrefersExtendedText(t *testing.T) {
	msg, err := Classify([]byte(`{"id_str":"9","text":"truncated…","extended_tweet":{"full_text":"the whole thing"}}`))
	require.NoError(t, err)
	require.Equal(t, "the whole thing", msg.(events.TweetMessage).Tweet.Text)
}

func TestClassifyControlMessages(t *testing.T) {
	cases := []struct {
		name  string
		frame string
		want  events.Message
	}{
		{
			name:  "delete",
			frame: `{"delete":{"status":{"id":1234,"id_str":"1234","user_id":3,"user_id_str":"3"}}}`,
			want:  events.DeleteMessage{Delete: events.DeleteEvent{TweetID: "1234", UserID: "3"}},
		},
		{
			name:  "delete numeric only",
			frame: `{"delete":{"status":{"id":77,"user_id":5}}}`,
			want:  events.DeleteMessage{Delete: events.DeleteEvent{TweetID: "77", UserID: "5"}},
		},
		{
			name:  "scrub geo",
			frame: `{"scrub_geo":{"user_id":14090452,"user_id_str":"14090452","up_to_status_id":23260136625,"up_to_status_id_str":"23260136625"}}`,
			want:  events.ScrubGeoMessage{UserID: "14090452", UpToStatusID: "23260136625"},
		},
		{
			name:  "limit",
			frame: `{"limit":{"track":42}}`,
			want:  events.LimitMessage{Track: 42},
		},
		{
			name:  "warning",
			frame: `{"warning":{"code":"FALLING_BEHIND","message":"Your connection is falling behind.","percent_full":60}}`,
			want: events.WarningMessage{Warning: events.WarningEvent{
				Code: "FALLING_BEHIND", Message: "Your connection is falling behind.", PercentFull: 60,
			}},
		},
		{
			name:  "disconnect",
			frame: `{"disconnect":{"code":4,"stream_name":"sample-stream","reason":"stall"}}`,
			want: events.StatusMessage{
				Status: events.StatusDisconnect, DisconnectCode: 4, StreamName: "sample-stream", Reason: "stall",
			},
		},
		{
			name:  "friends",
			frame: `{"friends":[1,2,3]}`,
			want:  events.StatusMessage{Status: events.StatusFriends, Friends: []string{"1", "2", "3"}},
		},
		{
			name:  "friends str",
			frame: `{"friends_str":["10","20"]}`,
			want:  events.StatusMessage{Status: events.StatusFriends, Friends: []string{"10", "20"}},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Classify([]byte(tc.frame))
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestClassifyPriorityPrefersTweetOverControlKeys(t *testing.T) {
	msg, err := Classify([]byte(`{"text":"t","id_str":"5","limit":{"track":1},"delete":{}}`))
	require.NoError(t, err)
	require.Equal(t, events.KindTweet, msg.Kind())

	msg, err = Classify([]byte(`{"delete":{"status":{"id_str":"1","user_id_str":"2"}},"limit":{"track":1}}`))
	require.NoError(t, err)
	require.Equal(t, events.KindDelete, msg.Kind())
}

func TestClassifyTextWithoutIDIsNotATweet(t *testing.T) {
	msg, err := Classify([]byte(`{"text":"orphan"}`))
	require.NoError(t, err)
	unknown, ok := msg.(events.UnknownMessage)
	require.True(t, ok)
	require.Equal(t, []string{"text"}, unknown.Keys)
}

func TestClassifyUnknownShapesAreNotErrors(t *testing.T) {
	msg, err := Classify([]byte(`{"event":"favorite","source":{},"target":{}}`))
	require.NoError(t, err)
	unknown, ok := msg.(events.UnknownMessage)
	require.True(t, ok)
	require.Equal(t, []string{"event", "source", "target"}, unknown.Keys)

	msg, err = Classify([]byte(`{"limit":null}`))
	require.NoError(t, err)
	require.Equal(t, events.KindUnknown, msg.Kind())
}

func TestClassifyMalformedFramesAreDecodeErrors(t *testing.T) {
	c := New("filter")
	for _, frame := range []string{`{"text":`, `not json`, `[1,2]`, `null`, `42`} {
		_, err := c.Classify([]byte(frame))
		require.Error(t, err, frame)
		require.True(t, errs.Is(err, errs.CodeDecode), frame)
		require.False(t, errs.IsFatal(err), "single-frame decode errors must not be fatal")
	}
}

func TestClassifyRecognisedKeyWithBadBodyIsDecodeError(t *testing.T) {
	_, err := Classify([]byte(`{"limit":{"track":"many"}}`))
	require.True(t, errs.Is(err, errs.CodeDecode))
}

func TestClassifyIsPure(t *testing.T) {
	shapes := []string{
		`{"text":"%s","id":%d,"id_str":"%d"}`,
		`{"delete":{"status":{"id":%[2]d,"id_str":"%[2]d","user_id":%[3]d}}}`,
		`{"limit":{"track":%[2]d}}`,
		`{"warning":{"code":"%[1]s","message":"m","percent_full":%[2]d}}`,
		`{"scrub_geo":{"user_id":%[2]d,"up_to_status_id":%[3]d}}`,
		`{"disconnect":{"code":%[2]d,"reason":"%[1]s"}}`,
		`{"%[1]s_unknown":%[2]d}`,
		`{"text":"%[1]s",`,
	}

	rapid.Check(t, func(t *rapid.T) {
		shape := rapid.SampledFrom(shapes).Draw(t, "shape")
		word := rapid.StringMatching(`[a-z]{1,12}`).Draw(t, "word")
		a := rapid.IntRange(0, 1<<40).Draw(t, "a")
		b := rapid.IntRange(0, 1<<40).Draw(t, "b")
		frame := []byte(fmt.Sprintf(shape, word, a, b))

		noise := rapid.SliceOfN(rapid.SampledFrom(shapes), 0, 5).Draw(t, "noise")
		for _, n := range noise {
			_, _ = Classify([]byte(fmt.Sprintf(n, word, b, a)))
		}

		first, firstErr := Classify(frame)
		second, secondErr := Classify(append([]byte(nil), frame...))
		if (firstErr == nil) != (secondErr == nil) {
			t.Fatalf("error outcome differs for %s", frame)
		}
		if firstErr != nil {
			return
		}
		if first.Kind() != second.Kind() {
			t.Fatalf("kind differs for %s: %s vs %s", frame, first.Kind(), second.Kind())
		}
		if fmt.Sprintf("%+v", first) != fmt.Sprintf("%+v", second) {
			t.Fatalf("message differs for %s", frame)
		}
	})
}
