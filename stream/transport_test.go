package stream

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/tweetstream/errs"
)

func TestBearerTransportSetsHeaderOnClone(t *testing.T) {
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Get("Authorization")
	}))
	defer srv.Close()

	client := &http.Client{Transport: &BearerTransport{Token: "abc", Base: nil}}
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	require.Equal(t, "Bearer abc", <-got)
	require.Empty(t, req.Header.Get("Authorization"))
}

func TestStatusErrorCarriesBodySnippet(t *testing.T) {
	body := strings.Repeat("x", errorBodyLimit*2)
	class, err := statusError(KindFilter, &http.Response{
		StatusCode: http.StatusServiceUnavailable,
		Status:     "503 Service Unavailable",
		Body:       io.NopCloser(strings.NewReader(body)),
	})
	require.Equal(t, FailureHTTP, class)
	require.True(t, errs.Is(err, errs.CodeHTTP))
	require.False(t, errs.IsFatal(err))

	var e *errs.E
	require.ErrorAs(t, err, &e)
	require.Equal(t, http.StatusServiceUnavailable, e.HTTP)
	require.Equal(t, "filter", e.Stream)
	require.Less(t, len(e.Message), errorBodyLimit+64)

	class, err = statusError(KindSample, &http.Response{StatusCode: http.StatusForbidden, Status: "403 Forbidden"})
	require.Equal(t, FailureAuth, class)
	require.True(t, errs.IsFatal(err))
	require.ErrorAs(t, err, &e)
	require.NotEmpty(t, e.Remediation)
}
