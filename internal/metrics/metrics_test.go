package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveSend(t *testing.T) {
	m := New()

	m.ObserveSend("sent", 10*time.Millisecond)
	m.ObserveSend("sent", 20*time.Millisecond)
	m.ObserveSend("error:400:bad request", time.Millisecond)
	m.ObserveSend("exception:dial tcp: timeout", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Sends.WithLabelValues("sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Sends.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Sends.WithLabelValues("exception")))
	assert.Equal(t, 3, testutil.CollectAndCount(m.Sends))
}

func TestObserveSkip(t *testing.T) {
	m := New()
	m.ObserveSkip("company_cap")
	m.ObserveSkip("company_cap")
	m.ObserveSkip("suppressed")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Skips.WithLabelValues("company_cap")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Skips.WithLabelValues("suppressed")))
}

func TestResult(t *testing.T) {
	assert.Equal(t, "sent", Result("sent"))
	assert.Equal(t, "error", Result("error:429:throttled"))
	assert.Equal(t, "exception", Result("exception:boom"))
}

func TestHandler(t *testing.T) {
	m := New()
	m.SentToday.Set(4)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "outreach_attempts_today 4")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestNewUsesIsolatedRegistry(t *testing.T) {
	a, b := New(), New()
	a.ObserveSkip("duplicate")
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Skips.WithLabelValues("duplicate")))
}
