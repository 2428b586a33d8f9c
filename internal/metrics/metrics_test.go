package metrics

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"
)

func fetchMetrics(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func metricValue(body, target string) float64 {
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, target+" ") {
			fields := strings.Fields(line)
			v, err := strconv.ParseFloat(fields[len(fields)-1], 64)
			if err == nil {
				return v
			}
		}
	}
	return 0
}

func TestCountersAreExported(t *testing.T) {
	Register()
	before := fetchMetrics(t)

	IncFriendRequest(StatusSuccess)
	IncNotificationDropped(DropInvalidScheme)
	AddNotificationsDismissed(2)
	SetThreadListeners(3)

	after := fetchMetrics(t)
	require.Equal(t,
		metricValue(before, `thriveup_friend_requests_total{status="success"}`)+1,
		metricValue(after, `thriveup_friend_requests_total{status="success"}`))
	require.Equal(t,
		metricValue(before, `thriveup_notifications_dropped_total{reason="invalid_scheme"}`)+1,
		metricValue(after, `thriveup_notifications_dropped_total{reason="invalid_scheme"}`))
	require.Equal(t,
		metricValue(before, "thriveup_notifications_dismissed_total")+2,
		metricValue(after, "thriveup_notifications_dismissed_total"))
	require.Equal(t, float64(3), metricValue(after, "thriveup_thread_listeners"))
}
