package metrics

import (
	"testing"
	"time"

	"github.com/desertthunder/setlistsync/internal/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordProviderCall(t *testing.T) {
	tests := []struct {
		name   string
		status int
		result string
	}{
		{name: "success", status: 200, result: "ok"},
		{name: "not found", status: 404, result: "4xx"},
		{name: "server error", status: 503, result: "5xx"},
		{name: "transport error", status: 0, result: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counter := ProviderRequests.WithLabelValues("test-"+tt.name, tt.result)
			before := testutil.ToFloat64(counter)
			RecordProviderCall("test-"+tt.name, tt.status, 10*time.Millisecond)
			if got := testutil.ToFloat64(counter); got != before+1 {
				t.Errorf("expected %s counter to increase by 1, got %v -> %v", tt.result, before, got)
			}
		})
	}
}

func TestObserveQueueStats(t *testing.T) {
	ObserveQueueStats(models.QueueStats{Pending: 4, Failed: 2})

	if got := testutil.ToFloat64(QueueDepth.WithLabelValues("pending")); got != 4 {
		t.Errorf("expected pending gauge 4, got %v", got)
	}
	if got := testutil.ToFloat64(QueueDepth.WithLabelValues("failed")); got != 2 {
		t.Errorf("expected failed gauge 2, got %v", got)
	}
}

func TestSetBreakerOpen(t *testing.T) {
	SetBreakerOpen("spotify-test", true)
	if got := testutil.ToFloat64(ProviderBreakerOpen.WithLabelValues("spotify-test")); got != 1 {
		t.Errorf("expected 1, got %v", got)
	}
	SetBreakerOpen("spotify-test", false)
	if got := testutil.ToFloat64(ProviderBreakerOpen.WithLabelValues("spotify-test")); got != 0 {
		t.Errorf("expected 0, got %v", got)
	}
}
