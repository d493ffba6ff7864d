package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector(t *testing.T) {
	c := NewCollector()
	c.ObserveNotification("new_expense", "sent")
	c.ObserveNotification("new_expense", "sent")
	c.ObserveNotification("payment_reminder", "failed")
	c.ObserveRequest(http.MethodGet, "/api/v1/groups", http.StatusOK, 10*time.Millisecond)

	if got := testutil.ToFloat64(c.notifications.WithLabelValues("new_expense", "sent")); got != 2 {
		t.Errorf("new_expense sent = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.requests.WithLabelValues(http.MethodGet, "/api/v1/groups", "200")); got != 1 {
		t.Errorf("requests = %v, want 1", got)
	}

	srv := httptest.NewServer(Handler(NewRegistry(c)))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `splitledger_notifications_total{result="failed",type="payment_reminder"} 1`) {
		t.Errorf("exposition missing notification counter:\n%s", body)
	}
}
