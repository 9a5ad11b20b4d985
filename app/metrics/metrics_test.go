package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveTransitionCounts(t *testing.T) {
	m := New()
	m.ObserveTransition("rest", "NOT_PAID", "PAID")
	m.ObserveTransition("rest", "NOT_PAID", "PAID")
	m.ObserveTransition("rest", "NOT_PAID", "FAILED")

	if got := testutil.ToFloat64(m.transitions.WithLabelValues("rest", "NOT_PAID", "PAID")); got != 2 {
		t.Fatalf("expected 2 paid transitions, got %v", got)
	}
	if got := testutil.ToFloat64(m.transitions.WithLabelValues("rest", "NOT_PAID", "FAILED")); got != 1 {
		t.Fatalf("expected 1 failed transition, got %v", got)
	}
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.ObserveGatewayCall("rest", "verify", "success", 0.2)
	m.ObserveVerifyRejected("rest", "already_verified")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, name := range []string{
		"transactions_gateway_calls_total",
		"transactions_gateway_call_duration_seconds",
		"transactions_verify_rejected_total",
	} {
		if !strings.Contains(body, name) {
			t.Fatalf("expected %s in metrics output", name)
		}
	}
}
