package obs

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"warden.dev/internal/fault"
)

func TestRecordAuthUsesStableCodes(t *testing.T) {
	before := testutil.ToFloat64(authAttempts.WithLabelValues("user", fault.CodeSessionInvalid))
	RecordAuth("user", fault.ErrSessionInvalid)
	after := testutil.ToFloat64(authAttempts.WithLabelValues("user", fault.CodeSessionInvalid))
	if after != before+1 {
		t.Fatalf("expected counter increment, before=%v after=%v", before, after)
	}

	okBefore := testutil.ToFloat64(authAttempts.WithLabelValues("admin", OutcomeOK))
	RecordAuth("admin", nil)
	if got := testutil.ToFloat64(authAttempts.WithLabelValues("admin", OutcomeOK)); got != okBefore+1 {
		t.Fatalf("expected ok increment, got %v", got)
	}
}

func TestOutcomeForUncodedError(t *testing.T) {
	if got := outcome(errors.New("db down")); got != OutcomeError {
		t.Fatalf("unexpected outcome %q", got)
	}
}

func TestInstrumentLabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Instrument)
	r.Get("/v1/tenants/{tenantID}/jwks.json", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	handler := http.Handler(r)

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/v1/tenants/{tenantID}/jwks.json", "418"))
	req := httptest.NewRequest(http.MethodGet, "/v1/tenants/t-1/jwks.json", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/v1/tenants/{tenantID}/jwks.json", "418"))
	if after != before+1 {
		t.Fatalf("expected pattern-labelled increment, before=%v after=%v", before, after)
	}
}
