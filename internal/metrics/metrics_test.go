package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func TestRecordRequest(t *testing.T) {
	RecordRequest("GET", "/v1/jobs/{id}", 200, 100*time.Millisecond)
	RecordRequest("POST", "/v1/jobs", 201, 50*time.Millisecond)
	RecordRequest("GET", "/v1/jobs/{id}", 404, 10*time.Millisecond)
}

func TestRecordJobLifecycle(t *testing.T) {
	RecordJobCreated("image-to-video")
	RecordJobTransition("image-to-video", "processing", time.Second)
	RecordJobTransition("image-to-video", "completed", 40*time.Second)
	RecordJobTransition("image", "failed", 3*time.Second)
	RecordDispatchFailure("image")
	RecordJobExpired("ugc-video")
}

func TestRecordCounters(t *testing.T) {
	RecordIdempotencyHit()
	RecordRateLimitRejection("user")
	RecordNotificationCreated("job_completed")
	RecordBreakerState("webhook", 1)
}

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		if got := RoutePattern(r); got != "/v1/jobs/{id}" {
			t.Errorf("expected route pattern /v1/jobs/{id}, got %q", got)
		}
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/jobs/abc", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("expected status 418, got %d", rec.Code)
	}
}

func TestRoutePattern_Unmatched(t *testing.T) {
	req := httptest.NewRequest("GET", "/nowhere", nil)
	if got := RoutePattern(req); got != "unmatched" {
		t.Errorf("expected unmatched, got %q", got)
	}
}

func TestHandler(t *testing.T) {
	RecordJobCreated("ugc-video")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "clipforge_jobs_created_total") {
		t.Error("expected clipforge_jobs_created_total in metrics output")
	}
}
