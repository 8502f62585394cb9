package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequireToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		header string
		want   int
		runs   int
	}{
		{"missing header", "", http.StatusUnauthorized, 0},
		{"wrong scheme", "Basic secret", http.StatusUnauthorized, 0},
		{"wrong token", "Bearer guess", http.StatusUnauthorized, 0},
		{"valid token", "Bearer secret", http.StatusOK, 1},
		{"scheme is case insensitive", "bearer secret", http.StatusOK, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &stubRunner{}
			runner.report.RunID = "run-1"
			router := newTestRouter(runner, nil, "secret")

			req := httptest.NewRequest(http.MethodPost, "/jobs/reminder/run", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
			if len(runner.calls) != tt.runs {
				t.Fatalf("expected %d runs, got %d", tt.runs, len(runner.calls))
			}
		})
	}
}

func TestTokenDoesNotGuardHealth(t *testing.T) {
	t.Parallel()

	router := newTestRouter(&stubRunner{}, nil, "secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRequestLoggerAttachesLogger(t *testing.T) {
	t.Parallel()

	var seen bool
	handler := RequestLogger(quietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = LoggerFromContext(r.Context()) != nil
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if !seen || rec.Code != http.StatusTeapot {
		t.Fatalf("expected logger in context and status passthrough, got %v %d", seen, rec.Code)
	}
}
