package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func newSanitizeEcho() *echo.Echo {
	e := echo.New()
	e.Use(Sanitize(zerolog.Nop()))
	ok := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
	e.GET("/*", ok)
	e.POST("/*", ok)
	return e
}

func TestSanitize_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		target string
		header [2]string
		reason string
	}{
		{"dot dot", "/../../etc/passwd", [2]string{}, "Path traversal detected"},
		{"encoded dot dot", "/%2e%2e/%2e%2e/etc/passwd", [2]string{}, "Path traversal detected"},
		{"double encoded", "/api/%252e%252e/secret", [2]string{}, "Path traversal detected"},
		{"null byte in path", "/api/follow-ups%00", [2]string{}, "Null byte injection detected"},
		{"script in query", "/api/follow-ups?q=%3Cscript%3Ealert(1)%3C/script%3E", [2]string{}, "Script injection detected in query parameter"},
		{"null byte in query", "/api/follow-ups?q=a%00b", [2]string{}, "Null byte injection detected in query parameter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newSanitizeEcho()
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			var body ErrorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error != tt.reason {
				t.Errorf("expected %q, got %q", tt.reason, body.Error)
			}
		})
	}
}

func TestSanitize_OversizedHeader(t *testing.T) {
	e := newSanitizeEcho()
	req := httptest.NewRequest(http.MethodGet, "/api/follow-ups", nil)
	big := make([]byte, maxHeaderValueSize+1)
	for i := range big {
		big[i] = 'a'
	}
	req.Header.Set("X-Big", string(big))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestSanitize_AllowsNormalRequests(t *testing.T) {
	e := newSanitizeEcho()
	for _, target := range []string{"/api/follow-ups", "/api/patients/6f1c2a5e-9b7d-4c1e-8f3a-2d4b6c8e0a12", "/?page=2"} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", target, rec.Code)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Rex", "Rex"},
		{"Re\x00x", "Rex"},
		{"Lethargic\x07 and quiet", "Lethargic and quiet"},
		{"line one\nline two\ttabbed", "line one\nline two\ttabbed"},
	}
	for _, tt := range tests {
		if got := SanitizeString(tt.in); got != tt.want {
			t.Errorf("SanitizeString(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
