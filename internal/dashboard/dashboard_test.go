package dashboard

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestHandleGetRunReturnsRecordedSnapshot(t *testing.T) {
	b := New()
	b.Record(7, "completed")

	e := echo.New()
	b.RegisterRoutes(e.Group(""))

	req := httptest.NewRequest(http.MethodGet, "/runs/7", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"status":"completed"`) {
		t.Fatalf("expected snapshot body to include status, got %s", rec.Body.String())
	}
}

func TestHandleGetRunUnknownReturns404(t *testing.T) {
	b := New()
	e := echo.New()
	b.RegisterRoutes(e.Group(""))

	req := httptest.NewRequest(http.MethodGet, "/runs/999", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestRecordOverwritesPreviousSnapshot(t *testing.T) {
	b := New()
	b.Record(1, "running")
	b.Record(1, "failed")

	e := echo.New()
	b.RegisterRoutes(e.Group(""))
	req := httptest.NewRequest(http.MethodGet, "/runs/1", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if !strings.Contains(rec.Body.String(), `"status":"failed"`) {
		t.Fatalf("expected the latest status to win, got %s", rec.Body.String())
	}
}

