package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"overstat-proxy-go/internal/model"
)

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  int
		wantError string
	}{
		{"not found", echo.ErrNotFound, http.StatusNotFound, "Not Found"},
		{"method not allowed", echo.ErrMethodNotAllowed, http.StatusNotFound, "Not Found"},
		{"body too large", echo.ErrStatusRequestEntityTooLarge, http.StatusRequestEntityTooLarge, "Request Entity Too Large"},
		{"plain error", errors.New("database on fire"), http.StatusInternalServerError, "Internal Server Error"},
		{"http 503", echo.NewHTTPError(http.StatusServiceUnavailable, "busy"), http.StatusInternalServerError, "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/x", http.NoBody), rec)

			ErrorHandler(testLogger, DefaultEndpoints())(tt.err, c)

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			var body map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if body["error"] != tt.wantError {
				t.Errorf("error = %v, want %q", body["error"], tt.wantError)
			}
			if body["timestamp"] == "" || body["message"] == "" {
				t.Errorf("message and timestamp must be set: %v", body)
			}
		})
	}
}

func TestErrorHandler_InternalDetailHidden(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/x", http.NoBody), rec)

	ErrorHandler(testLogger, DefaultEndpoints())(errors.New("secret detail"), c)

	var body model.ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Message != "Something went wrong on the server" {
		t.Errorf("message = %q", body.Message)
	}
}

func TestErrorHandler_CommittedResponseUntouched(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/x", http.NoBody), rec)
	_ = c.String(http.StatusOK, "partial")

	ErrorHandler(testLogger, DefaultEndpoints())(errors.New("late failure"), c)

	if rec.Code != http.StatusOK || rec.Body.String() != "partial" {
		t.Errorf("got %d %q, want the already-written response", rec.Code, rec.Body.String())
	}
}

func TestErrorHandler_HEADHasNoBody(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodHead, "/x", http.NoBody), rec)

	ErrorHandler(testLogger, DefaultEndpoints())(echo.ErrNotFound, c)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", rec.Body.String())
	}
}
