package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestResponseBuilder_Triggers(t *testing.T) {
	w := httptest.NewRecorder()

	NewResponse().
		TriggerForecastUpdated(6, 42).
		TriggerWarningNotification("2 ledger records could not be used").
		Write(w)

	trigger := w.Header().Get("HX-Trigger")
	if trigger == "" {
		t.Fatal("HX-Trigger header not set")
	}
	expectedParts := []string{
		`"forecast:updated"`,
		`"horizon":6`,
		`"generation":42`,
		`"show-notification"`,
		`"type":"warning"`,
	}
	for _, part := range expectedParts {
		if !strings.Contains(trigger, part) {
			t.Errorf("HX-Trigger missing %q: %s", part, trigger)
		}
	}
}

func TestResponseBuilder_JSON(t *testing.T) {
	w := httptest.NewRecorder()

	NewResponse().
		Status(http.StatusAccepted).
		Header("X-Custom", "value").
		JSON(map[string]int{"horizon": 3}).
		Write(w)

	if w.Code != http.StatusAccepted {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusAccepted)
	}
	if got := w.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	if w.Header().Get("X-Custom") != "value" {
		t.Errorf("Custom header not set")
	}
	var body map[string]int
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["horizon"] != 3 {
		t.Errorf("horizon = %d, want 3", body["horizon"])
	}
}

func TestResponseBuilder_JSONEncodeFailure(t *testing.T) {
	w := httptest.NewRecorder()
	NewResponse().JSON(map[string]interface{}{"bad": make(chan int)}).Write(w)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Status code = %d, want 500", w.Code)
	}
}

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		builder    *ResponseBuilder
		wantStatus int
		wantBody   string
	}{
		{
			name:       "unprocessable entity",
			builder:    UnprocessableEntityError("invalid horizon"),
			wantStatus: http.StatusUnprocessableEntity,
			wantBody:   `{"error":"invalid horizon"}`,
		},
		{
			name:       "not found",
			builder:    NotFoundError("no snapshot"),
			wantStatus: http.StatusNotFound,
			wantBody:   `{"error":"no snapshot"}`,
		},
		{
			name:       "internal server error",
			builder:    InternalServerError("internal error"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"error":"internal error"}`,
		},
		{
			name:       "service unavailable is retryable",
			builder:    ServiceUnavailableError("ledger unavailable", 30),
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   `{"error":"ledger unavailable","retryable":true}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.builder.Write(w)

			if w.Code != tt.wantStatus {
				t.Errorf("Status code = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := strings.TrimSpace(w.Body.String()); got != tt.wantBody {
				t.Errorf("Body = %q, want %q", got, tt.wantBody)
			}
		})
	}
}

func TestServiceUnavailableError_RetryAfter(t *testing.T) {
	w := httptest.NewRecorder()
	ServiceUnavailableError("ledger unavailable", 30).Write(w)
	if got := w.Header().Get("Retry-After"); got != "30" {
		t.Errorf("Retry-After = %q, want 30", got)
	}
}

func TestHTMLErrorResponse_EscapesHTML(t *testing.T) {
	w := httptest.NewRecorder()
	HTMLErrorResponse(http.StatusBadRequest, "<script>alert('xss')</script>").Write(w)

	body := w.Body.String()
	if strings.Contains(body, "<script>") {
		t.Errorf("HTML not escaped: %s", body)
	}
	if !strings.Contains(body, "&lt;script&gt;") {
		t.Errorf("Expected escaped HTML: %s", body)
	}
	if got := w.Header().Get("Content-Type"); got != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q", got)
	}
}
