package json

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hilthontt/haven/internal/domain"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrCircleFull, http.StatusConflict},
		{domain.ErrCircleNotFound, http.StatusNotFound},
		{domain.ErrNotCircleHost, http.StatusForbidden},
		{domain.Validationf("Topic is required"), http.StatusBadRequest},
		{domain.ErrJoinCodeExhausted, http.StatusServiceUnavailable},
		{fmt.Errorf("failed to load: %w", domain.ErrSessionNotFound), http.StatusNotFound},
		{fmt.Errorf("mongo: connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Fatalf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestWriteDomainErrorHidesInternalMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteDomainError(rec, fmt.Errorf("mongo: secret host unreachable"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "secret host") {
		t.Fatalf("internal error leaked: %s", rec.Body.String())
	}
}

func TestWriteDomainErrorKeepsMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteDomainError(rec, domain.ErrCircleFull)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Circle is full") {
		t.Fatalf("expected domain message, got %s", rec.Body.String())
	}
}

func TestReadRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"topic":"x","bogus":1}`))

	var v struct {
		Topic string `json:"topic"`
	}
	if err := Read(req, &v); err == nil {
		t.Fatal("expected unknown field to be rejected")
	}
}

func TestReadEmptyBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))

	var v map[string]any
	if err := Read(req, &v); err == nil {
		t.Fatal("expected empty body to be rejected")
	}
}
