package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ragline/ragline/internal/adapter/indexnats"
	"github.com/ragline/ragline/internal/adapter/ws"
	"github.com/ragline/ragline/internal/domain"
	"github.com/ragline/ragline/internal/port/messagequeue"
)

// stubQueue satisfies the queue port for wiring an Index in tests.
type stubQueue struct{}

func (stubQueue) Publish(context.Context, string, []byte) error { return nil }
func (stubQueue) Subscribe(context.Context, string, messagequeue.Handler) (func(), error) {
	return func() {}, nil
}
func (stubQueue) Drain() error      { return nil }
func (stubQueue) Close() error      { return nil }
func (stubQueue) IsConnected() bool { return true }

func testRouter() *chi.Mux {
	h := NewHandlers(nil, indexnats.New(stubQueue{}, time.Second), ws.NewHub())
	r := chi.NewRouter()
	MountRoutes(r, h)
	return r
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestAPIVersion(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "version") {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestIndexStatusRoute(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/index/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var status indexnats.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Status != "unknown" {
		t.Errorf("expected unknown status before worker reports, got %q", status.Status)
	}
}

func TestReadJSONValid(t *testing.T) {
	type payload struct {
		Content string `json:"content"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"content": "hi"}`))
	rec := httptest.NewRecorder()

	v, ok := readJSON[payload](rec, req, 1<<10)
	if !ok || v.Content != "hi" {
		t.Fatalf("expected decoded payload, got %+v ok=%v", v, ok)
	}
}

func TestReadJSONInvalid(t *testing.T) {
	type payload struct{}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{broken"))
	rec := httptest.NewRecorder()

	if _, ok := readJSON[payload](rec, req, 1<<10); ok {
		t.Fatal("expected decode failure")
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestReadJSONBodyTooLarge(t *testing.T) {
	type payload struct {
		Content string `json:"content"`
	}
	big := fmt.Sprintf(`{"content": %q}`, strings.Repeat("x", 2048))
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
	rec := httptest.NewRecorder()

	if _, ok := readJSON[payload](rec, req, 64); ok {
		t.Fatal("expected size limit rejection")
	}
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", rec.Code)
	}
}

func TestRequireField(t *testing.T) {
	rec := httptest.NewRecorder()
	if requireField(rec, "value", "content") != true {
		t.Error("non-empty field should pass")
	}

	rec = httptest.NewRecorder()
	if requireField(rec, "", "content") {
		t.Error("empty field should fail")
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "content is required") {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestWriteDomainError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: bad title", domain.ErrValidation), http.StatusBadRequest},
		{errors.New(`invalid input syntax for type uuid: "abc"`), http.StatusBadRequest},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeDomainError(rec, tc.err, "not found")
		if rec.Code != tc.want {
			t.Errorf("writeDomainError(%v) = %d, want %d", tc.err, rec.Code, tc.want)
		}
	}
}
