package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/user/termbridge/internal/bridge"
)

type fakeController struct {
	status   bridge.Status
	startErr error
	starts   [][2]uint16
	resizes  [][2]uint16
}

func (f *fakeController) Start(_ context.Context, cols, rows uint16) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.starts = append(f.starts, [2]uint16{cols, rows})
	return nil
}

func (f *fakeController) Resize(cols, rows uint16) error {
	f.resizes = append(f.resizes, [2]uint16{cols, rows})
	return nil
}

func (f *fakeController) Status() bridge.Status {
	return f.status
}

func doRequest(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddleware(t *testing.T) {
	h := NewRouter(&fakeController{}, nil, "secret")

	if rec := doRequest(t, h, http.MethodGet, "/api/status", "", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodGet, "/api/status", "wrong", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodGet, "/api/status", "secret", ""); rec.Code != http.StatusOK {
		t.Errorf("bearer token: status = %d, want 200", rec.Code)
	}

	// Query-string token works too (the web UI uses it).
	req := httptest.NewRequest(http.MethodGet, "/api/status?token=secret", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("query token: status = %d, want 200", rec.Code)
	}
}

func TestGetStatus(t *testing.T) {
	ctrl := &fakeController{status: bridge.Status{Active: true, Program: "/opt/tools/bridge-app", Cols: 80, Rows: 24}}
	h := NewRouter(ctrl, nil, "")

	rec := doRequest(t, h, http.MethodGet, "/api/status", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var got bridge.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if !got.Active || got.Cols != 80 || got.Rows != 24 {
		t.Errorf("status body = %+v", got)
	}
}

func TestStartSession(t *testing.T) {
	ctrl := &fakeController{}
	h := NewRouter(ctrl, nil, "")

	rec := doRequest(t, h, http.MethodPost, "/api/session", "", `{"cols":100,"rows":40}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body: %s", rec.Code, rec.Body)
	}
	if len(ctrl.starts) != 1 || ctrl.starts[0] != [2]uint16{100, 40} {
		t.Errorf("starts = %v, want one 100x40", ctrl.starts)
	}
}

func TestStartSessionValidation(t *testing.T) {
	ctrl := &fakeController{}
	h := NewRouter(ctrl, nil, "")

	if rec := doRequest(t, h, http.MethodPost, "/api/session", "", `{"cols":0,"rows":40}`); rec.Code != http.StatusBadRequest {
		t.Errorf("zero cols: status = %d, want 400", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodPost, "/api/session", "", `not json`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad body: status = %d, want 400", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodPost, "/api/session", "", `{"cols":80,"rows":24,"shell":"/bin/sh"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown field: status = %d, want 400", rec.Code)
	}
	if len(ctrl.starts) != 0 {
		t.Errorf("invalid requests reached the controller: %v", ctrl.starts)
	}
}

func TestResizeSession(t *testing.T) {
	ctrl := &fakeController{}
	h := NewRouter(ctrl, nil, "")

	rec := doRequest(t, h, http.MethodPost, "/api/resize", "", `{"cols":120,"rows":50}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(ctrl.resizes) != 1 || ctrl.resizes[0] != [2]uint16{120, 50} {
		t.Errorf("resizes = %v, want one 120x50", ctrl.resizes)
	}
}

func TestListRunsWithoutRepo(t *testing.T) {
	h := NewRouter(&fakeController{}, nil, "")

	rec := doRequest(t, h, http.MethodGet, "/api/runs", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("body = %q, want empty array", body)
	}
}

func TestHealthz(t *testing.T) {
	h := NewRouter(&fakeController{}, nil, "secret")

	// healthz still requires the token; the UI always has it.
	rec := doRequest(t, h, http.MethodGet, "/api/healthz", "secret", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
