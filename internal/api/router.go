// Package api exposes the REST surface: session control for callers that
// prefer plain HTTP over the websocket, plus status and the run log.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/user/termbridge/internal/bridge"
	"github.com/user/termbridge/internal/db"
)

// controller is the slice of the bridge the API needs.
type controller interface {
	Start(ctx context.Context, cols, rows uint16) error
	Resize(cols, rows uint16) error
	Status() bridge.Status
}

type handler struct {
	ctrl controller
	runs *db.RunRepo // nil when run recording is disabled
}

func NewRouter(ctrl controller, runs *db.RunRepo, token string) http.Handler {
	h := &handler{ctrl: ctrl, runs: runs}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/healthz", h.healthz)
	mux.HandleFunc("GET /api/status", h.getStatus)
	mux.HandleFunc("POST /api/session", h.startSession)
	mux.HandleFunc("POST /api/resize", h.resizeSession)
	mux.HandleFunc("GET /api/runs", h.listRuns)

	return authMiddleware(token)(jsonMiddleware(mux))
}

type sizeRequest struct {
	Cols uint16 `json:"cols"`
	Rows uint16 `json:"rows"`
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) getStatus(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, h.ctrl.Status())
}

func (h *handler) startSession(w http.ResponseWriter, r *http.Request) {
	var req sizeRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Cols == 0 || req.Rows == 0 {
		jsonError(w, http.StatusBadRequest, "cols and rows must be greater than 0")
		return
	}

	if err := h.ctrl.Start(r.Context(), req.Cols, req.Rows); err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResponse(w, http.StatusCreated, h.ctrl.Status())
}

func (h *handler) resizeSession(w http.ResponseWriter, r *http.Request) {
	var req sizeRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Cols == 0 || req.Rows == 0 {
		jsonError(w, http.StatusBadRequest, "cols and rows must be greater than 0")
		return
	}

	if err := h.ctrl.Resize(req.Cols, req.Rows); err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, h.ctrl.Status())
}

func (h *handler) listRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		jsonResponse(w, http.StatusOK, []*db.Run{})
		return
	}
	runs, err := h.runs.ListRecent(r.Context(), 50)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []*db.Run{}
	}
	jsonResponse(w, http.StatusOK, runs)
}

func authMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
			if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
				if strings.TrimSpace(authHeader[7:]) == token {
					next.ServeHTTP(w, r)
					return
				}
			}

			if r.URL.Query().Get("token") == token {
				next.ServeHTTP(w, r)
				return
			}

			jsonError(w, http.StatusUnauthorized, "unauthorized")
		})
	}
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return io.ErrUnexpectedEOF
	}
	return nil
}
