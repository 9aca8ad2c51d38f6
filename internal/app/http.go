package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"facultychat/internal/auth"
	"facultychat/internal/retention"
	"facultychat/internal/store"
	"facultychat/internal/util"
)

type identityResolver interface {
	ResolveRequest(r *http.Request) (int64, error)
}

type sweepRunner interface {
	RunOnce(ctx context.Context) (retention.Result, error)
}

type readinessCheck struct {
	name  string
	check func(context.Context) error
}

type HTTPServer struct {
	service    *Service
	resolver   identityResolver
	corsOrigin string
	checks     []readinessCheck
	sweeper    sweepRunner
}

func NewHTTPServer(service *Service, resolver identityResolver, corsOrigin string) *HTTPServer {
	return &HTTPServer{
		service:    service,
		resolver:   resolver,
		corsOrigin: corsOrigin,
		checks:     []readinessCheck{{name: "database", check: service.Ping}},
	}
}

// AddReadinessCheck adds a dependency reported by /api/ready.
func (s *HTTPServer) AddReadinessCheck(name string, check func(context.Context) error) {
	s.checks = append(s.checks, readinessCheck{name: name, check: check})
}

// SetSweeper enables the manual retention trigger.
func (s *HTTPServer) SetSweeper(sweeper sweepRunner) {
	s.sweeper = sweeper
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/rooms" {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "rooms": s.service.Rooms()})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/settings" {
		settings, err := s.service.PublicSettings(r.Context())
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "settings": settings})
		return
	}

	if strings.HasPrefix(r.URL.Path, "/api/internal/") {
		s.handleInternal(w, r)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	identityID, ok := s.requireIdentity(w, r)
	if !ok {
		return
	}

	switch {
	case len(parts) == 4 && parts[1] == "messages" && parts[2] == "group":
		if r.Method != http.MethodGet {
			break
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		items, err := s.service.FetchGroupHistory(r.Context(), identityID, parts[3], limit)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "messages": items})
		return

	case len(parts) == 4 && parts[1] == "messages" && parts[2] == "private":
		if r.Method != http.MethodGet {
			break
		}
		peerID, ok := parseID(w, parts[3])
		if !ok {
			return
		}
		history, err := s.service.FetchPrivateHistory(r.Context(), identityID, peerID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "messages": history.Messages, "blocked": history.Blocked})
		return

	case len(parts) == 4 && parts[1] == "users" && parts[2] == "block":
		if r.Method != http.MethodPost {
			break
		}
		targetID, ok := parseID(w, parts[3])
		if !ok {
			return
		}
		blocked, err := s.service.ToggleBlock(r.Context(), identityID, targetID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "blocked": blocked})
		return

	case len(parts) == 4 && parts[1] == "users" && parts[2] == "report":
		if r.Method != http.MethodPost {
			break
		}
		targetID, ok := parseID(w, parts[3])
		if !ok {
			return
		}
		if err := s.service.Report(r.Context(), identityID, targetID); err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
		return

	case len(parts) == 3 && parts[1] == "users" && parts[2] == "blocked":
		if r.Method != http.MethodGet {
			break
		}
		ids, err := s.service.BlockedUsers(r.Context(), identityID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "blocked": ids})
		return

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{}
	for _, c := range s.checks {
		if err := c.check(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks[c.name] = map[string]any{"status": "error", "error": err.Error()}
			continue
		}
		checks[c.name] = map[string]any{"status": "ok"}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

// handleInternal serves operator routes guarded by a shared token. They are
// disabled when no token is configured.
func (s *HTTPServer) handleInternal(w http.ResponseWriter, r *http.Request) {
	expected := s.service.cfg.InternalToken
	token := strings.TrimSpace(r.Header.Get("X-Internal-Token"))
	if expected == "" || token != expected {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/internal/reports" {
		counts, err := s.service.ReportCounts(r.Context())
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "reports": counts})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/internal/retention/run" {
		if s.sweeper == nil {
			writeError(w, http.StatusServiceUnavailable, "SWEEPER_UNAVAILABLE", "Retention sweeper not configured", nil)
			return
		}
		result, err := s.sweeper.RunOnce(r.Context())
		if errors.Is(err, retention.ErrRunInProgress) {
			writeError(w, http.StatusConflict, "SWEEP_IN_PROGRESS", "A sweep is already running", nil)
			return
		}
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "groupDeleted": result.GroupDeleted, "privateDeleted": result.PrivateDeleted})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) requireIdentity(w http.ResponseWriter, r *http.Request) (int64, bool) {
	identityID, err := s.resolver.ResolveRequest(r)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Not authenticated", nil)
			return 0, false
		}
		slog.Error("session_lookup_failed", "error", err)
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return 0, false
	}
	return identityID, true
}

func (s *HTTPServer) fail(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed", "error", err)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = util.NewID("req")
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		slog.Info("http_request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

// RequestID returns the id assigned to the request by the middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID, X-Internal-Token")
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	if corsOrigin != "" && corsOrigin != "*" {
		header.Set("Access-Control-Allow-Credentials", "true")
	}
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"success": false,
		"code":    code,
		"message": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func parseID(w http.ResponseWriter, raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid id", nil)
		return 0, false
	}
	return id, true
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
