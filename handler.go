package pagekit

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"
)

// Handler exposes the console's JSON API: the caller's permissions per page and
// the administration of pages, roles, grants, role assignments and profiles.
type Handler struct {
	service    *Service
	health     HealthMonitor
	mw         *Middleware
	logger     *zap.Logger
	rateLimit  int
	rateWindow time.Duration
}

// HandlerOption configures the Handler.
type HandlerOption func(*Handler)

// WithRateLimit limits each client to limit requests per window.
func WithRateLimit(limit int, window time.Duration) HandlerOption {
	return func(h *Handler) {
		if limit > 0 && window > 0 {
			h.rateLimit = limit
			h.rateWindow = window
		}
	}
}

// WithHandlerLogger sets the logger used for failed requests.
func WithHandlerLogger(logger *zap.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandler creates the API handler. mw supplies authentication and audit context.
//
// Example:
//
//	mw := pagekit.NewMiddleware(service, pagekit.WithAuthenticator(tokens))
//	router.Mount("/api", pagekit.NewHandler(service, mw).Routes())
func NewHandler(service *Service, mw *Middleware, opts ...HandlerOption) *Handler {
	h := &Handler{
		service:    service,
		health:     NewHealthService(service),
		mw:         mw,
		logger:     zap.NewNop(),
		rateLimit:  100,
		rateWindow: time.Minute,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the chi router serving the API.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.mw.Authenticate(), h.mw.InjectAuditContext())

	r.Get("/healthz", h.handleHealth)

	r.Group(func(gr chi.Router) {
		gr.Use(httprate.Limit(h.rateLimit, h.rateWindow,
			httprate.WithKeyFuncs(rateLimitKey),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				writeError(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests))
			}),
		))

		gr.Get("/me", h.handleMe)
		gr.Get("/permissions/{page}", h.handlePermissions)

		gr.Get("/pages", h.handleListPages)
		gr.Post("/pages", h.handleEnsurePage)

		gr.Get("/roles", h.handleListRoles)
		gr.Post("/roles", h.handleCreateRole)
		gr.Get("/roles/{roleID}/permissions", h.handleGetRolePermissions)
		gr.Put("/roles/{roleID}/permissions", h.handleSetRolePermission)

		gr.Post("/users/{userID}/roles/{roleID}", h.handleAssignRole)
		gr.Delete("/users/{userID}/roles/{roleID}", h.handleRevokeRole)

		gr.Get("/profiles", h.handleListProfiles)
		gr.Put("/profiles/{userID}/role", h.handleSetProfileRole)

		gr.Get("/audit", h.handleAuditLog)
	})
	return r
}

func rateLimitKey(r *http.Request) (string, error) {
	if userID := strings.TrimSpace(GetUserID(r.Context())); userID != "" {
		return "user:" + userID, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

type envelope struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Error: message})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusCode(err)
	if status >= http.StatusInternalServerError {
		fields := append([]zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", GetRequestID(r.Context())),
		}, errorFields(err)...)
		h.logger.Error("request failed", append(fields, zap.Error(err))...)
	}
	if status == http.StatusInternalServerError {
		writeError(w, status, http.StatusText(status))
		return
	}
	writeError(w, status, err.Error())
}

func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (*Identity, bool) {
	ident := GetIdentity(r.Context())
	if ident == nil {
		h.fail(w, r, NewError(ErrUnauthenticated, "sign in required"))
		return nil, false
	}
	return ident, true
}

// maxBodyBytes caps administrative request bodies.
const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return NewError(ErrInvalidInput, "request body too large").WithCause(err)
		}
		return NewError(ErrInvalidInput, "malformed request body").WithCause(err)
	}
	return nil
}

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, NewError(ErrInvalidInput, name+" must be a positive integer")
	}
	return id, nil
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := h.health.Health(r.Context())
	resolution := h.service.GetResolutionMetrics()
	code := http.StatusOK
	if !status.Healthy || !h.service.IsResolutionHealthy() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"database":   status,
		"resolution": resolution,
	})
}

type meResponse struct {
	Identity *Identity `json:"identity"`
	IsAdmin  bool      `json:"is_admin"`
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	ident, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	admin, err := h.service.IsAdmin(r.Context(), ident)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{Identity: ident, IsAdmin: admin})
}

type permissionsResponse struct {
	Page        string      `json:"page"`
	Permissions Permissions `json:"permissions"`
}

// handlePermissions answers for anonymous callers too: they simply get nothing.
func (h *Handler) handlePermissions(w http.ResponseWriter, r *http.Request) {
	page := chi.URLParam(r, "page")
	perms, err := h.service.ResolveCurrent(r.Context(), ContextIdentity{}, page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, permissionsResponse{Page: page, Permissions: perms})
}

func (h *Handler) handleListPages(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireUser(w, r); !ok {
		return
	}
	pages, err := h.service.ListPages(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pages)
}

func (h *Handler) handleEnsurePage(w http.ResponseWriter, r *http.Request) {
	var in PageInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	page, created, err := h.service.EnsurePage(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, page)
}

func (h *Handler) handleListRoles(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireUser(w, r); !ok {
		return
	}
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, roles)
}

func (h *Handler) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var in RoleInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	role, err := h.service.CreateRole(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, role)
}

func (h *Handler) handleGetRolePermissions(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireUser(w, r); !ok {
		return
	}
	roleID, err := idParam(r, "roleID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rows, err := h.service.GetRolePermissions(r.Context(), roleID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

type rolePermissionRequest struct {
	PageID int64 `json:"page_id"`
	Permissions
}

func (h *Handler) handleSetRolePermission(w http.ResponseWriter, r *http.Request) {
	roleID, err := idParam(r, "roleID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req rolePermissionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.service.SetRolePermission(r.Context(), roleID, req.PageID, req.Permissions); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	roleID, err := idParam(r, "roleID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.service.AssignRole(r.Context(), chi.URLParam(r, "userID"), roleID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRevokeRole(w http.ResponseWriter, r *http.Request) {
	roleID, err := idParam(r, "roleID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.service.RevokeRole(r.Context(), chi.URLParam(r, "userID"), roleID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireUser(w, r); !ok {
		return
	}
	profiles, err := h.service.ListProfiles(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profiles)
}

type profileRoleRequest struct {
	Role string `json:"role"`
}

func (h *Handler) handleSetProfileRole(w http.ResponseWriter, r *http.Request) {
	var req profileRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.service.SetProfileRole(r.Context(), chi.URLParam(r, "userID"), req.Role); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	ident, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	admin, err := h.service.IsAdmin(r.Context(), ident)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !admin {
		h.fail(w, r, NewError(ErrForbidden, "administrator role required").WithActor(ident.UserID))
		return
	}

	filter, err := auditFilterFromQuery(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	logs, err := h.service.GetAuditLog(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func auditFilterFromQuery(r *http.Request) (AuditLogFilter, error) {
	q := r.URL.Query()
	filter := NewAuditLogFilter().
		WithActor(q.Get("actor")).
		WithTargetUser(q.Get("target_user")).
		WithAction(AuditAction(q.Get("action")))

	limit, err := nonNegative(q.Get("limit"), "limit", filter.Limit)
	if err != nil {
		return filter, err
	}
	offset, err := nonNegative(q.Get("offset"), "offset", 0)
	if err != nil {
		return filter, err
	}
	filter = filter.WithPagination(min(limit, 1000), offset)

	since, err := timestamp(q.Get("since"), "since")
	if err != nil {
		return filter, err
	}
	until, err := timestamp(q.Get("until"), "until")
	if err != nil {
		return filter, err
	}
	return filter.WithTimeRange(since, until), nil
}

func nonNegative(raw, name string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, NewError(ErrInvalidInput, name+" must be a non-negative integer")
	}
	return n, nil
}

func timestamp(raw, name string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, NewError(ErrInvalidInput, name+" must be an RFC 3339 timestamp")
	}
	return t, nil
}
