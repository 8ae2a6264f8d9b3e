package pagekit

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Authenticator turns a bearer token into an identity. TokenIdentity implements it.
type Authenticator interface {
	Authenticate(token string) (*Identity, error)
}

// Middleware provides HTTP middleware that gates handlers on page capabilities.
type Middleware struct {
	checker      PermissionChecker
	auth         Authenticator
	logger       *zap.Logger
	getUserID    func(*http.Request) string
	errorHandler func(http.ResponseWriter, *http.Request, error)
}

// MiddlewareOption configures the Middleware.
type MiddlewareOption func(*Middleware)

// NewMiddleware creates a new Middleware instance.
//
// Example:
//
//	mw := pagekit.NewMiddleware(service,
//	    pagekit.WithAuthenticator(pagekit.NewTokenIdentity(secret, issuer, "")),
//	)
//	router.Use(mw.Authenticate(), mw.InjectAuditContext())
func NewMiddleware(checker PermissionChecker, opts ...MiddlewareOption) *Middleware {
	m := &Middleware{
		checker:      checker,
		logger:       zap.NewNop(),
		getUserID:    defaultGetUserID,
		errorHandler: defaultErrorHandler,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// WithAuthenticator sets the validator used by Authenticate.
func WithAuthenticator(auth Authenticator) MiddlewareOption {
	return func(m *Middleware) {
		m.auth = auth
	}
}

// WithUserIDExtractor sets a custom function to extract user ID from request.
func WithUserIDExtractor(fn func(*http.Request) string) MiddlewareOption {
	return func(m *Middleware) {
		m.getUserID = fn
	}
}

// WithErrorHandler sets a custom error handler for middleware.
func WithErrorHandler(fn func(http.ResponseWriter, *http.Request, error)) MiddlewareOption {
	return func(m *Middleware) {
		m.errorHandler = fn
	}
}

// WithMiddlewareLogger sets the logger used for denied and failed requests.
func WithMiddlewareLogger(logger *zap.Logger) MiddlewareOption {
	return func(m *Middleware) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func defaultGetUserID(r *http.Request) string {
	return GetUserID(r.Context())
}

func defaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusCode(err)
	switch status {
	case http.StatusUnauthorized:
		http.Error(w, "Unauthorized", status)
	case http.StatusForbidden:
		http.Error(w, "Forbidden", status)
	case http.StatusInternalServerError:
		http.Error(w, "Internal Server Error", status)
	default:
		// Lookup failures are reported as such so the client never mistakes them for a denial.
		http.Error(w, err.Error(), status)
	}
}

// StatusCode maps a pagekit error to an HTTP status.
// A lookup failure is 503, never 403: access is unknown, not denied.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsUnauthenticated(err), errors.Is(err, ErrNoActorID):
		return http.StatusUnauthorized
	case IsForbidden(err):
		return http.StatusForbidden
	case IsInvalid(err):
		return http.StatusBadRequest
	case IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, ErrRoleAlreadyAssigned), errors.Is(err, ErrRoleNotAssigned):
		return http.StatusConflict
	case IsLookupFailure(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PageExtractor extracts the page code from an HTTP request.
type PageExtractor func(*http.Request) (string, error)

// PageFromParam creates a PageExtractor that reads the page code from a route parameter.
// Works with chi routes and standard library patterns.
//
// Example:
//
//	// For route /pages/{page}/items
//	mw.RequireCapability(pagekit.CapabilityView, pagekit.PageFromParam("page"))
func PageFromParam(paramName string) PageExtractor {
	return func(r *http.Request) (string, error) {
		page := chi.URLParam(r, paramName)
		if page == "" {
			page = r.PathValue(paramName)
		}
		if page == "" {
			return "", NewError(ErrInvalidPage, "page code not found in request")
		}
		return page, nil
	}
}

// PageFromQuery creates a PageExtractor that reads the page code from a query parameter.
func PageFromQuery(queryParam string) PageExtractor {
	return func(r *http.Request) (string, error) {
		page := r.URL.Query().Get(queryParam)
		if page == "" {
			return "", NewError(ErrInvalidPage, "page code not found in query")
		}
		return page, nil
	}
}

// PageFromHeader creates a PageExtractor that reads the page code from a header.
func PageFromHeader(headerName string) PageExtractor {
	return func(r *http.Request) (string, error) {
		page := r.Header.Get(headerName)
		if page == "" {
			return "", NewError(ErrInvalidPage, "page code not found in header")
		}
		return page, nil
	}
}

// StaticPage creates a PageExtractor that always returns the same page.
//
// Example:
//
//	router.With(mw.RequireCapability(pagekit.CapabilityDelete, pagekit.StaticPage("projects"))).
//	    Delete("/projects/{id}", deleteProjectHandler)
func StaticPage(pageCode string) PageExtractor {
	return func(r *http.Request) (string, error) {
		return pageCode, nil
	}
}

// Authenticate creates middleware that validates the bearer token, if any, and puts
// the identity in the context. Requests without a token continue anonymously; a
// token that fails validation is rejected with 401.
func (m *Middleware) Authenticate() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" || m.auth == nil {
				next.ServeHTTP(w, r)
				return
			}

			ident, err := m.auth.Authenticate(token)
			if err != nil {
				m.logger.Debug("access token rejected", zap.Error(err))
				m.errorHandler(w, r, err)
				return
			}

			ctx := WithBearerToken(r.Context(), token)
			ctx = WithIdentity(ctx, ident)
			ctx = WithUserID(ctx, ident.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireCapability creates middleware that requires a capability on a page.
// The resolved permissions are left in the context for the handler.
//
// Example:
//
//	router.With(mw.RequireCapability(pagekit.CapabilityEdit, pagekit.PageFromParam("page"))).
//	    Put("/pages/{page}/items/{id}", updateItemHandler)
func (m *Middleware) RequireCapability(capability Capability, extractor PageExtractor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			userID := m.getUserID(r)
			if userID == "" {
				m.errorHandler(w, r, NewError(ErrUnauthenticated, "sign in required"))
				return
			}

			page, err := extractor(r)
			if err != nil {
				m.errorHandler(w, r, err)
				return
			}

			perms, err := m.checker.Resolve(ctx, userID, page)
			if err != nil {
				m.logger.Warn("permission check could not be completed",
					zap.String("user_id", userID),
					zap.String("page", page),
					zap.Error(err))
				m.errorHandler(w, r, err)
				return
			}

			if !perms.Can(capability) {
				m.errorHandler(w, r, NewError(ErrForbidden, "missing "+string(capability)).
					WithPage(page).
					WithUser(userID))
				return
			}

			ctx = WithPermissions(ctx, page, perms, nil)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoadPermissions creates middleware that resolves the user's permissions on a page
// and stores them in the context without blocking the request. Use this when the
// handler renders differently per capability rather than refusing outright.
//
// Example:
//
//	router.With(mw.LoadPermissions(pagekit.PageFromParam("page"))).Get("/pages/{page}", pageHandler)
//
//	func pageHandler(w http.ResponseWriter, r *http.Request) {
//	    perms, err := pagekit.PermissionsFromContext(r.Context())
//	    if err == nil && perms.CanDelete {
//	        // Show delete buttons
//	    }
//	}
func (m *Middleware) LoadPermissions(extractor PageExtractor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			page, err := extractor(r)
			if err != nil {
				ctx = WithPermissions(ctx, "", NoPermissions, err)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			perms, err := m.checker.Resolve(ctx, m.getUserID(r), page)
			if err != nil {
				m.logger.Warn("permissions could not be loaded",
					zap.String("page", page),
					zap.Error(err))
			}
			ctx = WithPermissions(ctx, page, perms, err)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// InjectAuditContext creates middleware that extracts audit information from the request
// and adds it to the context for use in administrative operations. A request ID is
// generated when the client sends none and echoed in the X-Request-ID response header.
//
// Example:
//
//	router.Use(mw.InjectAuditContext())
func (m *Middleware) InjectAuditContext() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			ip := r.Header.Get("X-Forwarded-For")
			if ip == "" {
				ip = r.Header.Get("X-Real-IP")
			}
			if ip == "" {
				ip = r.RemoteAddr
			}
			ctx = WithIPAddress(ctx, ip)

			ctx = WithUserAgent(ctx, r.UserAgent())

			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.NewString()
			}
			ctx = WithRequestID(ctx, requestID)
			w.Header().Set("X-Request-ID", requestID)

			if userID := m.getUserID(r); userID != "" {
				ctx = WithActorID(ctx, userID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
