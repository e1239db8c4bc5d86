package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"shopbill/backend/internal/domain"
	"shopbill/backend/internal/logger"
	"shopbill/backend/internal/metrics"
	"shopbill/backend/internal/service"
	"shopbill/backend/internal/store"
)

// Operations gated through the capability table.
const (
	opOnHoldView    = "onhold.view"
	opOnHoldCreate  = "onhold.create"
	opOnHoldReview  = "onhold.review"
	opActiveView    = "active.view"
	opActiveManage  = "active.manage"
	opSaleRecord    = "sales.record"
	opSaleView      = "sales.view"
	opSaleAnalytics = "sales.analytics"
	opUserManage    = "users.manage"
)

// capabilities is the single source of truth for which roles may invoke which
// operation. Handlers consult it through allow instead of carrying their own
// role lists.
var capabilities = map[string][]string{
	opOnHoldView:    {domain.RoleEmployee, domain.RoleAdmin},
	opOnHoldCreate:  {domain.RoleEmployee, domain.RoleAdmin},
	opOnHoldReview:  {domain.RoleAdmin},
	opActiveView:    {domain.RoleEmployee, domain.RoleAdmin},
	opActiveManage:  {domain.RoleAdmin},
	opSaleRecord:    {domain.RoleEmployee, domain.RoleAdmin},
	opSaleView:      {domain.RoleEmployee, domain.RoleAdmin},
	opSaleAnalytics: {domain.RoleAdmin},
	opUserManage:    {domain.RoleAdmin},
}

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	httpMetrics   *metrics.HTTPMetrics
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, httpMetrics *metrics.HTTPMetrics) *API {
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		httpMetrics:   httpMetrics,
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.Handle("/metrics", metrics.Handler())

	mux.HandleFunc("/api/v1/auth/register", a.handleRegister)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("/api/v1/auth/users", a.requireAuth(a.handleUsers))
	mux.HandleFunc("/api/v1/auth/users/", a.requireAuth(a.handleUserActions))

	mux.HandleFunc("/api/v1/onhold", a.requireAuth(a.handleOnHold))
	mux.HandleFunc("/api/v1/onhold/", a.requireAuth(a.handleOnHoldActions))

	mux.HandleFunc("/api/v1/active", a.requireAuth(a.handleActive))
	mux.HandleFunc("/api/v1/active/", a.requireAuth(a.handleActiveActions))

	mux.HandleFunc("/api/v1/sales", a.requireAuth(a.handleSales))
	mux.HandleFunc("/api/v1/sales/", a.requireAuth(a.handleSaleActions))

	return a.withMiddleware(mux)
}

// requireAuth authenticates the bearer token and stores the actor in the
// request context. Role checks happen per operation through allow.
func (a *API) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

// allow consults the capability table. It writes the 403 itself so handlers
// can bail with a plain return.
func (a *API) allow(w http.ResponseWriter, r *http.Request, op string) bool {
	actor, ok := service.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("missing actor"))
		return false
	}
	for _, role := range capabilities[op] {
		if actor.Role == role {
			return true
		}
	}
	writeError(w, http.StatusForbidden, errors.New("forbidden role"))
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	profile, resp, err := a.auth.Register(r.Context(), req)
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			writeError(w, http.StatusBadRequest, errors.New("username already exists"))
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"user": profile, "auth": resp})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrNotApproved) {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	if !a.allow(w, r, opUserManage) {
		return
	}

	users, err := a.auth.ListUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (a *API) handleUserActions(w http.ResponseWriter, r *http.Request) {
	tail := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/auth/users/"), "/")
	username, action, _ := strings.Cut(tail, "/")
	if username == "" || action != "approve" {
		writeError(w, http.StatusBadRequest, errors.New("invalid user action path"))
		return
	}
	if r.Method != http.MethodPut {
		writeMethodNotAllowed(w)
		return
	}
	if !a.allow(w, r, opUserManage) {
		return
	}

	// Body is optional: absent means approve, {"is_approved": false} revokes.
	var req struct {
		IsApproved *bool `json:"is_approved"`
	}
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	approved := true
	if req.IsApproved != nil {
		approved = *req.IsApproved
	}

	profile, err := a.auth.SetApproval(r.Context(), username, approved)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": profile})
}

func (a *API) handleOnHold(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.allow(w, r, opOnHoldView) {
			return
		}
		items, err := a.service.ListOnHoldItems(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case http.MethodPost:
		if !a.allow(w, r, opOnHoldCreate) {
			return
		}
		var req domain.OnHoldCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		item, err := a.service.CreateOnHoldItem(r.Context(), req)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"item": item})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleOnHoldActions(w http.ResponseWriter, r *http.Request) {
	tail := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/onhold/"), "/")
	id, action, _ := strings.Cut(tail, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("item id required"))
		return
	}
	if !a.allow(w, r, opOnHoldReview) {
		return
	}

	switch {
	case r.Method == http.MethodPut && action == "approve":
		item, err := a.service.ApproveOnHoldItem(r.Context(), id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"item": item})
	case r.Method == http.MethodPut && action == "reject":
		item, err := a.service.RejectOnHoldItem(r.Context(), id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"item": item})
	case r.Method == http.MethodDelete && action == "":
		if err := a.service.DeleteOnHoldItem(r.Context(), id); err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleActive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	if !a.allow(w, r, opActiveView) {
		return
	}

	filter := domain.ActiveItemFilter{
		Name:  strings.TrimSpace(r.URL.Query().Get("name")),
		Tag:   strings.TrimSpace(r.URL.Query().Get("tag")),
		Brand: strings.TrimSpace(r.URL.Query().Get("brand")),
	}
	items, err := a.service.ListActiveItems(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleActiveActions(w http.ResponseWriter, r *http.Request) {
	tail := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/active/"), "/")
	if tail == "" || strings.Contains(tail, "/") {
		writeError(w, http.StatusBadRequest, errors.New("invalid active item path"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		if !a.allow(w, r, opActiveView) {
			return
		}
		item, err := a.service.GetActiveItemByCode(r.Context(), tail)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"item": item})
	case http.MethodPut:
		if !a.allow(w, r, opActiveManage) {
			return
		}
		var req domain.ActiveItemUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		item, err := a.service.UpdateActiveItem(r.Context(), tail, req)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"item": item})
	case http.MethodDelete:
		if !a.allow(w, r, opActiveManage) {
			return
		}
		if err := a.service.DeleteActiveItem(r.Context(), tail); err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.allow(w, r, opSaleView) {
			return
		}
		sales, err := a.service.ListSales(r.Context(), r.URL.Query().Get("date"))
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
	case http.MethodPost:
		if !a.allow(w, r, opSaleRecord) {
			return
		}
		var req domain.SaleCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		sale, err := a.service.RecordSale(r.Context(), req)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		metrics.IncSalesRecorded()
		writeJSON(w, http.StatusCreated, map[string]any{"sale": sale})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSaleActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	tail := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/sales/"), "/")
	switch tail {
	case "":
		writeError(w, http.StatusBadRequest, errors.New("sale id required"))
	case "analytics":
		if !a.allow(w, r, opSaleAnalytics) {
			return
		}
		year := parseNonNegativeInt(r.URL.Query().Get("year"))
		month := parseNonNegativeInt(r.URL.Query().Get("month"))
		analytics, err := a.service.Analytics(r.Context(), year, month)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, analytics)
	case "lowstock":
		if !a.allow(w, r, opSaleAnalytics) {
			return
		}
		threshold := parseNonNegativeInt(r.URL.Query().Get("threshold"))
		items, err := a.service.LowStockItems(r.Context(), threshold)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		if !a.allow(w, r, opSaleView) {
			return
		}
		sale, err := a.service.GetSaleByID(r.Context(), tail)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
	}
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		logger.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("latency", time.Since(startedAt)))
	})

	if a.httpMetrics != nil {
		return a.httpMetrics.Middleware(handler)
	}
	return handler
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parseNonNegativeInt(raw string) int {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil || parsed < 0 {
		return 0
	}
	return parsed
}

// writeStoreError maps storage sentinels onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrInsufficientStock):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, store.ErrAlreadyExists):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, store.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusUnprocessableEntity, err)
	}
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// For 5xx responses, return a generic message to avoid leaking internal
	// implementation details (SQL errors, file paths, etc.). 4xx responses
	// are user-facing so we return the original error message.
	msg := err.Error()
	if status >= 500 {
		logger.L().Error("internal error", zap.Int("status", status), zap.Error(err))
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
