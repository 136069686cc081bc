package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"cafe/internal/auth"
	"cafe/internal/config"
	"cafe/internal/game"
	"cafe/internal/metrics"
	"cafe/internal/money"
)

type contextKey string

const callerContextKey contextKey = "caller"

// Deps are the collaborators a Server routes to. Metrics may be nil.
type Deps struct {
	Game     *game.Service
	Auth     auth.Authenticator
	Accounts Accounts
	Metrics  *metrics.Collector
}

type Server struct {
	cfg      config.APIConfig
	log      *slog.Logger
	game     *game.Service
	auth     auth.Authenticator
	accounts Accounts
	metrics  *metrics.Collector
	limiter  *rateLimiter
	mux      *chi.Mux
}

func New(cfg config.APIConfig, logger *slog.Logger, deps Deps) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		log:      logger,
		game:     deps.Game,
		auth:     deps.Auth,
		accounts: deps.Accounts,
		metrics:  deps.Metrics,
		mux:      chi.NewRouter(),
	}
	if cfg.RateLimitRPS > 0 {
		s.limiter = newRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// SweepLimiter drops idle rate-limit buckets every interval until ctx ends.
func (s *Server) SweepLimiter(ctx context.Context, interval time.Duration) {
	if s.limiter == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.limiter.sweep(10 * time.Minute); n > 0 {
				s.log.Debug("rate limiter swept", "removed", n)
			}
		}
	}
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			s.limit(r)
			r.Post("/auth/signup", s.handleSignup)
			r.Post("/auth/login", s.handleLogin)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			s.limit(r)
			r.Get("/me", s.handleMe)

			r.Get("/menu", s.handleMenu)
			r.Get("/menu/{id}", s.handleMenuItem)

			r.Get("/inventory", s.handleInventory)
			r.Post("/inventory/restock", s.handleRestock)

			r.Post("/orders", s.handleCreateOrder)
			r.Get("/orders", s.handleListOrders)
			r.Get("/orders/{id}", s.handleGetOrder)
			r.Patch("/orders/{id}/complete", s.handleCompleteOrder)
			r.Patch("/orders/{id}/cancel", s.handleCancelOrder)

			r.Get("/game/history", s.handleHistory)
			r.Get("/game/progress", s.handleProgress)
			r.Get("/game/stats", s.handleStats)

			r.Route("/admin", func(r chi.Router) {
				r.Use(adminOnly)
				r.Get("/orders", s.handleAdminOrders)
				r.Get("/players", s.handleAdminPlayers)
				r.Get("/stats", s.handleAdminStats)
				r.Post("/menu", s.handleAdminAddItem)
			})
		})
	})
}

func (s *Server) limit(r chi.Router) {
	if s.limiter != nil {
		r.Use(s.limiter.middleware)
	}
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// authMiddleware turns the bearer token into a game.Caller, opening the
// player's café on the first authenticated request.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		id, err := s.auth.Verify(r.Context(), token)
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidToken) {
				s.log.Warn("token verification failed", "err", err)
			}
			writeError(w, http.StatusUnauthorized, auth.ErrInvalidToken.Error())
			return
		}
		caller, err := s.game.EnsurePlayer(r.Context(), id.Subject, id.Email, id.Username)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), callerContextKey, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerFrom(r.Context())
		if !ok || !caller.Admin {
			writeError(w, http.StatusForbidden, game.ErrAdminOnly.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func callerFrom(ctx context.Context) (game.Caller, bool) {
	caller, ok := ctx.Value(callerContextKey).(game.Caller)
	return caller, ok && caller.UserID != 0
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in Credentials
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tok, err := s.accounts.SignUp(r.Context(), in)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tok)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in Credentials
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tok, err := s.accounts.Login(r.Context(), in)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

// writeDomainError maps error kinds to stable statuses. Unexpected errors are
// logged and answered with a generic message.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, game.ErrOrderProcessingFailed):
		s.log.Error("order processing failed", "err", err, "request_id", middleware.GetReqID(r.Context()))
		writeError(w, http.StatusInternalServerError, game.ErrOrderProcessingFailed.Error())
	case errors.Is(err, game.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, game.ErrForbidden), errors.Is(err, game.ErrAdminOnly):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, game.ErrInvalidOrderState),
		errors.Is(err, game.ErrInsufficientStock),
		errors.Is(err, game.ErrInsufficientFunds),
		errors.Is(err, game.ErrInvalidQuantity),
		errors.Is(err, game.ErrEmptyOrder),
		errors.Is(err, game.ErrTooManyLines),
		errors.Is(err, game.ErrInvalidProduct),
		errors.Is(err, game.ErrInvalidUsername),
		errors.Is(err, money.ErrQuantityOverflow),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, errSignupRejected):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, game.ErrDuplicateIdempotency),
		errors.Is(err, game.ErrTxConflict),
		errors.Is(err, game.ErrDuplicateProduct),
		errors.Is(err, game.ErrUsernameTaken):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		s.log.Error("request failed", "err", err, "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

// idempotencyKey is optional; without one the request is not deduplicated.
func idempotencyKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("Idempotency-Key"))
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
