package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/portfolio-api/internal/application/auth"
	"github.com/portfolio-api/internal/application/twofactor"
	"github.com/portfolio-api/internal/application/user"
	"github.com/portfolio-api/internal/config"
	"github.com/portfolio-api/internal/domain"
	"github.com/portfolio-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/portfolio-api/internal/infrastructure/jwt"
	redisinfra "github.com/portfolio-api/internal/infrastructure/redis"
	"github.com/portfolio-api/internal/infrastructure/smtp"
	"github.com/portfolio-api/internal/infrastructure/sns"
	"github.com/portfolio-api/internal/transport/http/handler"
	appmiddleware "github.com/portfolio-api/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	UserRepo         *dynamo.UserRepo
	VerificationRepo *dynamo.VerificationRepo
	Cache            *redisinfra.Cache
	Mailer           smtp.Mailer
	Alerts           sns.AlertPublisher
	JWTProvider      *jwtinfra.Provider
	Logger           *slog.Logger
}

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{appmiddleware.NewTokenHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	revocations := auth.NewRevocationList(deps.Cache, deps.JWTProvider, cfg.RevocationFailClosed, deps.Logger)
	lockout := auth.LockoutPolicy{Threshold: cfg.LockoutThreshold, Duration: cfg.LockoutDuration}

	authSvc := auth.NewService(auth.ServiceDeps{
		UserRepo:         deps.UserRepo,
		VerificationRepo: deps.VerificationRepo,
		Mailer:           deps.Mailer,
		Alerts:           deps.Alerts,
		JWTProvider:      deps.JWTProvider,
		Cache:            deps.Cache,
		Revocations:      revocations,
		Lockout:          lockout,
		TokenTTL:         cfg.JWTExpiry,
		RememberTokenTTL: cfg.JWTRememberExpiry,
		Logger:           deps.Logger,
	})
	twoFactorSvc := twofactor.NewService(twofactor.ServiceDeps{
		UserRepo: deps.UserRepo,
		Cache:    deps.Cache,
		Issuer:   "portfolio-api",
		Logger:   deps.Logger,
	})
	userSvc := user.NewService(deps.UserRepo)

	authDeps := appmiddleware.AuthDeps{
		JWT:         deps.JWTProvider,
		Revocations: revocations,
		Users:       deps.UserRepo,
		Cache:       deps.Cache,
		Logger:      deps.Logger,
	}
	authMw := appmiddleware.Auth(authDeps)
	optionalAuthMw := appmiddleware.OptionalAuth(authDeps)
	refreshMw := appmiddleware.RefreshToken(deps.JWTProvider, cfg.RefreshThreshold, cfg.JWTExpiry, deps.Logger)
	twoFactorGate := appmiddleware.RequireTwoFactor(deps.Cache)

	// 5 requests/second, burst of 10 — applied to sensitive public endpoints.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	healthH := handler.NewHealthHandler(deps.Cache)
	authH := handler.NewAuthHandler(authSvc)
	twoFactorH := handler.NewTwoFactorHandler(twoFactorSvc)
	userH := handler.NewUserHandler(userSvc, authSvc)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health", healthH.Ping)
		r.With(sensitiveRL.Limit).Post("/auth/register", authH.Register)
		r.With(sensitiveRL.Limit).Post("/auth/login", authH.Login)
		r.With(sensitiveRL.Limit).Post("/auth/verify-email", authH.VerifyEmail)
		r.With(sensitiveRL.Limit).Post("/auth/resend-verification", authH.ResendVerification)
		r.With(sensitiveRL.Limit).Post("/auth/forgot-password", authH.ForgotPassword)
		r.With(sensitiveRL.Limit).Post("/auth/reset-password", authH.ResetPassword)

		// Anonymous callers get a well-formed answer too.
		r.With(optionalAuthMw).Get("/auth/session", authH.Session)

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)
			r.Use(refreshMw)

			r.Get("/auth/me", authH.Me)
			r.Post("/auth/logout", authH.Logout)
			r.Post("/auth/2fa/login-verify", twoFactorH.LoginVerify)

			// State-changing endpoints sit behind the second-factor gate.
			r.Group(func(r chi.Router) {
				r.Use(twoFactorGate)

				r.Post("/auth/change-password", authH.ChangePassword)
				r.Post("/auth/deactivate", authH.Deactivate)
				r.Post("/auth/2fa/setup", twoFactorH.Setup)
				r.Post("/auth/2fa/verify", twoFactorH.Verify)
				r.Post("/auth/2fa/disable", twoFactorH.Disable)

				// Admin-only routes
				r.Group(func(r chi.Router) {
					r.Use(appmiddleware.RequireRole(domain.RoleAdmin))

					r.Get("/users", userH.List)
					r.Get("/users/{id}", userH.Get)
					r.Put("/users/{id}/status", userH.SetStatus)
					r.Put("/users/{id}/role", userH.SetRole)
				})
			})
		})
	})

	return r
}
