package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/quickkash/api/internal/application/auth"
	"github.com/quickkash/api/internal/application/otp"
	"github.com/quickkash/api/internal/config"
	"github.com/quickkash/api/internal/infrastructure/dynamo"
	jwtinfra "github.com/quickkash/api/internal/infrastructure/jwt"
	"github.com/quickkash/api/internal/infrastructure/smtp"
	"github.com/quickkash/api/internal/infrastructure/sns"
	"github.com/quickkash/api/internal/transport/http/handler"
	appmiddleware "github.com/quickkash/api/internal/transport/http/middleware"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	UserRepo    *dynamo.UserRepo
	OTPStore    otp.Store
	Mailer      smtp.Mailer
	SMSSender   sns.SMSSender
	JWTProvider *jwtinfra.Provider
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
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authSvc := auth.NewService(auth.ServiceDeps{
		UserRepo:  deps.UserRepo,
		OTPStore:  deps.OTPStore,
		Mailer:    deps.Mailer,
		SMSSender: deps.SMSSender,
		Signer:    deps.JWTProvider,
	})

	healthH := handler.NewHealthHandler()
	authH := handler.NewAuthHandler(authSvc)
	profileH := handler.NewProfileHandler(authSvc)

	r.Get("/health-check", healthH.Ping)

	// ── Public auth routes ───────────────────────────────────────────────
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", authH.Register)
		r.Post("/login", authH.Login)
		r.Post("/verify-email", authH.VerifyEmail)
		r.Post("/forgot-password", authH.ForgotPassword)
		r.Post("/reset-password", authH.ResetPassword)
	})

	// ── Authenticated routes ─────────────────────────────────────────────
	r.Group(func(r chi.Router) {
		r.Use(appmiddleware.Auth(deps.JWTProvider))

		r.Get("/api/users/me", profileH.Me)
		r.Post("/api/users/me/phone/request-otp", profileH.RequestPhoneOTP)
		r.Post("/api/users/me/phone/verify", profileH.VerifyPhone)
	})

	return r
}
