package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/kamdhenuseva/server/internal/http/handlers"
	"github.com/kamdhenuseva/server/internal/metrics"
	"github.com/kamdhenuseva/server/internal/middleware"
)

// Deps are the collaborators the router mounts.
type Deps struct {
	APIVersion     string
	AllowedOrigins []string

	Auth      *handlers.AuthHandler
	Profile   *handlers.ProfileHandler
	Donations *handlers.DonationHandler
	Pujas     *handlers.PujaHandler
	Health    *handlers.HealthHandler

	// DonationWebhook and PujaWebhook are separate because each source signs
	// with its own secret.
	DonationWebhook http.Handler
	PujaWebhook     http.Handler

	Tokens middleware.TokenValidator
	// LoginLimiter guards login and forgot-password per client IP.
	LoginLimiter middleware.Limiter

	Logger *zap.Logger
}

const loginLimitMessage = "Too many login attempts from this IP, please try again after 10 minutes"

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(d.Logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Retry-After", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           int((12 * time.Hour).Seconds()),
	}))

	r.Get("/health", d.Health.Health)
	r.Handle("/metrics", metrics.Handler())

	limited := middleware.RateLimit(d.LoginLimiter, "login", loginLimitMessage, middleware.GetIPKey)
	authn := middleware.Authenticate(d.Tokens, d.Logger)

	r.Route("/api/v"+d.APIVersion, func(r chi.Router) {
		r.Post("/verify-email-otp", d.Auth.VerifyEmail)
		r.Post("/verify-two-factor", d.Auth.VerifyTwoFactor)
		r.Post("/resend-two-factor", d.Auth.ResendTwoFactor)

		// Webhooks read the body unparsed.
		r.Method(http.MethodPost, "/payments/webhook", d.DonationWebhook)
		r.Method(http.MethodPost, "/cow-puja/webhook", d.PujaWebhook)

		r.Route("/user", func(r chi.Router) {
			r.Post("/register/init", d.Auth.RegisterInit)
			r.Post("/register/complete", d.Auth.RegisterComplete)
			r.Post("/verify-email-otp", d.Auth.VerifyEmail)
			r.Get("/validate-token", d.Auth.ValidateToken)
			r.Post("/logout", d.Auth.Logout)

			r.With(limited).Post("/login", d.Auth.Login)
			r.With(limited).Post("/forgot-password/request", d.Auth.ForgotPasswordRequest)
			r.Post("/forgot-password/confirm", d.Auth.ForgotPasswordConfirm)

			r.Group(func(r chi.Router) {
				r.Use(authn)
				r.Post("/enable-two-factor", d.Auth.EnableTwoFactor)
				r.Post("/disable-two-factor", d.Auth.DisableTwoFactor)
				r.Get("/profile", d.Profile.Get)
				r.Put("/update-profile", d.Profile.Update)
				r.Post("/rename", d.Profile.Rename)
				r.Post("/change-password", d.Profile.ChangePassword)
				r.Delete("/delete-account", d.Profile.Delete)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(authn)
			r.Post("/payments/donate", d.Donations.Donate)
			r.Post("/payments/mark-failed", d.Donations.MarkFailed)
			r.Get("/donations/my", d.Donations.History)
			r.Get("/donations/my/cows", d.Donations.CowHistory)
			r.Get("/donations/my/ashram", d.Donations.AshramHistory)

			r.Post("/cow-puja/orders", d.Pujas.Create)
			r.Post("/cow-puja/verify", d.Pujas.Verify)
			r.Post("/cow-puja/mark-failed", d.Pujas.MarkFailed)
			r.Post("/cow-puja/orders/{orderId}/abort", d.Pujas.Abort)
			r.Get("/cow-puja/my/orders", d.Pujas.List)
			r.Get("/cow-puja/my/orders/{id}", d.Pujas.Get)
		})
	})

	return r
}
